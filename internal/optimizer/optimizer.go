// Package optimizer rewrites diagram source for quality and converts it
// between diagram grammars.
//
// Optimize always applies the structural normalization in Normalize and
// returns advisory suggestions from goal-gated generators. ConvertFormat
// re-emits the extracted nodes and edges in another grammar.
package optimizer

import (
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/Benny93/mermaid-mcp/internal/analyzer"
	"github.com/Benny93/mermaid-mcp/internal/diagram"
)

// Goal selects a family of suggestion generators.
type Goal string

const (
	GoalReadability   Goal = "readability"
	GoalCompactness   Goal = "compactness"
	GoalAesthetics    Goal = "aesthetics"
	GoalAccessibility Goal = "accessibility"
)

// Goals returns every goal in generator order.
func Goals() []Goal {
	return []Goal{GoalReadability, GoalCompactness, GoalAesthetics, GoalAccessibility}
}

// Impact ranks suggestions. Higher impact sorts first.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

func (i Impact) rank() int {
	switch i {
	case ImpactHigh:
		return 0
	case ImpactMedium:
		return 1
	default:
		return 2
	}
}

// Suggestion is an advisory improvement. It is not applied to the code.
type Suggestion struct {
	Type        string `json:"type"`
	Impact      Impact `json:"impact"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Reasoning   string `json:"reasoning"`
	BeforeCode  string `json:"beforeCode,omitempty"`
	AfterCode   string `json:"afterCode,omitempty"`
}

// Metrics are quality scores, each in 0..100.
type Metrics struct {
	ReadabilityScore   int `json:"readabilityScore"`
	CompactnessScore   int `json:"compactnessScore"`
	AestheticsScore    int `json:"aestheticsScore"`
	AccessibilityScore int `json:"accessibilityScore"`
}

// Result is the outcome of Optimize or ConvertFormat.
type Result struct {
	OriginalCode         string       `json:"originalCode"`
	OptimizedCode        string       `json:"optimizedCode"`
	Suggestions          []Suggestion `json:"suggestions"`
	Metrics              Metrics      `json:"metrics"`
	AppliedOptimizations []string     `json:"appliedOptimizations"`
}

// Options control Optimize.
type Options struct {
	// Goals gates the suggestion generators. Empty means every goal.
	Goals []Goal

	// PreserveSemantics guarantees the optimized code extracts to the same
	// nodes and edges as the original.
	PreserveSemantics bool

	// MaxSuggestions caps the suggestion list. Zero or less means no cap.
	MaxSuggestions int
}

// ProgressCallback is called with phase name and progress (0.0-1.0).
type ProgressCallback func(phase string, progress float64)

// Optimizer runs the optimization and conversion pipelines. It holds no
// per-call state and is safe for concurrent use.
type Optimizer struct {
	logger *log.Logger
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the logger used to report discarded rewrites.
func WithLogger(logger *log.Logger) Option {
	return func(o *Optimizer) {
		o.logger = logger
	}
}

// New creates an Optimizer.
func New(opts ...Option) *Optimizer {
	o := &Optimizer{logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize normalizes source and collects suggestions for the requested goals.
func (o *Optimizer) Optimize(source string, opts Options) Result {
	return o.OptimizeWithProgress(source, opts, nil)
}

// OptimizeWithProgress is Optimize reporting each generator to progress.
func (o *Optimizer) OptimizeWithProgress(source string, opts Options, progress ProgressCallback) Result {
	report := func(phase string, p float64) {
		if progress != nil {
			progress(phase, p)
		}
	}

	code, _ := diagram.StripFences(source)
	t := diagram.Detect(code)

	report("normalizing", 0.1)
	optimized, applied := Normalize(code, t)
	if opts.PreserveSemantics && !sameStructure(code, optimized) {
		o.logger.Warn("normalization changed diagram structure, keeping original", "type", t)
		optimized, applied = strings.TrimSpace(code), nil
	}

	goals := opts.Goals
	if len(goals) == 0 {
		goals = Goals()
	}

	sc := newScan(code)
	var suggestions []Suggestion
	for i, g := range Goals() {
		if !slices.Contains(goals, g) {
			continue
		}
		report(string(g), 0.2+0.6*float64(i)/float64(len(Goals())))
		suggestions = append(suggestions, generators[g](sc)...)
	}
	suggestions = rank(suggestions, opts.MaxSuggestions)

	report("scoring", 0.9)
	metrics := Score(optimized)
	report("done", 1.0)

	if applied == nil {
		applied = []string{}
	}
	return Result{
		OriginalCode:         source,
		OptimizedCode:        optimized,
		Suggestions:          suggestions,
		Metrics:              metrics,
		AppliedOptimizations: applied,
	}
}

// rank orders suggestions by descending impact, keeping generator order for
// equal impact, and truncates to limit when limit is positive.
func rank(suggestions []Suggestion, limit int) []Suggestion {
	slices.SortStableFunc(suggestions, func(a, b Suggestion) int {
		return a.Impact.rank() - b.Impact.rank()
	})
	if limit > 0 && len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	if suggestions == nil {
		suggestions = []Suggestion{}
	}
	return suggestions
}

// sameStructure reports whether a and b extract to the same node set and
// edge list.
func sameStructure(a, b string) bool {
	xa, xb := analyzer.Extract(a), analyzer.Extract(b)
	if xa.Type != xb.Type || len(xa.Edges) != len(xb.Edges) {
		return false
	}
	ida, idb := xa.NodeIDs(), xb.NodeIDs()
	slices.Sort(ida)
	slices.Sort(idb)
	if !slices.Equal(ida, idb) {
		return false
	}
	for i := range xa.Edges {
		if xa.Edges[i].From != xb.Edges[i].From || xa.Edges[i].To != xb.Edges[i].To {
			return false
		}
	}
	return true
}
