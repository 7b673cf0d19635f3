// Package validator decides whether diagram source is syntactically
// well-formed for its declared type.
//
// Types with a grammar-based parser are checked by a FormalParser strategy;
// every other type is checked by hand-written rules. A formal parser that
// fails internally falls back to the rules, so validation always produces a
// result.
package validator

import (
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/Benny93/mermaid-mcp/internal/diagram"
	"github.com/Benny93/mermaid-mcp/internal/parsers"
)

// EmptyInputError is the error reported for blank diagram source.
const EmptyInputError = "Empty diagram code"

// Result is the outcome of validating one diagram.
type Result struct {
	Valid       bool      `json:"valid"`
	Error       string    `json:"error,omitempty"`
	Line        int       `json:"line,omitempty"`
	Column      int       `json:"column,omitempty"`
	Suggestions []string  `json:"suggestions"`
	Metadata    *Metadata `json:"metadata,omitempty"`
}

// Metadata describes how a result was produced.
type Metadata struct {
	ParserUsed  string       `json:"parserUsed"`
	DiagramType diagram.Type `json:"diagramType"`
}

// Validator validates diagram source. It holds no per-call state and is safe
// for concurrent use.
type Validator struct {
	strategies map[diagram.Type]SyntaxStrategy
	rules      SyntaxStrategy
	logger     *log.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithStrategy overrides the strategy used for diagram type t.
func WithStrategy(t diagram.Type, s SyntaxStrategy) Option {
	return func(v *Validator) {
		v.strategies[t] = s
	}
}

// WithLogger sets the logger used to report strategy fallbacks.
func WithLogger(logger *log.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// New creates a validator with a formal parser registered for every type in
// parsers.Supported and rule-based checking for the rest.
func New(opts ...Option) *Validator {
	v := &Validator{
		strategies: make(map[diagram.Type]SyntaxStrategy),
		rules:      NewRuleBased(),
		logger:     log.New(io.Discard),
	}
	for _, t := range parsers.Supported() {
		v.strategies[t] = NewFormalParser(parsers.ForType(t))
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// StrategyFor returns the strategy selected for diagram type t.
func (v *Validator) StrategyFor(t diagram.Type) SyntaxStrategy {
	if s, ok := v.strategies[t]; ok {
		return s
	}
	return v.rules
}

// Validate checks source. strict is reserved for stricter rule sets and does
// not currently change the checks performed.
func (v *Validator) Validate(source string, strict bool) Result {
	if strings.TrimSpace(source) == "" {
		return emptyResult()
	}

	code, offset := diagram.StripFences(source)
	if strings.TrimSpace(code) == "" {
		return emptyResult()
	}

	t := diagram.Detect(code)
	strategy := v.StrategyFor(t)

	violation, err := strategy.Check(code, t)
	if err != nil {
		v.logger.Warn("syntax strategy failed, falling back to rules",
			"strategy", strategy.Name(), "type", t, "err", err)
		strategy = v.rules
		// Rule checks are pure functions over lines and never fail.
		violation, _ = strategy.Check(code, t)
	}

	meta := &Metadata{ParserUsed: strategy.Name(), DiagramType: t}
	if violation == nil {
		v.logger.Debug("diagram valid", "type", t, "strategy", strategy.Name(), "strict", strict)
		return Result{Valid: true, Suggestions: []string{}, Metadata: meta}
	}

	line := violation.Line
	if line > 0 {
		line += offset
	}
	return Result{
		Valid:       false,
		Error:       violation.Message,
		Line:        line,
		Column:      violation.Column,
		Suggestions: violation.Suggestions,
		Metadata:    meta,
	}
}

func emptyResult() Result {
	return Result{
		Valid: false,
		Error: EmptyInputError,
		Suggestions: []string{
			"Provide Mermaid diagram code starting with a diagram type, e.g. 'flowchart TD'",
		},
	}
}
