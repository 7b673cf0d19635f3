package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/Benny93/mermaid-mcp/internal/analyzer"
	"github.com/Benny93/mermaid-mcp/internal/diagram"
	"github.com/Benny93/mermaid-mcp/internal/optimizer"
	"github.com/Benny93/mermaid-mcp/internal/storage"
	"github.com/Benny93/mermaid-mcp/internal/validator"
)

// Tool names.
const (
	ValidateMermaid      = "validate_mermaid"
	GetDiagramTemplates  = "get_diagram_templates"
	OptimizeDiagram      = "optimize_diagram"
	ConvertDiagramFormat = "convert_diagram_format"
	AnalyzeDiagram       = "analyze_diagram"
)

// Template listing bounds.
const (
	DefaultTemplateLimit = 20
	MaxTemplateLimit     = 100
)

// DefaultMaxSuggestions is the suggestion cap used when none is given.
const DefaultMaxSuggestions = 10

// Services are the components the tools delegate to.
type Services struct {
	Validator *validator.Validator
	Optimizer *optimizer.Optimizer
	Templates storage.TemplateStore
}

// New creates the registry of every tool backed by svc.
func New(svc Services, opts ...Option) (*Registry, error) {
	if svc.Validator == nil {
		svc.Validator = validator.New()
	}
	if svc.Optimizer == nil {
		svc.Optimizer = optimizer.New()
	}
	if svc.Templates == nil {
		return nil, fmt.Errorf("template store is required")
	}

	r := newRegistry(opts...)
	h := &handlers{svc: svc}

	registrations := []struct {
		name, description string
		schema            *jsonschema.Schema
		handler           Handler
	}{
		{
			ValidateMermaid,
			"Validate Mermaid diagram syntax. Returns whether the code is valid, the error location and suggestions for fixing it.",
			validateSchema(),
			h.validate,
		},
		{
			GetDiagramTemplates,
			"List Mermaid diagram templates, optionally filtered by diagram type or category and ranked by a search query.",
			templatesSchema(),
			h.templates,
		},
		{
			OptimizeDiagram,
			"Normalize Mermaid diagram formatting and suggest readability, layout, styling and accessibility improvements with quality scores.",
			optimizeSchema(),
			h.optimize,
		},
		{
			ConvertDiagramFormat,
			"Convert a Mermaid diagram into another diagram type, or pick a suitable type automatically with \"auto\".",
			convertSchema(),
			h.convert,
		},
		{
			AnalyzeDiagram,
			"Analyze Mermaid diagram structure: node and edge counts, depth, branching, cycles, issues and complexity.",
			analyzeSchema(),
			h.analyze,
		},
	}
	for _, reg := range registrations {
		if err := r.register(reg.name, reg.description, reg.schema, reg.handler); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func mermaidCodeSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: "Mermaid diagram source"}
}

func typeNames() []any {
	names := make([]any, 0, len(diagram.Types()))
	for _, t := range diagram.Types() {
		names = append(names, string(t))
	}
	return names
}

func ptr[T any](v T) *T { return &v }

func validateSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"mermaidCode": mermaidCodeSchema(),
			"strict": {
				Type:        "boolean",
				Description: "Reserved for stricter rule sets",
				Default:     json.RawMessage(`false`),
			},
		},
		Required: []string{"mermaidCode"},
	}
}

func templatesSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"diagramType": {Type: "string", Description: "Only return templates of this diagram type", Enum: typeNames()},
			"category":    {Type: "string", Description: "Only return templates in this category"},
			"search":      {Type: "string", Description: "Full-text query over name, description and tags"},
			"limit": {
				Type:        "integer",
				Description: "Maximum number of templates",
				Minimum:     ptr(1.0),
				Maximum:     ptr(float64(MaxTemplateLimit)),
				Default:     json.RawMessage(fmt.Sprint(DefaultTemplateLimit)),
			},
		},
	}
}

func optimizeSchema() *jsonschema.Schema {
	goals := make([]any, 0, len(optimizer.Goals()))
	for _, g := range optimizer.Goals() {
		goals = append(goals, string(g))
	}
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"mermaidCode": mermaidCodeSchema(),
			"goals": {
				Type:        "array",
				Description: "Optimization goals; all goals when omitted",
				Items:       &jsonschema.Schema{Type: "string", Enum: goals},
			},
			"preserveSemantics": {
				Type:        "boolean",
				Description: "Keep the node and edge set unchanged",
				Default:     json.RawMessage(`true`),
			},
			"maxSuggestions": {
				Type:        "integer",
				Description: "Maximum number of suggestions",
				Minimum:     ptr(1.0),
				Maximum:     ptr(50.0),
				Default:     json.RawMessage(fmt.Sprint(DefaultMaxSuggestions)),
			},
		},
		Required: []string{"mermaidCode"},
	}
}

func convertSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"mermaidCode": mermaidCodeSchema(),
			"targetType": {
				Type:        "string",
				Description: "Target diagram type, or \"auto\"",
				Enum:        append(typeNames(), optimizer.Auto),
			},
			"optimizeStructure": {
				Type:        "boolean",
				Description: "Normalize the converted code",
				Default:     json.RawMessage(`false`),
			},
		},
		Required: []string{"mermaidCode", "targetType"},
	}
}

func analyzeSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"mermaidCode": mermaidCodeSchema(),
		},
		Required: []string{"mermaidCode"},
	}
}

type handlers struct {
	svc Services
}

type validateInput struct {
	MermaidCode string `json:"mermaidCode"`
	Strict      bool   `json:"strict"`
}

func (h *handlers) validate(_ context.Context, args map[string]any, progress ProgressFunc) (any, error) {
	var in validateInput
	if err := decode(args, &in); err != nil {
		return nil, err
	}

	progress(10, "Detecting diagram type", "detect")
	result := h.svc.Validator.Validate(in.MermaidCode, in.Strict)
	progress(100, "Validation complete", "done")
	return result, nil
}

type templatesInput struct {
	DiagramType string `json:"diagramType"`
	Category    string `json:"category"`
	Search      string `json:"search"`
	Limit       int    `json:"limit"`
}

// TemplateList is the result of get_diagram_templates.
type TemplateList struct {
	Templates []storage.Template `json:"templates"`
	Total     int                `json:"total"`
}

func (h *handlers) templates(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error) {
	var in templatesInput
	if err := decode(args, &in); err != nil {
		return nil, err
	}

	q := storage.Query{
		Category: strings.TrimSpace(in.Category),
		Search:   strings.TrimSpace(in.Search),
		Limit:    in.Limit,
	}
	if in.DiagramType != "" {
		q.DiagramType = diagram.ParseType(in.DiagramType)
	}

	progress(30, "Searching templates", "search")
	found, total, err := h.svc.Templates.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("searching templates: %w", err)
	}
	if found == nil {
		found = []storage.Template{}
	}
	progress(100, fmt.Sprintf("Found %d templates", total), "done")
	return TemplateList{Templates: found, Total: total}, nil
}

type optimizeInput struct {
	MermaidCode       string   `json:"mermaidCode"`
	Goals             []string `json:"goals"`
	PreserveSemantics bool     `json:"preserveSemantics"`
	MaxSuggestions    int      `json:"maxSuggestions"`
}

func (h *handlers) optimize(_ context.Context, args map[string]any, progress ProgressFunc) (any, error) {
	var in optimizeInput
	if err := decode(args, &in); err != nil {
		return nil, err
	}

	opts := optimizer.Options{
		PreserveSemantics: in.PreserveSemantics,
		MaxSuggestions:    in.MaxSuggestions,
	}
	for _, g := range in.Goals {
		opts.Goals = append(opts.Goals, optimizer.Goal(g))
	}

	return h.svc.Optimizer.OptimizeWithProgress(in.MermaidCode, opts, phaseProgress(progress)), nil
}

type convertInput struct {
	MermaidCode       string `json:"mermaidCode"`
	TargetType        string `json:"targetType"`
	OptimizeStructure bool   `json:"optimizeStructure"`
}

func (h *handlers) convert(_ context.Context, args map[string]any, progress ProgressFunc) (any, error) {
	var in convertInput
	if err := decode(args, &in); err != nil {
		return nil, err
	}
	return h.svc.Optimizer.ConvertFormatWithProgress(in.MermaidCode, in.TargetType, in.OptimizeStructure, phaseProgress(progress)), nil
}

type analyzeInput struct {
	MermaidCode string `json:"mermaidCode"`
}

func (h *handlers) analyze(_ context.Context, args map[string]any, progress ProgressFunc) (any, error) {
	var in analyzeInput
	if err := decode(args, &in); err != nil {
		return nil, err
	}
	return analyzer.AnalyzeWithProgress(in.MermaidCode, phaseProgress(progress)), nil
}

// phaseProgress adapts a ProgressFunc to the phase callbacks of the
// analyzer and optimizer, which report progress in [0, 1].
func phaseProgress(progress ProgressFunc) func(phase string, p float64) {
	return func(phase string, p float64) {
		progress(p*100, phaseMessage(phase), phase)
	}
}

func phaseMessage(phase string) string {
	if phase == "" {
		return ""
	}
	return strings.ToUpper(phase[:1]) + phase[1:]
}
