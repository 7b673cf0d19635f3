package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/mermaid-mcp/internal/analyzer"
	"github.com/Benny93/mermaid-mcp/internal/diagram"
	"github.com/Benny93/mermaid-mcp/internal/optimizer"
	"github.com/Benny93/mermaid-mcp/internal/storage"
	"github.com/Benny93/mermaid-mcp/internal/templates"
	"github.com/Benny93/mermaid-mcp/internal/validator"
)

// failingStore is a template store whose searches fail or panic.
type failingStore struct {
	storage.TemplateStore
	panic bool
}

func (f *failingStore) Search(context.Context, storage.Query) ([]storage.Template, int, error) {
	if f.panic {
		panic("index corrupted")
	}
	return nil, 0, errors.New("disk unavailable")
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	store := storage.NewMemoryStore()
	_, err := templates.Load(context.Background(), store, "")
	require.NoError(t, err)

	r, err := New(Services{Templates: store})
	require.NoError(t, err)
	return r
}

func TestNew(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	assert.Equal(t, []string{
		AnalyzeDiagram, ConvertDiagramFormat, GetDiagramTemplates, OptimizeDiagram, ValidateMermaid,
	}, r.Names())

	for _, tool := range r.List() {
		assert.NotEmpty(t, tool.Description)
		assert.Equal(t, "object", tool.InputSchema.Type)
	}

	_, err := New(Services{})
	assert.Error(t, err)
}

func TestCall_Validate(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)

	t.Run("Valid", func(t *testing.T) {
		out, err := r.Call(context.Background(), ValidateMermaid, map[string]any{
			"mermaidCode": "flowchart TD\n  A --> B",
		}, nil)
		require.NoError(t, err)
		result := out.(validator.Result)
		assert.True(t, result.Valid)
	})

	t.Run("EmptyIsResultNotError", func(t *testing.T) {
		out, err := r.Call(context.Background(), ValidateMermaid, map[string]any{"mermaidCode": ""}, nil)
		require.NoError(t, err)
		result := out.(validator.Result)
		assert.False(t, result.Valid)
		assert.Equal(t, validator.EmptyInputError, result.Error)
	})

	t.Run("ProgressReported", func(t *testing.T) {
		var last float64
		_, err := r.Call(context.Background(), ValidateMermaid, map[string]any{"mermaidCode": "pie\n  \"A\" : 1"},
			func(p float64, _, _ string) { last = p })
		require.NoError(t, err)
		assert.Equal(t, 100.0, last)
	})
}

func TestCall_SchemaRejections(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	cases := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"MissingRequired", ValidateMermaid, map[string]any{}},
		{"WrongType", ValidateMermaid, map[string]any{"mermaidCode": 42.0}},
		{"LimitTooLarge", GetDiagramTemplates, map[string]any{"limit": 500.0}},
		{"LimitTooSmall", GetDiagramTemplates, map[string]any{"limit": 0.0}},
		{"UnknownDiagramType", GetDiagramTemplates, map[string]any{"diagramType": "venn"}},
		{"UnknownGoal", OptimizeDiagram, map[string]any{"mermaidCode": "graph TD", "goals": []any{"speed"}}},
		{"MissingTarget", ConvertDiagramFormat, map[string]any{"mermaidCode": "graph TD"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			_, err := r.Call(context.Background(), tc.tool, tc.args, func(float64, string, string) { called = true })
			var pe *ParamsError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tc.tool, pe.Tool)
			assert.False(t, called, "handler must not run")
		})
	}
}

func TestCall_UnknownTool(t *testing.T) {
	t.Parallel()

	_, err := newTestRegistry(t).Call(context.Background(), "render_png", nil, nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestCall_Templates(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)

	t.Run("DefaultLimit", func(t *testing.T) {
		out, err := r.Call(context.Background(), GetDiagramTemplates, nil, nil)
		require.NoError(t, err)
		list := out.(TemplateList)
		assert.Equal(t, len(templates.Builtin()), list.Total)
		assert.LessOrEqual(t, len(list.Templates), DefaultTemplateLimit)
	})

	t.Run("FilteredByKeyword", func(t *testing.T) {
		out, err := r.Call(context.Background(), GetDiagramTemplates, map[string]any{
			"diagramType": "sequence",
			"limit":       1.0,
		}, nil)
		require.NoError(t, err)
		list := out.(TemplateList)
		require.Len(t, list.Templates, 1)
		assert.Equal(t, diagram.Sequence, list.Templates[0].DiagramType)
		assert.Equal(t, 2, list.Total)
	})

	t.Run("NoMatchesIsEmptyList", func(t *testing.T) {
		out, err := r.Call(context.Background(), GetDiagramTemplates, map[string]any{"search": "zzzz"}, nil)
		require.NoError(t, err)
		list := out.(TemplateList)
		assert.NotNil(t, list.Templates)
		assert.Zero(t, list.Total)
	})
}

func TestCall_HandlerFailures(t *testing.T) {
	t.Parallel()

	t.Run("Error", func(t *testing.T) {
		r, err := New(Services{Templates: &failingStore{}})
		require.NoError(t, err)

		_, err = r.Call(context.Background(), GetDiagramTemplates, nil, nil)
		var te *ToolError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, GetDiagramTemplates, te.Tool)
		assert.Contains(t, te.Message, "disk unavailable")
		assert.False(t, te.Panic)
	})

	t.Run("Panic", func(t *testing.T) {
		r, err := New(Services{Templates: &failingStore{panic: true}})
		require.NoError(t, err)

		_, err = r.Call(context.Background(), GetDiagramTemplates, nil, nil)
		var te *ToolError
		require.ErrorAs(t, err, &te)
		assert.True(t, te.Panic)
		assert.Contains(t, te.Message, "index corrupted")
	})
}

func TestCall_OptimizeConvertAnalyze(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	source := "flowchart TD\nA-->B\nB-->C"

	t.Run("Optimize", func(t *testing.T) {
		var stages []string
		out, err := r.Call(context.Background(), OptimizeDiagram, map[string]any{
			"mermaidCode": source,
			"goals":       []any{"readability"},
		}, func(_ float64, _, stage string) { stages = append(stages, stage) })
		require.NoError(t, err)

		result := out.(optimizer.Result)
		assert.Equal(t, source, result.OriginalCode)
		assert.NotEmpty(t, result.AppliedOptimizations)
		for _, s := range result.Suggestions {
			assert.Equal(t, "readability", s.Type)
		}
		assert.Equal(t, "done", stages[len(stages)-1])
	})

	t.Run("Convert", func(t *testing.T) {
		out, err := r.Call(context.Background(), ConvertDiagramFormat, map[string]any{
			"mermaidCode": source,
			"targetType":  "sequence",
		}, nil)
		require.NoError(t, err)
		result := out.(optimizer.Result)
		assert.Equal(t, diagram.Sequence, analyzer.Analyze(result.OptimizedCode).DiagramType)
	})

	t.Run("Analyze", func(t *testing.T) {
		out, err := r.Call(context.Background(), AnalyzeDiagram, map[string]any{"mermaidCode": source}, nil)
		require.NoError(t, err)
		result := out.(analyzer.Analysis)
		assert.Equal(t, 3, result.NodeCount)
		assert.Equal(t, 2, result.EdgeCount)
	})
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	out, err := applyDefaults(optimizeSchema(), map[string]any{"mermaidCode": "x", "preserveSemantics": false})
	require.NoError(t, err)
	assert.Equal(t, false, out["preserveSemantics"])
	assert.Equal(t, float64(DefaultMaxSuggestions), out["maxSuggestions"])

	_, err = applyDefaults(&jsonschema.Schema{
		Properties: map[string]*jsonschema.Schema{"x": {Default: []byte("{")}},
	}, nil)
	assert.Error(t, err)
}
