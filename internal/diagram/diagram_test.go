package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	cases := map[string]Type{
		"flowchart TD\n  A --> B":               Flowchart,
		"graph LR;A-->B":                        Flowchart,
		"sequenceDiagram\n  A->>B: hi":          Sequence,
		"classDiagram\n  class Animal":          Class,
		"stateDiagram-v2\n  [*] --> Idle":       State,
		"erDiagram\n  A ||--o{ B : has":         ER,
		"pie title Pets\n  \"Dogs\" : 3":        Pie,
		"journey\n  title Day":                  Journey,
		"gantt\n  title Plan":                   Gantt,
		"gitGraph\n  commit":                    GitGraph,
		"mindmap\n  root":                       Mindmap,
		"timeline\n  title History":             Timeline,
		"%% comment\n\nflowchart LR\n  A --> B": Flowchart,
		"---\ntitle: Demo\n---\nsequenceDiagram": Sequence,
		"not a diagram":                         Unknown,
		"":                                      Unknown,
	}

	for source, want := range cases {
		assert.Equal(t, want, Detect(source), source)
	}
}

func TestDetect_Deterministic(t *testing.T) {
	t.Parallel()

	source := "flowchart TD\n  A --> B"
	assert.Equal(t, Detect(source), Detect(source))
}

func TestParseType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Sequence, ParseType("sequence"))
	assert.Equal(t, Sequence, ParseType("sequenceDiagram"))
	assert.Equal(t, ER, ParseType("ER"))
	assert.Equal(t, Flowchart, ParseType(" graph "))
	assert.Equal(t, Unknown, ParseType("svg"))
}

func TestStripFences(t *testing.T) {
	t.Parallel()

	t.Run("FencedBlock", func(t *testing.T) {
		code, offset := StripFences("```mermaid\nflowchart TD\n  A --> B\n```\n")
		assert.Equal(t, "flowchart TD\n  A --> B", code)
		assert.Equal(t, 1, offset)
	})

	t.Run("NoFence", func(t *testing.T) {
		source := "flowchart TD\n  A --> B"
		code, offset := StripFences(source)
		assert.Equal(t, source, code)
		assert.Equal(t, 0, offset)
	})

	t.Run("LeadingBlankLines", func(t *testing.T) {
		code, offset := StripFences("\n\n```\npie\n```")
		assert.Equal(t, "pie", code)
		assert.Equal(t, 3, offset)
	})
}

func TestFirstContentLine(t *testing.T) {
	t.Parallel()

	line, n := FirstContentLine("\n%% note\n  graph TD\nA-->B")
	assert.Equal(t, "graph TD", line)
	assert.Equal(t, 3, n)

	line, n = FirstContentLine("\n\n")
	assert.Empty(t, line)
	assert.Equal(t, 0, n)
}

func TestType_Keyword(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "sequenceDiagram", Sequence.Keyword())
	assert.Equal(t, "erDiagram", ER.Keyword())
	assert.Empty(t, Unknown.Keyword())
	assert.False(t, Unknown.Valid())
	assert.Len(t, Types(), 17)
}
