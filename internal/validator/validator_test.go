package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/mermaid-mcp/internal/diagram"
	"github.com/Benny93/mermaid-mcp/internal/parsers"
)

var wellFormed = map[diagram.Type]string{
	diagram.Flowchart: "flowchart TD\n  A[Start] --> B{Ok?}\n  B -->|yes| C(Done)",
	diagram.Sequence:  "sequenceDiagram\n  participant A as Alice\n  A->>B: Hello (world)\n  B-->>A: ok\n  A-)B: async\n  Note over A,B: done",
	diagram.Class:     "classDiagram\n  class Animal {\n    +String name\n    +eat(food) bool\n  }\n  Animal <|-- Duck\n  Animal \"1\" --> \"*\" Leg",
	diagram.State:     "stateDiagram-v2\n  [*] --> Idle\n  Idle --> Running : start\n  state Running {\n    [*] --> Busy\n  }\n  Running --> [*]",
	diagram.ER:        "erDiagram\n  CUSTOMER ||--o{ ORDER : places\n  ORDER }|..|{ ITEM : contains\n  CUSTOMER {\n    string name\n  }",
	diagram.Pie:       "pie title Pets\n  \"Dogs\" : 386\n  \"Cats\" : 85",
	diagram.Journey:   "journey\n  title My day\n  section Work\n    Code: 5: Me",
	diagram.Gantt:     "gantt\n  title Plan\n  dateFormat YYYY-MM-DD\n  section Build\n  Compile :a1, 2024-01-01, 3d",
	diagram.GitGraph:  "gitGraph\n  commit\n  branch dev\n  checkout dev\n  commit id: \"feat\"\n  checkout main\n  merge dev",
	diagram.Mindmap:   "mindmap\n  root((Ideas))\n    )Cloud(\n    [Square]\n    Plain",
	diagram.Timeline:  "timeline\n  title History\n  2004 : Facebook",
}

var unclosedSources = map[diagram.Type]string{
	diagram.Flowchart: "flowchart TD\n  A[Start --> B",
	diagram.Sequence:  "sequenceDiagram\n  A->>B: hello (world",
	diagram.Class:     "classDiagram\n  class Animal {\n    +name",
	diagram.Pie:       "pie\n  \"Dogs : 3",
	diagram.Gantt:     "gantt\n  title Plan [draft",
	diagram.ER:        "erDiagram\n  CUSTOMER {\n    string name",
}

func TestValidate_Empty(t *testing.T) {
	t.Parallel()

	v := New()
	for _, source := range []string{"", "   \n\t", "```mermaid\n```"} {
		result := v.Validate(source, false)
		assert.False(t, result.Valid)
		assert.Equal(t, EmptyInputError, result.Error)
		assert.NotEmpty(t, result.Suggestions)
		assert.Nil(t, result.Metadata)
	}
}

func TestValidate_WellFormed(t *testing.T) {
	t.Parallel()

	v := New()
	for typ, source := range wellFormed {
		t.Run(string(typ), func(t *testing.T) {
			result := v.Validate(source, false)
			require.True(t, result.Valid, "error: %s (line %d)", result.Error, result.Line)
			assert.Empty(t, result.Error)
			assert.Zero(t, result.Line)
			assert.Zero(t, result.Column)
			require.NotNil(t, result.Metadata)
			assert.Equal(t, typ, result.Metadata.DiagramType)
		})
	}
}

func TestValidate_Unclosed(t *testing.T) {
	t.Parallel()

	v := New()
	for typ, source := range unclosedSources {
		t.Run(string(typ), func(t *testing.T) {
			result := v.Validate(source, true)
			assert.False(t, result.Valid)
			assert.Contains(t, strings.ToLower(result.Error), "unclosed")
			assert.NotEmpty(t, result.Suggestions)
			assert.Positive(t, result.Line)
		})
	}
}

func TestValidate_StrategySelection(t *testing.T) {
	t.Parallel()

	v := New()

	t.Run("FormalForFlowchart", func(t *testing.T) {
		result := v.Validate("flowchart TD\n  A --> B", false)
		require.True(t, result.Valid)
		assert.Equal(t, "formal-flowchart", result.Metadata.ParserUsed)
	})

	t.Run("RulesForSequence", func(t *testing.T) {
		result := v.Validate("sequenceDiagram\n  A->>B: hi", false)
		require.True(t, result.Valid)
		assert.Equal(t, "rule-based", result.Metadata.ParserUsed)
	})

	t.Run("StrategyLookup", func(t *testing.T) {
		assert.IsType(t, &FormalParser{}, v.StrategyFor(diagram.Pie))
		assert.IsType(t, &RuleBased{}, v.StrategyFor(diagram.Gantt))
	})
}

func TestValidate_FormalErrors(t *testing.T) {
	t.Parallel()

	v := New()

	t.Run("LineAndColumn", func(t *testing.T) {
		result := v.Validate("flowchart TD\n  A[Start --> B", false)
		assert.False(t, result.Valid)
		assert.Equal(t, 2, result.Line)
		assert.Equal(t, 4, result.Column)
		assert.Contains(t, result.Suggestions, "Close every opening bracket, parenthesis and quote")
		assert.Contains(t, result.Suggestions[len(result.Suggestions)-1], "Flowchart syntax")
	})

	t.Run("FenceOffset", func(t *testing.T) {
		result := v.Validate("```mermaid\nflowchart TD\n  A[Start --> B\n```", false)
		assert.False(t, result.Valid)
		assert.Equal(t, 3, result.Line)
	})

	t.Run("SingleDashArrow", func(t *testing.T) {
		result := v.Validate("graph LR\n  A -> B", false)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Error, "Invalid arrow")
	})
}

func TestValidate_Rules(t *testing.T) {
	t.Parallel()

	v := New()

	cases := []struct {
		name     string
		source   string
		line     int
		column   int
		contains string
	}{
		{"UnknownType", "hello world\n  A --> B", 1, 1, "Unknown or missing diagram type"},
		{"BareDoubleArrow", "sequenceDiagram\n  A>>B: hi", 2, 4, "'>>'"},
		{"NonStandardGlyph", "sequenceDiagram\n  A → B: hi", 2, 5, "Non-standard arrow"},
		{"StateSingleDash", "stateDiagram-v2\n  [*] -> Idle", 2, 7, "Invalid arrow"},
		{"UnclosedBrace", "classDiagram\n  class Animal {\n    +name", 2, 16, "Unclosed '{'"},
		{"UnexpectedCloser", "sequenceDiagram\n  A->>B: oops]", 2, 14, "Unexpected closing ']'"},
		{"Mismatched", "gantt\n  title Plan (draft]", 2, 20, "found ']'"},
		{"UnclosedQuote", "journey\n  title \"My day", 2, 9, "Unclosed '\"'"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := v.Validate(tc.source, false)
			assert.False(t, result.Valid)
			assert.Equal(t, tc.line, result.Line)
			assert.Equal(t, tc.column, result.Column)
			assert.Contains(t, result.Error, tc.contains)
			assert.NotEmpty(t, result.Suggestions)
			require.NotNil(t, result.Metadata)
			assert.Equal(t, "rule-based", result.Metadata.ParserUsed)
		})
	}
}

func TestValidate_RulesRunInOrder(t *testing.T) {
	t.Parallel()

	// Balance is checked before arrow syntax even when the arrow comes first.
	result := New().Validate("sequenceDiagram\n  A>>B: hi\n  B->>A: (oops", false)
	assert.Contains(t, result.Error, "Unclosed '('")
	assert.Equal(t, 3, result.Line)
}

// failingStrategy always reports an internal failure.
type failingStrategy struct{}

func (failingStrategy) Name() string { return "failing" }

func (failingStrategy) Check(string, diagram.Type) (*Violation, error) {
	return nil, errors.New("grammar unavailable")
}

// panickingParser panics on every call.
type panickingParser struct{}

func (panickingParser) Parse(string) (*parsers.ParseResult, error) { panic("boom") }

func (panickingParser) DiagramType() diagram.Type { return diagram.Flowchart }

func TestValidate_Fallback(t *testing.T) {
	t.Parallel()

	t.Run("StrategyError", func(t *testing.T) {
		v := New(WithStrategy(diagram.Flowchart, failingStrategy{}))

		result := v.Validate("flowchart TD\n  A -> B", false)
		assert.False(t, result.Valid)
		assert.Equal(t, "rule-based", result.Metadata.ParserUsed)
		assert.Contains(t, result.Error, "Invalid arrow")

		result = v.Validate("flowchart TD\n  A --> B", false)
		assert.True(t, result.Valid)
	})

	t.Run("ParserPanic", func(t *testing.T) {
		strategy := NewFormalParser(panickingParser{})
		violation, err := strategy.Check("flowchart TD", diagram.Flowchart)
		assert.Nil(t, violation)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panicked")

		v := New(WithStrategy(diagram.Flowchart, strategy))
		result := v.Validate("flowchart TD\n  A --> B", false)
		assert.True(t, result.Valid)
		assert.Equal(t, "rule-based", result.Metadata.ParserUsed)
	})
}
