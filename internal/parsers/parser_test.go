package parsers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/mermaid-mcp/internal/diagram"
	"github.com/Benny93/mermaid-mcp/internal/graph"
)

func parseFlowchart(t *testing.T, source string) (*ParseResult, *ParseError) {
	t.Helper()
	result, err := NewFlowchartParser().Parse(source)
	if err != nil {
		var perr *ParseError
		require.True(t, errors.As(err, &perr), "expected *ParseError, got %T", err)
		return nil, perr
	}
	return result, nil
}

func TestForType(t *testing.T) {
	t.Parallel()

	assert.NotNil(t, ForType(diagram.Flowchart))
	assert.NotNil(t, ForType(diagram.Pie))
	assert.Nil(t, ForType(diagram.Sequence))
	assert.Nil(t, ForType(diagram.Unknown))

	for _, typ := range Supported() {
		assert.Equal(t, typ, ForType(typ).DiagramType())
	}
}

func TestFlowchartParser_Valid(t *testing.T) {
	t.Parallel()

	t.Run("SimpleEdge", func(t *testing.T) {
		result, perr := parseFlowchart(t, "flowchart TD\n  A --> B")
		require.Nil(t, perr)
		assert.Equal(t, "TD", result.Direction)
		require.Len(t, result.Edges, 1)
		assert.Equal(t, graph.Edge{From: "A", To: "B", Kind: graph.EdgeArrow, Line: 2}, result.Edges[0])
	})

	t.Run("ShapesAndLabels", func(t *testing.T) {
		source := `graph LR
    A[Start] --> B{Is it?}
    B -->|Yes| C((Done))
    B -- No --> D(["Retry later"])
    D -.-> A
    C ==> E[(Store)]`
		result, perr := parseFlowchart(t, source)
		require.Nil(t, perr)
		require.Len(t, result.Edges, 5)

		assert.Equal(t, "Yes", result.Edges[1].Label)
		assert.Equal(t, "No", result.Edges[2].Label)
		assert.Equal(t, graph.EdgeDotted, result.Edges[3].Kind)
		assert.Equal(t, graph.EdgeThick, result.Edges[4].Kind)

		labels := map[string]string{}
		for _, n := range result.Nodes {
			if n.Label != "" {
				labels[n.ID] = n.Label
			}
		}
		assert.Equal(t, "Start", labels["A"])
		assert.Equal(t, "Is it?", labels["B"])
		assert.Equal(t, "Done", labels["C"])
		assert.Equal(t, "Retry later", labels["D"])
		assert.Equal(t, "Store", labels["E"])
	})

	t.Run("AmpersandGroups", func(t *testing.T) {
		result, perr := parseFlowchart(t, "flowchart LR\n  A & B --> C & D")
		require.Nil(t, perr)
		assert.Len(t, result.Edges, 4)
	})

	t.Run("HeaderStatements", func(t *testing.T) {
		result, perr := parseFlowchart(t, "graph TD;A-->B;B-->C")
		require.Nil(t, perr)
		assert.Len(t, result.Edges, 2)
	})

	t.Run("SubgraphsAndStyles", func(t *testing.T) {
		source := `flowchart TB
  %% comment
  subgraph one [Ingest]
    direction LR
    a1 --> a2
  end
  classDef hot fill:#f96,stroke:#333
  class a1 hot
  style a2 fill:#bbf
  a2:::hot --- b1`
		result, perr := parseFlowchart(t, source)
		require.Nil(t, perr)
		assert.Equal(t, 1, result.Subgraphs)
		assert.Len(t, result.Edges, 2)
		assert.Equal(t, graph.EdgeOpen, result.Edges[1].Kind)
	})

	t.Run("NoDirection", func(t *testing.T) {
		result, perr := parseFlowchart(t, "graph\n  A --> B")
		require.Nil(t, perr)
		assert.Empty(t, result.Direction)
	})
}

func TestFlowchartParser_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		source   string
		line     int
		column   int
		category ErrorCategory
		contains string
	}{
		{"UnclosedBracket", "flowchart TD\n  A[Start --> B", 2, 4, CategoryUnclosed, "Unclosed '['"},
		{"UnclosedParen", "flowchart TD\n  A(Start --> B", 2, 4, CategoryUnclosed, "Unclosed '('"},
		{"UnbalancedCircle", "flowchart TD\n  A((text) --> B", 2, 4, CategoryUnclosed, "Unclosed '((' in node 'A': expected '))'"},
		{"UnbalancedStadium", "flowchart TD\n  A([text) --> B", 2, 4, CategoryUnclosed, "expected '])'"},
		{"TrapezoidMismatch", "flowchart TD\n  A[/text] --> B", 2, 4, CategoryUnclosed, "expected '/]' or '\\]'"},
		{"SingleDashArrow", "flowchart TD\n  A -> B", 2, 5, CategoryInvalidLink, "Invalid arrow"},
		{"MissingTarget", "flowchart TD\n  A -->", 2, 5, CategoryUnexpectedToken, "Missing target"},
		{"BadDirection", "flowchart XY\n  A --> B", 1, 11, CategoryInvalidValue, "Unknown direction"},
		{"StrayEnd", "flowchart TD\n  A --> B\n  end", 3, 3, CategoryUnbalancedBlock, "without a matching"},
		{"UnclosedSubgraph", "flowchart TD\n  subgraph S\n  A --> B", 2, 0, CategoryUnbalancedBlock, "Unclosed 'subgraph'"},
		{"UnclosedEdgeLabel", "flowchart TD\n  A -->|yes B", 2, 8, CategoryUnclosed, "Unclosed '|'"},
		{"JuxtaposedNodes", "flowchart TD\n  A B", 2, 5, CategoryUnexpectedToken, "Unexpected 'B'"},
		{"WrongHeader", "flowchart TD A --> B", 1, 1, CategoryMissingHeader, "Invalid flowchart declaration"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, perr := parseFlowchart(t, tc.source)
			require.Nil(t, result)
			require.NotNil(t, perr)
			assert.Equal(t, tc.line, perr.Line)
			assert.Equal(t, tc.column, perr.Column)
			assert.Equal(t, tc.category, perr.Category)
			assert.Contains(t, perr.Message, tc.contains)
		})
	}
}

func TestPieParser(t *testing.T) {
	t.Parallel()

	p := NewPieParser()

	t.Run("Valid", func(t *testing.T) {
		result, err := p.Parse("pie title Pets\n  \"Dogs\" : 386\n  \"Cats\" : 85.5\n")
		require.NoError(t, err)
		assert.Equal(t, "Pets", result.Title)
		require.Len(t, result.Slices, 2)
		assert.Equal(t, Slice{Label: "Cats", Value: 85.5, Line: 3}, result.Slices[1])
	})

	t.Run("ShowDataAndTitleLine", func(t *testing.T) {
		result, err := p.Parse("pie showData\n  title Budget\n  \"Rent\" : 40")
		require.NoError(t, err)
		assert.Equal(t, "Budget", result.Title)
		assert.Len(t, result.Slices, 1)
	})

	t.Run("UnclosedQuote", func(t *testing.T) {
		_, err := p.Parse("pie\n  \"Dogs : 3")
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, CategoryUnclosed, perr.Category)
		assert.Equal(t, 2, perr.Line)
		assert.Equal(t, 3, perr.Column)
	})

	t.Run("NotANumber", func(t *testing.T) {
		_, err := p.Parse("pie\n  \"Dogs\" : many")
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, CategoryInvalidValue, perr.Category)
		assert.Equal(t, 12, perr.Column)
	})

	t.Run("Negative", func(t *testing.T) {
		_, err := p.Parse("pie\n  \"Dogs\" : -4")
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Contains(t, perr.Message, "negative")
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := p.Parse("pie\n  Dogs 3")
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, CategoryUnexpectedToken, perr.Category)
	})
}

func TestParseError_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "line 2, column 4: boom", (&ParseError{Line: 2, Column: 4, Message: "boom"}).Error())
	assert.Equal(t, "line 7: boom", (&ParseError{Line: 7, Message: "boom"}).Error())
}
