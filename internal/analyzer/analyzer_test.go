package analyzer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/mermaid-mcp/internal/diagram"
	"github.com/Benny93/mermaid-mcp/internal/graph"
)

func issuesOf(a Analysis, typ IssueType) []Issue {
	var out []Issue
	for _, issue := range a.Issues {
		if issue.Type == typ {
			out = append(out, issue)
		}
	}
	return out
}

func TestAnalyze_Empty(t *testing.T) {
	t.Parallel()

	a := Analyze("  \n")
	assert.Equal(t, diagram.Unknown, a.DiagramType)
	assert.Equal(t, Simple, a.Complexity)
	assert.Zero(t, a.NodeCount)
	assert.NotNil(t, a.Issues)
}

func TestAnalyze_SmallFlowchartIsSimple(t *testing.T) {
	t.Parallel()

	a := Analyze("flowchart TD\n  Start --> Process\n  Process --> Finish")
	assert.Equal(t, diagram.Flowchart, a.DiagramType)
	assert.Equal(t, 3, a.NodeCount)
	assert.Equal(t, 2, a.EdgeCount)
	assert.Equal(t, 3, a.Structure.MaxDepth)
	assert.InDelta(t, 1.0, a.Structure.BranchingFactor, 0.001)
	assert.False(t, a.Structure.Cyclic)
	assert.Empty(t, a.Issues)
	assert.Equal(t, Simple, a.Complexity)
}

func TestAnalyze_LargeFlowchartIsComplex(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("flowchart TD\n")
	for i := 1; i < 20; i++ {
		fmt.Fprintf(&b, "  N%02d --> N%02d\n", i, i+1)
	}
	for i := 1; i <= 6; i++ {
		fmt.Fprintf(&b, "  N%02d --> N%02d\n", i, i+10)
	}

	a := Analyze(b.String())
	assert.Equal(t, 20, a.NodeCount)
	assert.Equal(t, 25, a.EdgeCount)
	assert.Equal(t, 20, a.Structure.MaxDepth)
	assert.GreaterOrEqual(t, a.Score, 6)
	assert.Equal(t, Complex, a.Complexity)
}

func TestAnalyze_FlowchartIssues(t *testing.T) {
	t.Parallel()

	t.Run("SingleLetterIDs", func(t *testing.T) {
		a := Analyze("flowchart TD\n  A --> Longer\n  A --> B")
		naming := issuesOf(a, IssueNaming)
		require.Len(t, naming, 2)
		assert.Equal(t, SeverityMedium, naming[0].Severity)
		assert.Equal(t, 2, naming[0].Line)
		assert.Contains(t, naming[0].Description, "'A'")
	})

	t.Run("LongLabel", func(t *testing.T) {
		a := Analyze("flowchart TD\n  Start[This label is far too long to read] --> Finish")
		readability := issuesOf(a, IssueReadability)
		require.Len(t, readability, 1)
		assert.Contains(t, readability[0].Description, "Start")
	})

	t.Run("SingleDashArrow", func(t *testing.T) {
		a := Analyze("flowchart TD\n  Start -> Finish")
		syntax := issuesOf(a, IssueSyntax)
		require.Len(t, syntax, 1)
		assert.Equal(t, SeverityHigh, syntax[0].Severity)
		assert.Equal(t, 2, syntax[0].Line)
		assert.Equal(t, 1, a.EdgeCount)
		assert.Equal(t, 2, a.Score)
	})

	t.Run("FenceOffset", func(t *testing.T) {
		a := Analyze("```mermaid\nflowchart TD\n  A --> Longer\n```")
		naming := issuesOf(a, IssueNaming)
		require.Len(t, naming, 1)
		assert.Equal(t, 3, naming[0].Line)
	})
}

func TestAnalyze_Cycle(t *testing.T) {
	t.Parallel()

	a := Analyze("flowchart LR\n  Start --> Check\n  Check --> Start")
	assert.True(t, a.Structure.Cyclic)
	assert.Equal(t, 2, a.Structure.MaxDepth)
	assert.Equal(t, 1, a.Score)
}

func TestAnalyze_Sequence(t *testing.T) {
	t.Parallel()

	a := Analyze("sequenceDiagram\n  participant Alice\n  Alice->>Bob: hi\n  Bob-->>Alice: ok\n  Bob->>Carol: fwd")
	assert.Equal(t, 3, a.NodeCount)
	assert.Equal(t, 3, a.EdgeCount)
	assert.Equal(t, graph.Metrics{}, a.Structure)

	structure := issuesOf(a, IssueStructure)
	require.Len(t, structure, 2)
	assert.Contains(t, structure[0].Description, "'Bob'")
	assert.Equal(t, 3, structure[0].Line)
	assert.Contains(t, structure[1].Description, "'Carol'")
	assert.Equal(t, 5, structure[1].Line)
}

func TestAnalyze_ClassNaming(t *testing.T) {
	t.Parallel()

	a := Analyze("classDiagram\n  class animal\n  animal <|-- Duck")
	assert.Equal(t, 2, a.NodeCount)
	assert.Equal(t, 1, a.EdgeCount)
	naming := issuesOf(a, IssueNaming)
	require.Len(t, naming, 1)
	assert.Contains(t, naming[0].Description, "'animal'")
	assert.Equal(t, 2, naming[0].Line)
}

func TestAnalyze_ClassNamingNonLetterStart(t *testing.T) {
	t.Parallel()

	a := Analyze("classDiagram\n  class _Base\n  class 2D\n  class Shape\n  _Base <|-- Shape")
	naming := issuesOf(a, IssueNaming)
	require.Len(t, naming, 2)
	var names []string
	for _, issue := range naming {
		names = append(names, issue.Description)
	}
	assert.Contains(t, strings.Join(names, "\n"), "'_Base'")
	assert.Contains(t, strings.Join(names, "\n"), "'2D'")
	assert.NotContains(t, strings.Join(names, "\n"), "'Shape'")
}

func TestAnalyze_Pie(t *testing.T) {
	t.Parallel()

	t.Run("TooManySlices", func(t *testing.T) {
		var b strings.Builder
		b.WriteString("pie title Budget\n")
		for i := 0; i < 8; i++ {
			fmt.Fprintf(&b, "  \"Item %d\" : 12.5\n", i)
		}
		a := Analyze(b.String())
		assert.Equal(t, 8, a.NodeCount)
		require.Len(t, issuesOf(a, IssueReadability), 1)
		assert.Empty(t, issuesOf(a, IssueData))
	})

	t.Run("SumOff", func(t *testing.T) {
		a := Analyze("pie\n  \"Dogs\" : 30\n  \"Cats\" : 30")
		data := issuesOf(a, IssueData)
		require.Len(t, data, 1)
		assert.Equal(t, SeverityLow, data[0].Severity)
		assert.Contains(t, data[0].Description, "60")
		assert.Zero(t, a.Score)
	})
}

func TestAnalyze_Mindmap(t *testing.T) {
	t.Parallel()

	a := Analyze("mindmap\n  root((Ideas))\n    Origins\n      History\n    Uses")
	assert.Equal(t, 4, a.NodeCount)
	assert.Equal(t, 3, a.EdgeCount)
	assert.Equal(t, 3, a.Structure.MaxDepth)
	assert.InDelta(t, 1.5, a.Structure.BranchingFactor, 0.001)
}

func TestAnalyze_Progress(t *testing.T) {
	t.Parallel()

	var phases []string
	last := 0.0
	AnalyzeWithProgress("flowchart TD\n  Start --> Finish", func(phase string, p float64) {
		assert.GreaterOrEqual(t, p, last)
		last = p
		phases = append(phases, phase)
	})
	assert.Equal(t, []string{"extracting", "measuring", "detecting issues", "scoring"}, phases)
	assert.InDelta(t, 1.0, last, 0.001)
}

func TestExtract(t *testing.T) {
	t.Parallel()

	t.Run("FlowchartHeaderStatements", func(t *testing.T) {
		x := Extract("graph LR; A-->B & C; B -- yes --> D")
		assert.Equal(t, "LR", x.Direction)
		require.Len(t, x.Edges, 3)
		assert.Equal(t, graph.Edge{From: "A", To: "C", Kind: graph.EdgeArrow, Line: 1}, x.Edges[1])
		assert.Equal(t, "yes", x.Edges[2].Label)
		assert.Equal(t, []string{"A", "B", "C", "D"}, x.NodeIDs())
	})

	t.Run("FlowchartShapesAndLabels", func(t *testing.T) {
		x := Extract("flowchart TD\n  Start((Begin)) -->|go| Check{Ready?}\n  Check -.-> Done[\"f(x)\"]")
		g := x.Graph()
		n, ok := g.GetNode("Start")
		require.True(t, ok)
		assert.Equal(t, "Begin", n.Label)
		assert.Equal(t, "(())", n.Shape)
		n, _ = g.GetNode("Done")
		assert.Equal(t, "f(x)", n.Label)
		assert.Equal(t, "go", x.Edges[0].Label)
		assert.Equal(t, graph.EdgeDotted, x.Edges[1].Kind)
	})

	t.Run("Gantt", func(t *testing.T) {
		x := Extract("gantt\n  dateFormat YYYY-MM-DD\n  section Build\n  Compile :a1, 2024-01-01, 3d\n  Test :after a1, 2d")
		require.Len(t, x.Edges, 1)
		assert.Equal(t, "a1", x.Edges[0].From)
		assert.Equal(t, "Test", x.Edges[0].To)
		assert.Equal(t, 2, x.Graph().MaxDepth())
	})

	t.Run("StatePseudoStates", func(t *testing.T) {
		x := Extract("stateDiagram-v2\n  [*] --> Idle\n  Idle --> [*]")
		assert.Equal(t, []string{"[*]", "Idle", "[*]end"}, x.NodeIDs())
		assert.False(t, x.Graph().HasCycle())
	})

	t.Run("ER", func(t *testing.T) {
		x := Extract("erDiagram\n  CUSTOMER ||--o{ ORDER : places\n  ORDER {\n    string id\n  }\n  ORDER }|..|{ ITEM : contains")
		require.Len(t, x.Edges, 2)
		assert.Equal(t, "places", x.Edges[0].Label)
		assert.Equal(t, []string{"CUSTOMER", "ORDER", "ITEM"}, x.NodeIDs())
	})
}

func TestScore(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		nodes   int
		edges   int
		metrics graph.Metrics
		issues  []Issue
		want    int
	}{
		{"Empty", 0, 0, graph.Metrics{}, nil, 0},
		{"ModerateSize", 9, 11, graph.Metrics{MaxDepth: 4}, nil, 3},
		{"LargeSize", 16, 21, graph.Metrics{MaxDepth: 7}, nil, 6},
		{"WideAndCyclic", 2, 2, graph.Metrics{BranchingFactor: 4.5, Cyclic: true}, nil, 2},
		{"Issues", 2, 1, graph.Metrics{}, []Issue{
			{Severity: SeverityHigh}, {Severity: SeverityMedium}, {Severity: SeverityLow},
		}, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Score(tc.nodes, tc.edges, tc.metrics, tc.issues))
		})
	}

	assert.Equal(t, Simple, Rate(2))
	assert.Equal(t, Medium, Rate(3))
	assert.Equal(t, Medium, Rate(5))
	assert.Equal(t, Complex, Rate(6))
}
