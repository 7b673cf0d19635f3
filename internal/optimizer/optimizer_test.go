package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/mermaid-mcp/internal/analyzer"
	"github.com/Benny93/mermaid-mcp/internal/diagram"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	t.Run("Flowchart", func(t *testing.T) {
		out, applied := Normalize("graph\n\n  A-->B\n\tB-->C   \n", diagram.Flowchart)
		assert.Equal(t, "graph TD\n    A --> B\n    B --> C", out)
		assert.ElementsMatch(t, []string{
			AppliedBlankLines, AppliedTrailing, AppliedDirection, AppliedArrowSpacing, AppliedIndentation,
		}, applied)
	})

	t.Run("Subgraph", func(t *testing.T) {
		out, _ := Normalize("flowchart LR\nsubgraph One\nA --> B\nend\nB --> C", diagram.Flowchart)
		assert.Equal(t, "flowchart LR\n    subgraph One\n        A --> B\n    end\n    B --> C", out)
	})

	t.Run("SequenceBlocks", func(t *testing.T) {
		out, _ := Normalize("sequenceDiagram\nalt ok\nA->>B: yes\nelse fail\nA->>B: no\nend", diagram.Sequence)
		assert.Equal(t, "sequenceDiagram\n    alt ok\n        A->>B: yes\n    else fail\n        A->>B: no\n    end", out)
	})

	t.Run("MindmapKeepsIndentation", func(t *testing.T) {
		out, applied := Normalize("mindmap\n  root\n      child\n\n", diagram.Mindmap)
		assert.Equal(t, "mindmap\n  root\n      child", out)
		assert.Equal(t, []string{AppliedBlankLines}, applied)
	})

	t.Run("ArrowsInsideLabelsUntouched", func(t *testing.T) {
		assert.Equal(t, `  A["x-->y"] --> B(f(x))`, spaceArrows(`  A["x-->y"]-->B(f(x))`))
		assert.Equal(t, "A -->|yes| B", spaceArrows("A-->|yes|B"))
	})

	t.Run("Idempotent", func(t *testing.T) {
		first, _ := Normalize("graph\nA-->B\nsubgraph S\nB-->C\nend", diagram.Flowchart)
		second, applied := Normalize(first, diagram.Flowchart)
		assert.Equal(t, first, second)
		assert.Empty(t, applied)
	})
}

func TestOptimize_PreservesStructure(t *testing.T) {
	t.Parallel()

	o := New()
	sources := []string{
		"flowchart TD\nA-->B\nB-->C\n\nC-->A",
		"sequenceDiagram\nparticipant Alice\nAlice->>Bob: hi\nloop retry\nBob-->>Alice: ok\nend",
		"classDiagram\nclass Animal {\n+name\n}\nAnimal <|-- Duck",
		"mindmap\n  root((Ideas))\n    Origins\n      History",
	}
	for _, source := range sources {
		result := o.Optimize(source, Options{PreserveSemantics: true})
		before, after := analyzer.Analyze(source), analyzer.Analyze(result.OptimizedCode)
		assert.Equal(t, before.DiagramType, after.DiagramType)
		assert.Equal(t, before.NodeCount, after.NodeCount)
		assert.Equal(t, before.EdgeCount, after.EdgeCount)
		assert.Equal(t, source, result.OriginalCode)
	}
}

func TestOptimize_Suggestions(t *testing.T) {
	t.Parallel()

	o := New()
	source := "flowchart TD\n  A{Pick} --> B\n  A --> C"

	t.Run("OrderedByImpact", func(t *testing.T) {
		result := o.Optimize(source, Options{})
		require.Len(t, result.Suggestions, 4)
		assert.Equal(t, "Use descriptive identifiers", result.Suggestions[0].Title)
		assert.Equal(t, "Add a title", result.Suggestions[1].Title)
		assert.Equal(t, "Label decision branches", result.Suggestions[2].Title)
		assert.Equal(t, "Add a description", result.Suggestions[3].Title)
		for i := 1; i < len(result.Suggestions); i++ {
			assert.LessOrEqual(t, result.Suggestions[i-1].Impact.rank(), result.Suggestions[i].Impact.rank())
		}
	})

	t.Run("Capped", func(t *testing.T) {
		result := o.Optimize(source, Options{MaxSuggestions: 2})
		require.Len(t, result.Suggestions, 2)
		assert.Equal(t, "Add a title", result.Suggestions[1].Title)
	})

	t.Run("GoalGated", func(t *testing.T) {
		result := o.Optimize(source, Options{Goals: []Goal{GoalAccessibility}})
		require.NotEmpty(t, result.Suggestions)
		for _, s := range result.Suggestions {
			assert.Equal(t, "accessibility", s.Type)
		}
	})

	t.Run("RenameSnippet", func(t *testing.T) {
		result := o.Optimize("flowchart TD\n  A[Start order] --> Bee", Options{Goals: []Goal{GoalReadability}})
		require.Len(t, result.Suggestions, 1)
		assert.Equal(t, "A[Start order] --> Bee", result.Suggestions[0].BeforeCode)
		assert.Equal(t, "StartOrder[Start order] --> Bee", result.Suggestions[0].AfterCode)
	})

	t.Run("UnknownTypeHasNone", func(t *testing.T) {
		result := o.Optimize("hello\n\nworld", Options{})
		assert.Empty(t, result.Suggestions)
		assert.Equal(t, "hello\nworld", result.OptimizedCode)
	})
}

func TestOptimize_Progress(t *testing.T) {
	t.Parallel()

	var phases []string
	last := 0.0
	New().OptimizeWithProgress("flowchart TD\n  A --> B", Options{}, func(phase string, p float64) {
		assert.GreaterOrEqual(t, p, last)
		last = p
		phases = append(phases, phase)
	})
	assert.Equal(t, []string{
		"normalizing", "readability", "compactness", "aesthetics", "accessibility", "scoring", "done",
	}, phases)
}

func TestScore(t *testing.T) {
	t.Parallel()

	t.Run("Deterministic", func(t *testing.T) {
		source := "flowchart TD\n  A --> B\n  B --> Longer[This label is far too long]"
		assert.Equal(t, Score(source), Score(source))
	})

	t.Run("Readability", func(t *testing.T) {
		m := Score("flowchart TD\n    A --> B")
		assert.Equal(t, 80, m.ReadabilityScore)
	})

	t.Run("Accessibility", func(t *testing.T) {
		m := Score("flowchart TD\n    accTitle: Orders\n    accDescr: Order flow\n    Start --> Finish")
		assert.Equal(t, 100, m.AccessibilityScore)
		assert.Equal(t, 40, Score("flowchart TD\n    Start --> Finish").AccessibilityScore)
	})

	t.Run("Aesthetics", func(t *testing.T) {
		styled := Score("flowchart TD\n    Start --> Finish\n    classDef done fill:#0f0\n    class Finish done")
		assert.Equal(t, 100, styled.AestheticsScore)
		assert.Equal(t, 60, Score("flowchart TD\nStart-->Finish").AestheticsScore)
	})

	t.Run("Bounds", func(t *testing.T) {
		m := Score("flowchart TD\n  A --> B\n  C --> D\n  E --> F\n  G --> H\n  I[an extremely long label text here] --> J")
		for _, v := range []int{m.ReadabilityScore, m.CompactnessScore, m.AestheticsScore, m.AccessibilityScore} {
			assert.GreaterOrEqual(t, v, 0)
			assert.LessOrEqual(t, v, 100)
		}
		assert.Zero(t, Score("").ReadabilityScore)
	})
}
