// Package analyzer extracts the structure of a diagram and reports metrics,
// heuristic issues and a complexity rating.
package analyzer

import (
	"strings"

	"github.com/Benny93/mermaid-mcp/internal/diagram"
	"github.com/Benny93/mermaid-mcp/internal/graph"
)

// Analysis is the structural report for one diagram.
type Analysis struct {
	DiagramType diagram.Type  `json:"diagramType"`
	NodeCount   int           `json:"nodeCount"`
	EdgeCount   int           `json:"edgeCount"`
	Complexity  Complexity    `json:"complexity"`
	Score       int           `json:"score"`
	Issues      []Issue       `json:"issues"`
	Structure   graph.Metrics `json:"structure"`
}

// ProgressCallback is called with phase name and progress (0.0-1.0).
type ProgressCallback func(phase string, progress float64)

// graphTypes are the diagram types whose edges form a meaningful directed
// graph. Other types report zero structure metrics.
var graphTypes = map[diagram.Type]bool{
	diagram.Flowchart: true,
	diagram.State:     true,
	diagram.Class:     true,
	diagram.ER:        true,
	diagram.Mindmap:   true,
	diagram.Gantt:     true,
}

// Analyze returns the analysis of source. Blank source yields an empty
// Unknown analysis.
func Analyze(source string) Analysis {
	return AnalyzeWithProgress(source, nil)
}

// AnalyzeWithProgress is Analyze reporting each phase to progress.
func AnalyzeWithProgress(source string, progress ProgressCallback) Analysis {
	report := func(phase string, p float64) {
		if progress != nil {
			progress(phase, p)
		}
	}

	code, offset := diagram.StripFences(source)
	if strings.TrimSpace(code) == "" {
		return Analysis{DiagramType: diagram.Unknown, Complexity: Simple, Issues: []Issue{}}
	}

	report("extracting", 0.2)
	x := Extract(code)
	g := x.Graph()

	report("measuring", 0.5)
	var metrics graph.Metrics
	if graphTypes[x.Type] {
		metrics = g.Metrics()
	}

	report("detecting issues", 0.8)
	issues := detectIssues(x)
	for i := range issues {
		if issues[i].Line > 0 {
			issues[i].Line += offset
		}
	}

	score := Score(g.NodeCount(), g.EdgeCount(), metrics, issues)
	report("scoring", 1.0)

	return Analysis{
		DiagramType: x.Type,
		NodeCount:   g.NodeCount(),
		EdgeCount:   g.EdgeCount(),
		Complexity:  Rate(score),
		Score:       score,
		Issues:      issues,
		Structure:   metrics,
	}
}
