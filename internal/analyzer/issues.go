package analyzer

import (
	"fmt"
	"math"
	"unicode"
	"unicode/utf8"

	"github.com/Benny93/mermaid-mcp/internal/diagram"
)

// IssueType classifies a detected issue.
type IssueType string

const (
	IssueNaming      IssueType = "naming"
	IssueReadability IssueType = "readability"
	IssueSyntax      IssueType = "syntax"
	IssueStructure   IssueType = "structure"
	IssueData        IssueType = "data"
)

// Severity of an issue. High and medium issues raise the complexity score.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Issue is a heuristic finding about a diagram.
type Issue struct {
	Type        IssueType `json:"type"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	Line        int       `json:"line,omitempty"`
}

const (
	maxLabelLength = 20
	maxPieSlices   = 7
	pieTolerance   = 1.0
)

// detectIssues runs the heuristics that apply to the extraction's type.
func detectIssues(x *Extraction) []Issue {
	issues := []Issue{}

	switch x.Type {
	case diagram.Flowchart:
		issues = append(issues, flowchartIssues(x)...)
	case diagram.Sequence:
		issues = append(issues, sequenceIssues(x)...)
	case diagram.Class:
		issues = append(issues, classIssues(x)...)
	case diagram.Pie:
		issues = append(issues, pieIssues(x)...)
	}
	return issues
}

func flowchartIssues(x *Extraction) []Issue {
	var issues []Issue
	flagged := make(map[string]bool)
	for _, n := range x.Nodes {
		if flagged[n.ID] {
			continue
		}
		if utf8.RuneCountInString(n.ID) == 1 {
			flagged[n.ID] = true
			issues = append(issues, Issue{
				Type:        IssueNaming,
				Severity:    SeverityMedium,
				Description: fmt.Sprintf("Node '%s' uses a single-letter identifier; prefer a descriptive ID", n.ID),
				Line:        n.Line,
			})
		}
	}

	labelled := make(map[string]bool)
	for _, n := range x.Nodes {
		if labelled[n.ID] || utf8.RuneCountInString(n.Label) <= maxLabelLength {
			continue
		}
		labelled[n.ID] = true
		issues = append(issues, Issue{
			Type:        IssueReadability,
			Severity:    SeverityMedium,
			Description: fmt.Sprintf("Label of node '%s' is longer than %d characters", n.ID, maxLabelLength),
			Line:        n.Line,
		})
	}

	for _, line := range x.SingleDashLines {
		issues = append(issues, Issue{
			Type:        IssueSyntax,
			Severity:    SeverityHigh,
			Description: "Single-dash arrow '->' is not valid flowchart syntax; use '-->'",
			Line:        line,
		})
	}
	return issues
}

func sequenceIssues(x *Extraction) []Issue {
	var issues []Issue
	flagged := make(map[string]bool)
	for _, e := range x.Edges {
		for _, name := range []string{e.From, e.To} {
			if x.Declared[name] || flagged[name] {
				continue
			}
			flagged[name] = true
			issues = append(issues, Issue{
				Type:        IssueStructure,
				Severity:    SeverityMedium,
				Description: fmt.Sprintf("Participant '%s' is used without a participant declaration", name),
				Line:        e.Line,
			})
		}
	}
	return issues
}

func classIssues(x *Extraction) []Issue {
	var issues []Issue
	flagged := make(map[string]bool)
	for _, id := range x.NodeIDs() {
		r, _ := utf8.DecodeRuneInString(id)
		if flagged[id] || unicode.IsUpper(r) {
			continue
		}
		flagged[id] = true
		issues = append(issues, Issue{
			Type:        IssueNaming,
			Severity:    SeverityMedium,
			Description: fmt.Sprintf("Class '%s' should start with an uppercase letter", id),
			Line:        lineOf(x, id),
		})
	}
	return issues
}

func pieIssues(x *Extraction) []Issue {
	var issues []Issue
	if len(x.Slices) > maxPieSlices {
		issues = append(issues, Issue{
			Type:        IssueReadability,
			Severity:    SeverityMedium,
			Description: fmt.Sprintf("Pie chart has %d slices; more than %d are hard to read", len(x.Slices), maxPieSlices),
		})
	}
	if len(x.Slices) > 0 {
		sum := 0.0
		for _, s := range x.Slices {
			sum += s.Value
		}
		if math.Abs(sum-100) > pieTolerance {
			issues = append(issues, Issue{
				Type:        IssueData,
				Severity:    SeverityLow,
				Description: fmt.Sprintf("Slice values sum to %g instead of 100", math.Round(sum*100)/100),
			})
		}
	}
	return issues
}

func lineOf(x *Extraction, id string) int {
	for _, n := range x.Nodes {
		if n.ID == id {
			return n.Line
		}
	}
	return 0
}
