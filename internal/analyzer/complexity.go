package analyzer

import "github.com/Benny93/mermaid-mcp/internal/graph"

// Complexity is the coarse difficulty rating of a diagram.
type Complexity string

const (
	Simple  Complexity = "simple"
	Medium  Complexity = "medium"
	Complex Complexity = "complex"
)

// Score adds up the size, depth, branching, cycle and issue contributions.
func Score(nodes, edges int, m graph.Metrics, issues []Issue) int {
	score := 0

	switch {
	case nodes > 15:
		score += 2
	case nodes > 8:
		score++
	}

	switch {
	case edges > 20:
		score += 2
	case edges > 10:
		score++
	}

	switch {
	case m.MaxDepth > 6:
		score += 2
	case m.MaxDepth > 3:
		score++
	}

	if m.BranchingFactor > 4 {
		score++
	}
	if m.Cyclic {
		score++
	}

	for _, issue := range issues {
		switch issue.Severity {
		case SeverityHigh:
			score += 2
		case SeverityMedium:
			score++
		}
	}
	return score
}

// Rate maps a score onto a Complexity.
func Rate(score int) Complexity {
	switch {
	case score >= 6:
		return Complex
	case score >= 3:
		return Medium
	default:
		return Simple
	}
}
