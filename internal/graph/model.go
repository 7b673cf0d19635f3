// Package graph provides the directed graph model used for diagram analysis.
//
// It defines the node and edge types extracted from diagram sources
// (flowchart vertices, sequence participants, classes, entities, states)
// and the links between them (arrows, messages, relations, transitions).
package graph

// EdgeKind represents the kind of link between two diagram nodes.
type EdgeKind string

const (
	EdgeArrow      EdgeKind = "arrow"
	EdgeOpen       EdgeKind = "open"
	EdgeDotted     EdgeKind = "dotted"
	EdgeThick      EdgeKind = "thick"
	EdgeMessage    EdgeKind = "message"
	EdgeReply      EdgeKind = "reply"
	EdgeRelation   EdgeKind = "relation"
	EdgeTransition EdgeKind = "transition"
	EdgeChild      EdgeKind = "child"
)

// Node represents a vertex extracted from a diagram.
type Node struct {
	// ID is the identifier used in the diagram source.
	ID string

	// Label is the display text, empty when the diagram shows the ID.
	Label string

	// Shape is the bracket pair used to declare the node ("[]", "()", "{}", ...).
	Shape string

	// Line is the 1-indexed source line of the first declaration.
	Line int
}

// DisplayName returns the label when set, otherwise the ID.
func (n Node) DisplayName() string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

// Edge represents a directed link between two nodes.
type Edge struct {
	From  string
	To    string
	Label string
	Kind  EdgeKind

	// Line is the 1-indexed source line the edge was declared on.
	Line int
}

// Metrics is the structural summary of a graph.
type Metrics struct {
	MaxDepth        int     `json:"maxDepth"`
	BranchingFactor float64 `json:"branchingFactor"`
	Cyclic          bool    `json:"cyclicConnections"`
}
