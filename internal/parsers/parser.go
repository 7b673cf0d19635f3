// Package parsers provides grammar-based parsers for the diagram types that
// have a formal grammar. Each parser returns a precise location on failure.
package parsers

import (
	"fmt"
	"unicode/utf8"

	"github.com/Benny93/mermaid-mcp/internal/diagram"
	"github.com/Benny93/mermaid-mcp/internal/graph"
)

// ErrorCategory classifies a parse failure so callers can offer targeted hints.
type ErrorCategory string

const (
	CategoryMissingHeader   ErrorCategory = "missing-header"
	CategoryUnexpectedToken ErrorCategory = "unexpected-token"
	CategoryUnclosed        ErrorCategory = "unclosed"
	CategoryInvalidLink     ErrorCategory = "invalid-link"
	CategoryUnbalancedBlock ErrorCategory = "unbalanced-block"
	CategoryInvalidValue    ErrorCategory = "invalid-value"
)

// ParseError is a grammar violation with a 1-indexed location.
type ParseError struct {
	// Line is the 1-based source line.
	Line int

	// Column is the 1-based rune column within the line, 0 when unknown.
	Column int

	// Category classifies the failure.
	Category ErrorCategory

	// Message is the human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Column > 0 {
		return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// Slice is one pie chart segment.
type Slice struct {
	Label string
	Value float64
	Line  int
}

// ParseResult contains the constructs recognised in a diagram.
type ParseResult struct {
	// Type is the diagram type that was parsed.
	Type diagram.Type

	// Direction is the layout direction of a flowchart (TD, LR, ...).
	Direction string

	// Title is the diagram title, if declared.
	Title string

	// Nodes in declaration order.
	Nodes []graph.Node

	// Edges in declaration order.
	Edges []graph.Edge

	// Slices of a pie chart.
	Slices []Slice

	// Subgraphs is the number of subgraph blocks.
	Subgraphs int

	// Statements is the number of statements after the header.
	Statements int
}

// Parser defines the interface for grammar-based diagram parsers.
type Parser interface {
	// Parse parses diagram source and returns a *ParseError on grammar violations.
	Parse(source string) (*ParseResult, error)

	// DiagramType returns the diagram type this parser handles.
	DiagramType() diagram.Type
}

// ForType returns the formal parser registered for t, or nil when the type
// has no grammar-based parser.
func ForType(t diagram.Type) Parser {
	switch t {
	case diagram.Flowchart:
		return NewFlowchartParser()
	case diagram.Pie:
		return NewPieParser()
	default:
		return nil
	}
}

// Supported returns the diagram types with a formal parser.
func Supported() []diagram.Type {
	return []diagram.Type{diagram.Flowchart, diagram.Pie}
}

// column converts a byte offset within line into a 1-based rune column.
func column(line string, offset int) int {
	if offset > len(line) {
		offset = len(line)
	}
	return utf8.RuneCountInString(line[:offset]) + 1
}

func parseErrorAt(lineNo int, line string, offset int, category ErrorCategory, format string, args ...any) *ParseError {
	return &ParseError{
		Line:     lineNo,
		Column:   column(line, offset),
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}
