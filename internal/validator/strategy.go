package validator

import (
	"errors"
	"fmt"

	"github.com/Benny93/mermaid-mcp/internal/diagram"
	"github.com/Benny93/mermaid-mcp/internal/parsers"
)

// Violation is a syntax error found by a strategy. Line and Column are
// 1-based and relative to the code the strategy was given.
type Violation struct {
	Line        int
	Column      int
	Category    parsers.ErrorCategory
	Message     string
	Suggestions []string
}

// SyntaxStrategy checks diagram code of one type.
//
// Check returns a nil Violation when the code is well-formed. A non-nil error
// means the strategy itself could not run; the validator then falls back to
// rule-based checking.
type SyntaxStrategy interface {
	Name() string
	Check(code string, t diagram.Type) (*Violation, error)
}

// FormalParser validates with a grammar-based parser.
type FormalParser struct {
	parser parsers.Parser
}

// NewFormalParser wraps p as a syntax strategy.
func NewFormalParser(p parsers.Parser) *FormalParser {
	return &FormalParser{parser: p}
}

// Name implements SyntaxStrategy.
func (s *FormalParser) Name() string {
	return "formal-" + string(s.parser.DiagramType())
}

// Check implements SyntaxStrategy. Parser panics are reported as errors.
func (s *FormalParser) Check(code string, t diagram.Type) (v *Violation, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("%s parser panicked: %v", t, r)
		}
	}()

	_, perr := s.parser.Parse(code)
	if perr == nil {
		return nil, nil
	}

	var pe *parsers.ParseError
	if !errors.As(perr, &pe) {
		return nil, fmt.Errorf("%s parser failed: %w", t, perr)
	}

	return &Violation{
		Line:        pe.Line,
		Column:      pe.Column,
		Category:    pe.Category,
		Message:     pe.Message,
		Suggestions: suggestionsFor(pe.Category, t),
	}, nil
}

// Rule is one hand-written syntax check. It returns the first violation found
// scanning top to bottom, or nil.
type Rule struct {
	Name  string
	Check func(lines []string, t diagram.Type) *Violation
}

// RuleBased validates by running rules in order, stopping at the first violation.
type RuleBased struct {
	rules []Rule
}

// NewRuleBased creates the rule-based strategy with the default rule order:
// type keyword, bracket balance, arrow glyphs, type-specific arrow syntax.
func NewRuleBased() *RuleBased {
	return &RuleBased{rules: []Rule{
		{Name: "keyword", Check: checkKeyword},
		{Name: "balance", Check: checkBalance},
		{Name: "glyphs", Check: checkArrowGlyphs},
		{Name: "arrows", Check: checkArrowSyntax},
	}}
}

// Name implements SyntaxStrategy.
func (s *RuleBased) Name() string {
	return "rule-based"
}

// Check implements SyntaxStrategy.
func (s *RuleBased) Check(code string, t diagram.Type) (*Violation, error) {
	lines := diagram.Lines(code)
	for _, rule := range s.rules {
		if v := rule.Check(lines, t); v != nil {
			if len(v.Suggestions) == 0 {
				v.Suggestions = suggestionsFor(v.Category, t)
			}
			return v, nil
		}
	}
	return nil, nil
}
