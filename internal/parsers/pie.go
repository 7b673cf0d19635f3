package parsers

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Benny93/mermaid-mcp/internal/diagram"
)

// PieParser parses pie chart diagrams.
type PieParser struct {
	headerRe *regexp.Regexp
	sliceRe  *regexp.Regexp
}

// NewPieParser creates a new pie chart parser.
func NewPieParser() *PieParser {
	return &PieParser{
		headerRe: regexp.MustCompile(`^\s*pie(?:\s+showData)?(?:\s+title\s+(.*))?\s*$`),
		sliceRe:  regexp.MustCompile(`^\s*"([^"]*)"\s*:\s*(\S+)\s*$`),
	}
}

// DiagramType returns the diagram type this parser handles.
func (p *PieParser) DiagramType() diagram.Type {
	return diagram.Pie
}

// Parse parses pie chart source.
func (p *PieParser) Parse(source string) (*ParseResult, error) {
	result := &ParseResult{Type: diagram.Pie}
	lines := diagram.Lines(source)

	_, headerLine := diagram.FirstContentLine(source)
	if headerLine == 0 {
		return nil, &ParseError{Line: 1, Category: CategoryMissingHeader, Message: "Missing pie declaration"}
	}

	header := lines[headerLine-1]
	m := p.headerRe.FindStringSubmatch(header)
	if m == nil {
		return nil, parseErrorAt(headerLine, header, 0, CategoryMissingHeader,
			"Invalid pie declaration %q", strings.TrimSpace(header))
	}
	result.Title = strings.TrimSpace(m[1])

	for i := headerLine; i < len(lines); i++ {
		line := lines[i]
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)
		offset := len(line) - len(strings.TrimLeft(line, " \t"))

		switch {
		case trimmed == "" || diagram.IsComment(trimmed):
			continue
		case trimmed == "showData":
		case strings.HasPrefix(trimmed, "title"):
			result.Title = strings.TrimSpace(strings.TrimPrefix(trimmed, "title"))
		case strings.HasPrefix(trimmed, "accTitle") || strings.HasPrefix(trimmed, "accDescr"):
		case strings.HasPrefix(trimmed, `"`):
			slice, err := p.parseSlice(line, lineNo, offset)
			if err != nil {
				return nil, err
			}
			result.Slices = append(result.Slices, slice)
		default:
			return nil, parseErrorAt(lineNo, line, offset, CategoryUnexpectedToken,
				"Expected a slice like \"Label\" : 42 but found '%s'", trimmed)
		}
		result.Statements++
	}

	return result, nil
}

func (p *PieParser) parseSlice(line string, lineNo, offset int) (Slice, error) {
	if strings.Count(line, `"`)%2 != 0 {
		return Slice{}, parseErrorAt(lineNo, line, offset, CategoryUnclosed, "Unclosed '\"' in slice label")
	}

	m := p.sliceRe.FindStringSubmatchIndex(line)
	if m == nil {
		return Slice{}, parseErrorAt(lineNo, line, offset, CategoryUnexpectedToken,
			"Slice is missing ':' followed by a value")
	}

	raw := line[m[4]:m[5]]
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Slice{}, parseErrorAt(lineNo, line, m[4], CategoryInvalidValue, "Slice value '%s' is not a number", raw)
	}
	if value < 0 {
		return Slice{}, parseErrorAt(lineNo, line, m[4], CategoryInvalidValue, "Slice value '%s' must not be negative", raw)
	}

	return Slice{Label: line[m[2]:m[3]], Value: value, Line: lineNo}, nil
}
