package parsers

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/Benny93/mermaid-mcp/internal/diagram"
	"github.com/Benny93/mermaid-mcp/internal/graph"
)

var directions = map[string]bool{
	"TB": true, "TD": true, "BT": true, "RL": true, "LR": true,
}

// nodeShapes lists the bracket pairs a flowchart node may be declared with.
// Longer openers come first so "((" wins over "(", and pairs sharing an
// opener are adjacent.
var nodeShapes = []struct {
	open, close string
}{
	{"(((", ")))"},
	{"((", "))"},
	{"([", "])"},
	{"[[", "]]"},
	{"[(", ")]"},
	{"{{", "}}"},
	{"[/", "/]"},
	{"[/", "\\]"},
	{"[\\", "\\]"},
	{"[\\", "/]"},
	{"(", ")"},
	{"[", "]"},
	{"{", "}"},
	{">", "]"},
}

// FlowchartParser parses flowchart / graph diagrams.
type FlowchartParser struct {
	headerRe   *regexp.Regexp
	textLinkRe *regexp.Regexp
	linkRe     *regexp.Regexp
	classRe    *regexp.Regexp
}

// NewFlowchartParser creates a new flowchart parser.
func NewFlowchartParser() *FlowchartParser {
	return &FlowchartParser{
		headerRe:   regexp.MustCompile(`^\s*(graph|flowchart(?:-elk)?)(?:[ \t]+([^\s;]+))?[ \t]*(;|$)`),
		textLinkRe: regexp.MustCompile(`^(--|==|-\.)\s+(.*?)\s+(-{2,}>|-{3,}|={2,}>|={3,}|\.-+>|\.-+)`),
		linkRe:     regexp.MustCompile(`^(?:<|o|x)?(?:-{2,}>|-{3,}|-{2}[ox]\b|={2,}>|={3,}|-\.+->?|~{3,})`),
		classRe:    regexp.MustCompile(`^:::[\w-]+`),
	}
}

// DiagramType returns the diagram type this parser handles.
func (p *FlowchartParser) DiagramType() diagram.Type {
	return diagram.Flowchart
}

// Parse parses flowchart source.
func (p *FlowchartParser) Parse(source string) (*ParseResult, error) {
	result := &ParseResult{Type: diagram.Flowchart}
	lines := diagram.Lines(source)

	_, headerLine := diagram.FirstContentLine(source)
	if headerLine == 0 {
		return nil, &ParseError{Line: 1, Category: CategoryMissingHeader, Message: "Missing flowchart declaration"}
	}

	header := lines[headerLine-1]
	m := p.headerRe.FindStringSubmatchIndex(header)
	if m == nil {
		return nil, parseErrorAt(headerLine, header, 0, CategoryMissingHeader,
			"Invalid flowchart declaration %q", strings.TrimSpace(header))
	}
	if m[4] >= 0 {
		dir := header[m[4]:m[5]]
		if !directions[dir] {
			return nil, parseErrorAt(headerLine, header, m[4], CategoryInvalidValue,
				"Unknown direction '%s'", dir)
		}
		result.Direction = dir
	}

	st := &flowState{parser: p, result: result}
	if m[6] < m[7] {
		// "graph TD; A-->B" keeps statements on the header line.
		if err := st.parseLine(header, headerLine, m[7]); err != nil {
			return nil, err
		}
	}

	for i := headerLine; i < len(lines); i++ {
		if err := st.parseLine(lines[i], i+1, 0); err != nil {
			return nil, err
		}
	}

	if len(st.openSubgraphs) > 0 {
		last := st.openSubgraphs[len(st.openSubgraphs)-1]
		return nil, &ParseError{
			Line:     last,
			Category: CategoryUnbalancedBlock,
			Message:  "Unclosed 'subgraph' block: missing 'end'",
		}
	}

	return result, nil
}

type flowState struct {
	parser        *FlowchartParser
	result        *ParseResult
	openSubgraphs []int
}

// cursor walks one statement of a line.
type cursor struct {
	line   string
	lineNo int
	pos    int
	end    int
}

func (c *cursor) skipSpace() {
	for c.pos < c.end && (c.line[c.pos] == ' ' || c.line[c.pos] == '\t') {
		c.pos++
	}
}

func (c *cursor) done() bool {
	return c.pos >= c.end
}

func (c *cursor) rest() string {
	return c.line[c.pos:c.end]
}

func (c *cursor) errorf(offset int, category ErrorCategory, format string, args ...any) *ParseError {
	return parseErrorAt(c.lineNo, c.line, offset, category, format, args...)
}

func (st *flowState) parseLine(line string, lineNo, from int) error {
	trimmed := strings.TrimSpace(line[from:])
	if trimmed == "" || diagram.IsComment(trimmed) {
		return nil
	}

	for _, seg := range splitStatements(line, from) {
		c := &cursor{line: line, lineNo: lineNo, pos: seg[0], end: seg[1]}
		c.skipSpace()
		if c.done() {
			continue
		}
		st.result.Statements++
		if err := st.parseStatement(c); err != nil {
			return err
		}
	}
	return nil
}

// splitStatements splits a line on ';' outside quotes and brackets.
func splitStatements(line string, from int) [][2]int {
	var segs [][2]int
	start := from
	inQuote := false
	depth := 0
	for i := from; i < len(line); i++ {
		switch ch := line[i]; {
		case ch == '"':
			inQuote = !inQuote
		case inQuote:
		case ch == '[' || ch == '(' || ch == '{':
			depth++
		case ch == ']' || ch == ')' || ch == '}':
			if depth > 0 {
				depth--
			}
		case ch == ';' && depth == 0:
			segs = append(segs, [2]int{start, i})
			start = i + 1
		}
	}
	return append(segs, [2]int{start, len(line)})
}

func (st *flowState) parseStatement(c *cursor) error {
	word := leadingWord(c.rest())
	args := strings.TrimSpace(strings.TrimPrefix(c.rest(), word))

	switch {
	case word == "subgraph":
		if i := strings.IndexAny(args, "[("); i >= 0 && !strings.ContainsAny(args[i:], "])") {
			return c.errorf(c.pos, CategoryUnclosed, "Unclosed '%c' in subgraph title", args[i])
		}
		st.openSubgraphs = append(st.openSubgraphs, c.lineNo)
		st.result.Subgraphs++
		return nil
	case word == "end" && args == "":
		if len(st.openSubgraphs) == 0 {
			return c.errorf(c.pos, CategoryUnbalancedBlock, "Unexpected 'end' without a matching 'subgraph'")
		}
		st.openSubgraphs = st.openSubgraphs[:len(st.openSubgraphs)-1]
		return nil
	case word == "direction":
		if !directions[args] {
			return c.errorf(c.pos, CategoryInvalidValue, "Unknown direction '%s'", args)
		}
		return nil
	case word == "classDef" || word == "class" || word == "style" || word == "linkStyle" || word == "click":
		if args == "" {
			return c.errorf(c.pos, CategoryUnexpectedToken, "Incomplete '%s' statement", word)
		}
		return nil
	case strings.HasPrefix(word, "accTitle") || strings.HasPrefix(word, "accDescr"):
		if strings.HasPrefix(word, "accTitle") {
			title := strings.TrimPrefix(c.rest(), "accTitle")
			st.result.Title = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(title), ":"))
		}
		return nil
	}

	return st.parseChain(c)
}

func leadingWord(s string) string {
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i]
	}
	return s
}

// parseChain parses "A --> B & C -- text --> D".
func (st *flowState) parseChain(c *cursor) error {
	from, err := st.parseNodeGroup(c)
	if err != nil {
		return err
	}

	for {
		c.skipSpace()
		if c.done() {
			return nil
		}

		linkStart := c.pos
		kind, label, err := st.parseLink(c, from)
		if err != nil {
			return err
		}

		c.skipSpace()
		if c.done() {
			return c.errorf(linkStart, CategoryUnexpectedToken, "Missing target node after arrow")
		}

		to, err := st.parseNodeGroup(c)
		if err != nil {
			return err
		}

		for _, src := range from {
			for _, dst := range to {
				st.result.Edges = append(st.result.Edges, graph.Edge{
					From: src, To: dst, Label: label, Kind: kind, Line: c.lineNo,
				})
			}
		}
		from = to
	}
}

func (st *flowState) parseNodeGroup(c *cursor) ([]string, error) {
	var ids []string
	for {
		id, err := st.parseNode(c)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)

		save := c.pos
		c.skipSpace()
		if c.done() || c.line[c.pos] != '&' {
			c.pos = save
			return ids, nil
		}
		c.pos++
		c.skipSpace()
	}
}

func isIDRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (st *flowState) parseNode(c *cursor) (string, error) {
	start := c.pos
	for i, r := range c.rest() {
		if !isIDRune(r) {
			c.pos = start + i
			break
		}
		c.pos = start + i + len(string(r))
	}
	if c.pos == start {
		found := c.rest()
		if strings.HasPrefix(found, "->") || strings.HasPrefix(found, "-") {
			return "", c.errorf(start, CategoryInvalidLink, "Arrow '%s' has no source node", leadingWord(found))
		}
		return "", c.errorf(start, CategoryUnexpectedToken, "Expected a node identifier but found '%s'", leadingWord(found))
	}

	node := graph.Node{ID: c.line[start:c.pos], Line: c.lineNo}
	if err := st.parseShape(c, &node); err != nil {
		return "", err
	}
	if m := st.parser.classRe.FindString(c.rest()); m != "" {
		c.pos += len(m)
	}

	st.result.Nodes = append(st.result.Nodes, node)
	return node.ID, nil
}

func (st *flowState) parseShape(c *cursor, node *graph.Node) error {
	rest := c.rest()
	var opened string
	for _, shape := range nodeShapes {
		if opened != "" && shape.open != opened {
			// The longest matching opener fixes the shape; "((x)" must not
			// fall back to "(" with a label of "(x".
			break
		}
		if !strings.HasPrefix(rest, shape.open) {
			continue
		}
		opened = shape.open
		body := rest[len(shape.open):]

		if strings.HasPrefix(body, `"`) {
			q := strings.IndexByte(body[1:], '"')
			if q < 0 {
				return c.errorf(c.pos+len(shape.open), CategoryUnclosed, "Unclosed '\"' in label of node '%s'", node.ID)
			}
			after := strings.TrimLeft(body[q+2:], " \t")
			if !strings.HasPrefix(after, shape.close) {
				continue
			}
			node.Label = body[1 : q+1]
			node.Shape = shape.open + shape.close
			c.pos += len(rest) - len(after) + len(shape.close)
			return nil
		}

		idx := strings.Index(body, shape.close)
		if idx < 0 {
			continue
		}
		node.Label = strings.TrimSpace(body[:idx])
		node.Shape = shape.open + shape.close
		c.pos += len(shape.open) + idx + len(shape.close)
		return nil
	}

	if opened != "" {
		return c.errorf(c.pos, CategoryUnclosed, "Unclosed '%s' in node '%s': expected '%s'",
			opened, node.ID, closersFor(opened))
	}
	return nil
}

// closersFor lists the closing delimiters accepted after open.
func closersFor(open string) string {
	var closers []string
	for _, shape := range nodeShapes {
		if shape.open == open {
			closers = append(closers, shape.close)
		}
	}
	return strings.Join(closers, "' or '")
}

func (st *flowState) parseLink(c *cursor, from []string) (graph.EdgeKind, string, error) {
	rest := c.rest()
	p := st.parser

	if m := p.textLinkRe.FindStringSubmatch(rest); m != nil {
		c.pos += len(m[0])
		return linkKind(m[1] + m[3]), strings.Trim(m[2], `"`), nil
	}

	m := p.linkRe.FindString(rest)
	if m == "" {
		if strings.HasPrefix(rest, "->") || strings.HasPrefix(rest, "-") || strings.HasPrefix(rest, "=>") {
			return "", "", c.errorf(c.pos, CategoryInvalidLink,
				"Invalid arrow '%s' after node '%s': use '-->'", leadingWord(rest), from[len(from)-1])
		}
		return "", "", c.errorf(c.pos, CategoryUnexpectedToken,
			"Unexpected '%s' after node '%s': expected an arrow such as '-->'", leadingWord(rest), from[len(from)-1])
	}
	c.pos += len(m)

	label := ""
	save := c.pos
	c.skipSpace()
	if !c.done() && c.line[c.pos] == '|' {
		closeIdx := strings.IndexByte(c.line[c.pos+1:c.end], '|')
		if closeIdx < 0 {
			return "", "", c.errorf(c.pos, CategoryUnclosed, "Unclosed '|' in edge label")
		}
		label = strings.Trim(strings.TrimSpace(c.line[c.pos+1:c.pos+1+closeIdx]), `"`)
		c.pos += closeIdx + 2
	} else {
		c.pos = save
	}

	return linkKind(m), label, nil
}

func linkKind(link string) graph.EdgeKind {
	switch {
	case strings.Contains(link, "."):
		return graph.EdgeDotted
	case strings.Contains(link, "="):
		return graph.EdgeThick
	case strings.ContainsAny(link, ">ox"):
		return graph.EdgeArrow
	default:
		return graph.EdgeOpen
	}
}
