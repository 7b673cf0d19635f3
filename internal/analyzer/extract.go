package analyzer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Benny93/mermaid-mcp/internal/diagram"
	"github.com/Benny93/mermaid-mcp/internal/graph"
)

// Slice is one pie chart segment.
type Slice struct {
	Label string
	Value float64
	Line  int
}

// Extraction is the light-weight structural scan of a diagram: the nodes and
// edges it declares plus the type-specific facts issue detection needs.
type Extraction struct {
	Type      diagram.Type
	Direction string
	Title     string
	Nodes     []graph.Node
	Edges     []graph.Edge

	// Declared holds sequence participants introduced with participant/actor.
	Declared map[string]bool

	// Slices of a pie chart.
	Slices []Slice

	// SingleDashLines are flowchart lines using the invalid '->' arrow.
	SingleDashLines []int

	// Statements is the number of content lines after the declaration.
	Statements int
}

// Graph builds the directed graph of the extraction.
func (x *Extraction) Graph() *graph.Graph {
	return graph.FromEdges(x.Nodes, x.Edges)
}

// NodeIDs returns the distinct node IDs in first-seen order.
func (x *Extraction) NodeIDs() []string {
	seen := make(map[string]bool, len(x.Nodes))
	var ids []string
	for _, n := range x.Nodes {
		if !seen[n.ID] {
			seen[n.ID] = true
			ids = append(ids, n.ID)
		}
	}
	for _, e := range x.Edges {
		for _, id := range []string{e.From, e.To} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

var (
	flowNodeRe = regexp.MustCompile(`^([\p{L}\p{N}_]+)(\(\(\(.*?\)\)\)|\(\(.*?\)\)|\(\[.*?\]\)|\[\[.*?\]\]|\[\(.*?\)\]|\{\{.*?\}\}|\[.*?\]|\(.*?\)|\{.*?\}|>.*?\])?(:::[\w-]+)?`)
	flowLinkRe = regexp.MustCompile(`^\s*(--\s.*?\s--+>|==\s.*?\s==+>|-\.\s.*?\s\.-+>|<?-{2,}>|-{3,}|={2,}>|={3,}|-\.+->?|~{3,}|--[ox]|->)\s*(?:\|([^|]*)\|)?\s*`)
	flowAmpRe  = regexp.MustCompile(`^\s*&\s*`)

	participantRe = regexp.MustCompile(`^\s*(participant|actor)\s+(\S+?)(?:\s+as\s+(.+?))?\s*$`)
	messageRe     = regexp.MustCompile(`^\s*([^\s:>\-+]+)\s*(<<-->>|<<->>|-->>|->>|--x|-x|--\)|-\)|-->|->)([+-]?)\s*([^\s:>\-+]+)\s*:\s*(.*)$`)

	classDeclRe   = regexp.MustCompile(`^\s*class\s+([\w-]+)(?:~[^~]*~)?\s*(?:\[.*?\])?\s*(\{)?\s*(\}?)\s*$`)
	blockStartRe  = regexp.MustCompile(`^\s*([\w-]+)\s*(?:\[.*?\])?\s*\{\s*$`)
	relationRe    = regexp.MustCompile(`^\s*([\w-]+)\s*(?:"[^"]*"\s*)?([|<>*o}{.\-]{2,})\s*(?:"[^"]*"\s*)?([\w-]+)\s*(?::\s*(.*))?$`)
	transitionRe  = regexp.MustCompile(`^\s*(\[\*\]|[\w.]+)\s*-->\s*(\[\*\]|[\w.]+)\s*(?::\s*(.*))?$`)
	stateAliasRe  = regexp.MustCompile(`^\s*state\s+"([^"]*)"\s+as\s+([\w.]+)`)
	stateBlockRe  = regexp.MustCompile(`^\s*state\s+([\w.]+)\s*(\{)?\s*$`)
	stateDescRe   = regexp.MustCompile(`^\s*([\w.]+)\s*:\s*(.+)$`)
	mindmapNodeRe = regexp.MustCompile(`^([\w-]*)(\(\(.*\)\)|\)\).*\(\(|\(.*\)|\).*\(|\[.*\]|\{\{.*\}\})$`)
	sliceRe       = regexp.MustCompile(`^\s*"([^"]*)"\s*:\s*([0-9]*\.?[0-9]+)\s*$`)
	ganttTaskRe   = regexp.MustCompile(`^\s*([^:]+?)\s*:\s*(.+)$`)
	identRe       = regexp.MustCompile(`^[A-Za-z_][\w-]*$`)
)

var flowKeywords = map[string]bool{
	"subgraph": true, "end": true, "direction": true, "classDef": true, "class": true,
	"style": true, "linkStyle": true, "click": true,
}

var ganttKeywords = map[string]bool{
	"title": true, "dateFormat": true, "axisFormat": true, "tickInterval": true, "excludes": true,
	"includes": true, "todayMarker": true, "section": true, "weekday": true,
}

var ganttTags = map[string]bool{"done": true, "active": true, "crit": true, "milestone": true}

// Extract scans code (already stripped of fences) for its declared type.
func Extract(code string) *Extraction {
	t := diagram.Detect(code)
	x := &Extraction{Type: t, Declared: make(map[string]bool)}

	header, headerLine := diagram.FirstContentLine(code)
	if headerLine == 0 {
		return x
	}
	x.Direction, x.Title = parseHeader(t, header)

	lines := diagram.Lines(code)
	body := lines[headerLine:]
	first := headerLine + 1

	switch t {
	case diagram.Flowchart:
		extractFlowchart(x, header, headerLine, body, first)
	case diagram.Sequence:
		extractSequence(x, body, first)
	case diagram.Class, diagram.ER:
		extractRelations(x, body, first)
	case diagram.State:
		extractState(x, body, first)
	case diagram.Mindmap:
		extractMindmap(x, body, first)
	case diagram.Pie:
		extractPie(x, body, first)
	case diagram.Gantt:
		extractGantt(x, body, first)
	default:
		extractGeneric(x, body, first)
	}
	return x
}

func parseHeader(t diagram.Type, header string) (direction, title string) {
	fields := strings.Fields(strings.ReplaceAll(header, ";", " "))
	switch t {
	case diagram.Flowchart:
		if len(fields) > 1 {
			direction = fields[1]
		}
	case diagram.Pie:
		if i := strings.Index(header, "title"); i >= 0 {
			title = strings.TrimSpace(header[i+len("title"):])
		}
	}
	return direction, title
}

// contentLines yields the trimmed non-comment lines of body with their
// 1-indexed line numbers, counting statements on the way.
func contentLines(x *Extraction, body []string, first int, fn func(line string, lineNo int)) {
	for i, raw := range body {
		line := strings.TrimSpace(raw)
		if line == "" || diagram.IsComment(line) {
			continue
		}
		if strings.HasPrefix(line, "title") && x.Title == "" {
			x.Title = strings.TrimSpace(strings.TrimPrefix(line, "title"))
		}
		if strings.HasPrefix(line, "accTitle") {
			x.Title = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, "accTitle"), ":"))
		}
		x.Statements++
		fn(line, first+i)
	}
}

func extractFlowchart(x *Extraction, header string, headerLine int, body []string, first int) {
	// "graph TD; A-->B" carries statements on the declaration line.
	if i := strings.Index(header, ";"); i >= 0 {
		for _, stmt := range strings.Split(header[i+1:], ";") {
			scanFlowStatement(x, strings.TrimSpace(stmt), headerLine)
		}
	}

	contentLines(x, body, first, func(line string, lineNo int) {
		for _, stmt := range strings.Split(line, ";") {
			scanFlowStatement(x, strings.TrimSpace(stmt), lineNo)
		}
	})
}

func scanFlowStatement(x *Extraction, stmt string, lineNo int) {
	if stmt == "" {
		return
	}
	word := stmt
	if i := strings.IndexAny(stmt, " \t"); i >= 0 {
		word = stmt[:i]
	}
	if flowKeywords[word] || strings.HasPrefix(word, "accTitle") || strings.HasPrefix(word, "accDescr") {
		return
	}

	rest := stmt
	from, rest := scanFlowGroup(x, rest, lineNo)
	if len(from) == 0 {
		return
	}

	for rest != "" {
		m := flowLinkRe.FindStringSubmatch(rest)
		if m == nil {
			return
		}
		link := m[1]
		if link == "->" {
			x.SingleDashLines = append(x.SingleDashLines, lineNo)
		}
		label := strings.Trim(strings.TrimSpace(m[2]), `"`)
		if label == "" {
			label = inlineLinkLabel(link)
		}
		rest = rest[len(m[0]):]

		var to []string
		to, rest = scanFlowGroup(x, rest, lineNo)
		if len(to) == 0 {
			return
		}
		for _, src := range from {
			for _, dst := range to {
				x.Edges = append(x.Edges, graph.Edge{From: src, To: dst, Label: label, Kind: flowLinkKind(link), Line: lineNo})
			}
		}
		from = to
	}
}

func scanFlowGroup(x *Extraction, rest string, lineNo int) ([]string, string) {
	var ids []string
	for {
		m := flowNodeRe.FindStringSubmatch(rest)
		if m == nil {
			return ids, rest
		}
		node := graph.Node{ID: m[1], Line: lineNo}
		if m[2] != "" {
			node.Label, node.Shape = unwrapShape(m[2])
		}
		x.Nodes = append(x.Nodes, node)
		ids = append(ids, node.ID)
		rest = rest[len(m[0]):]

		amp := flowAmpRe.FindString(rest)
		if amp == "" {
			return ids, rest
		}
		rest = rest[len(amp):]
	}
}

// unwrapShape splits "((label))" into the label and the bracket pair.
func unwrapShape(shape string) (label, brackets string) {
	open := strings.IndexFunc(shape, func(r rune) bool { return !strings.ContainsRune("([{>/\\", r) })
	if open < 0 {
		return "", shape
	}
	end := strings.LastIndexFunc(shape, func(r rune) bool { return !strings.ContainsRune(")]}/\\", r) })
	if end < open {
		return "", shape
	}
	label = strings.Trim(strings.TrimSpace(shape[open:end+1]), `"`)
	return label, shape[:open] + shape[end+1:]
}

func inlineLinkLabel(link string) string {
	for _, prefix := range []string{"-- ", "== ", "-. "} {
		if strings.HasPrefix(link, prefix) {
			inner := strings.TrimPrefix(link, prefix)
			inner = strings.TrimRight(inner, "->=.")
			return strings.Trim(strings.TrimSpace(inner), `"`)
		}
	}
	return ""
}

func flowLinkKind(link string) graph.EdgeKind {
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

func extractSequence(x *Extraction, body []string, first int) {
	contentLines(x, body, first, func(line string, lineNo int) {
		if m := participantRe.FindStringSubmatch(line); m != nil {
			x.Declared[m[2]] = true
			x.Nodes = append(x.Nodes, graph.Node{ID: m[2], Label: m[3], Line: lineNo})
			return
		}
		m := messageRe.FindStringSubmatch(line)
		if m == nil {
			return
		}
		kind := graph.EdgeMessage
		if strings.HasPrefix(m[2], "--") {
			kind = graph.EdgeReply
		}
		x.Nodes = append(x.Nodes, graph.Node{ID: m[1], Line: lineNo}, graph.Node{ID: m[4], Line: lineNo})
		x.Edges = append(x.Edges, graph.Edge{From: m[1], To: m[4], Label: strings.TrimSpace(m[5]), Kind: kind, Line: lineNo})
	})
}

func extractRelations(x *Extraction, body []string, first int) {
	depth := 0
	contentLines(x, body, first, func(line string, lineNo int) {
		if depth > 0 {
			if strings.HasPrefix(line, "}") {
				depth--
			}
			return
		}
		if m := classDeclRe.FindStringSubmatch(line); m != nil {
			x.Nodes = append(x.Nodes, graph.Node{ID: m[1], Line: lineNo})
			if m[2] != "" && m[3] == "" {
				depth++
			}
			return
		}
		if m := blockStartRe.FindStringSubmatch(line); m != nil {
			x.Nodes = append(x.Nodes, graph.Node{ID: m[1], Line: lineNo})
			depth++
			return
		}
		m := relationRe.FindStringSubmatch(line)
		if m == nil || !strings.ContainsAny(m[2], "-.") {
			return
		}
		x.Nodes = append(x.Nodes, graph.Node{ID: m[1], Line: lineNo}, graph.Node{ID: m[3], Line: lineNo})
		x.Edges = append(x.Edges, graph.Edge{
			From: m[1], To: m[3], Label: strings.TrimSpace(m[4]), Kind: graph.EdgeRelation, Line: lineNo,
		})
	})
}

func stateID(ref string, target bool) string {
	if ref == "[*]" && target {
		return "[*]end"
	}
	return ref
}

func extractState(x *Extraction, body []string, first int) {
	contentLines(x, body, first, func(line string, lineNo int) {
		if m := transitionRe.FindStringSubmatch(line); m != nil {
			from, to := stateID(m[1], false), stateID(m[2], true)
			x.Nodes = append(x.Nodes, graph.Node{ID: from, Line: lineNo}, graph.Node{ID: to, Line: lineNo})
			x.Edges = append(x.Edges, graph.Edge{From: from, To: to, Label: strings.TrimSpace(m[3]), Kind: graph.EdgeTransition, Line: lineNo})
			return
		}
		if m := stateAliasRe.FindStringSubmatch(line); m != nil {
			x.Nodes = append(x.Nodes, graph.Node{ID: m[2], Label: m[1], Line: lineNo})
			return
		}
		if m := stateBlockRe.FindStringSubmatch(line); m != nil {
			x.Nodes = append(x.Nodes, graph.Node{ID: m[1], Line: lineNo})
			return
		}
		if strings.HasPrefix(line, "note") || line == "}" || strings.HasPrefix(line, "direction") {
			return
		}
		if m := stateDescRe.FindStringSubmatch(line); m != nil {
			x.Nodes = append(x.Nodes, graph.Node{ID: m[1], Label: strings.TrimSpace(m[2]), Line: lineNo})
		}
	})
}

func indentWidth(raw string) int {
	width := 0
	for _, r := range raw {
		switch r {
		case ' ':
			width++
		case '\t':
			width += 4
		default:
			return width
		}
	}
	return width
}

func extractMindmap(x *Extraction, body []string, first int) {
	type frame struct {
		indent int
		id     string
	}
	var stack []frame
	seen := make(map[string]int)

	for i, raw := range body {
		line := strings.TrimSpace(raw)
		if line == "" || diagram.IsComment(line) || strings.HasPrefix(line, "::icon") || strings.HasPrefix(line, ":::") {
			continue
		}
		x.Statements++
		lineNo := first + i

		node := graph.Node{ID: line, Line: lineNo}
		if m := mindmapNodeRe.FindStringSubmatch(line); m != nil {
			node.Label, node.Shape = unwrapMindmapShape(m[2])
			node.ID = m[1]
			if node.ID == "" {
				node.ID = node.Label
			}
		}
		if n := seen[node.ID]; n > 0 {
			seen[node.ID] = n + 1
			node.ID = node.ID + "_" + strconv.Itoa(n+1)
		} else {
			seen[node.ID] = 1
		}
		x.Nodes = append(x.Nodes, node)

		indent := indentWidth(raw)
		for len(stack) > 0 && stack[len(stack)-1].indent >= indent {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			x.Edges = append(x.Edges, graph.Edge{From: stack[len(stack)-1].id, To: node.ID, Kind: graph.EdgeChild, Line: lineNo})
		}
		stack = append(stack, frame{indent: indent, id: node.ID})
	}
}

func unwrapMindmapShape(shape string) (label, brackets string) {
	trimmed := strings.Trim(shape, "()[]{}")
	open := strings.Index(shape, trimmed)
	if trimmed == "" || open < 0 {
		return "", shape
	}
	return strings.TrimSpace(trimmed), shape[:open] + shape[open+len(trimmed):]
}

func extractPie(x *Extraction, body []string, first int) {
	contentLines(x, body, first, func(line string, lineNo int) {
		m := sliceRe.FindStringSubmatch(line)
		if m == nil {
			return
		}
		value, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return
		}
		x.Slices = append(x.Slices, Slice{Label: m[1], Value: value, Line: lineNo})
		x.Nodes = append(x.Nodes, graph.Node{ID: m[1], Label: m[1], Line: lineNo})
	})
}

func extractGantt(x *Extraction, body []string, first int) {
	contentLines(x, body, first, func(line string, lineNo int) {
		word := strings.Fields(line)[0]
		if ganttKeywords[word] {
			return
		}
		m := ganttTaskRe.FindStringSubmatch(line)
		if m == nil {
			return
		}
		name := m[1]
		id := ""
		var deps []string
		for _, part := range strings.Split(m[2], ",") {
			part = strings.TrimSpace(part)
			switch {
			case ganttTags[part]:
			case strings.HasPrefix(part, "after "):
				deps = append(deps, strings.Fields(strings.TrimPrefix(part, "after "))...)
			case id == "" && identRe.MatchString(part):
				id = part
			}
		}
		if id == "" {
			id = name
		}
		x.Nodes = append(x.Nodes, graph.Node{ID: id, Label: name, Line: lineNo})
		for _, dep := range deps {
			x.Edges = append(x.Edges, graph.Edge{From: dep, To: id, Kind: graph.EdgeArrow, Line: lineNo})
		}
	})
}

// extractGeneric treats each content statement as a node. It is the
// best-effort pass for types without a dedicated scanner.
func extractGeneric(x *Extraction, body []string, first int) {
	if x.Type == diagram.Unknown {
		return
	}
	contentLines(x, body, first, func(line string, lineNo int) {
		if strings.HasPrefix(line, "title") || strings.HasPrefix(line, "section") {
			return
		}
		x.Nodes = append(x.Nodes, graph.Node{ID: line, Line: lineNo})
	})
}
