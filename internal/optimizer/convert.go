package optimizer

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Benny93/mermaid-mcp/internal/analyzer"
	"github.com/Benny93/mermaid-mcp/internal/diagram"
	"github.com/Benny93/mermaid-mcp/internal/graph"
)

// Auto asks ConvertFormat to choose the target type.
const Auto = "auto"

// AppliedPassThrough marks a conversion that returned the source unchanged.
const AppliedPassThrough = "pass-through"

const (
	defaultERCardinality = "||--o{"
	defaultERLabel       = "relates to"
	convertSuggestions   = 3
)

type emitter func(x *analyzer.Extraction, g *graph.Graph) string

var emitters = map[diagram.Type]emitter{
	diagram.Flowchart: emitFlowchart,
	diagram.Sequence:  emitSequence,
	diagram.Class:     emitClass,
	diagram.ER:        emitER,
	diagram.State:     emitState,
	diagram.Mindmap:   emitMindmap,
}

// Targets returns the types ConvertFormat can emit.
func Targets() []diagram.Type {
	return []diagram.Type{
		diagram.Flowchart, diagram.Sequence, diagram.Class, diagram.ER, diagram.State, diagram.Mindmap,
	}
}

// ConvertFormat translates source into target, a diagram type name or Auto.
// Unknown source or target types pass the source through unchanged.
func (o *Optimizer) ConvertFormat(source, target string, optimizeStructure bool) Result {
	return o.ConvertFormatWithProgress(source, target, optimizeStructure, nil)
}

// ConvertFormatWithProgress is ConvertFormat reporting each phase to progress.
func (o *Optimizer) ConvertFormatWithProgress(source, target string, optimizeStructure bool, progress ProgressCallback) Result {
	report := func(phase string, p float64) {
		if progress != nil {
			progress(phase, p)
		}
	}

	code, _ := diagram.StripFences(source)
	report("extracting", 0.2)
	x := analyzer.Extract(code)
	g := x.Graph()

	to := diagram.ParseType(target)
	if strings.EqualFold(strings.TrimSpace(target), Auto) {
		to = chooseTarget(g)
	}

	emit, ok := emitters[to]
	if x.Type == diagram.Unknown || !ok || g.NodeCount() == 0 {
		o.logger.Debug("conversion not supported, passing through", "from", x.Type, "to", target)
		return o.passThrough(source, code, x.Type, target)
	}

	var converted string
	applied := []string{}
	if x.Type == to {
		converted = strings.TrimSpace(code)
	} else {
		report("converting", 0.5)
		converted = emit(x, g)
		applied = append(applied, fmt.Sprintf("converted-%s-to-%s", x.Type, to))
	}

	if optimizeStructure {
		report("normalizing", 0.7)
		var edits []string
		converted, edits = Normalize(converted, to)
		applied = append(applied, edits...)
	}

	report("scoring", 0.9)
	sc := newScan(converted)
	var suggestions []Suggestion
	for _, goal := range Goals() {
		suggestions = append(suggestions, generators[goal](sc)...)
	}
	result := Result{
		OriginalCode:         source,
		OptimizedCode:        converted,
		Suggestions:          rank(suggestions, convertSuggestions),
		Metrics:              Score(converted),
		AppliedOptimizations: applied,
	}
	report("done", 1.0)
	return result
}

func (o *Optimizer) passThrough(source, code string, from diagram.Type, target string) Result {
	out := strings.TrimSpace(code)
	suggestions := []Suggestion{}
	if from != diagram.Unknown {
		suggestions = append(suggestions, Suggestion{
			Type:        "conversion",
			Impact:      ImpactLow,
			Title:       "Conversion not supported",
			Description: fmt.Sprintf("Converting %s diagrams to '%s' is not supported; the source is returned unchanged", from, target),
			Reasoning:   "Only graph-shaped content can be re-emitted in another grammar",
		})
	}
	return Result{
		OriginalCode:         source,
		OptimizedCode:        out,
		Suggestions:          suggestions,
		Metrics:              Score(out),
		AppliedOptimizations: []string{AppliedPassThrough},
	}
}

// chooseTarget picks sequence for small request/response graphs, mindmap for
// deep narrow trees and flowchart otherwise.
func chooseTarget(g *graph.Graph) diagram.Type {
	edges := g.Edges()
	nodes := g.NodeCount()
	if nodes >= 3 && nodes <= 12 && len(edges) > 0 {
		pairs := make(map[[2]string]bool, len(edges))
		for _, e := range edges {
			pairs[[2]string{e.From, e.To}] = true
		}
		reciprocal := 0
		for _, e := range edges {
			if pairs[[2]string{e.To, e.From}] {
				reciprocal++
			}
		}
		if reciprocal*2 >= len(edges) {
			return diagram.Sequence
		}
	}

	m := g.Metrics()
	if g.IsForest() && len(g.Roots()) == 1 && m.MaxDepth >= 3 && m.BranchingFactor <= 2.5 {
		return diagram.Mindmap
	}
	return diagram.Flowchart
}

// pascalCase joins the words of s with each word's first letter upper-cased.
func pascalCase(s string) string {
	caser := cases.Title(language.English, cases.NoLower)
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for _, w := range words {
		b.WriteString(caser.String(w))
	}
	out := b.String()
	if out != "" && unicode.IsDigit(rune(out[0])) {
		out = "N" + out
	}
	return out
}

// sanitizeID reduces id to letters, digits and underscores.
func sanitizeID(id string) string {
	switch id {
	case "[*]":
		return "Start"
	case "[*]end":
		return "End"
	}
	var b strings.Builder
	underscore := false
	for _, r := range id {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
			underscore = false
		} else if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	out := strings.TrimRight(b.String(), "_")
	if out == "" {
		return "node"
	}
	if unicode.IsDigit(rune(out[0])) {
		out = "n" + out
	}
	return out
}

// idMap assigns every source node a unique identifier in the target grammar.
type idMap struct {
	ids  map[string]string
	used map[string]bool
}

func newIDMap(g *graph.Graph, style func(graph.Node) string) *idMap {
	m := &idMap{ids: make(map[string]string), used: make(map[string]bool)}
	for _, n := range g.Nodes() {
		base := style(n)
		id := base
		for i := 2; m.used[id]; i++ {
			id = fmt.Sprintf("%s%d", base, i)
		}
		m.used[id] = true
		m.ids[n.ID] = id
	}
	return m
}

func (m *idMap) get(id string) string {
	return m.ids[id]
}

func quoteLabel(label string) string {
	if strings.ContainsAny(label, `()[]{}|<>"`) {
		return `"` + strings.ReplaceAll(label, `"`, "#quot;") + `"`
	}
	return label
}

func flowLink(e graph.Edge) string {
	arrow := "-->"
	switch e.Kind {
	case graph.EdgeDotted, graph.EdgeReply:
		arrow = "-.->"
	case graph.EdgeThick:
		arrow = "==>"
	case graph.EdgeOpen:
		arrow = "---"
	}
	if e.Label != "" {
		return arrow + "|" + quoteLabel(strings.ReplaceAll(e.Label, "|", "/")) + "|"
	}
	return arrow
}

func emitFlowchart(x *analyzer.Extraction, g *graph.Graph) string {
	ids := newIDMap(g, func(n graph.Node) string { return sanitizeID(n.ID) })
	direction := "TD"
	if x.Type == diagram.Flowchart && x.Direction != "" {
		direction = x.Direction
	}

	lines := []string{"flowchart " + direction}
	for _, n := range g.Nodes() {
		id := ids.get(n.ID)
		label := n.Label
		if label == "" && id != n.ID {
			label = n.ID
		}
		if label != "" {
			lines = append(lines, fmt.Sprintf("    %s[%s]", id, quoteLabel(label)))
		} else if len(g.Outgoing(n.ID)) == 0 && len(g.Incoming(n.ID)) == 0 {
			lines = append(lines, "    "+id)
		}
	}
	for _, e := range g.Edges() {
		lines = append(lines, fmt.Sprintf("    %s %s %s", ids.get(e.From), flowLink(e), ids.get(e.To)))
	}
	return strings.Join(lines, "\n")
}

func emitSequence(x *analyzer.Extraction, g *graph.Graph) string {
	ids := newIDMap(g, func(n graph.Node) string { return sanitizeID(n.ID) })

	lines := []string{"sequenceDiagram"}
	for _, n := range g.Nodes() {
		id := ids.get(n.ID)
		if alias := n.DisplayName(); alias != id {
			lines = append(lines, fmt.Sprintf("    participant %s as %s", id, alias))
		} else {
			lines = append(lines, "    participant "+id)
		}
	}
	for _, e := range g.Edges() {
		arrow := "->>"
		if e.Kind == graph.EdgeReply || e.Kind == graph.EdgeDotted {
			arrow = "-->>"
		}
		text := e.Label
		if text == "" {
			to, _ := g.GetNode(e.To)
			text = to.DisplayName()
		}
		lines = append(lines, fmt.Sprintf("    %s%s%s: %s", ids.get(e.From), arrow, ids.get(e.To), text))
	}
	return strings.Join(lines, "\n")
}

func classStyle(n graph.Node) string {
	if id := pascalCase(n.DisplayName()); id != "" {
		return id
	}
	return "Node"
}

func emitClass(x *analyzer.Extraction, g *graph.Graph) string {
	ids := newIDMap(g, classStyle)

	lines := []string{"classDiagram"}
	for _, n := range g.Nodes() {
		lines = append(lines, "    class "+ids.get(n.ID))
	}
	for _, e := range g.Edges() {
		line := fmt.Sprintf("    %s --> %s", ids.get(e.From), ids.get(e.To))
		if e.Label != "" {
			line += " : " + e.Label
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func erStyle(n graph.Node) string {
	return strings.ToUpper(sanitizeID(n.DisplayName()))
}

func emitER(x *analyzer.Extraction, g *graph.Graph) string {
	ids := newIDMap(g, erStyle)

	lines := []string{"erDiagram"}
	for _, e := range g.Edges() {
		label := e.Label
		if label == "" {
			label = defaultERLabel
		}
		lines = append(lines, fmt.Sprintf("    %s %s %s : \"%s\"",
			ids.get(e.From), defaultERCardinality, ids.get(e.To), strings.ReplaceAll(label, `"`, "'")))
	}
	for _, n := range g.Nodes() {
		if len(g.Outgoing(n.ID)) == 0 && len(g.Incoming(n.ID)) == 0 {
			lines = append(lines, "    "+ids.get(n.ID)+" {", "    }")
		}
	}
	return strings.Join(lines, "\n")
}

func emitState(x *analyzer.Extraction, g *graph.Graph) string {
	ids := newIDMap(g, func(n graph.Node) string {
		if strings.HasPrefix(n.ID, "[*]") {
			return n.ID
		}
		return sanitizeID(n.ID)
	})
	ref := func(id string) string {
		if strings.HasPrefix(id, "[*]") {
			return "[*]"
		}
		return ids.get(id)
	}

	lines := []string{"stateDiagram-v2"}
	for _, n := range g.Nodes() {
		if strings.HasPrefix(n.ID, "[*]") {
			continue
		}
		id := ids.get(n.ID)
		label := n.Label
		if label == "" && id != n.ID {
			label = n.ID
		}
		if label != "" {
			lines = append(lines, fmt.Sprintf("    state \"%s\" as %s", strings.ReplaceAll(label, `"`, "'"), id))
		} else if len(g.Outgoing(n.ID)) == 0 && len(g.Incoming(n.ID)) == 0 {
			lines = append(lines, "    "+id)
		}
	}
	for _, e := range g.Edges() {
		line := fmt.Sprintf("    %s --> %s", ref(e.From), ref(e.To))
		if e.Label != "" {
			line += " : " + e.Label
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func mindmapText(n graph.Node) string {
	text := strings.Map(func(r rune) rune {
		if strings.ContainsRune("()[]{}", r) {
			return -1
		}
		return r
	}, n.DisplayName())
	if text = strings.TrimSpace(text); text == "" {
		return sanitizeID(n.ID)
	}
	return text
}

// emitMindmap lays out a spanning forest of g, breadth-first from the roots,
// as an indented tree. Several top-level nodes hang off a synthetic root.
func emitMindmap(x *analyzer.Extraction, g *graph.Graph) string {
	children := make(map[string][]string)
	placed := make(map[string]bool)
	var tops []string

	grow := func(start string) {
		placed[start] = true
		queue := []string{start}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			for _, next := range g.Outgoing(id) {
				if placed[next] {
					continue
				}
				placed[next] = true
				children[id] = append(children[id], next)
				queue = append(queue, next)
			}
		}
	}
	for _, id := range g.Roots() {
		tops = append(tops, id)
		grow(id)
	}
	for _, n := range g.Nodes() {
		if !placed[n.ID] {
			tops = append(tops, n.ID)
			grow(n.ID)
		}
	}

	lines := []string{"mindmap"}
	var write func(id string, depth int)
	write = func(id string, depth int) {
		n, _ := g.GetNode(id)
		lines = append(lines, strings.Repeat("  ", depth)+mindmapText(n))
		for _, child := range children[id] {
			write(child, depth+1)
		}
	}

	if len(tops) == 1 {
		n, _ := g.GetNode(tops[0])
		lines = append(lines, "  root(("+mindmapText(n)+"))")
		for _, child := range children[tops[0]] {
			write(child, 2)
		}
		return strings.Join(lines, "\n")
	}

	title := x.Title
	if title == "" {
		title = cases.Title(language.English).String(string(x.Type))
	}
	lines = append(lines, "  root(("+mindmapText(graph.Node{ID: "root", Label: title})+"))")
	for _, id := range tops {
		write(id, 2)
	}
	return strings.Join(lines, "\n")
}
