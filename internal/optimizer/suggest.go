package optimizer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Benny93/mermaid-mcp/internal/analyzer"
	"github.com/Benny93/mermaid-mcp/internal/diagram"
	"github.com/Benny93/mermaid-mcp/internal/graph"
)

const (
	terseIDLength     = 2
	longLabelLength   = 20
	layoutThreshold   = 10
	groupingThreshold = 15
	styleThreshold    = 5
	maxListedNames    = 5
)

var (
	subgraphRe     = regexp.MustCompile(`(?m)^\s*subgraph\b`)
	styleRe        = regexp.MustCompile(`(?m)^\s*(classDef|style|class|linkStyle|cssClass)\s`)
	titleRe        = regexp.MustCompile(`(?m)^\s*(title\b|accTitle\s*:)`)
	descriptionRe  = regexp.MustCompile(`(?m)^\s*accDescr\b`)
	compactArrowRe = regexp.MustCompile(`[\w\])}]-->|-->[\w\[({]`)
)

// scan is the set of signals shared by the suggestion generators and the
// quality scorer.
type scan struct {
	code   string
	t      diagram.Type
	x      *analyzer.Extraction
	g      *graph.Graph
	header string

	// lines are the non-blank lines; body those after the declaration.
	lines []string
	body  []string

	terseIDs   []string
	longLabels []graph.Node
	blankLines int
}

func newScan(code string) *scan {
	x := analyzer.Extract(code)
	sc := &scan{code: code, t: x.Type, x: x, g: x.Graph()}

	header, headerLine := diagram.FirstContentLine(code)
	sc.header = header
	for i, line := range diagram.Lines(code) {
		if strings.TrimSpace(line) == "" {
			sc.blankLines++
			continue
		}
		sc.lines = append(sc.lines, line)
		if headerLine > 0 && i+1 > headerLine {
			sc.body = append(sc.body, line)
		}
	}

	if graphShaped(sc.t) || sc.t == diagram.Sequence {
		for _, n := range sc.g.Nodes() {
			if utf8.RuneCountInString(n.ID) <= terseIDLength && !strings.HasPrefix(n.ID, "[*]") {
				sc.terseIDs = append(sc.terseIDs, n.ID)
			}
			if utf8.RuneCountInString(n.Label) > longLabelLength {
				sc.longLabels = append(sc.longLabels, n)
			}
		}
	}
	return sc
}

func graphShaped(t diagram.Type) bool {
	switch t {
	case diagram.Flowchart, diagram.State, diagram.Class, diagram.ER:
		return true
	}
	return false
}

func (sc *scan) hasTitle() bool {
	return sc.x.Title != "" || titleRe.MatchString(sc.code)
}

func (sc *scan) hasDescription() bool {
	return descriptionRe.MatchString(sc.code)
}

func (sc *scan) hasStyles() bool {
	return styleRe.MatchString(sc.code)
}

func wordRe(id string) *regexp.Regexp {
	return regexp.MustCompile(`(^|[^\w])` + regexp.QuoteMeta(id) + `($|[^\w])`)
}

// lineWith returns the first body line mentioning id as a whole word, trimmed.
func (sc *scan) lineWith(id string) string {
	re := wordRe(id)
	for _, line := range sc.body {
		if re.MatchString(line) {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

func listNames(names []string) string {
	if len(names) > maxListedNames {
		return strings.Join(names[:maxListedNames], ", ") + fmt.Sprintf(" and %d more", len(names)-maxListedNames)
	}
	return strings.Join(names, ", ")
}

var generators = map[Goal]func(*scan) []Suggestion{
	GoalReadability:   readabilitySuggestions,
	GoalCompactness:   layoutSuggestions,
	GoalAesthetics:    aestheticsSuggestions,
	GoalAccessibility: accessibilitySuggestions,
}

func readabilitySuggestions(sc *scan) []Suggestion {
	if sc.t == diagram.Unknown {
		return nil
	}
	var out []Suggestion

	if len(sc.terseIDs) > 0 {
		id := sc.terseIDs[0]
		s := Suggestion{
			Type:        "naming",
			Impact:      ImpactMedium,
			Title:       "Use descriptive identifiers",
			Description: fmt.Sprintf("Rename terse identifiers (%s) to names that describe their role", listNames(sc.terseIDs)),
			Reasoning:   "Descriptive identifiers keep the source readable when labels are absent or change",
		}
		if before := sc.lineWith(id); before != "" {
			n, _ := sc.g.GetNode(id)
			s.BeforeCode = before
			s.AfterCode = wordRe(id).ReplaceAllString(before, "${1}"+descriptiveID(n)+"${2}")
		}
		out = append(out, s)
	}

	if len(sc.longLabels) > 0 {
		n := sc.longLabels[0]
		out = append(out, Suggestion{
			Type:        "readability",
			Impact:      ImpactLow,
			Title:       "Shorten long labels",
			Description: fmt.Sprintf("%d label(s) exceed %d characters, e.g. '%s'", len(sc.longLabels), longLabelLength, n.Label),
			Reasoning:   "Long labels widen nodes and make the layout harder to scan",
		})
	}

	if sc.t == diagram.Sequence {
		var unnamed []string
		for _, n := range sc.g.Nodes() {
			if sc.x.Declared[n.ID] && n.Label == "" && utf8.RuneCountInString(n.ID) <= terseIDLength {
				unnamed = append(unnamed, n.ID)
			}
		}
		if len(unnamed) > 0 {
			out = append(out, Suggestion{
				Type:        "naming",
				Impact:      ImpactLow,
				Title:       "Alias short participant names",
				Description: "Give short participants a readable alias with 'participant ID as Name'",
				Reasoning:   "Aliases keep messages compact while the lifeline headers stay readable",
				AfterCode:   fmt.Sprintf("participant %s as Descriptive Name", unnamed[0]),
			})
		}
	}
	return out
}

func descriptiveID(n graph.Node) string {
	if n.Label != "" {
		if id := pascalCase(n.Label); id != "" {
			return id
		}
	}
	return "Node" + pascalCase(n.ID)
}

func layoutSuggestions(sc *scan) []Suggestion {
	if !graphShaped(sc.t) {
		return nil
	}
	var out []Suggestion
	nodes := sc.g.NodeCount()
	m := sc.g.Metrics()

	if sc.t == diagram.Flowchart && nodes > layoutThreshold {
		dir := strings.ToUpper(sc.x.Direction)
		switch {
		case (dir == "TD" || dir == "TB" || dir == "") && m.MaxDepth > 5 && m.BranchingFactor < 2:
			out = append(out, Suggestion{
				Type:        "layout",
				Impact:      ImpactHigh,
				Title:       "Switch to a left-to-right layout",
				Description: fmt.Sprintf("The longest path spans %d nodes; a horizontal layout fits long chains better", m.MaxDepth),
				Reasoning:   "Deep, narrow graphs become very tall when laid out top-down",
				BeforeCode:  sc.header,
				AfterCode:   "flowchart LR",
			})
		case (dir == "LR" || dir == "RL") && m.BranchingFactor >= 3:
			out = append(out, Suggestion{
				Type:        "layout",
				Impact:      ImpactMedium,
				Title:       "Switch to a top-down layout",
				Description: "Nodes fan out widely; a vertical layout spreads siblings horizontally",
				Reasoning:   "Wide fan-out is easier to read when siblings share a row",
				BeforeCode:  sc.header,
				AfterCode:   "flowchart TD",
			})
		}
	}

	if sc.t == diagram.Flowchart && nodes > groupingThreshold && !subgraphRe.MatchString(sc.code) {
		out = append(out, Suggestion{
			Type:        "layout",
			Impact:      ImpactMedium,
			Title:       "Group related nodes into subgraphs",
			Description: fmt.Sprintf("%d nodes without grouping; wrap related steps in 'subgraph ... end'", nodes),
			Reasoning:   "Subgraphs give large diagrams visible structure",
			AfterCode:   "subgraph Stage1 [First stage]\n    ...\nend",
		})
	}

	seen := make(map[[2]string]bool)
	dups := 0
	for _, e := range sc.g.Edges() {
		key := [2]string{e.From, e.To}
		if seen[key] {
			dups++
		}
		seen[key] = true
	}
	if dups > 0 {
		out = append(out, Suggestion{
			Type:        "compactness",
			Impact:      ImpactHigh,
			Title:       "Remove duplicate connections",
			Description: fmt.Sprintf("%d connection(s) repeat an existing link between the same nodes", dups),
			Reasoning:   "Parallel duplicate edges add clutter without adding information",
		})
	}

	if sc.blankLines > len(sc.lines)/2 && sc.blankLines > 2 {
		out = append(out, Suggestion{
			Type:        "compactness",
			Impact:      ImpactLow,
			Title:       "Remove blank lines",
			Description: fmt.Sprintf("%d blank lines pad the source", sc.blankLines),
			Reasoning:   "Compact source is easier to review and diff",
		})
	}
	return out
}

func aestheticsSuggestions(sc *scan) []Suggestion {
	if sc.t == diagram.Unknown {
		return nil
	}
	var out []Suggestion

	if !consistentSpacing(sc) {
		normalized, _ := Normalize(sc.code, sc.t)
		s := Suggestion{
			Type:        "formatting",
			Impact:      ImpactLow,
			Title:       "Use consistent spacing and indentation",
			Description: "Indent statements uniformly and put spaces around arrows",
			Reasoning:   "Uniform formatting makes the structure visible at a glance",
		}
		before, after := firstDifference(sc.code, normalized)
		s.BeforeCode, s.AfterCode = before, after
		out = append(out, s)
	}

	if sc.t == diagram.Flowchart && sc.g.NodeCount() >= styleThreshold && !sc.hasStyles() {
		out = append(out, Suggestion{
			Type:        "styling",
			Impact:      ImpactLow,
			Title:       "Add style classes",
			Description: "Define classDef styles to distinguish node roles such as inputs, decisions and outputs",
			Reasoning:   "Colour coding by role helps readers classify nodes quickly",
			AfterCode:   "classDef primary fill:#e1f5fe,stroke:#01579b\nclass " + sc.g.Nodes()[0].ID + " primary",
		})
	}
	return out
}

func consistentSpacing(sc *scan) bool {
	if sc.t == diagram.Flowchart && compactArrowRe.MatchString(strings.Join(sc.body, "\n")) {
		return false
	}
	if sc.t == diagram.Mindmap {
		return true
	}
	indent := ""
	for i, line := range sc.body {
		lead := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if lead == "" || strings.Contains(lead, "\t") {
			return false
		}
		if i == 0 {
			indent = lead
		}
		if len(lead)%len(indent) != 0 {
			return false
		}
	}
	return true
}

func firstDifference(a, b string) (string, string) {
	la, lb := diagram.Lines(a), diagram.Lines(b)
	var ca []string
	for _, l := range la {
		if strings.TrimSpace(l) != "" {
			ca = append(ca, strings.TrimRight(l, " \t"))
		}
	}
	for i := 0; i < len(ca) && i < len(lb); i++ {
		if ca[i] != lb[i] {
			return ca[i], lb[i]
		}
	}
	return "", ""
}

func accessibilitySuggestions(sc *scan) []Suggestion {
	if sc.t == diagram.Unknown {
		return nil
	}
	var out []Suggestion

	if !sc.hasTitle() {
		out = append(out, Suggestion{
			Type:        "accessibility",
			Impact:      ImpactMedium,
			Title:       "Add a title",
			Description: "Declare an accessible title so screen readers can announce the diagram",
			Reasoning:   "Untitled diagrams give assistive technology no context",
			AfterCode:   "accTitle: Describe the diagram in a few words",
		})
	}
	if !sc.hasDescription() {
		out = append(out, Suggestion{
			Type:        "accessibility",
			Impact:      ImpactLow,
			Title:       "Add a description",
			Description: "Summarize what the diagram shows with accDescr",
			Reasoning:   "A description conveys the diagram to readers who cannot see it",
			AfterCode:   "accDescr: Summarize the flow shown by this diagram",
		})
	}

	if sc.t == diagram.Flowchart {
		var unlabeled []string
		for _, n := range sc.g.Nodes() {
			if n.Shape != "{}" || len(sc.g.Outgoing(n.ID)) < 2 {
				continue
			}
			for _, e := range sc.g.Edges() {
				if e.From == n.ID && e.Label == "" {
					unlabeled = append(unlabeled, n.ID)
					break
				}
			}
		}
		if len(unlabeled) > 0 {
			out = append(out, Suggestion{
				Type:        "accessibility",
				Impact:      ImpactMedium,
				Title:       "Label decision branches",
				Description: fmt.Sprintf("Decision node(s) %s have unlabeled outgoing branches", listNames(unlabeled)),
				Reasoning:   "Without branch labels readers cannot tell which path follows which answer",
				AfterCode:   unlabeled[0] + " -->|Yes| ...",
			})
		}
	}
	return out
}
