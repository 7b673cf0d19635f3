package validator

import (
	"github.com/Benny93/mermaid-mcp/internal/diagram"
	"github.com/Benny93/mermaid-mcp/internal/parsers"
)

var categoryHints = map[parsers.ErrorCategory][]string{
	parsers.CategoryMissingHeader: {
		"Start the diagram with a type declaration such as 'flowchart TD', 'sequenceDiagram' or 'classDiagram'",
	},
	parsers.CategoryUnclosed: {
		"Close every opening bracket, parenthesis and quote",
		"Wrap labels containing brackets in double quotes, e.g. A[\"f(x)\"]",
	},
	parsers.CategoryInvalidLink: {
		"Use '-->' for arrows, '---' for open links and '-.->' for dotted links",
	},
	parsers.CategoryUnexpectedToken: {
		"Connect nodes with an arrow, e.g. 'A --> B'",
		"Wrap labels containing special characters in double quotes",
	},
	parsers.CategoryUnbalancedBlock: {
		"Every 'subgraph' needs a matching 'end'",
	},
	parsers.CategoryInvalidValue: {
		"Use a valid direction (TB, TD, BT, RL, LR) and positive numeric values",
	},
}

var typeHints = map[diagram.Type]string{
	diagram.Flowchart: "Flowchart syntax: 'flowchart TD' followed by lines like 'A[Start] --> B{Decision}'",
	diagram.Sequence:  "Sequence syntax: 'participant A' and messages like 'A->>B: Hello'",
	diagram.Class:     "Class syntax: 'class Animal { +String name }' and relations like 'Animal <|-- Dog'",
	diagram.State:     "State syntax: '[*] --> Idle' and 'Idle --> Running : start'",
	diagram.ER:        "ER syntax: 'CUSTOMER ||--o{ ORDER : places'",
	diagram.Pie:       "Pie syntax: 'pie title Pets' followed by slices like '\"Dogs\" : 42'",
	diagram.Journey:   "Journey syntax: 'section Work' followed by tasks like 'Write code: 5: Me'",
	diagram.Gantt:     "Gantt syntax: 'section Build' followed by tasks like 'Compile :a1, 2024-01-01, 3d'",
	diagram.GitGraph:  "Git graph syntax: 'commit', 'branch develop', 'checkout develop', 'merge develop'",
	diagram.Mindmap:   "Mindmap syntax: a root node followed by indented children",
}

func suggestionsFor(category parsers.ErrorCategory, t diagram.Type) []string {
	out := append([]string{}, categoryHints[category]...)
	if hint, ok := typeHints[t]; ok {
		out = append(out, hint)
	}
	if len(out) == 0 {
		out = append(out, "Check the diagram syntax against the Mermaid documentation")
	}
	return out
}
