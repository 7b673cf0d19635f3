// Package diagram provides diagram type detection and source preprocessing
// shared by the validator, analyzer and optimizer.
package diagram

import (
	"strings"
)

// Type is the grammar variant declared by a diagram's leading keyword.
type Type string

const (
	Flowchart   Type = "flowchart"
	Sequence    Type = "sequence"
	Class       Type = "class"
	State       Type = "state"
	ER          Type = "er"
	Pie         Type = "pie"
	Journey     Type = "journey"
	Gantt       Type = "gantt"
	GitGraph    Type = "gitgraph"
	Mindmap     Type = "mindmap"
	Timeline    Type = "timeline"
	Quadrant    Type = "quadrant"
	Requirement Type = "requirement"
	C4          Type = "c4"
	Sankey      Type = "sankey"
	XYChart     Type = "xychart"
	Block       Type = "block"
	Unknown     Type = "unknown"
)

// keywords maps a declaration keyword to its diagram type.
var keywords = map[string]Type{
	"graph":              Flowchart,
	"flowchart":          Flowchart,
	"flowchart-elk":      Flowchart,
	"sequenceDiagram":    Sequence,
	"classDiagram":       Class,
	"classDiagram-v2":    Class,
	"stateDiagram":       State,
	"stateDiagram-v2":    State,
	"erDiagram":          ER,
	"pie":                Pie,
	"journey":            Journey,
	"gantt":              Gantt,
	"gitGraph":           GitGraph,
	"mindmap":            Mindmap,
	"timeline":           Timeline,
	"quadrantChart":      Quadrant,
	"requirementDiagram": Requirement,
	"C4Context":          C4,
	"C4Container":        C4,
	"C4Component":        C4,
	"C4Dynamic":          C4,
	"C4Deployment":       C4,
	"sankey-beta":        Sankey,
	"xychart-beta":       XYChart,
	"block-beta":         Block,
}

// canonical is the keyword emitted when a diagram of the given type is generated.
var canonical = map[Type]string{
	Flowchart:   "flowchart",
	Sequence:    "sequenceDiagram",
	Class:       "classDiagram",
	State:       "stateDiagram-v2",
	ER:          "erDiagram",
	Pie:         "pie",
	Journey:     "journey",
	Gantt:       "gantt",
	GitGraph:    "gitGraph",
	Mindmap:     "mindmap",
	Timeline:    "timeline",
	Quadrant:    "quadrantChart",
	Requirement: "requirementDiagram",
	C4:          "C4Context",
	Sankey:      "sankey-beta",
	XYChart:     "xychart-beta",
	Block:       "block-beta",
}

// Types returns every known diagram type except Unknown, in declaration order.
func Types() []Type {
	return []Type{
		Flowchart, Sequence, Class, State, ER, Pie, Journey, Gantt, GitGraph,
		Mindmap, Timeline, Quadrant, Requirement, C4, Sankey, XYChart, Block,
	}
}

// Keyword returns the declaration keyword for t, or "" for Unknown.
func (t Type) Keyword() string {
	return canonical[t]
}

// Valid reports whether t is a recognised diagram type.
func (t Type) Valid() bool {
	_, ok := canonical[t]
	return ok
}

// ParseType converts a user supplied name ("flowchart", "sequenceDiagram",
// "er") into a Type. Unrecognised names yield Unknown.
func ParseType(name string) Type {
	name = strings.TrimSpace(name)
	if t := Type(strings.ToLower(name)); t.Valid() {
		return t
	}
	if t, ok := keywords[name]; ok {
		return t
	}
	return Unknown
}

// KeywordOf returns the first token of the declaration line of source.
func KeywordOf(source string) string {
	line, _ := FirstContentLine(source)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	// "pie title Pets" and "graph TD;" both declare on the first token.
	return strings.TrimSuffix(fields[0], ";")
}

// Detect returns the type declared by the first content line of source.
// Comments (%%) and a leading front-matter block are skipped.
func Detect(source string) Type {
	if t, ok := keywords[KeywordOf(source)]; ok {
		return t
	}
	return Unknown
}

// FirstContentLine returns the first line that is neither blank, a %%
// comment, nor part of a --- front-matter block, along with its 1-indexed
// line number. It returns ("", 0) when no such line exists.
func FirstContentLine(source string) (string, int) {
	lines := Lines(source)
	inFrontMatter := false
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "---" {
			inFrontMatter = !inFrontMatter
			continue
		}
		if inFrontMatter || line == "" || strings.HasPrefix(line, "%%") {
			continue
		}
		return line, i + 1
	}
	return "", 0
}

// Lines splits source into lines, normalising CRLF line endings.
func Lines(source string) []string {
	source = strings.ReplaceAll(source, "\r\n", "\n")
	return strings.Split(source, "\n")
}

// StripFences removes a surrounding Markdown code fence (```mermaid ... ```).
// It returns the inner code and the number of lines removed from the top, so
// callers can map line numbers back onto the original input.
func StripFences(source string) (string, int) {
	lines := Lines(strings.TrimRight(source, " \t\r\n"))

	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	if start == len(lines) || !strings.HasPrefix(strings.TrimSpace(lines[start]), "```") {
		return source, 0
	}

	end := len(lines)
	if end-1 > start && strings.TrimSpace(lines[end-1]) == "```" {
		end--
	}
	return strings.Join(lines[start+1:end], "\n"), start + 1
}

// IsComment reports whether a trimmed line is a %% comment or directive.
func IsComment(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "%%")
}
