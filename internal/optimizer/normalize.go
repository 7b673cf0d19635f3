package optimizer

import (
	"regexp"
	"strings"

	"github.com/Benny93/mermaid-mcp/internal/diagram"
)

// Names of the structural edits reported in Result.AppliedOptimizations.
const (
	AppliedBlankLines   = "removed-blank-lines"
	AppliedTrailing     = "trimmed-trailing-whitespace"
	AppliedIndentation  = "normalized-indentation"
	AppliedArrowSpacing = "normalized-arrow-spacing"
	AppliedDirection    = "added-direction"
)

const indentUnit = "    "

var flowArrowRe = regexp.MustCompile(`\s*(<?(?:-{2,}>|={2,}>|-\.+->|-{3,}|={3,}|~{3,})(?:\|[^|]*\|)?)\s*`)

var sequenceOpeners = map[string]bool{
	"loop": true, "alt": true, "opt": true, "par": true, "critical": true, "break": true, "rect": true, "box": true,
}

var sequenceMiddles = map[string]bool{"else": true, "and": true, "option": true}

// Normalize applies the semantics-preserving structural edits: blank-line
// removal, trailing whitespace trimming, block re-indentation, flowchart arrow
// spacing and a default flowchart direction. It returns the rewritten code
// and the names of the edits that changed something.
func Normalize(code string, t diagram.Type) (string, []string) {
	lines := diagram.Lines(code)
	var applied []string
	mark := func(name string) {
		for _, a := range applied {
			if a == name {
				return
			}
		}
		applied = append(applied, name)
	}

	var kept []string
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if trimmed != line {
			mark(AppliedTrailing)
		}
		if strings.TrimSpace(trimmed) == "" {
			mark(AppliedBlankLines)
			continue
		}
		kept = append(kept, trimmed)
	}
	if len(kept) == 0 {
		return "", applied
	}

	headerIdx := headerIndex(kept)
	if headerIdx < 0 {
		return strings.Join(kept, "\n"), applied
	}

	if t == diagram.Flowchart {
		if header, ok := withDirection(kept[headerIdx]); ok {
			kept[headerIdx] = header
			mark(AppliedDirection)
		}
		for i := headerIdx + 1; i < len(kept); i++ {
			if spaced := spaceArrows(kept[i]); spaced != kept[i] {
				kept[i] = spaced
				mark(AppliedArrowSpacing)
			}
		}
	}

	// Indentation carries meaning in mindmaps and is left alone there.
	if t != diagram.Mindmap && t != diagram.Unknown {
		if reindent(kept, headerIdx, t) {
			mark(AppliedIndentation)
		}
	}
	return strings.Join(kept, "\n"), applied
}

// headerIndex returns the index of the declaration line, skipping comments
// and a front-matter block.
func headerIndex(lines []string) int {
	inFrontMatter := false
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "---" {
			inFrontMatter = !inFrontMatter
			continue
		}
		if inFrontMatter || diagram.IsComment(line) {
			continue
		}
		return i
	}
	return -1
}

// withDirection adds TD to a flowchart header that declares no direction.
func withDirection(header string) (string, bool) {
	trimmed := strings.TrimSpace(header)
	keyword := trimmed
	rest := ""
	if i := strings.IndexAny(trimmed, " \t;"); i >= 0 {
		keyword, rest = trimmed[:i], trimmed[i:]
	}
	if strings.TrimSpace(rest) != "" && !strings.HasPrefix(strings.TrimSpace(rest), ";") {
		return header, false
	}
	return keyword + " TD" + strings.TrimSpace(rest), true
}

// spaceArrows puts single spaces around flowchart links outside quoted and
// bracketed text.
func spaceArrows(line string) string {
	indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
	body := line[len(indent):]

	var out strings.Builder
	segment := 0
	depth := 0
	inQuote := false
	flush := func(end int) {
		if end > segment {
			out.WriteString(flowArrowRe.ReplaceAllString(body[segment:end], " $1 "))
		}
		segment = end
	}

	for i, ch := range body {
		switch {
		case ch == '"':
			if !inQuote && depth == 0 {
				flush(i)
			}
			inQuote = !inQuote
			if !inQuote && depth == 0 {
				out.WriteString(body[segment : i+1])
				segment = i + 1
			}
		case inQuote:
		case strings.ContainsRune("([{", ch):
			if depth == 0 {
				flush(i)
			}
			depth++
		case strings.ContainsRune(")]}", ch) && depth > 0:
			depth--
			if depth == 0 {
				out.WriteString(body[segment : i+1])
				segment = i + 1
			}
		}
	}
	if depth > 0 || inQuote {
		out.WriteString(body[segment:])
	} else {
		flush(len(body))
	}
	return indent + strings.TrimSpace(out.String())
}

// reindent rewrites the indentation of every line after the header from the
// block structure of t. It reports whether any line changed.
func reindent(lines []string, headerIdx int, t diagram.Type) bool {
	changed := false
	set := func(i, depth int) {
		if depth < 0 {
			depth = 0
		}
		line := strings.Repeat(indentUnit, depth+1) + strings.TrimSpace(lines[i])
		if line != lines[i] {
			lines[i] = line
			changed = true
		}
	}

	if strings.TrimSpace(lines[headerIdx]) != lines[headerIdx] {
		lines[headerIdx] = strings.TrimSpace(lines[headerIdx])
		changed = true
	}

	depth := 0
	inSection := false
	for i := headerIdx + 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		word := strings.Fields(line)[0]

		switch t {
		case diagram.Flowchart:
			switch word {
			case "subgraph":
				set(i, depth)
				depth++
			case "end":
				depth--
				set(i, depth)
			default:
				set(i, depth)
			}
		case diagram.Sequence:
			switch {
			case sequenceOpeners[word]:
				set(i, depth)
				depth++
			case sequenceMiddles[word]:
				set(i, depth-1)
			case word == "end":
				depth--
				set(i, depth)
			default:
				set(i, depth)
			}
		case diagram.Class, diagram.State, diagram.ER, diagram.Requirement, diagram.C4:
			if strings.HasPrefix(line, "}") {
				depth--
			}
			set(i, depth)
			if strings.HasSuffix(line, "{") {
				depth++
			}
		case diagram.Gantt, diagram.Journey, diagram.Timeline:
			if word == "section" {
				inSection = true
				set(i, 0)
				continue
			}
			if inSection {
				set(i, 1)
			} else {
				set(i, 0)
			}
		default:
			set(i, 0)
		}
	}
	return changed
}
