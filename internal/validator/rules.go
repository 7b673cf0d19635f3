package validator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Benny93/mermaid-mcp/internal/diagram"
	"github.com/Benny93/mermaid-mcp/internal/parsers"
)

var (
	// erCardinalityRe matches crow's-foot relation operators such as ||--o{.
	erCardinalityRe = regexp.MustCompile(`(\|o|\|\||\}o|\}\||o\||o\{|\|\{)(--|\.\.)(\|o|\|\||\}o|\}\||o\||o\{|\|\{)`)

	// mindmapCloudRe matches the inverted cloud and bang shapes ")text(" and "))text((".
	mindmapCloudRe = regexp.MustCompile(`\){1,2}[^()]*\({1,2}`)

	// asyncArrowRe matches the sequence async arrows -) and --).
	asyncArrowRe = regexp.MustCompile(`-{1,2}\)`)

	// asymmetricRe matches the flowchart flag shape A>text].
	asymmetricRe = regexp.MustCompile(`\w>[^\]]*\]`)

	singleDashArrowRe = regexp.MustCompile(`(^|[^-.=<])->`)
	bareDoubleArrowRe = regexp.MustCompile(`(^|[^-])>>`)
	quotedRe          = regexp.MustCompile(`"[^"]*"`)
)

var nonStandardArrows = []string{"→", "←", "↔", "⇒", "⇐", "⇔", "⟶", "⟵", "⟹", "➔", "➜", "—>", "–>", "<—", "<–"}

var pairs = map[rune]rune{')': '(', ']': '[', '}': '{'}

func columnOf(line string, byteOffset int) int {
	return utf8.RuneCountInString(line[:byteOffset]) + 1
}

// blank replaces every byte matched by re with a space, keeping offsets stable.
func blank(re *regexp.Regexp, line string) string {
	return re.ReplaceAllStringFunc(line, func(m string) string {
		return strings.Repeat(" ", len(m))
	})
}

func checkKeyword(lines []string, t diagram.Type) *Violation {
	if t != diagram.Unknown {
		return nil
	}
	first, lineNo := diagram.FirstContentLine(strings.Join(lines, "\n"))
	if lineNo == 0 {
		lineNo = 1
	}
	keyword := strings.Fields(first)
	found := ""
	if len(keyword) > 0 {
		found = keyword[0]
	}
	return &Violation{
		Line:     lineNo,
		Column:   1,
		Category: parsers.CategoryMissingHeader,
		Message:  fmt.Sprintf("Unknown or missing diagram type declaration '%s'", found),
	}
}

type opener struct {
	ch     rune
	line   int
	column int
}

// checkBalance matches (, [ and { with their closers. Parentheses and square
// brackets must close on the line they open; braces may span lines. A double
// quote toggles a string in which brackets are ignored.
func checkBalance(lines []string, t diagram.Type) *Violation {
	var braces []opener

	for i, raw := range lines {
		lineNo := i + 1
		if diagram.IsComment(raw) {
			continue
		}

		line := raw
		switch t {
		case diagram.ER:
			line = blank(erCardinalityRe, line)
		case diagram.Mindmap:
			line = blank(mindmapCloudRe, line)
		case diagram.Flowchart:
			line = blank(asymmetricRe, line)
		case diagram.Sequence:
			line = blank(asyncArrowRe, line)
		}

		var stack []opener
		var quote *opener
		for off, ch := range line {
			col := columnOf(line, off)
			if ch == '"' {
				if quote == nil {
					quote = &opener{ch: ch, line: lineNo, column: col}
				} else {
					quote = nil
				}
				continue
			}
			if quote != nil {
				continue
			}

			switch ch {
			case '(', '[':
				stack = append(stack, opener{ch: ch, line: lineNo, column: col})
			case '{':
				braces = append(braces, opener{ch: ch, line: lineNo, column: col})
			case ')', ']':
				if len(stack) == 0 {
					return unexpectedCloser(ch, lineNo, col)
				}
				top := stack[len(stack)-1]
				if top.ch != pairs[ch] {
					return mismatched(top, ch, lineNo, col)
				}
				stack = stack[:len(stack)-1]
			case '}':
				if len(braces) == 0 {
					return unexpectedCloser(ch, lineNo, col)
				}
				braces = braces[:len(braces)-1]
			}
		}

		if quote != nil {
			return unclosed(*quote)
		}
		if len(stack) > 0 {
			return unclosed(stack[len(stack)-1])
		}
	}

	if len(braces) > 0 {
		return unclosed(braces[len(braces)-1])
	}
	return nil
}

func closerOf(open rune) rune {
	for closer, o := range pairs {
		if o == open {
			return closer
		}
	}
	return open
}

func unclosed(o opener) *Violation {
	return &Violation{
		Line:     o.line,
		Column:   o.column,
		Category: parsers.CategoryUnclosed,
		Message:  fmt.Sprintf("Unclosed '%c' opened on line %d: expected '%c'", o.ch, o.line, closerOf(o.ch)),
	}
}

func unexpectedCloser(ch rune, line, col int) *Violation {
	return &Violation{
		Line:     line,
		Column:   col,
		Category: parsers.CategoryUnexpectedToken,
		Message:  fmt.Sprintf("Unexpected closing '%c' without a matching '%c'", ch, pairs[ch]),
	}
}

func mismatched(top opener, ch rune, line, col int) *Violation {
	return &Violation{
		Line:     line,
		Column:   col,
		Category: parsers.CategoryUnclosed,
		Message:  fmt.Sprintf("Unclosed '%c' from column %d: found '%c' instead of '%c'", top.ch, top.column, ch, closerOf(top.ch)),
	}
}

func checkArrowGlyphs(lines []string, _ diagram.Type) *Violation {
	for i, line := range lines {
		if diagram.IsComment(line) {
			continue
		}
		for _, glyph := range nonStandardArrows {
			if off := strings.Index(line, glyph); off >= 0 {
				return &Violation{
					Line:     i + 1,
					Column:   columnOf(line, off),
					Category: parsers.CategoryInvalidLink,
					Message:  fmt.Sprintf("Non-standard arrow character '%s': use ASCII arrows such as '-->'", glyph),
				}
			}
		}
	}
	return nil
}

func checkArrowSyntax(lines []string, t diagram.Type) *Violation {
	var re *regexp.Regexp
	var message string
	switch t {
	case diagram.Flowchart, diagram.State:
		re = singleDashArrowRe
		message = "Invalid arrow '->': use '-->' to connect nodes"
	case diagram.Sequence:
		re = bareDoubleArrowRe
		message = "Invalid message arrow '>>': use '->>' or '-->>'"
	default:
		return nil
	}

	for i, raw := range lines {
		if diagram.IsComment(raw) {
			continue
		}
		line := blank(quotedRe, raw)
		if loc := re.FindStringSubmatchIndex(line); loc != nil {
			// loc[3] is the end of the leading context group.
			return &Violation{
				Line:     i + 1,
				Column:   columnOf(line, loc[3]),
				Category: parsers.CategoryInvalidLink,
				Message:  message,
			}
		}
	}
	return nil
}
