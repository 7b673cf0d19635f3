package embeddings

import (
	"strings"
	"unicode"
)

// Text builds the document embedded for a template from its name,
// description, category and tags. CamelCase names are split into words so
// "StateMachine" matches a search for "machine".
func Text(name, description, category string, tags []string) string {
	parts := []string{splitCamel(name)}

	if description != "" {
		parts = append(parts, description)
	}
	if category != "" {
		parts = append(parts, "category "+category)
	}
	if len(tags) > 0 {
		parts = append(parts, "tags "+strings.Join(tags, " "))
	}
	return strings.Join(parts, ". ")
}

func splitCamel(s string) string {
	runes := []rune(s)
	var sb strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && unicode.IsLower(runes[i-1]) {
			sb.WriteByte(' ')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
