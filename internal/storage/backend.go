// Package storage provides the template store used by get_diagram_templates.
//
// It defines the TemplateStore protocol that all storage implementations
// must satisfy, along with the template and query types shared across
// backends.
package storage

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/Benny93/mermaid-mcp/internal/diagram"
)

// ErrTemplateNotFound is returned when a template ID is not in the store.
var ErrTemplateNotFound = errors.New("template not found")

// SourceBuiltin marks templates compiled into the binary.
const SourceBuiltin = "builtin"

// rrfK is the reciprocal rank fusion constant used by Search.
const rrfK = 60

// Template is a reusable diagram starting point.
type Template struct {
	// ID is the unique, stable identifier.
	ID string `json:"id" yaml:"id"`

	// Name is the short display name.
	Name string `json:"name" yaml:"name"`

	// Description explains when to use the template.
	Description string `json:"description" yaml:"description"`

	// DiagramType is the type the code declares.
	DiagramType diagram.Type `json:"diagramType" yaml:"diagramType"`

	// Category groups templates ("process", "software", "data", ...).
	Category string `json:"category" yaml:"category"`

	// Code is the diagram source.
	Code string `json:"code" yaml:"code"`

	// Tags are free-form search keywords.
	Tags []string `json:"tags" yaml:"tags"`

	// Source is "builtin" or the file the template was loaded from.
	Source string `json:"source" yaml:"-"`
}

// searchText is the text indexed for full-text search.
func (t Template) searchText() string {
	return t.Name + " " + t.Description + " " + strings.Join(t.Tags, " ")
}

// Query filters and ranks templates. Zero fields do not filter.
type Query struct {
	DiagramType diagram.Type
	Category    string
	Search      string

	// Limit caps the result list. Zero or less means no cap.
	Limit int
}

// SearchResult is a ranked template match.
type SearchResult struct {
	// ID is the ID of the matching template.
	ID string

	// Score is the relevance score (higher is better).
	Score float64
}

// TemplateStore defines the interface for template storage implementations.
//
// Implementations must be thread-safe and support concurrent access.
type TemplateStore interface {
	// Initialize opens or creates the store at path. An empty path keeps
	// the store in memory.
	Initialize(path string, readOnly bool) error

	// Close releases all resources held by the store.
	Close() error

	// BulkLoad replaces the entire store with templates.
	BulkLoad(ctx context.Context, templates []Template) error

	// Put inserts or replaces templates by ID.
	Put(ctx context.Context, templates ...Template) error

	// RemoveBySource deletes every template loaded from source and returns
	// the number removed.
	RemoveBySource(ctx context.Context, source string) (int, error)

	// Get returns a template by ID or ErrTemplateNotFound.
	Get(ctx context.Context, id string) (Template, error)

	// List returns every template ordered by ID.
	List(ctx context.Context) ([]Template, error)

	// Search returns the templates matching q, ranked, and the number of
	// matches before the limit was applied.
	Search(ctx context.Context, q Query) ([]Template, int, error)

	// Count returns the number of stored templates.
	Count() int
}

// filter keeps the templates matching the type and category of q.
func filter(all []Template, q Query) []Template {
	out := make([]Template, 0, len(all))
	for _, t := range all {
		if q.DiagramType != "" && t.DiagramType != q.DiagramType {
			continue
		}
		if q.Category != "" && !strings.EqualFold(t.Category, q.Category) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// rank orders candidates for q. Without a search string they are ordered by
// ID; otherwise only templates hit by full-text or field search are kept,
// ordered by the fusion of those rankings and their similarity to q.
func rank(candidates []Template, fts []SearchResult, q Query) ([]Template, int) {
	if strings.TrimSpace(q.Search) == "" {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
		return limit(candidates, q.Limit), len(candidates)
	}

	byID := make(map[string]Template, len(candidates))
	for _, t := range candidates {
		byID[t.ID] = t
	}

	hit := make(map[string]bool)
	var ftsHits []SearchResult
	for _, r := range fts {
		if _, ok := byID[r.ID]; ok {
			ftsHits = append(ftsHits, r)
			hit[r.ID] = true
		}
	}
	fields := FieldRanking(candidates, q.Search)
	for _, r := range fields {
		hit[r.ID] = true
	}

	// Similarity only reorders templates that already matched.
	matched := make([]Template, 0, len(hit))
	for _, t := range candidates {
		if hit[t.ID] {
			matched = append(matched, t)
		}
	}

	fused := Fuse(rrfK, ftsHits, fields, SemanticRanking(matched, q.Search))
	out := make([]Template, 0, len(fused))
	for _, r := range fused {
		out = append(out, byID[r.ID])
	}
	return limit(out, q.Limit), len(out)
}

func limit(templates []Template, n int) []Template {
	if n > 0 && len(templates) > n {
		return templates[:n]
	}
	return templates
}
