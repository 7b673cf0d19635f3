package storage

import (
	"sort"
	"strings"

	"github.com/Benny93/mermaid-mcp/internal/embeddings"
)

// Fuse combines ranked result lists using Reciprocal Rank Fusion (RRF).
// k is the RRF constant (typically 60). Ties are broken by ID.
func Fuse(k int, rankings ...[]SearchResult) []SearchResult {
	rrfScores := make(map[string]float64)
	for _, ranking := range rankings {
		for i, result := range ranking {
			rrfScores[result.ID] += 1.0 / float64(k+i)
		}
	}

	results := make([]SearchResult, 0, len(rrfScores))
	for id, score := range rrfScores {
		results = append(results, SearchResult{ID: id, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results
}

// FieldRanking ranks templates by direct matches of query against their
// fields: an exact tag or ID match scores highest, then a name containing
// the query, then a tag containing it.
func FieldRanking(templates []Template, query string) []SearchResult {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var results []SearchResult
	for _, t := range templates {
		score := 0.0
		for _, tag := range t.Tags {
			tag = strings.ToLower(tag)
			switch {
			case tag == q:
				score = max(score, 3)
			case strings.Contains(tag, q):
				score = max(score, 1)
			}
		}
		if strings.ToLower(t.ID) == q {
			score = max(score, 3)
		}
		if strings.Contains(strings.ToLower(t.Name), q) {
			score = max(score, 2)
		}
		if score > 0 {
			results = append(results, SearchResult{ID: t.ID, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results
}

// SemanticRanking orders templates by TF-IDF cosine similarity between query
// and their name, description, category and tags. The IDF table is fitted on
// templates, so the ranking is relative to the set passed in. Templates
// sharing no term with query are left out.
func SemanticRanking(templates []Template, query string) []SearchResult {
	if strings.TrimSpace(query) == "" || len(templates) == 0 {
		return nil
	}

	docs := make([]string, len(templates))
	for i, t := range templates {
		docs[i] = embeddings.Text(t.Name, t.Description, t.Category, t.Tags)
	}
	embedder := embeddings.NewEmbedder()
	embedder.Fit(docs)
	qv := embedder.Embed(query)

	var results []SearchResult
	for i, t := range templates {
		if score := embeddings.Cosine(qv, embedder.Embed(docs[i])); score > 0 {
			results = append(results, SearchResult{ID: t.ID, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results
}
