// Package embeddings turns short texts into TF-IDF vectors so that search
// results can be ordered by similarity without an external model.
package embeddings

import (
	"math"
	"strings"
	"sync"
	"unicode"
)

// Dimension is the length of generated vectors. Terms past the first
// Dimension distinct terms of the fitted corpus are not represented.
const Dimension = 512

// Embedder generates TF-IDF vectors over a fitted vocabulary.
type Embedder struct {
	mu       sync.RWMutex
	idf      map[string]float64 // term -> IDF score
	vocab    map[string]int     // term -> index in the vector
	docCount int
}

// NewEmbedder creates an empty embedder. Call Fit before Embed.
func NewEmbedder() *Embedder {
	return &Embedder{
		idf:   make(map[string]float64),
		vocab: make(map[string]int),
	}
}

// Fit builds the vocabulary and IDF table from docs, replacing any earlier
// fit.
func (e *Embedder) Fit(docs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.vocab = make(map[string]int)
	e.idf = make(map[string]float64)
	e.docCount = len(docs)

	docFreq := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, term := range tokenize(doc) {
			if seen[term] {
				continue
			}
			seen[term] = true
			docFreq[term]++
			if _, ok := e.vocab[term]; !ok && len(e.vocab) < Dimension {
				e.vocab[term] = len(e.vocab)
			}
		}
	}

	// Smoothed IDF keeps terms present in every document above zero.
	for term, df := range docFreq {
		e.idf[term] = math.Log(float64(1+e.docCount)/float64(1+df)) + 1
	}
}

// Embed returns the L2-normalized TF-IDF vector of doc. A doc sharing no
// term with the vocabulary yields the zero vector.
func (e *Embedder) Embed(doc string) []float32 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	vec := make([]float32, Dimension)

	tf := make(map[string]int)
	maxTF := 0
	for _, term := range tokenize(doc) {
		tf[term]++
		maxTF = max(maxTF, tf[term])
	}

	for term, count := range tf {
		idx, ok := e.vocab[term]
		if !ok {
			continue
		}
		idf := e.idf[term]
		if idf == 0 {
			idf = 1.0
		}
		vec[idx] = float32(float64(count) / float64(maxTF) * idf)
	}

	norm := 0.0
	for _, v := range vec {
		norm += float64(v * v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

// Cosine returns the cosine similarity of a and b, or 0 when either is the
// zero vector or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// tokenize lower-cases text and splits it into letter and digit runs of at
// least two characters.
func tokenize(text string) []string {
	terms := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	filtered := make([]string, 0, len(terms))
	for _, term := range terms {
		if len([]rune(term)) >= 2 {
			filtered = append(filtered, term)
		}
	}
	return filtered
}
