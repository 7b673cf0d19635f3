package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var corpus = []string{
	"Basic Flowchart. Simple process flow. tags process workflow",
	"API Request. Client server request and response. tags api http",
	"State Machine. Lifecycle states of an order. tags lifecycle",
}

func TestEmbedder(t *testing.T) {
	t.Parallel()

	t.Run("Fit", func(t *testing.T) {
		embedder := NewEmbedder()
		embedder.Fit(corpus)

		assert.NotEmpty(t, embedder.vocab)
		assert.Equal(t, len(corpus), embedder.docCount)
		// Both terms occur in exactly one document.
		assert.InDelta(t, embedder.idf["process"], embedder.idf["request"], 1e-9)
		assert.Greater(t, embedder.idf["lifecycle"], 0.0)
	})

	t.Run("IDFFavorsRareTerms", func(t *testing.T) {
		embedder := NewEmbedder()
		embedder.Fit([]string{"order flow", "order states", "payment"})
		assert.Greater(t, embedder.idf["payment"], embedder.idf["order"])
	})

	t.Run("Normalized", func(t *testing.T) {
		embedder := NewEmbedder()
		embedder.Fit(corpus)

		vec := embedder.Embed(corpus[1])
		require.Len(t, vec, Dimension)

		norm := 0.0
		for _, v := range vec {
			norm += float64(v * v)
		}
		assert.InDelta(t, 1.0, norm, 0.01)
	})

	t.Run("Similar", func(t *testing.T) {
		embedder := NewEmbedder()
		embedder.Fit(corpus)

		assert.InDelta(t, 1.0, Cosine(embedder.Embed(corpus[0]), embedder.Embed(corpus[0])), 0.01)

		query := embedder.Embed("order lifecycle")
		assert.Greater(t, Cosine(query, embedder.Embed(corpus[2])), Cosine(query, embedder.Embed(corpus[1])))
	})

	t.Run("Unknown", func(t *testing.T) {
		embedder := NewEmbedder()
		embedder.Fit(corpus)

		vec := embedder.Embed("gantt timeline")
		assert.Len(t, vec, Dimension)
		assert.Zero(t, Cosine(vec, embedder.Embed(corpus[0])))
	})

	t.Run("Unfitted", func(t *testing.T) {
		assert.Len(t, NewEmbedder().Embed("anything"), Dimension)
	})
}

func TestCosine(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 0}))
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 0}))
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "SimpleText",
			input:    "hello world",
			expected: []string{"hello", "world"},
		},
		{
			name:     "WithSeparators",
			input:    "hello_world test-case",
			expected: []string{"hello", "world", "test", "case"},
		},
		{
			name:     "CamelCase",
			input:    "StateMachine",
			expected: []string{"statemachine"},
		},
		{
			name:     "WithNumbers",
			input:    "C4Context",
			expected: []string{"c4context"},
		},
		{
			name:     "ShortTermsFiltered",
			input:    "a b cd",
			expected: []string{"cd"},
		},
		{
			name:     "Unicode",
			input:    "Übersicht Ablauf",
			expected: []string{"übersicht", "ablauf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tokenize(tt.input))
		})
	}
}
