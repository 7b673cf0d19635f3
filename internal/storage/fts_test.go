package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "SimpleWord",
			input:    "flowchart",
			expected: []string{"flowchart"},
		},
		{
			name:     "CamelCase",
			input:    "StateMachine",
			expected: []string{"statemachine", "state", "machine"},
		},
		{
			name:     "Hyphenated",
			input:    "state-machine",
			expected: []string{"state-machine", "state", "machine"},
		},
		{
			name:     "SnakeCase",
			input:    "user_journey",
			expected: []string{"user_journey", "user", "journey"},
		},
		{
			name:     "WithNumbers",
			input:    "C4Context",
			expected: []string{"c4context", "c", "4", "context"},
		},
		{
			name:     "Punctuation",
			input:    "(API)",
			expected: []string{"api"},
		},
		{
			name:     "Empty",
			input:    "  ",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.expected, tokenize(tt.input))
		})
	}
}

func TestTermFrequencies(t *testing.T) {
	t.Parallel()

	freq := termFrequencies("API request, api response")
	assert.Equal(t, 2, freq["api"])
	assert.Equal(t, 1, freq["request"])
}

func TestFTSIndex_Badger(t *testing.T) {
	t.Parallel()

	store := NewBadgerStore()
	require.NoError(t, store.Initialize("", false))
	defer store.Close()

	require.NoError(t, store.BulkLoad(t.Context(), testTemplates()))

	size, err := store.fts.IndexSize()
	require.NoError(t, err)
	assert.Positive(t, size)

	results, err := store.fts.Search("request response")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "sequence-api", results[0].ID)
	assert.Equal(t, 3.0, results[0].Score)
}

func TestMemoryIndex(t *testing.T) {
	t.Parallel()

	idx := make(memoryIndex)
	for _, tmpl := range testTemplates() {
		idx.add(tmpl)
	}

	results := idx.search("software state")
	require.NotEmpty(t, results)
	assert.Equal(t, "state-machine", results[0].ID)

	idx.remove("state-machine")
	assert.Empty(t, idx.search("lifecycle"))
}
