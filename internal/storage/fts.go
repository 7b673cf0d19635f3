package storage

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for FTS
const (
	prefixFTSToken = "fts:t:" // fts:t:token:templateID -> frequency
)

var (
	separatorRe = regexp.MustCompile(`[_\.\-\s]+`)
	camelRe     = regexp.MustCompile(`([a-z])([A-Z])`)
	letterNumRe = regexp.MustCompile(`([a-zA-Z])(\d)`)
	numLetterRe = regexp.MustCompile(`(\d)([a-zA-Z])`)
	punctRe     = regexp.MustCompile(`[^\p{L}\p{N}_\.\-\s]+`)
)

// tokenize splits text into searchable tokens.
// Handles camelCase, snake_case, dot notation and hyphenated words.
func tokenize(text string) []string {
	text = punctRe.ReplaceAllString(text, " ")
	if strings.TrimSpace(text) == "" {
		return nil
	}

	tokens := make(map[string]bool)
	if whole := strings.TrimSpace(text); !strings.ContainsAny(whole, " \t\r\n") {
		tokens[strings.ToLower(whole)] = true
	}

	// Split on common separators (_, ., -, space)
	for _, part := range separatorRe.Split(text, -1) {
		if part == "" {
			continue
		}
		tokens[strings.ToLower(part)] = true

		// Split camelCase: "StateMachine" -> "State", "Machine"
		for _, sub := range strings.Fields(camelRe.ReplaceAllString(part, "$1 $2")) {
			tokens[strings.ToLower(sub)] = true
		}

		// Split on number boundaries: "C4Context" -> "C", "4", "Context"
		numSplit := letterNumRe.ReplaceAllString(part, "$1 $2")
		numSplit = numLetterRe.ReplaceAllString(numSplit, "$1 $2")
		for _, sub := range strings.Fields(numSplit) {
			tokens[strings.ToLower(sub)] = true
		}
	}

	result := make([]string, 0, len(tokens))
	for token := range tokens {
		result = append(result, token)
	}
	sort.Strings(result)
	return result
}

// termFrequencies counts how often each token of text occurs.
func termFrequencies(text string) map[string]int {
	freq := make(map[string]int)
	for _, word := range strings.Fields(punctRe.ReplaceAllString(text, " ")) {
		for _, token := range tokenize(word) {
			freq[token]++
		}
	}
	return freq
}

// scoreTokens sums the frequencies of the query tokens per template using
// lookup, which returns templateID -> frequency for one token.
func scoreTokens(query string, lookup func(token string) map[string]int) []SearchResult {
	scores := make(map[string]float64)
	for _, token := range tokenize(query) {
		for id, freq := range lookup(token) {
			scores[id] += float64(freq)
		}
	}

	results := make([]SearchResult, 0, len(scores))
	for id, score := range scores {
		if score > 0 {
			results = append(results, SearchResult{ID: id, Score: score})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results
}

// FTSIndex is a simple inverted index for full-text search stored in badger.
type FTSIndex struct {
	db *badger.DB
}

// NewFTSIndex creates a new FTS index using the given BadgerDB instance.
func NewFTSIndex(db *badger.DB) *FTSIndex {
	return &FTSIndex{db: db}
}

func ftsKey(token, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixFTSToken, token, id))
}

// IndexTemplate adds or updates a template in the FTS index within txn.
func (f *FTSIndex) IndexTemplate(txn *badger.Txn, t Template) error {
	// Delete old tokens for this template (for updates)
	if err := f.deleteTokens(txn, t.ID); err != nil {
		return err
	}

	for token, freq := range termFrequencies(t.searchText()) {
		if strings.Contains(token, ":") {
			continue
		}
		if err := txn.Set(ftsKey(token, t.ID), []byte(strconv.Itoa(freq))); err != nil {
			return fmt.Errorf("setting token index: %w", err)
		}
	}
	return nil
}

// RemoveTemplate removes a template from the FTS index within txn.
func (f *FTSIndex) RemoveTemplate(txn *badger.Txn, id string) error {
	return f.deleteTokens(txn, id)
}

// deleteTokens removes all token indexes for a template.
func (f *FTSIndex) deleteTokens(txn *badger.Txn, id string) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixFTSToken)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)

	var keysToDelete [][]byte
	searchSuffix := ":" + id
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().KeyCopy(nil)
		if strings.HasSuffix(string(key), searchSuffix) {
			keysToDelete = append(keysToDelete, key)
		}
	}
	it.Close()

	for _, key := range keysToDelete {
		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("deleting token index: %w", err)
		}
	}
	return nil
}

// Search performs full-text search with simple TF scoring.
func (f *FTSIndex) Search(query string) ([]SearchResult, error) {
	txn := f.db.NewTransaction(false)
	defer txn.Discard()

	var lookupErr error
	results := scoreTokens(query, func(token string) map[string]int {
		prefix := fmt.Sprintf("%s%s:", prefixFTSToken, token)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		hits := make(map[string]int)
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			// Extract templateID from key: fts:t:token:templateID
			id := strings.TrimPrefix(string(item.Key()), prefix)
			if err := item.Value(func(val []byte) error {
				freq, err := strconv.Atoi(string(val))
				hits[id] = freq
				return err
			}); err != nil && lookupErr == nil {
				lookupErr = fmt.Errorf("reading token %q: %w", token, err)
			}
		}
		return hits
	})
	if lookupErr != nil {
		return nil, lookupErr
	}
	return results, nil
}

// IndexSize returns the number of indexed token entries.
func (f *FTSIndex) IndexSize() (int, error) {
	count := 0
	err := f.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixFTSToken)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// memoryIndex is the in-process counterpart of FTSIndex.
type memoryIndex map[string]map[string]int // token -> templateID -> frequency

func (m memoryIndex) add(t Template) {
	for token, freq := range termFrequencies(t.searchText()) {
		if m[token] == nil {
			m[token] = make(map[string]int)
		}
		m[token][t.ID] = freq
	}
}

func (m memoryIndex) remove(id string) {
	for token, ids := range m {
		delete(ids, id)
		if len(ids) == 0 {
			delete(m, token)
		}
	}
}

func (m memoryIndex) search(query string) []SearchResult {
	return scoreTokens(query, func(token string) map[string]int {
		return m[token]
	})
}
