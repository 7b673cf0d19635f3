package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for different data types
const (
	prefixTemplate = "t:" // template data
)

// BadgerStore is a BadgerDB-backed template store.
type BadgerStore struct {
	db          *badger.DB
	fts         *FTSIndex
	initialized bool
	readOnly    bool
	mu          sync.RWMutex
	count       int
}

// NewBadgerStore creates a new BadgerDB template store.
func NewBadgerStore() *BadgerStore {
	return &BadgerStore{}
}

// Initialize opens or creates the BadgerDB database at the given path.
// An empty path opens an in-memory database.
func (b *BadgerStore) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithNumMemtables(5).
		WithLoggingLevel(badger.ERROR) // Suppress INFO/WARNING logs

	if path == "" {
		opts = opts.WithInMemory(true)
	} else if readOnly {
		opts = opts.WithReadOnly(true)
	}

	var err error
	b.db, err = badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w", err)
	}

	b.fts = NewFTSIndex(b.db)
	b.readOnly = readOnly
	b.initialized = true

	b.count, err = b.countTemplates()
	if err != nil {
		return fmt.Errorf("counting templates: %w", err)
	}
	return nil
}

func (b *BadgerStore) countTemplates() (int, error) {
	count := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixTemplate)
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

// Close releases all resources held by the store.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil
	b.initialized = false
	return err
}

func (b *BadgerStore) checkWritable() error {
	if !b.initialized {
		return errors.New("store not initialized")
	}
	if b.readOnly {
		return errors.New("store is read-only")
	}
	return nil
}

// BulkLoad replaces the entire store with templates.
func (b *BadgerStore) BulkLoad(ctx context.Context, templates []Template) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkWritable(); err != nil {
		return err
	}
	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("clearing store: %w", err)
	}
	b.count = 0

	return b.put(ctx, templates)
}

// Put inserts or replaces templates by ID.
func (b *BadgerStore) Put(ctx context.Context, templates ...Template) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkWritable(); err != nil {
		return err
	}
	return b.put(ctx, templates)
}

func (b *BadgerStore) put(ctx context.Context, templates []Template) error {
	for _, t := range templates {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshaling template %s: %w", t.ID, err)
		}

		key := []byte(prefixTemplate + t.ID)
		err = b.db.Update(func(txn *badger.Txn) error {
			_, getErr := txn.Get(key)
			switch {
			case errors.Is(getErr, badger.ErrKeyNotFound):
				b.count++
			case getErr != nil:
				return getErr
			}

			if err := txn.Set(key, data); err != nil {
				return err
			}
			return b.fts.IndexTemplate(txn, t)
		})
		if err != nil {
			return fmt.Errorf("writing template %s: %w", t.ID, err)
		}
	}
	return nil
}

// RemoveBySource deletes every template loaded from source.
func (b *BadgerStore) RemoveBySource(ctx context.Context, source string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkWritable(); err != nil {
		return 0, err
	}

	all, err := b.list()
	if err != nil {
		return 0, err
	}

	removed := 0
	err = b.db.Update(func(txn *badger.Txn) error {
		for _, t := range all {
			if t.Source != source {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := txn.Delete([]byte(prefixTemplate + t.ID)); err != nil {
				return err
			}
			if err := b.fts.RemoveTemplate(txn, t.ID); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("removing templates from %s: %w", source, err)
	}

	b.count -= removed
	return removed, nil
}

// Get returns a template by ID.
func (b *BadgerStore) Get(_ context.Context, id string) (Template, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized {
		return Template{}, errors.New("store not initialized")
	}

	var t Template
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixTemplate + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &t)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	if err != nil {
		return Template{}, fmt.Errorf("reading template %s: %w", id, err)
	}
	return t, nil
}

// List returns every template ordered by ID.
func (b *BadgerStore) List(_ context.Context) ([]Template, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized {
		return nil, errors.New("store not initialized")
	}
	return b.list()
}

// list iterates keys in byte order, which is ID order.
func (b *BadgerStore) list() ([]Template, error) {
	var templates []Template
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixTemplate)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var t Template
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &t)
			}); err != nil {
				return err
			}
			templates = append(templates, t)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	return templates, nil
}

// Search returns templates matching q ranked by fused relevance.
func (b *BadgerStore) Search(ctx context.Context, q Query) ([]Template, int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized {
		return nil, 0, errors.New("store not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	all, err := b.list()
	if err != nil {
		return nil, 0, err
	}

	var hits []SearchResult
	if q.Search != "" {
		hits, err = b.fts.Search(q.Search)
		if err != nil {
			return nil, 0, fmt.Errorf("full-text search: %w", err)
		}
	}

	out, total := rank(filter(all, q), hits, q)
	return out, total, nil
}

// Count returns the number of stored templates.
func (b *BadgerStore) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

var _ TemplateStore = (*BadgerStore)(nil)
