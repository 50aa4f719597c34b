package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/edebt/syncengine/internal/schema"
	"github.com/spf13/afero"
)

// File names inside the data directory.
const (
	DatabaseFile = "edebt.db"
	FallbackFile = "fallback.json"
)

// Index names.
const (
	IndexSyncStatus = "sync_status"
	IndexUpdatedAt  = "updated_at"
	IndexCustomerID = "customer_id"
	IndexCreatedAt  = "created_at"
	IndexCategory   = "category"
	IndexAvailable  = "available"
	IndexType       = "type"
	IndexState      = "state"
)

// indexes declares the secondary indexes of every collection.
var indexes = map[schema.Collection][]string{
	schema.Customers:   {IndexSyncStatus, IndexUpdatedAt},
	schema.Orders:      {IndexCustomerID, IndexSyncStatus, IndexCreatedAt},
	schema.Menu:        {IndexCategory, IndexAvailable},
	schema.PendingSync: {IndexType, IndexCreatedAt, IndexState},
	schema.Meta:        nil,
}

// Doc is a stored document: primary key, JSON body and index values.
type Doc struct {
	Key     string            `json:"key"`
	Body    json.RawMessage   `json:"body"`
	Indexes map[string]string `json:"indexes,omitempty"`
}

// Tx is a transaction spanning every collection. Writes made through a Tx
// become visible and durable together when the enclosing Update returns nil.
type Tx interface {
	Get(coll schema.Collection, key string) (Doc, error)
	GetAll(coll schema.Collection) ([]Doc, error)
	GetByIndex(coll schema.Collection, index, value string) ([]Doc, error)
	Put(coll schema.Collection, doc Doc) error
	Delete(coll schema.Collection, key string) error
	Clear(coll schema.Collection) error
}

type backend interface {
	view(ctx context.Context, fn func(Tx) error) error
	update(ctx context.Context, fn func(Tx) error) error
	close() error
	name() string
}

// Options configures Open.
type Options struct {
	// Dir is the data directory holding both backends.
	Dir string

	// Fs holds the fallback cache. Defaults to the OS filesystem.
	Fs afero.Fs

	// Logger receives warnings. Defaults to stderr with a "[store] " prefix.
	Logger *log.Logger

	// ForceFallback skips the structured backend, as if it failed to open.
	ForceFallback bool
}

// Store is the local durable store.
type Store struct {
	b        backend
	flat     *flatBackend
	degraded bool
	dir      string
	logger   *log.Logger
}

// Open opens the store in opts.Dir, creating collections and indexes if
// absent. It is idempotent.
//
// If the structured backend cannot be opened the failure is logged and the
// store degrades to the flat fallback cache; Open only fails when neither
// backend is usable.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: data directory is required", ErrStoreUnavailable)
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}

	s := &Store{
		flat:   newFlatBackend(opts.Fs, filepath.Join(opts.Dir, FallbackFile)),
		dir:    opts.Dir,
		logger: opts.Logger,
	}

	var sqlErr error
	if opts.ForceFallback {
		sqlErr = errors.New("structured backend disabled")
	} else {
		var sb *sqliteBackend
		sb, sqlErr = openSQLite(ctx, filepath.Join(opts.Dir, DatabaseFile))
		if sqlErr == nil {
			s.b = sb
		}
	}

	if sqlErr != nil {
		s.logger.Printf("WARNING: %v: %v; using fallback cache %s", ErrStoreUnavailable, sqlErr, s.flat.path)
		if err := s.flat.init(); err != nil {
			return nil, fmt.Errorf("%w: structured: %v; fallback: %v", ErrStoreUnavailable, sqlErr, err)
		}
		s.flat.writable = true
		s.b = s.flat
		s.degraded = true
		return s, nil
	}

	n, err := s.recoverFallback(ctx)
	if err != nil {
		s.logger.Printf("WARNING: failed to recover fallback cache: %v", err)
	} else if n > 0 {
		s.logger.Printf("Recovered %d records written while degraded", n)
	}
	return s, nil
}

// Degraded reports whether the store runs on the flat fallback cache.
func (s *Store) Degraded() bool {
	return s.degraded
}

// Backend names the active backend ("sqlite" or "flat").
func (s *Store) Backend() string {
	return s.b.name()
}

// Dir returns the data directory.
func (s *Store) Dir() string {
	return s.dir
}

// Close releases the active backend.
func (s *Store) Close() error {
	if s.b == nil {
		return nil
	}
	err := s.b.close()
	s.b = nil
	return err
}

// View runs fn in a read transaction.
func (s *Store) View(ctx context.Context, fn func(Tx) error) error {
	return s.b.view(ctx, func(tx Tx) error { return fn(scanTx{tx}) })
}

// Update runs fn in a write transaction. If fn returns an error nothing it
// wrote is applied.
func (s *Store) Update(ctx context.Context, fn func(Tx) error) error {
	return s.b.update(ctx, func(tx Tx) error { return fn(scanTx{tx}) })
}

// Put upserts doc by primary key.
func (s *Store) Put(ctx context.Context, coll schema.Collection, doc Doc) error {
	return s.Update(ctx, func(tx Tx) error { return tx.Put(coll, doc) })
}

// Get returns the document stored under key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, coll schema.Collection, key string) (Doc, error) {
	var doc Doc
	err := s.View(ctx, func(tx Tx) error {
		var err error
		doc, err = tx.Get(coll, key)
		return err
	})
	return doc, err
}

// GetAll returns every document of coll ordered by key.
func (s *Store) GetAll(ctx context.Context, coll schema.Collection) ([]Doc, error) {
	var docs []Doc
	err := s.View(ctx, func(tx Tx) error {
		var err error
		docs, err = tx.GetAll(coll)
		return err
	})
	return docs, err
}

// GetByIndex returns the documents of coll whose index equals value.
func (s *Store) GetByIndex(ctx context.Context, coll schema.Collection, index, value string) ([]Doc, error) {
	var docs []Doc
	err := s.View(ctx, func(tx Tx) error {
		var err error
		docs, err = tx.GetByIndex(coll, index, value)
		return err
	})
	return docs, err
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, coll schema.Collection, key string) error {
	return s.Update(ctx, func(tx Tx) error { return tx.Delete(coll, key) })
}

// Clear removes every document of coll.
func (s *Store) Clear(ctx context.Context, coll schema.Collection) error {
	return s.Update(ctx, func(tx Tx) error { return tx.Clear(coll) })
}

// scanTx answers index lookups by full scan when the backend keeps no indexes.
type scanTx struct {
	Tx
}

func (t scanTx) GetByIndex(coll schema.Collection, index, value string) ([]Doc, error) {
	docs, err := t.Tx.GetByIndex(coll, index, value)
	if !errors.Is(err, ErrIndexUnsupported) {
		return docs, err
	}
	all, err := t.Tx.GetAll(coll)
	if err != nil {
		return nil, err
	}
	matched := make([]Doc, 0, len(all))
	for _, d := range all {
		if d.Indexes[index] == value {
			matched = append(matched, d)
		}
	}
	return matched, nil
}

func checkCollection(coll schema.Collection) error {
	if _, ok := indexes[coll]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, coll)
	}
	return nil
}

func checkIndex(coll schema.Collection, index string) error {
	idx, ok := indexes[coll]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, coll)
	}
	for _, name := range idx {
		if name == index {
			return nil
		}
	}
	return fmt.Errorf("%w: %q has no index %q", ErrUnknownCollection, coll, index)
}

func checkDoc(coll schema.Collection, doc Doc) error {
	if err := checkCollection(coll); err != nil {
		return err
	}
	if doc.Key == "" {
		return fmt.Errorf("document key is required")
	}
	if !json.Valid(doc.Body) {
		return fmt.Errorf("document %s has an invalid JSON body", doc.Key)
	}
	for name := range doc.Indexes {
		if err := checkIndex(coll, name); err != nil {
			return err
		}
	}
	return nil
}

func sortDocs(docs []Doc) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
}
