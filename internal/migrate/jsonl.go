// Package migrate exports and imports the local store as JSONL.
//
// Each line is one record: {"collection": ..., "key": ..., "body": {...}}.
// Export writes every collection, the queue and sync metadata included, so a
// backup restores pending work as well as cached data.
package migrate

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/edebt/syncengine/internal/schema"
	"github.com/edebt/syncengine/internal/store"
)

// Record is one exported document.
type Record struct {
	Collection schema.Collection `json:"collection"`
	Key        string            `json:"key"`
	Body       json.RawMessage   `json:"body"`
}

// ImportOptions contains configuration for Import
type ImportOptions struct {
	Replace bool // Clear every collection before importing
	DryRun  bool // Validate without writing
}

// Result contains statistics about an export or import
type Result struct {
	Counts  map[schema.Collection]int
	Backup  string
	Errors  []string
	Total   int
	Skipped int
}

func newResult() *Result {
	return &Result{Counts: make(map[schema.Collection]int)}
}

// Export writes every document of every collection to w.
func Export(ctx context.Context, st *store.Store, w io.Writer) (*Result, error) {
	result := newResult()
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	err := st.View(ctx, func(tx store.Tx) error {
		for _, coll := range schema.Collections {
			docs, err := tx.GetAll(coll)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", coll, err)
			}
			for _, d := range docs {
				if err := enc.Encode(Record{Collection: coll, Key: d.Key, Body: d.Body}); err != nil {
					return fmt.Errorf("failed to write %s/%s: %w", coll, d.Key, err)
				}
				result.Counts[coll]++
				result.Total++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush export: %w", err)
	}
	return result, nil
}

// ExportFile writes the export to path atomically via a temp file.
func ExportFile(ctx context.Context, st *store.Store, path string) (*Result, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	result, err := Export(ctx, st, f)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return result, nil
}

// Import reads records from r and writes them in one transaction. A record
// that fails validation is reported in Result.Errors and skipped; malformed
// JSON aborts the import with nothing written.
func Import(ctx context.Context, st *store.Store, r io.Reader, opts ImportOptions) (*Result, error) {
	result := newResult()

	var docs []struct {
		coll schema.Collection
		doc  store.Doc
	}
	dec := json.NewDecoder(r)
	for line := 1; ; line++ {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at record %d: %w", line, err)
		}

		doc, err := rebuild(rec)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d (%s/%s): %v", line, rec.Collection, rec.Key, err))
			result.Skipped++
			continue
		}
		docs = append(docs, struct {
			coll schema.Collection
			doc  store.Doc
		}{rec.Collection, doc})
		result.Counts[rec.Collection]++
		result.Total++
	}

	if opts.DryRun {
		return result, nil
	}

	err := st.Update(ctx, func(tx store.Tx) error {
		if opts.Replace {
			for _, coll := range schema.Collections {
				if err := tx.Clear(coll); err != nil {
					return fmt.Errorf("failed to clear %s: %w", coll, err)
				}
			}
		}
		for _, d := range docs {
			if err := tx.Put(d.coll, d.doc); err != nil {
				return fmt.Errorf("failed to write %s/%s: %w", d.coll, d.doc.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ImportFile imports path. With backup set, the current store is first
// exported next to path.
func ImportFile(ctx context.Context, st *store.Store, path string, opts ImportOptions, backup bool) (*Result, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer f.Close()

	var backupPath string
	if backup && !opts.DryRun {
		backupPath = path + ".backup." + time.Now().Format("20060102-150405")
		if _, err := ExportFile(ctx, st, backupPath); err != nil {
			return nil, fmt.Errorf("failed to create backup: %w", err)
		}
	}

	result, err := Import(ctx, st, f, opts)
	if err != nil {
		return nil, err
	}
	result.Backup = backupPath
	return result, nil
}

// rebuild decodes a record into its typed form and re-encodes it, so index
// values are derived from the body rather than trusted from the file.
func rebuild(rec Record) (store.Doc, error) {
	d := store.Doc{Key: rec.Key, Body: rec.Body}
	var doc store.Doc
	var err error

	switch rec.Collection {
	case schema.Customers:
		var c schema.Customer
		if c, err = store.Decode[schema.Customer](d); err == nil {
			doc, err = store.CustomerDoc(c)
		}
	case schema.Orders:
		var o schema.Order
		if o, err = store.Decode[schema.Order](d); err == nil {
			doc, err = store.OrderDoc(o)
		}
	case schema.Menu:
		var m schema.MenuItem
		if m, err = store.Decode[schema.MenuItem](d); err == nil {
			doc, err = store.MenuDoc(m)
		}
	case schema.PendingSync:
		var m schema.PendingMutation
		if m, err = store.Decode[schema.PendingMutation](d); err == nil {
			doc, err = store.MutationDoc(m)
		}
	case schema.Meta:
		var meta schema.SyncMeta
		if meta, err = store.Decode[schema.SyncMeta](d); err == nil {
			doc, err = store.MetaDoc(meta)
		}
	default:
		return store.Doc{}, fmt.Errorf("unknown collection %q", rec.Collection)
	}
	if err != nil {
		return store.Doc{}, err
	}
	if rec.Key != "" && doc.Key != rec.Key {
		return store.Doc{}, fmt.Errorf("key %q does not match body (%q)", rec.Key, doc.Key)
	}
	return doc, nil
}
