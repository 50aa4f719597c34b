package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/edebt/syncengine/internal/schema"
)

// Mirror refreshes the fallback cache from the structured store. It is a
// no-op in degraded mode, where the fallback cache is the store.
//
// A dirty fallback cache holds writes that never reached the structured
// store. Mirror imports them first and leaves the cache untouched when that
// fails.
func (s *Store) Mirror(ctx context.Context) error {
	if s.degraded {
		return nil
	}
	n, err := s.recoverFallback(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover fallback cache, not mirroring: %w", err)
	}
	if n > 0 {
		s.logger.Printf("Recovered %d records written while degraded", n)
	}
	snap := make(map[schema.Collection][]Doc, len(schema.Collections))
	err = s.b.view(ctx, func(tx Tx) error {
		for _, coll := range schema.Collections {
			docs, err := tx.GetAll(coll)
			if err != nil {
				return err
			}
			snap[coll] = docs
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to read store for mirror: %w", err)
	}
	if err := s.flat.snapshot(snap); err != nil {
		return fmt.Errorf("failed to write fallback mirror: %w", err)
	}
	return nil
}

// recoverFallback imports records written to a dirty fallback cache into the
// structured store: queued mutations and pending rows are inserted when
// absent, customers are replaced when the fallback copy was updated later.
func (s *Store) recoverFallback(ctx context.Context) (int, error) {
	ff, err := s.flat.read()
	if err != nil {
		return 0, err
	}
	if !ff.Dirty {
		return 0, nil
	}

	imported := 0
	err = s.b.update(ctx, func(tx Tx) error {
		for _, coll := range []schema.Collection{schema.PendingSync, schema.Customers, schema.Orders} {
			ns := ff.Namespaces[coll]
			if ns == nil {
				continue
			}
			for _, d := range ns.Data {
				existing, err := tx.Get(coll, d.Key)
				switch {
				case errors.Is(err, ErrNotFound):
					if coll == schema.Orders && d.Indexes[IndexSyncStatus] != string(schema.StatusPending) {
						continue
					}
				case err != nil:
					return err
				case coll == schema.Customers && d.Indexes[IndexUpdatedAt] > existing.Indexes[IndexUpdatedAt]:
				default:
					continue
				}
				if err := tx.Put(coll, d); err != nil {
					return err
				}
				imported++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := s.flat.markClean(); err != nil {
		return imported, err
	}
	return imported, nil
}
