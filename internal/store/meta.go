package store

import (
	"context"
	"errors"
	"time"

	"github.com/edebt/syncengine/internal/schema"
)

// LastSync returns the time of the last successful download, or nil.
func (s *Store) LastSync(ctx context.Context) (*time.Time, error) {
	var meta schema.SyncMeta
	err := s.View(ctx, func(tx Tx) error {
		var err error
		meta, err = GetMeta(tx)
		return err
	})
	return meta.LastSyncTimestamp, err
}

// SetLastSync records t as the time of the last successful download.
func (s *Store) SetLastSync(ctx context.Context, t time.Time) error {
	return s.Update(ctx, func(tx Tx) error { return SetLastSyncTx(tx, t) })
}

// SetLastSyncTx is SetLastSync inside a transaction.
func SetLastSyncTx(tx Tx, t time.Time) error {
	meta, err := GetMeta(tx)
	if err != nil {
		return err
	}
	meta.LastSyncTimestamp = &t
	doc, err := MetaDoc(meta)
	if err != nil {
		return err
	}
	return tx.Put(schema.Meta, doc)
}

// GetMeta returns the SyncMeta singleton; a missing record is the zero value.
func GetMeta(tx Tx) (schema.SyncMeta, error) {
	doc, err := tx.Get(schema.Meta, schema.MetaKey)
	if errors.Is(err, ErrNotFound) {
		return schema.SyncMeta{}, nil
	}
	if err != nil {
		return schema.SyncMeta{}, err
	}
	return Decode[schema.SyncMeta](doc)
}
