// Package queue is the durable FIFO of local writes awaiting confirmation
// by the remote.
//
// Entries live in the store's pending_sync collection, so enqueueing can be
// part of the same transaction as the local write it describes. Entries are
// drained in creation order; a quarantined entry stays in the queue but is
// skipped by sync cycles until it is requeued or discarded.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/edebt/syncengine/internal/schema"
	"github.com/edebt/syncengine/internal/store"
)

// ErrNotFound is returned for unknown mutation ids.
var ErrNotFound = errors.New("mutation not found")

// Queue is the pending mutation queue.
type Queue struct {
	store *store.Store
	now   func() time.Time
}

// New creates a queue over s. A nil now uses time.Now.
func New(s *store.Store, now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{store: s, now: now}
}

// Store returns the underlying store.
func (q *Queue) Store() *store.Store {
	return q.store
}

// Enqueue appends m and returns it with its id, attempt count, state and
// (when unset) creation time assigned.
func (q *Queue) Enqueue(ctx context.Context, m schema.PendingMutation) (schema.PendingMutation, error) {
	var out schema.PendingMutation
	err := q.store.Update(ctx, func(tx store.Tx) error {
		var err error
		out, err = q.EnqueueTx(tx, m)
		return err
	})
	return out, err
}

// EnqueueTx is Enqueue inside a store transaction.
func (q *Queue) EnqueueTx(tx store.Tx, m schema.PendingMutation) (schema.PendingMutation, error) {
	m.ID = schema.NewLocalID()
	m.AttemptCount = 0
	m.LastAttemptAt = nil
	m.LastError = ""
	m.State = schema.StateQueued
	if m.CreatedAt.IsZero() {
		m.CreatedAt = q.now()
	}
	if err := store.PutMutation(tx, m); err != nil {
		return schema.PendingMutation{}, fmt.Errorf("failed to enqueue %s: %w", m.Type(), err)
	}
	return m, nil
}

// Get returns the mutation with the given id.
func (q *Queue) Get(ctx context.Context, id string) (schema.PendingMutation, error) {
	var m schema.PendingMutation
	err := q.store.View(ctx, func(tx store.Tx) error {
		var err error
		m, err = getTx(tx, id)
		return err
	})
	return m, err
}

func getTx(tx store.Tx, id string) (schema.PendingMutation, error) {
	m, err := store.GetMutation(tx, id)
	if store.IsNotFound(err) {
		return m, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m, err
}

// ListPending returns the queued (not quarantined) mutations in drain order.
func (q *Queue) ListPending(ctx context.Context) ([]schema.PendingMutation, error) {
	docs, err := q.store.GetByIndex(ctx, schema.PendingSync, store.IndexState, string(schema.StateQueued))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending mutations: %w", err)
	}
	return decodeSorted(docs)
}

// ListAll returns every mutation, quarantined included, in drain order.
func (q *Queue) ListAll(ctx context.Context) ([]schema.PendingMutation, error) {
	docs, err := q.store.GetAll(ctx, schema.PendingSync)
	if err != nil {
		return nil, fmt.Errorf("failed to list mutations: %w", err)
	}
	return decodeSorted(docs)
}

// ListQuarantined returns the quarantined mutations.
func (q *Queue) ListQuarantined(ctx context.Context) ([]schema.PendingMutation, error) {
	docs, err := q.store.GetByIndex(ctx, schema.PendingSync, store.IndexState, string(schema.StateQuarantined))
	if err != nil {
		return nil, fmt.Errorf("failed to list quarantined mutations: %w", err)
	}
	return decodeSorted(docs)
}

// ListByType returns every mutation of one type, e.g. schema.TypeOrderCreate.
func (q *Queue) ListByType(ctx context.Context, typ string) ([]schema.PendingMutation, error) {
	docs, err := q.store.GetByIndex(ctx, schema.PendingSync, store.IndexType, typ)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s mutations: %w", typ, err)
	}
	return decodeSorted(docs)
}

// Count returns the number of mutations in the queue, quarantined included.
func (q *Queue) Count(ctx context.Context) (int, error) {
	docs, err := q.store.GetAll(ctx, schema.PendingSync)
	if err != nil {
		return 0, fmt.Errorf("failed to count mutations: %w", err)
	}
	return len(docs), nil
}

// MarkAttempt records a failed delivery attempt. It is diagnostic only.
func (q *Queue) MarkAttempt(ctx context.Context, id string, cause error) (schema.PendingMutation, error) {
	return q.modify(ctx, id, func(m *schema.PendingMutation) {
		now := q.now()
		m.AttemptCount++
		m.LastAttemptAt = &now
		if cause != nil {
			m.LastError = cause.Error()
		}
	})
}

// Quarantine stops draining id until it is requeued.
func (q *Queue) Quarantine(ctx context.Context, id, reason string) (schema.PendingMutation, error) {
	return q.modify(ctx, id, func(m *schema.PendingMutation) {
		m.State = schema.StateQuarantined
		if reason != "" {
			m.LastError = reason
		}
	})
}

// Requeue returns a quarantined mutation to the queue with its attempts reset.
// It keeps its original position.
func (q *Queue) Requeue(ctx context.Context, id string) (schema.PendingMutation, error) {
	return q.modify(ctx, id, func(m *schema.PendingMutation) {
		m.State = schema.StateQueued
		m.AttemptCount = 0
		m.LastAttemptAt = nil
	})
}

// SetPayloadTx rewrites the payload of a queued mutation inside a transaction.
func (q *Queue) SetPayloadTx(tx store.Tx, id string, payload any) error {
	m, err := getTx(tx, id)
	if err != nil {
		return err
	}
	if err := m.SetPayload(payload); err != nil {
		return err
	}
	return store.PutMutation(tx, m)
}

// Remove deletes a confirmed mutation. Removing a missing id is not an error.
func (q *Queue) Remove(ctx context.Context, id string) error {
	return q.store.Update(ctx, func(tx store.Tx) error { return q.RemoveTx(tx, id) })
}

// RemoveTx is Remove inside a store transaction.
func (q *Queue) RemoveTx(tx store.Tx, id string) error {
	if err := tx.Delete(schema.PendingSync, id); err != nil {
		return fmt.Errorf("failed to remove mutation %s: %w", id, err)
	}
	return nil
}

func (q *Queue) modify(ctx context.Context, id string, fn func(*schema.PendingMutation)) (schema.PendingMutation, error) {
	var m schema.PendingMutation
	err := q.store.Update(ctx, func(tx store.Tx) error {
		var err error
		m, err = getTx(tx, id)
		if err != nil {
			return err
		}
		fn(&m)
		return store.PutMutation(tx, m)
	})
	return m, err
}

func decodeSorted(docs []store.Doc) ([]schema.PendingMutation, error) {
	ms, err := store.DecodeAll[schema.PendingMutation](docs)
	if err != nil {
		return nil, err
	}
	SortFIFO(ms)
	return ms, nil
}

// SortFIFO orders mutations by creation time, then id.
func SortFIFO(ms []schema.PendingMutation) {
	sort.SliceStable(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.Before(ms[j].CreatedAt)
		}
		return ms[i].ID < ms[j].ID
	})
}
