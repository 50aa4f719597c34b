// Package ledger keeps cached customer balances optimistic.
//
// A local order adds its amount to the cached balance immediately. After a
// download the cached balance is rebuilt as the remote balance plus the
// amounts of the order creates still in the queue, so an order is counted
// exactly once whether or not the remote has seen it yet.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/edebt/syncengine/internal/schema"
	"github.com/edebt/syncengine/internal/store"
	"github.com/shopspring/decimal"
)

// Ledger applies balance deltas to cached customers.
type Ledger struct {
	store *store.Store
	now   func() time.Time
}

// New creates a ledger over s. A nil now uses time.Now.
func New(s *store.Store, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: s, now: now}
}

// ApplyDelta adds amount to the cached balance of businessID. It does not
// change the customer's sync status. A missing customer is store.ErrNotFound.
func (l *Ledger) ApplyDelta(ctx context.Context, businessID string, amount decimal.Decimal) (schema.Customer, error) {
	var c schema.Customer
	err := l.store.Update(ctx, func(tx store.Tx) error {
		var err error
		c, err = ApplyDeltaTx(tx, businessID, amount, l.now())
		return err
	})
	return c, err
}

// ApplyDeltaTx is ApplyDelta inside a store transaction.
func ApplyDeltaTx(tx store.Tx, businessID string, amount decimal.Decimal, now time.Time) (schema.Customer, error) {
	c, err := store.GetCustomer(tx, businessID)
	if err != nil {
		return schema.Customer{}, fmt.Errorf("failed to load customer %s: %w", businessID, err)
	}
	c.Balance = c.Balance.Add(amount)
	c.LocalUpdatedAt = now
	c.LastTransactionAt = &now
	if err := store.PutCustomer(tx, c); err != nil {
		return schema.Customer{}, err
	}
	return c, nil
}

// Balance returns the cached balance of businessID.
func (l *Ledger) Balance(ctx context.Context, businessID string) (decimal.Decimal, error) {
	var c schema.Customer
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		c, err = store.GetCustomer(tx, businessID)
		return err
	})
	return c.Balance, err
}

// PendingDeltas sums order_amount over the order creates in ms, per customer
// business id. Other mutation types are ignored.
func PendingDeltas(ms []schema.PendingMutation) (map[string]decimal.Decimal, error) {
	deltas := make(map[string]decimal.Decimal)
	for i := range ms {
		if ms[i].Type() != schema.TypeOrderCreate {
			continue
		}
		p, err := ms[i].OrderPayload()
		if err != nil {
			return nil, err
		}
		deltas[p.CustomerBusinessID] = deltas[p.CustomerBusinessID].Add(p.Amount)
	}
	return deltas, nil
}

// PendingDeltasTx reads the queued order creates and sums them.
func PendingDeltasTx(tx store.Tx) (map[string]decimal.Decimal, error) {
	ms, err := store.MutationsOfType(tx, schema.TypeOrderCreate)
	if err != nil {
		return nil, fmt.Errorf("failed to read queued orders: %w", err)
	}
	return PendingDeltas(ms)
}

// Reconcile returns authoritative with its balance raised by pending.
func Reconcile(authoritative schema.Customer, pending decimal.Decimal) schema.Customer {
	authoritative.Balance = authoritative.Balance.Add(pending)
	return authoritative
}

// ReconcileAll reconciles every remote customer with its pending delta.
func ReconcileAll(remote []schema.Customer, deltas map[string]decimal.Decimal) []schema.Customer {
	out := make([]schema.Customer, len(remote))
	for i, c := range remote {
		out[i] = Reconcile(c, deltas[c.BusinessID])
	}
	return out
}
