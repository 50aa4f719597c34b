package queue

import (
	"context"
	"fmt"

	"github.com/edebt/syncengine/internal/ledger"
	"github.com/edebt/syncengine/internal/schema"
	"github.com/edebt/syncengine/internal/store"
)

// Discard drops a mutation that will never be delivered. For an order create
// the optimistic delta is reverted and the pending order row removed. For a
// customer create that the remote never confirmed, the pending customer row
// goes too, along with every queued order for that customer and its local
// row. All in one transaction.
func (q *Queue) Discard(ctx context.Context, id string) (schema.PendingMutation, error) {
	var m schema.PendingMutation
	err := q.store.Update(ctx, func(tx store.Tx) error {
		var err error
		m, err = getTx(tx, id)
		if err != nil {
			return err
		}

		switch m.Type() {
		case schema.TypeOrderCreate:
			p, err := m.OrderPayload()
			if err != nil {
				return err
			}
			_, err = ledger.ApplyDeltaTx(tx, p.CustomerBusinessID, p.Amount.Neg(), q.now())
			if err != nil && !store.IsNotFound(err) {
				return fmt.Errorf("failed to revert balance: %w", err)
			}
			if p.LocalID != "" {
				if err := tx.Delete(schema.Orders, p.LocalID); err != nil {
					return err
				}
			}
		case schema.TypeCustomerCreate:
			p, err := m.CustomerPayload()
			if err != nil {
				return err
			}
			c, err := store.GetCustomer(tx, p.BusinessID)
			switch {
			case err == nil && c.SyncStatus == schema.StatusPending:
				if err := tx.Delete(schema.Customers, p.BusinessID); err != nil {
					return err
				}
			case err == nil:
				// Known to the remote; its orders can still be delivered.
				return q.RemoveTx(tx, id)
			case !store.IsNotFound(err):
				return err
			}
			if err := q.discardOrdersOf(tx, p.BusinessID, id); err != nil {
				return err
			}
		}

		return q.RemoveTx(tx, id)
	})
	return m, err
}

// discardOrdersOf removes the queued order creates of a customer that will
// never exist remotely, with their pending local rows.
func (q *Queue) discardOrdersOf(tx store.Tx, businessID, except string) error {
	orders, err := store.MutationsOfType(tx, schema.TypeOrderCreate)
	if err != nil {
		return err
	}
	for _, om := range orders {
		if om.ID == except {
			continue
		}
		p, err := om.OrderPayload()
		if err != nil || p.CustomerBusinessID != businessID {
			continue
		}
		if p.LocalID != "" {
			if err := tx.Delete(schema.Orders, p.LocalID); err != nil {
				return err
			}
		}
		if err := q.RemoveTx(tx, om.ID); err != nil {
			return err
		}
	}
	return nil
}
