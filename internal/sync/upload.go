package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/edebt/syncengine/internal/gateway"
	"github.com/edebt/syncengine/internal/ledger"
	"github.com/edebt/syncengine/internal/schema"
	"github.com/edebt/syncengine/internal/store"
)

// errUndeliverable marks mutations that no retry can deliver.
var errUndeliverable = errors.New("undeliverable mutation")

func permanent(err error) bool {
	return gateway.Permanent(err) || errors.Is(err, errUndeliverable)
}

// readyOrder is an order create cleared for upload.
type readyOrder struct {
	m schema.PendingMutation
	p schema.OrderPayload
}

// Upload implements Syncer.Upload.
func (s *syncer) Upload(ctx context.Context) UploadResult {
	var res UploadResult

	pending, err := s.queue.ListPending(ctx)
	if err != nil {
		res.Err = err
		s.logger.Printf("WARNING: failed to read queue: %v", err)
		return res
	}
	if len(pending) == 0 {
		return res
	}

	// Customers first, so their orders can follow in the same cycle.
	for _, m := range pending {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
		switch m.Type() {
		case schema.TypeCustomerCreate:
			s.uploadCustomer(ctx, m, &res)
		case schema.TypeOrderCreate:
		default:
			s.fail(ctx, m, m.ID, fmt.Errorf("%w: %s is not supported by the remote", errUndeliverable, m.Type()), &res)
		}
	}

	// Customer confirmations may have rewritten order payloads; read again.
	pending, err = s.queue.ListPending(ctx)
	if err != nil {
		res.Err = err
		s.logger.Printf("WARNING: failed to read queue: %v", err)
		return res
	}
	blocked, err := s.blockedCustomers(ctx)
	if err != nil {
		res.Err = err
		s.logger.Printf("WARNING: failed to read queued customers: %v", err)
		return res
	}

	var ready []readyOrder
	for _, m := range pending {
		if m.Type() != schema.TypeOrderCreate {
			continue
		}
		p, err := m.OrderPayload()
		if err != nil {
			s.fail(ctx, m, m.ID, fmt.Errorf("%w: %v", errUndeliverable, err), &res)
			continue
		}
		if blocked[p.CustomerBusinessID] {
			res.Deferred++
			continue
		}
		ready = append(ready, readyOrder{m: m, p: p})
	}
	if res.Deferred > 0 {
		s.logger.Printf("Deferred %d orders of customers not yet confirmed", res.Deferred)
	}

	if s.batch {
		s.uploadBatches(ctx, ready, &res)
		return res
	}
	for _, o := range ready {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
		s.uploadOrder(ctx, o, &res)
	}
	return res
}

// blockedCustomers returns the business ids whose create is still queued or
// quarantined.
func (s *syncer) blockedCustomers(ctx context.Context) (map[string]bool, error) {
	ms, err := s.queue.ListByType(ctx, schema.TypeCustomerCreate)
	if err != nil {
		return nil, err
	}
	blocked := make(map[string]bool, len(ms))
	for i := range ms {
		p, err := ms[i].CustomerPayload()
		if err != nil {
			continue
		}
		blocked[p.BusinessID] = true
	}
	return blocked, nil
}

func (s *syncer) uploadCustomer(ctx context.Context, m schema.PendingMutation, res *UploadResult) {
	p, err := m.CustomerPayload()
	if err != nil {
		s.fail(ctx, m, m.ID, fmt.Errorf("%w: %v", errUndeliverable, err), res)
		return
	}

	remote, err := s.gateway.CreateCustomer(ctx, p)
	if errors.Is(err, gateway.ErrConflict) {
		s.logger.Printf("Customer %s already exists remotely, adopting the remote record", p.BusinessID)
		remote, err = s.gateway.GetCustomer(ctx, p.BusinessID)
	}
	if err != nil {
		s.fail(ctx, m, p.BusinessID, err, res)
		return
	}

	if err := s.confirmCustomer(ctx, m, p.BusinessID, *remote); err != nil {
		s.fail(ctx, m, p.BusinessID, err, res)
		return
	}
	res.UploadedCustomers++
	s.logger.Printf("Uploaded customer %s (id=%s)", p.BusinessID, remote.ID)
}

// confirmCustomer replaces the provisional record with the remote one and
// removes the mutation in one transaction. When the remote keeps the customer
// under another business id, the local key and everything referencing it
// move there.
func (s *syncer) confirmCustomer(ctx context.Context, m schema.PendingMutation, localKey string, remote schema.Customer) error {
	if remote.BusinessID == "" {
		remote.BusinessID = localKey
	}
	return s.store.Update(context.WithoutCancel(ctx), func(tx store.Tx) error {
		if remote.BusinessID != localKey {
			if err := s.remapCustomer(tx, localKey, remote.BusinessID); err != nil {
				return fmt.Errorf("failed to remap customer %s: %w", localKey, err)
			}
		}

		deltas, err := ledger.PendingDeltasTx(tx)
		if err != nil {
			return err
		}
		c := ledger.Reconcile(remote, deltas[remote.BusinessID])
		c.SyncStatus = schema.StatusSynced
		c.LocalUpdatedAt = s.now()
		if err := store.PutCustomer(tx, c); err != nil {
			return err
		}
		return s.queue.RemoveTx(tx, m.ID)
	})
}

func (s *syncer) remapCustomer(tx store.Tx, from, to string) error {
	ms, err := store.MutationsOfType(tx, schema.TypeOrderCreate)
	if err != nil {
		return err
	}
	moved := 0
	for _, m := range ms {
		p, err := m.OrderPayload()
		if err != nil || p.CustomerBusinessID != from {
			continue
		}
		p.CustomerBusinessID = to
		if err := s.queue.SetPayloadTx(tx, m.ID, p); err != nil {
			return err
		}
		moved++
	}

	orders, err := store.OrdersFor(tx, from)
	if err != nil {
		return err
	}
	for _, o := range orders {
		o.CustomerBusinessID = to
		if err := store.PutOrder(tx, o); err != nil {
			return err
		}
	}

	if err := tx.Delete(schema.Customers, from); err != nil {
		return err
	}
	s.logger.Printf("Remapped customer %s to %s (%d queued orders, %d cached orders)", from, to, moved, len(orders))
	return nil
}

func (s *syncer) uploadOrder(ctx context.Context, o readyOrder, res *UploadResult) {
	created, err := s.gateway.CreateOrder(ctx, o.p)
	if errors.Is(err, gateway.ErrConflict) {
		// Already recorded under this client_ref.
		err = nil
	}
	if err != nil {
		s.fail(ctx, o.m, o.p.Name, err, res)
		return
	}
	if err := s.confirmOrders(ctx, []readyOrder{o}); err != nil {
		s.fail(ctx, o.m, o.p.Name, err, res)
		return
	}
	res.UploadedOrders++

	id := "?"
	if created != nil {
		id = created.ID
	}
	s.logger.Printf("Uploaded order %q for %s: %s (id=%s)", o.p.Name, o.p.CustomerBusinessID, o.p.Amount, id)
}

// uploadBatches sends the orders of each customer in one call. A group whose
// batch fails is retried order by order.
func (s *syncer) uploadBatches(ctx context.Context, ready []readyOrder, res *UploadResult) {
	groups := make(map[string][]readyOrder)
	var keys []string
	for _, o := range ready {
		id := o.p.CustomerBusinessID
		if _, ok := groups[id]; !ok {
			keys = append(keys, id)
		}
		groups[id] = append(groups[id], o)
	}

	for _, id := range keys {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return
		}
		group := groups[id]
		if len(group) == 1 {
			s.uploadOrder(ctx, group[0], res)
			continue
		}

		payloads := make([]schema.OrderPayload, len(group))
		for i, o := range group {
			payloads[i] = o.p
		}
		if _, err := s.gateway.CreateOrdersBatch(ctx, payloads); err != nil {
			s.logger.Printf("WARNING: batch upload of %d orders for %s failed, retrying one by one: %v", len(group), id, err)
			for _, o := range group {
				s.uploadOrder(ctx, o, res)
			}
			continue
		}
		if err := s.confirmOrders(ctx, group); err != nil {
			for _, o := range group {
				s.fail(ctx, o.m, o.p.Name, err, res)
			}
			continue
		}
		res.UploadedOrders += len(group)
		s.logger.Printf("Uploaded %d orders for %s in one batch", len(group), id)
	}
}

// confirmOrders drops the local pending rows and their mutations together.
func (s *syncer) confirmOrders(ctx context.Context, orders []readyOrder) error {
	return s.store.Update(context.WithoutCancel(ctx), func(tx store.Tx) error {
		for _, o := range orders {
			if o.p.LocalID != "" {
				if err := tx.Delete(schema.Orders, o.p.LocalID); err != nil {
					return err
				}
			}
			if err := s.queue.RemoveTx(tx, o.m.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// fail records a failed attempt and leaves the mutation queued, or
// quarantines it when no retry can help or attempts are exhausted.
func (s *syncer) fail(ctx context.Context, m schema.PendingMutation, key string, cause error, res *UploadResult) {
	ctx = context.WithoutCancel(ctx)
	f := Failure{
		MutationID: m.ID,
		Type:       m.Type(),
		Key:        key,
		Error:      cause.Error(),
		Permanent:  permanent(cause),
	}
	res.Failed++
	res.Failures = append(res.Failures, f)
	s.logger.Printf("WARNING: failed to upload %s %s: %v", m.Type(), key, cause)

	updated, err := s.queue.MarkAttempt(ctx, m.ID, cause)
	if err != nil {
		s.logger.Printf("WARNING: failed to record attempt for %s: %v", m.ID, err)
		return
	}
	if !f.Permanent && (s.max <= 0 || updated.AttemptCount < s.max) {
		return
	}
	if _, err := s.queue.Quarantine(ctx, m.ID, cause.Error()); err != nil {
		s.logger.Printf("WARNING: failed to quarantine %s: %v", m.ID, err)
		return
	}
	res.Quarantined++
	s.logger.Printf("Quarantined %s %s after %d attempts", m.Type(), key, updated.AttemptCount)
}
