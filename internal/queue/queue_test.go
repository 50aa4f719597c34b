package queue

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/edebt/syncengine/internal/schema"
	"github.com/edebt/syncengine/internal/store"
	"github.com/shopspring/decimal"
)

// clock is a manual test clock.
type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func setup(t *testing.T) (*Queue, *store.Store) {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{Dir: t.TempDir(), Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(s, c.now), s
}

func order(t *testing.T, customer, name string, amount int64) schema.PendingMutation {
	t.Helper()
	m, err := schema.NewOrderCreate(schema.OrderPayload{
		CustomerBusinessID: customer,
		Name:               name,
		Amount:             decimal.NewFromInt(amount),
	}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestEnqueue_AssignsFields(t *testing.T) {
	q, _ := setup(t)
	m, err := q.Enqueue(context.Background(), order(t, "CUST-1", "Rice", 75))
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	if m.ID == "" || m.CreatedAt.IsZero() {
		t.Errorf("Enqueue() did not assign id/createdAt: %+v", m)
	}
	if m.AttemptCount != 0 || m.State != schema.StateQueued {
		t.Errorf("AttemptCount=%d State=%s, want 0/queued", m.AttemptCount, m.State)
	}
}

func TestListPending_FIFO(t *testing.T) {
	q, _ := setup(t)
	ctx := context.Background()
	names := []string{"first", "second", "third", "fourth"}
	for _, n := range names {
		if _, err := q.Enqueue(ctx, order(t, "CUST-1", n, 1)); err != nil {
			t.Fatal(err)
		}
	}
	ms, err := q.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() failed: %v", err)
	}
	if len(ms) != len(names) {
		t.Fatalf("ListPending() returned %d, want %d", len(ms), len(names))
	}
	for i, m := range ms {
		p, _ := m.OrderPayload()
		if p.Name != names[i] {
			t.Errorf("position %d = %q, want %q", i, p.Name, names[i])
		}
	}
}

func TestMarkAttemptAndRemove(t *testing.T) {
	q, _ := setup(t)
	ctx := context.Background()
	m, _ := q.Enqueue(ctx, order(t, "CUST-1", "Rice", 75))

	got, err := q.MarkAttempt(ctx, m.ID, errors.New("connection refused"))
	if err != nil {
		t.Fatalf("MarkAttempt() failed: %v", err)
	}
	if got.AttemptCount != 1 || got.LastAttemptAt == nil || got.LastError != "connection refused" {
		t.Errorf("MarkAttempt() = %+v", got)
	}
	// Still drained
	if ms, _ := q.ListPending(ctx); len(ms) != 1 {
		t.Errorf("ListPending() = %d, want 1 after a failed attempt", len(ms))
	}

	if err := q.Remove(ctx, m.ID); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if err := q.Remove(ctx, m.ID); err != nil {
		t.Errorf("second Remove() = %v, want nil", err)
	}
	if _, err := q.Get(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Remove error = %v, want ErrNotFound", err)
	}
}

func TestQuarantineAndRequeue(t *testing.T) {
	q, _ := setup(t)
	ctx := context.Background()
	m, _ := q.Enqueue(ctx, order(t, "CUST-1", "Rice", 75))
	_, _ = q.MarkAttempt(ctx, m.ID, errors.New("bad request"))

	if _, err := q.Quarantine(ctx, m.ID, "rejected"); err != nil {
		t.Fatalf("Quarantine() failed: %v", err)
	}
	pending, _ := q.ListPending(ctx)
	quarantined, _ := q.ListQuarantined(ctx)
	count, _ := q.Count(ctx)
	if len(pending) != 0 || len(quarantined) != 1 || count != 1 {
		t.Errorf("pending=%d quarantined=%d count=%d, want 0/1/1", len(pending), len(quarantined), count)
	}

	got, err := q.Requeue(ctx, m.ID)
	if err != nil {
		t.Fatalf("Requeue() failed: %v", err)
	}
	if got.State != schema.StateQueued || got.AttemptCount != 0 {
		t.Errorf("Requeue() = %s/%d, want queued/0", got.State, got.AttemptCount)
	}
}

func TestListByType(t *testing.T) {
	q, _ := setup(t)
	ctx := context.Background()
	c, _ := schema.NewCustomerCreate(schema.CustomerPayload{BusinessID: "CUST-1"}, time.Time{})
	_, _ = q.Enqueue(ctx, c)
	_, _ = q.Enqueue(ctx, order(t, "CUST-1", "Rice", 75))

	ms, err := q.ListByType(ctx, schema.TypeCustomerCreate)
	if err != nil {
		t.Fatalf("ListByType() failed: %v", err)
	}
	if len(ms) != 1 || ms[0].Type() != schema.TypeCustomerCreate {
		t.Errorf("ListByType() = %+v", ms)
	}
}

func TestDiscard_RevertsOrderDelta(t *testing.T) {
	q, s := setup(t)
	ctx := context.Background()

	var m schema.PendingMutation
	err := s.Update(ctx, func(tx store.Tx) error {
		if err := store.PutCustomer(tx, schema.Customer{BusinessID: "CUST-1", Balance: decimal.NewFromInt(175), SyncStatus: schema.StatusSynced}); err != nil {
			return err
		}
		o := schema.Order{LocalID: "local-1", CustomerBusinessID: "CUST-1", Name: "Rice", Amount: decimal.NewFromInt(75), SyncStatus: schema.StatusPending}
		if err := store.PutOrder(tx, o); err != nil {
			return err
		}
		p := schema.OrderPayload{CustomerBusinessID: "CUST-1", Name: "Rice", Amount: decimal.NewFromInt(75), LocalID: "local-1"}
		mut, err := schema.NewOrderCreate(p, time.Time{})
		if err != nil {
			return err
		}
		m, err = q.EnqueueTx(tx, mut)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := q.Discard(ctx, m.ID); err != nil {
		t.Fatalf("Discard() failed: %v", err)
	}

	doc, _ := s.Get(ctx, "customers", "CUST-1")
	c, _ := store.Decode[schema.Customer](doc)
	if !c.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance after discard = %s, want 100", c.Balance)
	}
	if _, err := s.Get(ctx, "orders", "local-1"); !store.IsNotFound(err) {
		t.Errorf("pending order row should be deleted, got %v", err)
	}
	if n, _ := q.Count(ctx); n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
}

func TestDiscard_CustomerCascadesToItsOrders(t *testing.T) {
	q, s := setup(t)
	ctx := context.Background()

	var cm schema.PendingMutation
	err := s.Update(ctx, func(tx store.Tx) error {
		pending := schema.Customer{BusinessID: "CUST-7", ID: schema.NewProvisionalID(), Name: "Seven", SyncStatus: schema.StatusPending}
		if err := store.PutCustomer(tx, pending); err != nil {
			return err
		}
		mut, err := schema.NewCustomerCreate(schema.CustomerPayload{BusinessID: "CUST-7", Name: "Seven"}, time.Time{})
		if err != nil {
			return err
		}
		if cm, err = q.EnqueueTx(tx, mut); err != nil {
			return err
		}
		for _, o := range []struct{ customer, local string }{{"CUST-7", "local-1"}, {"CUST-7", "local-2"}, {"CUST-8", "local-3"}} {
			row := schema.Order{LocalID: o.local, CustomerBusinessID: o.customer, Name: "Rice", Amount: decimal.NewFromInt(10), SyncStatus: schema.StatusPending}
			if err := store.PutOrder(tx, row); err != nil {
				return err
			}
			p := schema.OrderPayload{CustomerBusinessID: o.customer, Name: "Rice", Amount: decimal.NewFromInt(10), LocalID: o.local}
			om, err := schema.NewOrderCreate(p, time.Time{})
			if err != nil {
				return err
			}
			if _, err := q.EnqueueTx(tx, om); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := q.Discard(ctx, cm.ID); err != nil {
		t.Fatalf("Discard() failed: %v", err)
	}

	left, err := q.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() failed: %v", err)
	}
	if len(left) != 1 {
		t.Fatalf("queue after discard = %d entries, want 1", len(left))
	}
	if p, _ := left[0].OrderPayload(); p.CustomerBusinessID != "CUST-8" {
		t.Errorf("remaining order belongs to %s, want CUST-8", p.CustomerBusinessID)
	}
	for _, key := range []string{"local-1", "local-2"} {
		if _, err := s.Get(ctx, schema.Orders, key); !store.IsNotFound(err) {
			t.Errorf("order row %s should be deleted, got %v", key, err)
		}
	}
	if _, err := s.Get(ctx, schema.Orders, "local-3"); err != nil {
		t.Errorf("order row local-3 should remain: %v", err)
	}
	if _, err := s.Get(ctx, schema.Customers, "CUST-7"); !store.IsNotFound(err) {
		t.Errorf("pending customer should be deleted, got %v", err)
	}
}

func TestDiscard_ConfirmedCustomerKeepsOrders(t *testing.T) {
	q, s := setup(t)
	ctx := context.Background()

	var cm schema.PendingMutation
	err := s.Update(ctx, func(tx store.Tx) error {
		if err := store.PutCustomer(tx, schema.Customer{BusinessID: "CUST-1", ID: "srv-1", Name: "One", SyncStatus: schema.StatusSynced}); err != nil {
			return err
		}
		mut, err := schema.NewCustomerCreate(schema.CustomerPayload{BusinessID: "CUST-1", Name: "One"}, time.Time{})
		if err != nil {
			return err
		}
		if cm, err = q.EnqueueTx(tx, mut); err != nil {
			return err
		}
		_, err = q.EnqueueTx(tx, order(t, "CUST-1", "Rice", 10))
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := q.Discard(ctx, cm.ID); err != nil {
		t.Fatalf("Discard() failed: %v", err)
	}
	if n, _ := q.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want the order to stay queued", n)
	}
	if _, err := s.Get(ctx, schema.Customers, "CUST-1"); err != nil {
		t.Errorf("confirmed customer should remain: %v", err)
	}
}
