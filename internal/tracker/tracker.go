// Package tracker is the client API used by the CLI and other front ends.
//
// Writes go through the local store first. A customer is always created
// locally with a provisional id and queued. An order goes straight to the
// remote when it is reachable and nothing for that customer is waiting in the
// queue; otherwise it is stored as pending, its amount is applied to the
// cached balance and its create is queued, all in one transaction.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/edebt/syncengine/internal/gateway"
	"github.com/edebt/syncengine/internal/ledger"
	"github.com/edebt/syncengine/internal/queue"
	"github.com/edebt/syncengine/internal/schema"
	"github.com/edebt/syncengine/internal/store"
)

var (
	// ErrUnknownCustomer means the order names a customer that is not cached.
	ErrUnknownCustomer = errors.New("unknown customer")

	// ErrDuplicateCustomer means a customer with that business id is cached.
	ErrDuplicateCustomer = errors.New("customer already exists")
)

// Notifier is told about local writes. The daemon Orchestrator implements it.
type Notifier interface {
	Online() bool
	NotifyLocalWrite()
}

// offline is the Notifier used when none is configured.
type offline struct{}

func (offline) Online() bool      { return false }
func (offline) NotifyLocalWrite() {}

// Options configures a Service.
type Options struct {
	// Notifier reports connectivity and receives local writes. Without one
	// every write is queued.
	Notifier Notifier

	// Now defaults to time.Now.
	Now func() time.Time

	// Logger defaults to discarding output.
	Logger *log.Logger
}

// Service serves reads from the local store and writes through it.
type Service struct {
	store    *store.Store
	queue    *queue.Queue
	gateway  gateway.Gateway
	notifier Notifier
	now      func() time.Time
	logger   *log.Logger
}

// New creates a Service. The queue must be backed by st.
func New(st *store.Store, q *queue.Queue, gw gateway.Gateway, opts *Options) *Service {
	if opts == nil {
		opts = &Options{}
	}
	s := &Service{
		store:    st,
		queue:    q,
		gateway:  gw,
		notifier: opts.Notifier,
		now:      opts.Now,
		logger:   opts.Logger,
	}
	if s.notifier == nil {
		s.notifier = offline{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard, "", 0)
	}
	return s
}

// CreateCustomer stores a pending customer and queues its create.
func (s *Service) CreateCustomer(ctx context.Context, p schema.CustomerPayload) (schema.Customer, error) {
	p.BusinessID = strings.TrimSpace(p.BusinessID)
	p.Name = strings.TrimSpace(p.Name)

	now := s.now()
	m, err := schema.NewCustomerCreate(p, now)
	if err != nil {
		return schema.Customer{}, err
	}

	c := schema.Customer{
		BusinessID:     p.BusinessID,
		ID:             schema.NewProvisionalID(),
		Name:           p.Name,
		Email:          p.Email,
		Phone:          p.Phone,
		CreatedAt:      now,
		SyncStatus:     schema.StatusPending,
		LocalUpdatedAt: now,
	}
	err = s.store.Update(ctx, func(tx store.Tx) error {
		if _, err := store.GetCustomer(tx, c.BusinessID); err == nil {
			return fmt.Errorf("%w: %s", ErrDuplicateCustomer, c.BusinessID)
		} else if !store.IsNotFound(err) {
			return err
		}
		if err := store.PutCustomer(tx, c); err != nil {
			return err
		}
		_, err := s.queue.EnqueueTx(tx, m)
		return err
	})
	if err != nil {
		return schema.Customer{}, fmt.Errorf("failed to save customer: %w", err)
	}

	s.logger.Printf("Queued customer %s", c.BusinessID)
	s.notifier.NotifyLocalWrite()
	return c, nil
}

// CreateOrder records an order. It reports whether the order was queued
// rather than confirmed by the remote.
func (s *Service) CreateOrder(ctx context.Context, p schema.OrderPayload) (schema.Order, bool, error) {
	p.CustomerBusinessID = strings.TrimSpace(p.CustomerBusinessID)
	if p.Status == "" {
		p.Status = schema.OrderPending
	}
	if p.ClientRef == "" {
		p.ClientRef = schema.NewLocalID()
	}
	if err := p.Validate(); err != nil {
		return schema.Order{}, false, fmt.Errorf("invalid order: %w", err)
	}

	c, err := s.Customer(ctx, p.CustomerBusinessID)
	if store.IsNotFound(err) {
		return schema.Order{}, false, fmt.Errorf("%w: %s", ErrUnknownCustomer, p.CustomerBusinessID)
	}
	if err != nil {
		return schema.Order{}, false, err
	}

	if s.notifier.Online() && c.SyncStatus != schema.StatusPending {
		waiting, err := s.hasQueuedOrders(ctx, c.BusinessID)
		if err != nil {
			return schema.Order{}, false, err
		}
		if !waiting {
			o, err := s.createRemote(ctx, p)
			if err == nil {
				return o, false, nil
			}
			if !errors.Is(err, gateway.ErrNetwork) {
				return schema.Order{}, false, fmt.Errorf("failed to create order: %w", err)
			}
			s.logger.Printf("WARNING: remote unreachable, queuing order for %s: %v", c.BusinessID, err)
		}
	}

	o, err := s.queueOrder(ctx, p)
	if err != nil {
		return schema.Order{}, false, err
	}
	s.notifier.NotifyLocalWrite()
	return o, true, nil
}

// createRemote sends p and caches the confirmed order with its delta.
func (s *Service) createRemote(ctx context.Context, p schema.OrderPayload) (schema.Order, error) {
	created, err := s.gateway.CreateOrder(ctx, p)
	if err != nil {
		return schema.Order{}, err
	}
	o := *created
	o.LocalID = ""
	o.SyncStatus = schema.StatusSynced
	if o.CustomerBusinessID == "" {
		o.CustomerBusinessID = p.CustomerBusinessID
	}

	err = s.store.Update(context.WithoutCancel(ctx), func(tx store.Tx) error {
		if err := store.PutOrder(tx, o); err != nil {
			return err
		}
		_, err := ledger.ApplyDeltaTx(tx, p.CustomerBusinessID, p.Amount, s.now())
		return err
	})
	if err != nil {
		// The remote has the order; the next download brings the cache back in line.
		s.logger.Printf("WARNING: failed to cache order %s: %v", o.ID, err)
	}
	s.logger.Printf("Created order %s for %s", o.ID, p.CustomerBusinessID)
	return o, nil
}

// queueOrder stores the pending row, applies the delta and queues the create.
func (s *Service) queueOrder(ctx context.Context, p schema.OrderPayload) (schema.Order, error) {
	now := s.now()
	p.LocalID = schema.NewLocalID()
	m, err := schema.NewOrderCreate(p, now)
	if err != nil {
		return schema.Order{}, err
	}

	o := schema.Order{
		LocalID:            p.LocalID,
		CustomerBusinessID: p.CustomerBusinessID,
		Name:               p.Name,
		Description:        p.Description,
		Amount:             p.Amount,
		Status:             p.Status,
		IsScanned:          p.IsScanned,
		ClientRef:          p.ClientRef,
		SyncStatus:         schema.StatusPending,
		LocalCreatedAt:     now,
	}
	err = s.store.Update(ctx, func(tx store.Tx) error {
		if err := store.PutOrder(tx, o); err != nil {
			return err
		}
		if _, err := ledger.ApplyDeltaTx(tx, o.CustomerBusinessID, o.Amount, now); err != nil {
			return err
		}
		_, err := s.queue.EnqueueTx(tx, m)
		return err
	})
	if err != nil {
		return schema.Order{}, fmt.Errorf("failed to save order: %w", err)
	}
	s.logger.Printf("Queued order %s for %s", o.LocalID, o.CustomerBusinessID)
	return o, nil
}

// hasQueuedOrders reports whether any order create for businessID is waiting,
// quarantined ones included.
func (s *Service) hasQueuedOrders(ctx context.Context, businessID string) (bool, error) {
	ms, err := s.queue.ListByType(ctx, schema.TypeOrderCreate)
	if err != nil {
		return false, err
	}
	for _, m := range ms {
		p, err := m.OrderPayload()
		if err == nil && p.CustomerBusinessID == businessID {
			return true, nil
		}
	}
	return false, nil
}

// ===== Reads =====

// Customers returns every cached customer ordered by name.
func (s *Service) Customers(ctx context.Context) ([]schema.Customer, error) {
	docs, err := s.store.GetAll(ctx, schema.Customers)
	if err != nil {
		return nil, err
	}
	cs, err := store.DecodeAll[schema.Customer](docs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(cs, func(i, j int) bool {
		return strings.ToLower(cs[i].Name) < strings.ToLower(cs[j].Name)
	})
	return cs, nil
}

// Customer returns one cached customer. A missing one is store.ErrNotFound.
func (s *Service) Customer(ctx context.Context, businessID string) (schema.Customer, error) {
	doc, err := s.store.Get(ctx, schema.Customers, businessID)
	if err != nil {
		return schema.Customer{}, err
	}
	return store.Decode[schema.Customer](doc)
}

// CustomerOrders returns the cached orders of one customer, newest first.
func (s *Service) CustomerOrders(ctx context.Context, businessID string) ([]schema.Order, error) {
	docs, err := s.store.GetByIndex(ctx, schema.Orders, store.IndexCustomerID, businessID)
	if err != nil {
		return nil, err
	}
	orders, err := store.DecodeAll[schema.Order](docs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orderTime(orders[i]).After(orderTime(orders[j]))
	})
	return orders, nil
}

func orderTime(o schema.Order) time.Time {
	if !o.LocalCreatedAt.IsZero() {
		return o.LocalCreatedAt
	}
	return o.CreatedAt
}

// Menu returns cached menu items, optionally of one category and only those
// available.
func (s *Service) Menu(ctx context.Context, category string, onlyAvailable bool) ([]schema.MenuItem, error) {
	var docs []store.Doc
	var err error
	if category != "" {
		docs, err = s.store.GetByIndex(ctx, schema.Menu, store.IndexCategory, category)
	} else {
		docs, err = s.store.GetAll(ctx, schema.Menu)
	}
	if err != nil {
		return nil, err
	}
	items, err := store.DecodeAll[schema.MenuItem](docs)
	if err != nil {
		return nil, err
	}

	out := items[:0]
	for _, it := range items {
		if onlyAvailable && !it.Available {
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// SyncStatus summarizes local sync state.
type SyncStatus struct {
	Pending     int        `json:"pending" yaml:"pending"`
	Quarantined int        `json:"quarantined" yaml:"quarantined"`
	LastSync    *time.Time `json:"lastSync,omitempty" yaml:"last_sync,omitempty"`
	Online      bool       `json:"online" yaml:"online"`
	Backend     string     `json:"backend" yaml:"backend"`
	Degraded    bool       `json:"degraded" yaml:"degraded"`
}

// SyncStatus reports queue depth, the last successful download and
// connectivity.
func (s *Service) SyncStatus(ctx context.Context) (SyncStatus, error) {
	pending, err := s.queue.ListPending(ctx)
	if err != nil {
		return SyncStatus{}, err
	}
	quarantined, err := s.queue.ListQuarantined(ctx)
	if err != nil {
		return SyncStatus{}, err
	}
	last, err := s.store.LastSync(ctx)
	if err != nil {
		return SyncStatus{}, err
	}
	return SyncStatus{
		Pending:     len(pending),
		Quarantined: len(quarantined),
		LastSync:    last,
		Online:      s.notifier.Online(),
		Backend:     s.store.Backend(),
		Degraded:    s.store.Degraded(),
	}, nil
}

// ===== Operator actions =====

// Discard drops a queued or quarantined mutation and reverts its local effects.
func (s *Service) Discard(ctx context.Context, id string) (schema.PendingMutation, error) {
	m, err := s.queue.Discard(ctx, id)
	if err != nil {
		return m, fmt.Errorf("failed to discard %s: %w", id, err)
	}
	s.logger.Printf("Discarded %s %s", m.Type(), m.ID)
	return m, nil
}

// Requeue puts a quarantined mutation back in line.
func (s *Service) Requeue(ctx context.Context, id string) (schema.PendingMutation, error) {
	m, err := s.queue.Requeue(ctx, id)
	if err != nil {
		return m, fmt.Errorf("failed to requeue %s: %w", id, err)
	}
	s.logger.Printf("Requeued %s %s", m.Type(), m.ID)
	s.notifier.NotifyLocalWrite()
	return m, nil
}
