// Package gatewaytest provides an in-memory authoritative remote for tests.
//
// Remote implements gateway.Gateway with failure injection, conflict
// simulation, client_ref idempotency and call counters. NewServer exposes a
// Remote over the HTTP wire contract for use with httptest.
package gatewaytest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/edebt/syncengine/internal/gateway"
	"github.com/edebt/syncengine/internal/schema"
	"github.com/shopspring/decimal"
)

// Op names a remote operation.
type Op string

const (
	OpCreateCustomer Op = "CreateCustomer"
	OpGetCustomer    Op = "GetCustomer"
	OpCreateOrder    Op = "CreateOrder"
	OpCreateBatch    Op = "CreateOrdersBatch"
	OpGetCustomers   Op = "GetCustomers"
	OpGetOrders      Op = "GetOrders"
	OpGetMenu        Op = "GetMenu"
	OpHealthCheck    Op = "HealthCheck"
)

// Call describes one remote call, for failure injection.
type Call struct {
	Op         Op
	CustomerID string // business id, when the call names one
	OrderName  string
	ClientRef  string
}

// Remote is an in-memory remote service. It is safe for concurrent use.
type Remote struct {
	// ConflictOnExisting makes CreateCustomer answer ErrConflict for an
	// existing business id instead of returning the existing record.
	ConflictOnExisting bool

	// Now stamps created records. Defaults to time.Now.
	Now func() time.Time

	// Version is reported by HealthCheck. Defaults to gateway.APIVersion.
	Version string

	mu        sync.Mutex
	customers map[string]*schema.Customer
	orders    []schema.Order
	byRef     map[string]int
	menu      []schema.MenuItem
	nextID    int
	calls     map[Op]int
	fail      func(Call) error
	hook      func(Call)
}

var _ gateway.Gateway = (*Remote)(nil)

// NewRemote returns an empty remote.
func NewRemote() *Remote {
	return &Remote{
		customers: make(map[string]*schema.Customer),
		byRef:     make(map[string]int),
		calls:     make(map[Op]int),
		Now:       time.Now,
		Version:   gateway.APIVersion,
	}
}

// FailWith installs fn to decide, per call, whether it fails. A nil fn
// clears failure injection. The call is still counted.
func (r *Remote) FailWith(fn func(Call) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fn
}

// OnCall installs fn to run, outside the lock, before every call.
func (r *Remote) OnCall(fn func(Call)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = fn
}

// Offline makes every call fail with gateway.ErrNetwork.
func (r *Remote) Offline() {
	r.FailWith(func(c Call) error {
		return fmt.Errorf("%w: %s: connection refused", gateway.ErrNetwork, c.Op)
	})
}

// Online clears failure injection.
func (r *Remote) Online() {
	r.FailWith(nil)
}

// Calls returns how many times op was called.
func (r *Remote) Calls(op Op) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

// TotalCalls returns the number of calls of any kind.
func (r *Remote) TotalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, v := range r.calls {
		n += v
	}
	return n
}

// SeedCustomer stores c as is, assigning a server id when missing.
func (r *Remote) SeedCustomer(c schema.Customer) schema.Customer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" || schema.IsProvisionalID(c.ID) {
		c.ID = r.newID("c")
	}
	c.SyncStatus = ""
	stored := c
	r.customers[c.BusinessID] = &stored
	return stored
}

// SeedMenu replaces the menu.
func (r *Remote) SeedMenu(items ...schema.MenuItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.menu = append([]schema.MenuItem(nil), items...)
}

// Customer returns the remote copy of a customer.
func (r *Remote) Customer(businessID string) (schema.Customer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[businessID]
	if !ok {
		return schema.Customer{}, false
	}
	return *c, true
}

// Orders returns every remote order in creation order.
func (r *Remote) Orders() []schema.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.Order(nil), r.orders...)
}

// begin counts the call and applies failure injection. It returns with mu held
// when err is nil.
func (r *Remote) begin(ctx context.Context, c Call) error {
	r.mu.Lock()
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(c)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrNetwork, err)
	}

	r.mu.Lock()
	r.calls[c.Op]++
	if r.fail != nil {
		if err := r.fail(c); err != nil {
			r.mu.Unlock()
			return err
		}
	}
	return nil
}

func (r *Remote) newID(prefix string) string {
	r.nextID++
	return fmt.Sprintf("%s%06d", prefix, r.nextID)
}

func (r *Remote) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func badRequest(msg string) error {
	return &gateway.StatusError{Code: http.StatusBadRequest, Message: msg}
}

// CreateCustomer implements gateway.Gateway.
func (r *Remote) CreateCustomer(ctx context.Context, p schema.CustomerPayload) (*schema.Customer, error) {
	if err := r.begin(ctx, Call{Op: OpCreateCustomer, CustomerID: p.BusinessID}); err != nil {
		return nil, err
	}
	defer r.mu.Unlock()

	if p.BusinessID == "" {
		return nil, badRequest("Unique ID is required")
	}
	if existing, ok := r.customers[p.BusinessID]; ok {
		if r.ConflictOnExisting {
			return nil, &gateway.StatusError{Code: http.StatusConflict, Message: "Customer with this unique ID already exists"}
		}
		out := *existing
		return &out, nil
	}
	if p.Name != "" {
		for _, existing := range r.customers {
			if strings.EqualFold(existing.Name, p.Name) {
				out := *existing
				return &out, nil
			}
		}
	}

	now := r.now()
	c := &schema.Customer{
		BusinessID: p.BusinessID,
		ID:         r.newID("c"),
		Name:       p.Name,
		Email:      p.Email,
		Phone:      p.Phone,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.customers[p.BusinessID] = c
	out := *c
	return &out, nil
}

// GetCustomer implements gateway.Gateway.
func (r *Remote) GetCustomer(ctx context.Context, businessID string) (*schema.Customer, error) {
	if err := r.begin(ctx, Call{Op: OpGetCustomer, CustomerID: businessID}); err != nil {
		return nil, err
	}
	defer r.mu.Unlock()

	c, ok := r.customers[businessID]
	if !ok {
		return nil, &gateway.StatusError{Code: http.StatusNotFound, Message: "Customer not found"}
	}
	out := *c
	return &out, nil
}

// createOrderLocked validates and records one order. Callers hold mu.
func (r *Remote) createOrderLocked(p schema.OrderPayload) (schema.Order, error) {
	if p.CustomerBusinessID == "" || p.Name == "" {
		return schema.Order{}, badRequest("Customer unique ID and order name are required")
	}
	if p.Amount.IsNegative() {
		return schema.Order{}, badRequest("Order amount must not be negative")
	}
	if p.ClientRef != "" {
		if i, ok := r.byRef[p.ClientRef]; ok {
			return r.orders[i], nil
		}
	}
	c, ok := r.customers[p.CustomerBusinessID]
	if !ok {
		return schema.Order{}, &gateway.StatusError{Code: http.StatusNotFound, Message: "Customer not found"}
	}

	now := r.now()
	status := p.Status
	if status == "" {
		status = schema.OrderPending
	}
	o := schema.Order{
		ID:                 r.newID("o"),
		CustomerBusinessID: p.CustomerBusinessID,
		CustomerID:         schema.Ref(c.ID),
		Name:               p.Name,
		Description:        p.Description,
		Amount:             p.Amount,
		Status:             status,
		IsScanned:          p.IsScanned,
		ClientRef:          p.ClientRef,
		CreatedAt:          now,
	}
	r.orders = append(r.orders, o)
	if p.ClientRef != "" {
		r.byRef[p.ClientRef] = len(r.orders) - 1
	}
	c.Balance = c.Balance.Add(p.Amount)
	c.LastTransactionAt = &now
	c.UpdatedAt = now
	return o, nil
}

// CreateOrder implements gateway.Gateway.
func (r *Remote) CreateOrder(ctx context.Context, p schema.OrderPayload) (*schema.Order, error) {
	call := Call{Op: OpCreateOrder, CustomerID: p.CustomerBusinessID, OrderName: p.Name, ClientRef: p.ClientRef}
	if err := r.begin(ctx, call); err != nil {
		return nil, err
	}
	defer r.mu.Unlock()

	o, err := r.createOrderLocked(p)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateOrdersBatch implements gateway.Gateway. All orders must name the same
// customer; either every order is created or none is.
func (r *Remote) CreateOrdersBatch(ctx context.Context, ps []schema.OrderPayload) (*gateway.BatchResult, error) {
	call := Call{Op: OpCreateBatch}
	if len(ps) > 0 {
		call.CustomerID = ps[0].CustomerBusinessID
	}
	if err := r.begin(ctx, call); err != nil {
		return nil, err
	}
	defer r.mu.Unlock()

	if len(ps) == 0 {
		return nil, badRequest("Orders array is required and must not be empty")
	}
	if _, ok := r.customers[ps[0].CustomerBusinessID]; !ok {
		return nil, &gateway.StatusError{Code: http.StatusNotFound, Message: "Customer not found"}
	}
	for _, p := range ps {
		if p.CustomerBusinessID != ps[0].CustomerBusinessID {
			return nil, badRequest("All orders must belong to the same customer")
		}
		if p.Name == "" || p.Amount.IsNegative() {
			return nil, badRequest("Each order needs a name and a non-negative amount")
		}
	}

	res := &gateway.BatchResult{Success: true, TotalAmount: decimal.Zero}
	for _, p := range ps {
		o, err := r.createOrderLocked(p)
		if err != nil {
			return nil, err
		}
		res.Orders = append(res.Orders, o)
		res.TotalAmount = res.TotalAmount.Add(o.Amount)
	}
	res.Count = len(res.Orders)
	return res, nil
}

// GetCustomers implements gateway.Gateway. Customers sort by name.
func (r *Remote) GetCustomers(ctx context.Context) ([]schema.Customer, error) {
	if err := r.begin(ctx, Call{Op: OpGetCustomers}); err != nil {
		return nil, err
	}
	defer r.mu.Unlock()

	out := make([]schema.Customer, 0, len(r.customers))
	for _, c := range r.customers {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].BusinessID < out[j].BusinessID
	})
	return out, nil
}

// GetOrders implements gateway.Gateway. Newest orders come first.
func (r *Remote) GetOrders(ctx context.Context) ([]schema.Order, error) {
	if err := r.begin(ctx, Call{Op: OpGetOrders}); err != nil {
		return nil, err
	}
	defer r.mu.Unlock()

	out := make([]schema.Order, len(r.orders))
	for i, o := range r.orders {
		out[len(r.orders)-1-i] = o
	}
	return out, nil
}

// GetMenu implements gateway.Gateway.
func (r *Remote) GetMenu(ctx context.Context) ([]schema.MenuItem, error) {
	if err := r.begin(ctx, Call{Op: OpGetMenu}); err != nil {
		return nil, err
	}
	defer r.mu.Unlock()
	return append([]schema.MenuItem(nil), r.menu...), nil
}

// HealthCheck implements gateway.Gateway.
func (r *Remote) HealthCheck(ctx context.Context) (*gateway.Health, error) {
	if err := r.begin(ctx, Call{Op: OpHealthCheck}); err != nil {
		return nil, err
	}
	defer r.mu.Unlock()
	return &gateway.Health{Status: "OK", Database: "Connected", Version: r.Version}, nil
}
