package schema

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Collection names a local collection.
type Collection string

const (
	Customers   Collection = "customers"
	Orders      Collection = "orders"
	Menu        Collection = "menu"
	PendingSync Collection = "pending_sync"
	Meta        Collection = "meta"
)

// Collections lists every local collection in a stable order.
var Collections = []Collection{Customers, Orders, Menu, PendingSync, Meta}

// Operation is the kind of write a mutation replays.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// MutationState tells whether a mutation is drained by sync cycles.
type MutationState string

const (
	StateQueued      MutationState = "queued"
	StateQuarantined MutationState = "quarantined"
)

// Mutation types as stored in the queue's type index.
const (
	TypeCustomerCreate = string(Customers) + "." + string(OpCreate)
	TypeOrderCreate    = string(Orders) + "." + string(OpCreate)
)

// PendingMutation is a local write the remote has not confirmed yet.
type PendingMutation struct {
	ID         string          `json:"id"`
	Collection Collection      `json:"targetCollection"`
	Operation  Operation       `json:"operation"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"createdAt"`

	// Diagnostics only; they never gate retries.
	AttemptCount  int        `json:"attemptCount"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
	LastError     string     `json:"lastError,omitempty"`

	State MutationState `json:"state"`
}

// Type returns "<collection>.<operation>".
func (m *PendingMutation) Type() string {
	return string(m.Collection) + "." + string(m.Operation)
}

// Validate checks if the PendingMutation has valid field values.
func (m *PendingMutation) Validate() error {
	if m.Collection == "" {
		return fmt.Errorf("targetCollection is required")
	}
	switch m.Operation {
	case OpCreate, OpUpdate, OpDelete:
	default:
		return fmt.Errorf("invalid operation %q", m.Operation)
	}
	if len(m.Payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	if m.State != "" && m.State != StateQueued && m.State != StateQuarantined {
		return fmt.Errorf("invalid state %q", m.State)
	}
	return nil
}

// CustomerPayload is the body of a customers.create mutation.
type CustomerPayload struct {
	BusinessID string `json:"unique_id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// Validate checks if the CustomerPayload has valid field values.
func (p *CustomerPayload) Validate() error {
	if p.BusinessID == "" {
		return fmt.Errorf("unique_id is required")
	}
	return nil
}

// OrderPayload is the body of an orders.create mutation.
type OrderPayload struct {
	CustomerBusinessID string          `json:"customer_unique_id"`
	Name               string          `json:"order_name"`
	Description        string          `json:"order_description,omitempty"`
	Amount             decimal.Decimal `json:"order_amount"`
	Status             OrderStatus     `json:"order_status,omitempty"`
	IsScanned          bool            `json:"is_scanned,omitempty"`

	// ClientRef is the idempotency key sent with every upload attempt.
	ClientRef string `json:"client_ref"`
	// LocalID is the key of the pending order row; it never leaves the device.
	LocalID string `json:"local_id,omitempty"`
}

// Validate checks if the OrderPayload has valid field values.
func (p *OrderPayload) Validate() error {
	if p.CustomerBusinessID == "" {
		return fmt.Errorf("customer_unique_id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("order_name is required")
	}
	if p.Amount.IsNegative() {
		return fmt.Errorf("order_amount must not be negative (got %s)", p.Amount)
	}
	if p.Status != "" && !p.Status.Valid() {
		return fmt.Errorf("invalid order status %q", p.Status)
	}
	return nil
}

// NewCustomerCreate builds a queued customers.create mutation.
func NewCustomerCreate(p CustomerPayload, now time.Time) (PendingMutation, error) {
	if err := p.Validate(); err != nil {
		return PendingMutation{}, fmt.Errorf("invalid customer payload: %w", err)
	}
	return newMutation(Customers, OpCreate, p, now)
}

// NewOrderCreate builds a queued orders.create mutation. A missing ClientRef
// is filled with a fresh UUID.
func NewOrderCreate(p OrderPayload, now time.Time) (PendingMutation, error) {
	if err := p.Validate(); err != nil {
		return PendingMutation{}, fmt.Errorf("invalid order payload: %w", err)
	}
	if p.ClientRef == "" {
		p.ClientRef = NewLocalID()
	}
	return newMutation(Orders, OpCreate, p, now)
}

func newMutation(coll Collection, op Operation, payload any, now time.Time) (PendingMutation, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return PendingMutation{}, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return PendingMutation{
		Collection: coll,
		Operation:  op,
		Payload:    data,
		CreatedAt:  now,
		State:      StateQueued,
	}, nil
}

// CustomerPayload decodes the payload of a customers.create mutation.
func (m *PendingMutation) CustomerPayload() (CustomerPayload, error) {
	var p CustomerPayload
	if m.Type() != TypeCustomerCreate {
		return p, fmt.Errorf("mutation %s is %s, not %s", m.ID, m.Type(), TypeCustomerCreate)
	}
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return p, fmt.Errorf("failed to parse customer payload of %s: %w", m.ID, err)
	}
	return p, nil
}

// OrderPayload decodes the payload of an orders.create mutation.
func (m *PendingMutation) OrderPayload() (OrderPayload, error) {
	var p OrderPayload
	if m.Type() != TypeOrderCreate {
		return p, fmt.Errorf("mutation %s is %s, not %s", m.ID, m.Type(), TypeOrderCreate)
	}
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return p, fmt.Errorf("failed to parse order payload of %s: %w", m.ID, err)
	}
	return p, nil
}

// SetPayload replaces the payload with the JSON encoding of p.
func (m *PendingMutation) SetPayload(p any) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	m.Payload = data
	return nil
}

// SyncMeta is the singleton bookkeeping record.
type SyncMeta struct {
	LastSyncTimestamp *time.Time `json:"lastSyncTimestamp,omitempty"`
}

// MetaKey is the key of the SyncMeta singleton.
const MetaKey = "sync"
