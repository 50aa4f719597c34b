package schema

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfilment status of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// Order is a cached order. Orders waiting for upload are keyed by LocalID;
// orders downloaded from the remote are keyed by RemoteOrderKey(ID).
type Order struct {
	LocalID string `json:"localId,omitempty"`
	ID      string `json:"_id,omitempty"`

	CustomerBusinessID string `json:"customer_unique_id"`
	CustomerID         Ref    `json:"customer_id,omitempty"`

	Name        string          `json:"order_name"`
	Description string          `json:"order_description,omitempty"`
	Amount      decimal.Decimal `json:"order_amount"`
	Status      OrderStatus     `json:"order_status,omitempty"`
	IsScanned   bool            `json:"is_scanned"`
	ClientRef   string          `json:"client_ref,omitempty"`

	SyncStatus     SyncStatus `json:"syncStatus,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	LocalCreatedAt time.Time  `json:"localCreatedAt"`
}

// Validate checks if the Order has valid field values.
func (o *Order) Validate() error {
	if o.CustomerBusinessID == "" {
		return fmt.Errorf("customer_unique_id is required")
	}
	if o.Name == "" {
		return fmt.Errorf("order_name is required")
	}
	if o.Amount.IsNegative() {
		return fmt.Errorf("order_amount must not be negative (got %s)", o.Amount)
	}
	if o.Status != "" && !o.Status.Valid() {
		return fmt.Errorf("invalid order status %q", o.Status)
	}
	if o.SyncStatus != "" && !o.SyncStatus.Valid() {
		return fmt.Errorf("invalid sync status %q", o.SyncStatus)
	}
	return nil
}

// Key returns the local cache key of the order.
func (o *Order) Key() string {
	if o.LocalID != "" {
		return o.LocalID
	}
	return RemoteOrderKey(o.ID)
}
