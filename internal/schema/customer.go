package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The remote speaks JSON numbers for money.
	decimal.MarshalJSONWithoutQuotes = true
}

// SyncStatus records whether a cached record matches the remote.
type SyncStatus string

const (
	StatusSynced  SyncStatus = "synced"
	StatusPending SyncStatus = "pending"
)

// Valid reports whether s is a known status.
func (s SyncStatus) Valid() bool {
	return s == StatusSynced || s == StatusPending
}

// Customer is a cached customer record with its running balance.
type Customer struct {
	// ===== Identity =====
	BusinessID string `json:"unique_id"`     // operator-assigned, primary key
	ID         string `json:"_id,omitempty"` // server id, or tmp-<uuid> until confirmed

	// ===== Contact =====
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`

	// ===== Aggregate =====
	Balance           decimal.Decimal `json:"balance"`
	LastTransactionAt *time.Time      `json:"last_transaction_date,omitempty"`

	// ===== Timestamps =====
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// ===== Local bookkeeping =====
	SyncStatus     SyncStatus `json:"syncStatus,omitempty"`
	LocalUpdatedAt time.Time  `json:"localUpdatedAt"`
}

// Validate checks if the Customer has valid field values.
func (c *Customer) Validate() error {
	if c.BusinessID == "" {
		return fmt.Errorf("unique_id is required")
	}
	if c.SyncStatus != "" && !c.SyncStatus.Valid() {
		return fmt.Errorf("invalid sync status %q", c.SyncStatus)
	}
	return nil
}

// IsProvisional reports whether the server id has not been confirmed yet.
func (c *Customer) IsProvisional() bool {
	return IsProvisionalID(c.ID)
}

// Ref is a reference to another record by server id. The remote sends it either
// as a bare id or, when populated, as an object carrying an "_id" field.
type Ref string

// UnmarshalJSON accepts "id", {"_id": "id", ...} and null.
func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if data[0] == '{' {
		var obj struct {
			ID string `json:"_id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("failed to parse reference: %w", err)
		}
		*r = Ref(obj.ID)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to parse reference: %w", err)
	}
	*r = Ref(s)
	return nil
}
