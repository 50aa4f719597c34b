package schema

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultCategory is the category of menu items that do not name one.
const DefaultCategory = "main"

// MenuItem is a read-only catalogue entry downloaded from the remote.
type MenuItem struct {
	ID          string          `json:"_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category,omitempty"`
	Available   bool            `json:"is_available"`
}

// Validate checks if the MenuItem has valid field values.
func (m *MenuItem) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("_id is required")
	}
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.Price.IsNegative() {
		return fmt.Errorf("price must not be negative (got %s)", m.Price)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (m *MenuItem) SetDefaults() {
	if m.Category == "" {
		m.Category = DefaultCategory
	}
}
