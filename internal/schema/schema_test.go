package schema

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestOrder_Validate(t *testing.T) {
	tests := []struct {
		name    string
		order   Order
		wantErr bool
		errMsg  string
	}{
		{
			name:  "valid order",
			order: Order{CustomerBusinessID: "CUST-1", Name: "Rice", Amount: decimal.NewFromInt(75)},
		},
		{
			name:    "missing customer",
			order:   Order{Name: "Rice", Amount: decimal.NewFromInt(75)},
			wantErr: true,
			errMsg:  "customer_unique_id is required",
		},
		{
			name:    "missing name",
			order:   Order{CustomerBusinessID: "CUST-1", Amount: decimal.NewFromInt(75)},
			wantErr: true,
			errMsg:  "order_name is required",
		},
		{
			name:    "negative amount",
			order:   Order{CustomerBusinessID: "CUST-1", Name: "Rice", Amount: decimal.NewFromInt(-1)},
			wantErr: true,
			errMsg:  "must not be negative",
		},
		{
			name:    "unknown status",
			order:   Order{CustomerBusinessID: "CUST-1", Name: "Rice", Status: "shipped"},
			wantErr: true,
			errMsg:  "invalid order status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.order.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.errMsg)
			}
		})
	}
}

func TestCustomer_Validate(t *testing.T) {
	c := Customer{}
	if err := c.Validate(); err == nil {
		t.Error("expected error for missing unique_id")
	}
	c = Customer{BusinessID: "CUST-1", SyncStatus: "stale"}
	if err := c.Validate(); err == nil {
		t.Error("expected error for unknown sync status")
	}
	c.SyncStatus = StatusPending
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestRef_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want Ref
	}{
		{`"abc123"`, "abc123"},
		{`{"_id":"abc123","name":"Ada","email":"ada@example.com"}`, "abc123"},
		{`null`, ""},
	}
	for _, tt := range tests {
		var r Ref
		if err := json.Unmarshal([]byte(tt.in), &r); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", tt.in, err)
		}
		if r != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.in, r, tt.want)
		}
	}
}

func TestRemoteOrderDecodesPopulatedCustomer(t *testing.T) {
	body := `{
		"_id": "o1",
		"customer_id": {"_id": "c1", "name": "Ada"},
		"customer_unique_id": "CUST-1",
		"order_name": "Rice",
		"order_amount": 75.5,
		"order_status": "pending",
		"is_scanned": false,
		"createdAt": "2026-01-02T10:00:00Z"
	}`
	var o Order
	if err := json.Unmarshal([]byte(body), &o); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if o.CustomerID != "c1" {
		t.Errorf("CustomerID = %q, want %q", o.CustomerID, "c1")
	}
	if !o.Amount.Equal(decimal.RequireFromString("75.5")) {
		t.Errorf("Amount = %s, want 75.5", o.Amount)
	}
	if got := o.Key(); got != "srv-o1" {
		t.Errorf("Key() = %q, want %q", got, "srv-o1")
	}
}

func TestMoneyMarshalsAsNumber(t *testing.T) {
	data, err := json.Marshal(Customer{BusinessID: "CUST-1", Balance: decimal.RequireFromString("12.50")})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"balance":12.5`) {
		t.Errorf("balance not encoded as number: %s", data)
	}
}

func TestNewOrderCreate(t *testing.T) {
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	m, err := NewOrderCreate(OrderPayload{
		CustomerBusinessID: "CUST-1",
		Name:               "Rice",
		Amount:             decimal.NewFromInt(75),
	}, now)
	if err != nil {
		t.Fatalf("NewOrderCreate failed: %v", err)
	}
	if m.Type() != TypeOrderCreate {
		t.Errorf("Type() = %q, want %q", m.Type(), TypeOrderCreate)
	}
	if m.State != StateQueued || !m.CreatedAt.Equal(now) {
		t.Errorf("state/createdAt = %s/%v, want queued/%v", m.State, m.CreatedAt, now)
	}

	p, err := m.OrderPayload()
	if err != nil {
		t.Fatalf("OrderPayload failed: %v", err)
	}
	if p.ClientRef == "" {
		t.Error("ClientRef should be assigned")
	}
	if _, err := m.CustomerPayload(); err == nil {
		t.Error("CustomerPayload on an order mutation should fail")
	}
}

func TestNewCustomerCreate_Invalid(t *testing.T) {
	if _, err := NewCustomerCreate(CustomerPayload{Name: "Ada"}, time.Now()); err == nil {
		t.Fatal("expected error for missing unique_id")
	}
}

func TestFormatTime_SortsLexicographically(t *testing.T) {
	a := time.Date(2026, 1, 2, 10, 0, 0, 5, time.UTC)
	b := time.Date(2026, 1, 2, 10, 0, 0, 500, time.UTC)
	if !(FormatTime(a) < FormatTime(b)) {
		t.Errorf("FormatTime(%v) >= FormatTime(%v)", a, b)
	}
	if FormatTime(time.Time{}) != "" {
		t.Error("zero time should format as empty string")
	}
}

func TestIDs(t *testing.T) {
	if !IsProvisionalID(NewProvisionalID()) {
		t.Error("NewProvisionalID should be provisional")
	}
	if IsProvisionalID(NewLocalID()) {
		t.Error("NewLocalID should not be provisional")
	}
	if NewLocalID() == NewLocalID() {
		t.Error("NewLocalID returned duplicate ids")
	}
}
