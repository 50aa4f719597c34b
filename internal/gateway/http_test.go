package gateway_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edebt/syncengine/internal/gateway"
	"github.com/edebt/syncengine/internal/gateway/gatewaytest"
	"github.com/edebt/syncengine/internal/schema"
	"github.com/shopspring/decimal"
)

func newClient(t *testing.T, r *gatewaytest.Remote) *gateway.HTTPClient {
	t.Helper()
	srv := httptest.NewServer(gatewaytest.NewServer(r))
	t.Cleanup(srv.Close)
	c, err := gateway.NewHTTPClient(srv.URL, &gateway.ClientOptions{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewHTTPClient() failed: %v", err)
	}
	return c
}

func TestHTTPClient_CustomerRoundTrip(t *testing.T) {
	r := gatewaytest.NewRemote()
	c := newClient(t, r)
	ctx := context.Background()

	created, err := c.CreateCustomer(ctx, schema.CustomerPayload{BusinessID: "CUST-1", Name: "Ada"})
	if err != nil {
		t.Fatalf("CreateCustomer() failed: %v", err)
	}
	if created.ID == "" || created.BusinessID != "CUST-1" {
		t.Errorf("CreateCustomer() = %+v", created)
	}

	got, err := c.GetCustomer(ctx, "CUST-1")
	if err != nil {
		t.Fatalf("GetCustomer() failed: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("GetCustomer().ID = %q, want %q", got.ID, created.ID)
	}

	_, err = c.GetCustomer(ctx, "missing")
	if !errors.Is(err, gateway.ErrNotFound) {
		t.Errorf("GetCustomer(missing) error = %v, want ErrNotFound", err)
	}
}

func TestHTTPClient_ConflictAndValidation(t *testing.T) {
	r := gatewaytest.NewRemote()
	r.ConflictOnExisting = true
	r.SeedCustomer(schema.Customer{BusinessID: "CUST-1", Name: "Ada"})
	c := newClient(t, r)
	ctx := context.Background()

	_, err := c.CreateCustomer(ctx, schema.CustomerPayload{BusinessID: "CUST-1", Name: "Ada"})
	if !errors.Is(err, gateway.ErrConflict) {
		t.Errorf("duplicate create error = %v, want ErrConflict", err)
	}

	_, err = c.CreateCustomer(ctx, schema.CustomerPayload{Name: "No Id"})
	if !errors.Is(err, gateway.ErrValidation) || !gateway.Permanent(err) {
		t.Errorf("missing id error = %v, want permanent ErrValidation", err)
	}
	var se *gateway.StatusError
	if !errors.As(err, &se) || se.Message != "Unique ID is required" {
		t.Errorf("StatusError = %+v, want remote message", se)
	}
}

func TestHTTPClient_OrderIncrementsBalanceOnce(t *testing.T) {
	r := gatewaytest.NewRemote()
	r.SeedCustomer(schema.Customer{BusinessID: "CUST-1", Name: "Ada", Balance: decimal.NewFromInt(100)})
	c := newClient(t, r)
	ctx := context.Background()

	p := schema.OrderPayload{CustomerBusinessID: "CUST-1", Name: "Rice", Amount: decimal.NewFromInt(75), ClientRef: "ref-1"}
	for i := 0; i < 2; i++ {
		if _, err := c.CreateOrder(ctx, p); err != nil {
			t.Fatalf("CreateOrder() attempt %d failed: %v", i, err)
		}
	}

	remote, _ := r.Customer("CUST-1")
	if !remote.Balance.Equal(decimal.NewFromInt(175)) {
		t.Errorf("remote balance = %s, want 175", remote.Balance)
	}
	if n := len(r.Orders()); n != 1 {
		t.Errorf("remote orders = %d, want 1", n)
	}

	orders, err := c.GetOrders(ctx)
	if err != nil {
		t.Fatalf("GetOrders() failed: %v", err)
	}
	if len(orders) != 1 || orders[0].CustomerBusinessID != "CUST-1" {
		t.Errorf("GetOrders() = %+v", orders)
	}
}

func TestHTTPClient_Batch(t *testing.T) {
	r := gatewaytest.NewRemote()
	r.SeedCustomer(schema.Customer{BusinessID: "CUST-1", Name: "Ada"})
	c := newClient(t, r)

	res, err := c.CreateOrdersBatch(context.Background(), []schema.OrderPayload{
		{CustomerBusinessID: "CUST-1", Name: "Tea", Amount: decimal.NewFromInt(20), ClientRef: "a"},
		{CustomerBusinessID: "CUST-1", Name: "Cake", Amount: decimal.NewFromInt(30), ClientRef: "b"},
	})
	if err != nil {
		t.Fatalf("CreateOrdersBatch() failed: %v", err)
	}
	if res.Count != 2 || !res.TotalAmount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("batch = count %d total %s, want 2/50", res.Count, res.TotalAmount)
	}
}

func TestHTTPClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, err := gateway.NewHTTPClient(srv.URL, &gateway.ClientOptions{Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.GetCustomers(context.Background())
	if !errors.Is(err, gateway.ErrNetwork) {
		t.Errorf("timeout error = %v, want ErrNetwork", err)
	}
}

func TestHTTPClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := gateway.NewHTTPClient(url, nil)
	_, err := c.HealthCheck(context.Background())
	if !errors.Is(err, gateway.ErrNetwork) {
		t.Errorf("HealthCheck() error = %v, want ErrNetwork", err)
	}
}

func TestHTTPClient_HealthAndMenu(t *testing.T) {
	r := gatewaytest.NewRemote()
	r.SeedMenu(schema.MenuItem{ID: "m1", Name: "Rice", Price: decimal.NewFromInt(75), Category: "main", Available: true})
	c := newClient(t, r)
	ctx := context.Background()

	h, err := c.HealthCheck(ctx)
	if err != nil || !h.OK() {
		t.Fatalf("HealthCheck() = %+v, %v", h, err)
	}
	menu, err := c.GetMenu(ctx)
	if err != nil || len(menu) != 1 || menu[0].Name != "Rice" {
		t.Errorf("GetMenu() = %+v, %v", menu, err)
	}
}

func TestHTTPClient_HealthRejectsIncompatibleAPI(t *testing.T) {
	r := gatewaytest.NewRemote()
	r.Version = "v2.1.0"
	c := newClient(t, r)

	h, err := c.HealthCheck(context.Background())
	if !errors.Is(err, gateway.ErrServer) {
		t.Errorf("HealthCheck() error = %v, want ErrServer", err)
	}
	if h.OK() {
		t.Errorf("OK() = true for remote API %s", r.Version)
	}
}

func TestHealth_Compatible(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{"", true},
		{"v1.0.0", true},
		{"1.4.2", true},
		{"v1", true},
		{"v2.0.0", false},
		{"latest", false},
	}
	for _, tt := range tests {
		h := &gateway.Health{Status: "OK", Version: tt.version}
		if got := h.Compatible(); got != tt.want {
			t.Errorf("Compatible(%q) = %v, want %v", tt.version, got, tt.want)
		}
	}
}

func TestNewHTTPClient_InvalidURL(t *testing.T) {
	if _, err := gateway.NewHTTPClient("ftp://example.com", nil); err == nil {
		t.Error("expected error for non-http scheme")
	}
}

func TestStatusError_Is(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{409, gateway.ErrConflict},
		{400, gateway.ErrValidation},
		{422, gateway.ErrValidation},
		{404, gateway.ErrNotFound},
		{503, gateway.ErrServer},
		{429, gateway.ErrNetwork},
	}
	for _, tt := range tests {
		err := error(&gateway.StatusError{Code: tt.code})
		if !errors.Is(err, tt.want) {
			t.Errorf("StatusError{%d} is not %v", tt.code, tt.want)
		}
	}
}
