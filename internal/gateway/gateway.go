// Package gateway is the boundary to the authoritative remote service.
//
// The Gateway interface is what the sync engine depends on; HTTPClient speaks
// the remote's JSON wire contract and gatewaytest provides an in-memory
// implementation for tests.
//
// Every failure is classified with a sentinel so callers can decide between
// retrying (ErrNetwork, ErrServer), accepting the remote's record
// (ErrConflict) and giving up on a mutation (ErrValidation):
//
//	if errors.Is(err, gateway.ErrConflict) {
//	    existing, err := gw.GetCustomer(ctx, id)
//	    ...
//	}
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/edebt/syncengine/internal/schema"
	"github.com/shopspring/decimal"
	"golang.org/x/mod/semver"
)

// APIVersion is the remote API this client speaks. Remotes reporting a
// different major version are treated as unhealthy.
const APIVersion = "v1.0.0"

// Gateway is the remote service.
type Gateway interface {
	// CreateCustomer creates a customer. A customer that already exists under
	// the same business id is either returned as is or reported as ErrConflict.
	CreateCustomer(ctx context.Context, p schema.CustomerPayload) (*schema.Customer, error)

	// GetCustomer fetches one customer by business id.
	GetCustomer(ctx context.Context, businessID string) (*schema.Customer, error)

	// CreateOrder creates an order and increments the customer's balance.
	// Retrying with the same ClientRef never creates a second order.
	CreateOrder(ctx context.Context, p schema.OrderPayload) (*schema.Order, error)

	// CreateOrdersBatch creates several orders for one customer in one call.
	CreateOrdersBatch(ctx context.Context, ps []schema.OrderPayload) (*BatchResult, error)

	GetCustomers(ctx context.Context) ([]schema.Customer, error)
	GetOrders(ctx context.Context) ([]schema.Order, error)
	GetMenu(ctx context.Context) ([]schema.MenuItem, error)

	// HealthCheck reports whether the remote and its database are reachable.
	HealthCheck(ctx context.Context) (*Health, error)
}

// BatchResult is the answer to CreateOrdersBatch.
type BatchResult struct {
	Success     bool            `json:"success"`
	Count       int             `json:"count"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Orders      []schema.Order  `json:"orders"`
}

// Health is the answer to HealthCheck.
type Health struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	// Version is the remote's API version. Older remotes omit it.
	Version string `json:"version,omitempty"`
}

// OK reports whether the remote is healthy and speaks a compatible API.
func (h *Health) OK() bool {
	return h != nil && h.Status == "OK" && h.Compatible()
}

// Compatible reports whether the remote's API version shares APIVersion's
// major version. A missing version is accepted.
func (h *Health) Compatible() bool {
	if h.Version == "" {
		return true
	}
	v := h.Version
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.IsValid(v) && semver.Major(v) == semver.Major(APIVersion)
}

var (
	// ErrNetwork covers transport failures and timeouts.
	ErrNetwork = errors.New("network error")

	// ErrConflict means the record already exists remotely.
	ErrConflict = errors.New("conflict")

	// ErrValidation means the remote rejected the request and will keep doing so.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound means the requested record does not exist remotely.
	ErrNotFound = errors.New("not found")

	// ErrServer covers 5xx answers.
	ErrServer = errors.New("server error")
)

// StatusError is a non-success HTTP answer.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("remote returned %d: %s", e.Code, e.Message)
}

// Is maps the status code onto the sentinel errors.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrConflict:
		return e.Code == http.StatusConflict
	case ErrValidation:
		return e.Code == http.StatusBadRequest || e.Code == http.StatusUnprocessableEntity
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrServer:
		return e.Code >= 500
	case ErrNetwork:
		return e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests
	}
	return false
}

// Permanent reports whether retrying err can never succeed.
func Permanent(err error) bool {
	return errors.Is(err, ErrValidation)
}
