package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/edebt/syncengine/internal/schema"
)

// DefaultTimeout bounds every remote call.
const DefaultTimeout = 5 * time.Second

// maxErrorBody caps how much of an error answer is read.
const maxErrorBody = 64 << 10

// ClientOptions configures NewHTTPClient.
type ClientOptions struct {
	// Timeout bounds each request. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Token is sent as a bearer token when set.
	Token string

	// HTTPClient overrides the transport. Its own Timeout is left alone.
	HTTPClient *http.Client

	// Logger receives request traces when Verbose is set.
	Logger  *log.Logger
	Verbose bool
}

// HTTPClient talks to the remote over its JSON API.
type HTTPClient struct {
	baseURL *url.URL
	timeout time.Duration
	token   string
	http    *http.Client
	logger  *log.Logger
	verbose bool
}

var _ Gateway = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the remote at baseURL, e.g.
// "http://localhost:5000".
func NewHTTPClient(baseURL string, opts *ClientOptions) (*HTTPClient, error) {
	if opts == nil {
		opts = &ClientOptions{}
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid remote url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid remote url %q: scheme must be http or https", baseURL)
	}

	c := &HTTPClient{
		baseURL: u,
		timeout: opts.Timeout,
		token:   opts.Token,
		http:    opts.HTTPClient,
		logger:  opts.Logger,
		verbose: opts.Verbose,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = log.New(os.Stderr, "[gateway] ", log.LstdFlags)
	}
	return c, nil
}

// customerRequest is the wire body of POST /api/customer.
type customerRequest struct {
	BusinessID string `json:"unique_id"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// orderRequest is the wire body of POST /api/order. The local row id stays
// on the device.
type orderRequest struct {
	CustomerBusinessID string             `json:"customer_unique_id"`
	Name               string             `json:"order_name"`
	Description        string             `json:"order_description,omitempty"`
	Amount             json.Number        `json:"order_amount"`
	Status             schema.OrderStatus `json:"order_status,omitempty"`
	IsScanned          bool               `json:"is_scanned,omitempty"`
	ClientRef          string             `json:"client_ref,omitempty"`
}

func newOrderRequest(p schema.OrderPayload) orderRequest {
	return orderRequest{
		CustomerBusinessID: p.CustomerBusinessID,
		Name:               p.Name,
		Description:        p.Description,
		Amount:             json.Number(p.Amount.String()),
		Status:             p.Status,
		IsScanned:          p.IsScanned,
		ClientRef:          p.ClientRef,
	}
}

// CreateCustomer implements Gateway.CreateCustomer.
func (c *HTTPClient) CreateCustomer(ctx context.Context, p schema.CustomerPayload) (*schema.Customer, error) {
	body := customerRequest{BusinessID: p.BusinessID, Name: p.Name, Email: p.Email, Phone: p.Phone}
	var out schema.Customer
	if err := c.do(ctx, http.MethodPost, "/api/customer", body, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCustomer implements Gateway.GetCustomer.
func (c *HTTPClient) GetCustomer(ctx context.Context, businessID string) (*schema.Customer, error) {
	var out schema.Customer
	if err := c.do(ctx, http.MethodGet, "/api/customer/"+url.PathEscape(businessID), nil, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrder implements Gateway.CreateOrder.
func (c *HTTPClient) CreateOrder(ctx context.Context, p schema.OrderPayload) (*schema.Order, error) {
	var out schema.Order
	if err := c.do(ctx, http.MethodPost, "/api/order", newOrderRequest(p), &out, p.ClientRef); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrdersBatch implements Gateway.CreateOrdersBatch.
func (c *HTTPClient) CreateOrdersBatch(ctx context.Context, ps []schema.OrderPayload) (*BatchResult, error) {
	body := struct {
		Orders []orderRequest `json:"orders"`
	}{Orders: make([]orderRequest, len(ps))}
	refs := make([]string, len(ps))
	for i, p := range ps {
		body.Orders[i] = newOrderRequest(p)
		refs[i] = p.ClientRef
	}
	var out BatchResult
	if err := c.do(ctx, http.MethodPost, "/api/orders/batch", body, &out, strings.Join(refs, ",")); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, fmt.Errorf("%w: batch not accepted", ErrServer)
	}
	return &out, nil
}

// GetCustomers implements Gateway.GetCustomers.
func (c *HTTPClient) GetCustomers(ctx context.Context) ([]schema.Customer, error) {
	var out []schema.Customer
	if err := c.do(ctx, http.MethodGet, "/api/customers", nil, &out, ""); err != nil {
		return nil, err
	}
	return out, nil
}

// GetOrders implements Gateway.GetOrders.
func (c *HTTPClient) GetOrders(ctx context.Context) ([]schema.Order, error) {
	var out []schema.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders", nil, &out, ""); err != nil {
		return nil, err
	}
	return out, nil
}

// GetMenu implements Gateway.GetMenu.
func (c *HTTPClient) GetMenu(ctx context.Context) ([]schema.MenuItem, error) {
	var out []schema.MenuItem
	if err := c.do(ctx, http.MethodGet, "/api/menu", nil, &out, ""); err != nil {
		return nil, err
	}
	return out, nil
}

// HealthCheck implements Gateway.HealthCheck.
func (c *HTTPClient) HealthCheck(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &out, ""); err != nil {
		return nil, err
	}
	if out.Status != "OK" {
		return &out, fmt.Errorf("%w: health status %q", ErrServer, out.Status)
	}
	if !out.Compatible() {
		return &out, fmt.Errorf("%w: remote API %s, client speaks %s", ErrServer, out.Version, APIVersion)
	}
	return &out, nil
}

// do sends one request with the client timeout and decodes a JSON answer
// into out. Transport failures and timeouts are wrapped in ErrNetwork;
// non-2xx answers become *StatusError.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any, idempotencyKey string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s %s: timeout after %s", ErrNetwork, method, path, c.timeout)
		}
		return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	if c.verbose {
		c.logger.Printf("%s %s -> %d (%s)", method, path, resp.StatusCode, time.Since(start).Round(time.Millisecond))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s %s: timeout reading answer", ErrNetwork, method, path)
		}
		return fmt.Errorf("failed to decode %s %s answer: %w", method, path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	se := &StatusError{Code: resp.StatusCode}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil {
		se.Message = payload.Error
		if se.Message == "" {
			se.Message = payload.Message
		}
	} else {
		se.Message = strings.TrimSpace(string(data))
	}
	return se
}
