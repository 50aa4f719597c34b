package gatewaytest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/edebt/syncengine/internal/gateway"
	"github.com/edebt/syncengine/internal/schema"
)

// NewServer serves r over the remote's HTTP wire contract.
//
//	srv := httptest.NewServer(gatewaytest.NewServer(remote))
//	defer srv.Close()
//	client, _ := gateway.NewHTTPClient(srv.URL, nil)
func NewServer(r *Remote) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/customer", func(w http.ResponseWriter, req *http.Request) {
		var p schema.CustomerPayload
		if !decode(w, req, &p) {
			return
		}
		c, err := r.CreateCustomer(req.Context(), p)
		reply(w, http.StatusOK, c, err)
	})

	mux.HandleFunc("GET /api/customer/{uniqueId}", func(w http.ResponseWriter, req *http.Request) {
		c, err := r.GetCustomer(req.Context(), req.PathValue("uniqueId"))
		reply(w, http.StatusOK, c, err)
	})

	mux.HandleFunc("POST /api/order", func(w http.ResponseWriter, req *http.Request) {
		var p schema.OrderPayload
		if !decode(w, req, &p) {
			return
		}
		if p.ClientRef == "" {
			p.ClientRef = req.Header.Get("Idempotency-Key")
		}
		o, err := r.CreateOrder(req.Context(), p)
		reply(w, http.StatusOK, o, err)
	})

	mux.HandleFunc("POST /api/orders/batch", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Orders []schema.OrderPayload `json:"orders"`
		}
		if !decode(w, req, &body) {
			return
		}
		res, err := r.CreateOrdersBatch(req.Context(), body.Orders)
		reply(w, http.StatusCreated, res, err)
	})

	mux.HandleFunc("GET /api/customers", func(w http.ResponseWriter, req *http.Request) {
		cs, err := r.GetCustomers(req.Context())
		reply(w, http.StatusOK, cs, err)
	})

	mux.HandleFunc("GET /api/orders", func(w http.ResponseWriter, req *http.Request) {
		orders, err := r.GetOrders(req.Context())
		reply(w, http.StatusOK, orders, err)
	})

	mux.HandleFunc("GET /api/menu", func(w http.ResponseWriter, req *http.Request) {
		items, err := r.GetMenu(req.Context())
		reply(w, http.StatusOK, items, err)
	})

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, req *http.Request) {
		h, err := r.HealthCheck(req.Context())
		reply(w, http.StatusOK, h, err)
	})

	return mux
}

func decode(w http.ResponseWriter, req *http.Request, v any) bool {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	return true
}

func reply(w http.ResponseWriter, status int, v any, err error) {
	if err == nil {
		writeJSON(w, status, v)
		return
	}
	var se *gateway.StatusError
	switch {
	case errors.As(err, &se):
		writeJSON(w, se.Code, map[string]string{"error": se.Message})
	case errors.Is(err, gateway.ErrNetwork):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
