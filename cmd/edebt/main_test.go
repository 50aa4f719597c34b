package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/edebt/syncengine/internal/gateway/gatewaytest"
	"github.com/edebt/syncengine/internal/schema"
	"github.com/edebt/syncengine/internal/tracker"
)

// execute runs the CLI with args.
func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(append(args, "--no-color"))
	return rootCmd.ExecuteContext(context.Background())
}

func TestCLI_OfflineOrdersThenSync(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EDEBT_DATA_DIR", dir)

	remote := gatewaytest.NewRemote()
	remote.SeedCustomer(schema.Customer{BusinessID: "C001", Name: "Ada", Balance: decimal.NewFromInt(10)})
	srv := httptest.NewServer(gatewaytest.NewServer(remote))
	defer srv.Close()

	if err := execute(t, "sync", "--remote", srv.URL); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if err := execute(t, "customer", "add", "--id", "C002", "--name", "Bob", "--remote", srv.URL); err != nil {
		t.Fatalf("customer add failed: %v", err)
	}
	for _, args := range [][]string{
		{"order", "add", "--offline", "-c", "C001", "-n", "Lunch", "-a", "12.50"},
		{"order", "add", "--offline", "-c", "C002", "-n", "Coffee", "-a", "3"},
	} {
		if err := execute(t, append(args, "--remote", srv.URL)...); err != nil {
			t.Fatalf("%v failed: %v", args, err)
		}
	}
	if len(remote.Orders()) != 0 {
		t.Fatalf("offline orders reached the remote early")
	}

	if err := execute(t, "sync", "--remote", srv.URL); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	if got := len(remote.Orders()); got != 2 {
		t.Errorf("remote orders = %d, want 2", got)
	}
	c, ok := remote.Customer("C001")
	if !ok || !c.Balance.Equal(decimal.RequireFromString("22.50")) {
		t.Errorf("remote C001 = %+v, want balance 22.50", c)
	}
	if _, ok := remote.Customer("C002"); !ok {
		t.Error("C002 was not created remotely")
	}
}

func TestCLI_OrderAddRequiresFlagsWithoutTerminal(t *testing.T) {
	t.Setenv("EDEBT_DATA_DIR", t.TempDir())
	err := execute(t, "order", "add", "--offline", "-c", "", "-n", "")
	if err == nil || !strings.Contains(err.Error(), "required") {
		t.Errorf("order add without details = %v, want a required-flags error", err)
	}
}

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2h", now.Add(-2 * time.Hour), false},
		{"90m", now.Add(-90 * time.Minute), false},
		{"2 hours ago", now.Add(-2 * time.Hour), false},
		{"banana", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSince(tt.in, now)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseSince(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSince(%q) failed: %v", tt.in, err)
			}
			if d := got.Sub(tt.want); d < -time.Minute || d > time.Minute {
				t.Errorf("parseSince(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestWriteStatus(t *testing.T) {
	last := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	v := statusView{
		SyncStatus: tracker.SyncStatus{Pending: 3, Quarantined: 1, LastSync: &last, Backend: "sqlite"},
		Remote:     "http://localhost:5000",
		DataDir:    "/data",
	}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeStatus(&buf, "json", v); err != nil {
			t.Fatalf("writeStatus() failed: %v", err)
		}
		var got map[string]any
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
		}
		if got["pending"] != float64(3) || got["remote"] != "http://localhost:5000" {
			t.Errorf("JSON = %v", got)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeStatus(&buf, "yaml", v); err != nil {
			t.Fatalf("writeStatus() failed: %v", err)
		}
		var got map[string]any
		if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid YAML: %v\n%s", err, buf.String())
		}
		if got["quarantined"] != 1 || got["data_dir"] != "/data" || got["backend"] != "sqlite" {
			t.Errorf("YAML = %v", got)
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeStatus(&buf, "text", v); err != nil {
			t.Fatalf("writeStatus() failed: %v", err)
		}
		for _, want := range []string{"offline", "Pending:      3", "Quarantined:  1", "sqlite"} {
			if !strings.Contains(buf.String(), want) {
				t.Errorf("text output missing %q:\n%s", want, buf.String())
			}
		}
	})
}

func TestDescribe(t *testing.T) {
	now := time.Now()
	cm, err := schema.NewCustomerCreate(schema.CustomerPayload{BusinessID: "C9", Name: "Zed"}, now)
	if err != nil {
		t.Fatalf("NewCustomerCreate() failed: %v", err)
	}
	om, err := schema.NewOrderCreate(schema.OrderPayload{CustomerBusinessID: "C9", Name: "Tea", Amount: decimal.NewFromInt(4)}, now)
	if err != nil {
		t.Fatalf("NewOrderCreate() failed: %v", err)
	}

	if got := describe(cm); got != "C9" {
		t.Errorf("describe(customer) = %q, want C9", got)
	}
	if got := describe(om); got != "C9 4.00" {
		t.Errorf("describe(order) = %q, want %q", got, "C9 4.00")
	}
	if got := truncate("abcdefgh", 4); got != "abc…" {
		t.Errorf("truncate() = %q", got)
	}
}
