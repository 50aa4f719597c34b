package loadtest

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestRun_NoFailures(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.Orders = 40
	cfg.Customers = 4
	cfg.NewCustomers = 2
	cfg.FailureRate = 0
	cfg.LostReplyRate = 0

	report, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if !report.OK() {
		var buf bytes.Buffer
		report.Print(&buf)
		t.Fatalf("invariants violated:\n%s", buf.String())
	}
	if report.Cycles != 1 {
		t.Errorf("Cycles = %d, want 1 with a healthy remote", report.Cycles)
	}
	if report.RemoteOrders != 40 {
		t.Errorf("RemoteOrders = %d, want 40", report.RemoteOrders)
	}
	if report.Customers != 6 {
		t.Errorf("Customers = %d, want 6", report.Customers)
	}
}

func TestRun_FlakyRemote(t *testing.T) {
	tests := []struct {
		name  string
		batch bool
		flat  bool
	}{
		{"single", false, false},
		{"batched", true, false},
		{"fallback cache", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(t.TempDir())
			cfg.Orders = 60
			cfg.BatchOrders = tt.batch
			cfg.ForceFallback = tt.flat
			cfg.MaxCycles = 200

			report, err := Run(context.Background(), cfg)
			if err != nil {
				t.Fatalf("Run() failed: %v", err)
			}
			if !report.OK() {
				var buf bytes.Buffer
				report.Print(&buf)
				t.Fatalf("invariants violated:\n%s", buf.String())
			}
			if report.RemoteOrders != cfg.Orders {
				t.Errorf("RemoteOrders = %d, want %d", report.RemoteOrders, cfg.Orders)
			}
			if report.InjectedErrors == 0 {
				t.Error("expected some injected failures")
			}
			t.Logf("%d cycles, %d injected failures, %d lost replies", report.Cycles, report.InjectedErrors, report.LostReplies)
		})
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no dir", Config{Orders: 1, Customers: 1}},
		{"no orders", Config{Dir: t.TempDir(), Customers: 1}},
		{"no customers", Config{Dir: t.TempDir(), Orders: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Run(context.Background(), tt.cfg); err == nil {
				t.Error("Run() should fail")
			}
		})
	}
}

func TestComputeLatencyStats(t *testing.T) {
	var ds []time.Duration
	for i := 100; i >= 1; i-- {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}
	s := computeLatencyStats(ds)

	if s.Samples != 100 {
		t.Errorf("Samples = %d, want 100", s.Samples)
	}
	if s.Min != time.Millisecond || s.Max != 100*time.Millisecond {
		t.Errorf("Min/Max = %v/%v, want 1ms/100ms", s.Min, s.Max)
	}
	if s.P50 != 51*time.Millisecond {
		t.Errorf("P50 = %v, want 51ms", s.P50)
	}
	if s.P99 != 100*time.Millisecond {
		t.Errorf("P99 = %v, want 100ms", s.P99)
	}
	if want := 50500 * time.Microsecond; s.Mean != want {
		t.Errorf("Mean = %v, want %v", s.Mean, want)
	}

	if empty := computeLatencyStats(nil); empty.Samples != 0 {
		t.Errorf("empty Samples = %d, want 0", empty.Samples)
	}
}

func TestReport_Print(t *testing.T) {
	r := &Report{
		Orders:        3,
		Customers:     1,
		Cycles:        2,
		BalanceErrors: []string{"C1: remote balance 5, want 6"},
		Latency:       computeLatencyStats([]time.Duration{time.Millisecond}),
	}
	if r.OK() {
		t.Error("OK() with a balance error should be false")
	}

	var buf bytes.Buffer
	r.Print(&buf)
	for _, want := range []string{"3 orders across 1 customers", "Cycles:          2", "P95:", "! C1: remote balance 5"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("Print() missing %q:\n%s", want, buf.String())
		}
	}
}
