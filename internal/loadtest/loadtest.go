// Package loadtest drives the sync engine through a long offline session.
//
// A run records N orders across M customers while disconnected, then syncs
// against an in-memory remote that drops calls and loses replies until the
// queue drains. It checks that every order reached the remote exactly once
// and that every balance matches the sum of its orders, and reports cycle
// latency percentiles.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edebt/syncengine/internal/gateway"
	"github.com/edebt/syncengine/internal/gateway/gatewaytest"
	"github.com/edebt/syncengine/internal/queue"
	"github.com/edebt/syncengine/internal/schema"
	"github.com/edebt/syncengine/internal/store"
	esync "github.com/edebt/syncengine/internal/sync"
	"github.com/edebt/syncengine/internal/tracker"
)

// Config describes a run.
type Config struct {
	Dir string // data directory for the local store

	Orders       int // orders recorded offline
	Customers    int // customers already known to the remote
	NewCustomers int // customers created offline

	FailureRate   float64 // share of remote calls failing before they reach the remote
	LostReplyRate float64 // share of order creations applied remotely whose reply is lost

	BatchOrders bool
	MaxCycles   int
	Seed        int64

	// ForceFallback runs on the flat fallback cache.
	ForceFallback bool

	// Logger receives sync logs. Defaults to discarding them.
	Logger *log.Logger
}

// DefaultConfig returns a moderate run.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:           dir,
		Orders:        200,
		Customers:     10,
		NewCustomers:  3,
		FailureRate:   0.2,
		LostReplyRate: 0.1,
		MaxCycles:     50,
		Seed:          42,
	}
}

// LatencyStats captures cycle durations.
type LatencyStats struct {
	Min     time.Duration
	Max     time.Duration
	Mean    time.Duration
	P50     time.Duration // Median
	P95     time.Duration
	P99     time.Duration
	Samples int
}

// Report is the outcome of a run.
type Report struct {
	Orders    int
	Customers int

	Cycles         int
	Pending        int // mutations left in the queue
	Quarantined    int
	RemoteOrders   int
	Missing        []string // client refs that never reached the remote
	Duplicates     []string // client refs recorded more than once
	BalanceErrors  []string
	LocalMismatch  []string // local cache disagreeing with the remote after the final download
	RemoteCalls    int
	InjectedErrors int
	LostReplies    int

	Latency  *LatencyStats
	Duration time.Duration
}

// OK reports whether every invariant held.
func (r *Report) OK() bool {
	return r.Pending == 0 && r.Quarantined == 0 &&
		len(r.Missing) == 0 && len(r.Duplicates) == 0 &&
		len(r.BalanceErrors) == 0 && len(r.LocalMismatch) == 0
}

// flaky wraps the in-memory remote with failure injection.
type flaky struct {
	*gatewaytest.Remote

	mu       sync.Mutex
	rng      *rand.Rand
	lostRate float64
	injected int
	lost     int
}

func (f *flaky) roll(rate float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return rate > 0 && f.rng.Float64() < rate
}

func (f *flaky) counts() (injected, lost int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.injected, f.lost
}

func (f *flaky) lostReply(op string) error {
	f.mu.Lock()
	f.lost++
	f.mu.Unlock()
	return fmt.Errorf("%w: %s: connection reset after write", gateway.ErrNetwork, op)
}

// CreateOrder forwards to the remote and sometimes drops the reply.
func (f *flaky) CreateOrder(ctx context.Context, p schema.OrderPayload) (*schema.Order, error) {
	o, err := f.Remote.CreateOrder(ctx, p)
	if err == nil && f.roll(f.lostRate) {
		return nil, f.lostReply("CreateOrder")
	}
	return o, err
}

// CreateOrdersBatch forwards to the remote and sometimes drops the reply.
func (f *flaky) CreateOrdersBatch(ctx context.Context, ps []schema.OrderPayload) (*gateway.BatchResult, error) {
	res, err := f.Remote.CreateOrdersBatch(ctx, ps)
	if err == nil && f.roll(f.lostRate) {
		return nil, f.lostReply("CreateOrdersBatch")
	}
	return res, err
}

// Run executes one load test.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if cfg.Orders <= 0 || cfg.Customers+cfg.NewCustomers <= 0 {
		return nil, fmt.Errorf("need at least one order and one customer")
	}
	if cfg.MaxCycles <= 0 {
		cfg.MaxCycles = 50
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	start := time.Now()
	st, err := store.Open(ctx, store.Options{Dir: cfg.Dir, Logger: logger, ForceFallback: cfg.ForceFallback})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	rng := rand.New(rand.NewSource(cfg.Seed))
	remote := gatewaytest.NewRemote()
	gw := &flaky{Remote: remote, rng: rand.New(rand.NewSource(cfg.Seed + 1)), lostRate: cfg.LostReplyRate}

	q := queue.New(st, nil)
	svc := tracker.New(st, q, gw, nil)

	ids, err := seedCustomers(ctx, st, remote, svc, cfg)
	if err != nil {
		return nil, err
	}

	expected := make(map[string]decimal.Decimal, len(ids))
	refs := make(map[string]bool, cfg.Orders)
	for i := 0; i < cfg.Orders; i++ {
		id := ids[rng.Intn(len(ids))]
		amount := decimal.NewFromInt(int64(1 + rng.Intn(100)))
		o, queued, err := svc.CreateOrder(ctx, schema.OrderPayload{
			CustomerBusinessID: id,
			Name:               fmt.Sprintf("Order %d", i),
			Amount:             amount,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to record order %d: %w", i, err)
		}
		if !queued {
			return nil, fmt.Errorf("order %d was not queued while offline", i)
		}
		expected[id] = expected[id].Add(amount)
		refs[o.ClientRef] = true
	}

	remote.FailWith(func(c gatewaytest.Call) error {
		if c.Op == gatewaytest.OpHealthCheck || !gw.roll(cfg.FailureRate) {
			return nil
		}
		gw.mu.Lock()
		gw.injected++
		gw.mu.Unlock()
		return fmt.Errorf("%w: %s: injected failure", gateway.ErrNetwork, c.Op)
	})

	syncer := esync.New(st, q, gw, &esync.Options{Logger: logger, BatchOrders: cfg.BatchOrders})
	report := &Report{Orders: cfg.Orders, Customers: len(ids)}
	var durations []time.Duration
	for report.Cycles < cfg.MaxCycles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := syncer.FullSync(ctx, esync.TriggerManual)
		report.Cycles++
		durations = append(durations, res.Duration)

		pending, err := q.ListPending(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list queue: %w", err)
		}
		if len(pending) == 0 && res.Downloaded {
			break
		}
	}

	// Final clean download so the local cache can be compared.
	remote.FailWith(nil)
	if res := syncer.FullSync(ctx, esync.TriggerManual); !res.Downloaded {
		logger.Printf("WARNING: final download failed: %s", res.DownloadError)
	}

	if err := verify(ctx, st, q, remote, expected, refs, report); err != nil {
		return nil, err
	}
	report.RemoteCalls = remote.TotalCalls()
	report.InjectedErrors, report.LostReplies = gw.counts()
	report.Latency = computeLatencyStats(durations)
	report.Duration = time.Since(start)
	return report, nil
}

// seedCustomers registers known customers on both sides and creates the new
// ones offline. It returns every business id.
func seedCustomers(ctx context.Context, st *store.Store, remote *gatewaytest.Remote, svc *tracker.Service, cfg Config) ([]string, error) {
	ids := make([]string, 0, cfg.Customers+cfg.NewCustomers)
	for i := 0; i < cfg.Customers; i++ {
		c := remote.SeedCustomer(schema.Customer{
			BusinessID: fmt.Sprintf("CUST-%04d", i),
			Name:       fmt.Sprintf("Customer %d", i),
			Balance:    decimal.Zero,
		})
		c.SyncStatus = schema.StatusSynced
		c.LocalUpdatedAt = time.Now()
		if err := st.Update(ctx, func(tx store.Tx) error { return store.PutCustomer(tx, c) }); err != nil {
			return nil, fmt.Errorf("failed to cache customer %s: %w", c.BusinessID, err)
		}
		ids = append(ids, c.BusinessID)
	}
	for i := 0; i < cfg.NewCustomers; i++ {
		c, err := svc.CreateCustomer(ctx, schema.CustomerPayload{
			BusinessID: fmt.Sprintf("NEW-%04d", i),
			Name:       fmt.Sprintf("New customer %d", i),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create customer %d: %w", i, err)
		}
		ids = append(ids, c.BusinessID)
	}
	return ids, nil
}

func verify(ctx context.Context, st *store.Store, q *queue.Queue, remote *gatewaytest.Remote,
	expected map[string]decimal.Decimal, refs map[string]bool, report *Report) error {
	all, err := q.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list queue: %w", err)
	}
	for _, m := range all {
		if m.State == schema.StateQuarantined {
			report.Quarantined++
		} else {
			report.Pending++
		}
	}

	orders := remote.Orders()
	report.RemoteOrders = len(orders)
	seen := make(map[string]int, len(orders))
	for _, o := range orders {
		seen[o.ClientRef]++
	}
	for ref, n := range seen {
		if n > 1 {
			report.Duplicates = append(report.Duplicates, ref)
		}
	}
	for ref := range refs {
		if seen[ref] == 0 {
			report.Missing = append(report.Missing, ref)
		}
	}
	sort.Strings(report.Duplicates)
	sort.Strings(report.Missing)

	ids := make([]string, 0, len(expected))
	for id := range expected {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		want := expected[id]
		rc, ok := remote.Customer(id)
		if !ok {
			report.BalanceErrors = append(report.BalanceErrors, fmt.Sprintf("%s: missing on remote", id))
			continue
		}
		if !rc.Balance.Equal(want) {
			report.BalanceErrors = append(report.BalanceErrors, fmt.Sprintf("%s: remote balance %s, want %s", id, rc.Balance, want))
		}

		var lc schema.Customer
		var local []schema.Order
		err := st.View(ctx, func(tx store.Tx) error {
			var err error
			if lc, err = store.GetCustomer(tx, id); err != nil {
				return err
			}
			local, err = store.OrdersFor(tx, id)
			return err
		})
		if store.IsNotFound(err) {
			report.LocalMismatch = append(report.LocalMismatch, fmt.Sprintf("%s: missing locally", id))
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read customer %s: %w", id, err)
		}
		if !lc.Balance.Equal(rc.Balance) {
			report.LocalMismatch = append(report.LocalMismatch, fmt.Sprintf("%s: local balance %s, remote %s", id, lc.Balance, rc.Balance))
		}
		if lc.IsProvisional() {
			report.LocalMismatch = append(report.LocalMismatch, fmt.Sprintf("%s: still provisional", id))
		}
		for _, o := range local {
			if o.SyncStatus == schema.StatusPending {
				report.LocalMismatch = append(report.LocalMismatch, fmt.Sprintf("%s: order %s still pending", id, o.Key()))
			}
		}
	}
	return nil
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
		Mean:    sum / time.Duration(len(durations)),
		P50:     sorted[len(sorted)*50/100],
		P95:     sorted[len(sorted)*95/100],
		P99:     sorted[len(sorted)*99/100],
		Samples: len(sorted),
	}
}

// Print writes a human readable report.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Load test: %d orders across %d customers\n", r.Orders, r.Customers)
	fmt.Fprintf(w, "  Cycles:          %d\n", r.Cycles)
	fmt.Fprintf(w, "  Remote calls:    %d (injected failures %d, lost replies %d)\n", r.RemoteCalls, r.InjectedErrors, r.LostReplies)
	fmt.Fprintf(w, "  Remote orders:   %d\n", r.RemoteOrders)
	fmt.Fprintf(w, "  Pending:         %d\n", r.Pending)
	fmt.Fprintf(w, "  Quarantined:     %d\n", r.Quarantined)
	fmt.Fprintf(w, "  Missing:         %d\n", len(r.Missing))
	fmt.Fprintf(w, "  Duplicates:      %d\n", len(r.Duplicates))
	fmt.Fprintf(w, "  Balance errors:  %d\n", len(r.BalanceErrors))
	fmt.Fprintf(w, "  Local mismatch:  %d\n", len(r.LocalMismatch))
	if s := r.Latency; s != nil && s.Samples > 0 {
		fmt.Fprintf(w, "Cycle latency (%d samples):\n", s.Samples)
		fmt.Fprintf(w, "  Min:           %v\n", s.Min)
		fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
		fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
		fmt.Fprintf(w, "  P95:           %v\n", s.P95)
		fmt.Fprintf(w, "  P99:           %v\n", s.P99)
		fmt.Fprintf(w, "  Max:           %v\n", s.Max)
	}
	fmt.Fprintf(w, "Total duration: %v\n", r.Duration)
	for _, list := range [][]string{r.BalanceErrors, r.LocalMismatch, r.Missing, r.Duplicates} {
		for _, e := range list {
			fmt.Fprintf(w, "  ! %s\n", e)
		}
	}
}
