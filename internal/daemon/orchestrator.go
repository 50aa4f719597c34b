package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/edebt/syncengine/internal/gateway"
	"github.com/edebt/syncengine/internal/schema"
	esync "github.com/edebt/syncengine/internal/sync"
)

var (
	// ErrSyncInProgress means the trigger was dropped because a cycle is running.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrDebounced means the previous cycle completed too recently.
	ErrDebounced = errors.New("sync debounced")

	// ErrOffline means the remote is known to be unreachable.
	ErrOffline = errors.New("offline")

	// ErrStopped means the orchestrator has been stopped.
	ErrStopped = errors.New("orchestrator stopped")
)

// Skip reasons reported in sync_skipped events and Result.Skipped.
const (
	ReasonInProgress = "in_progress"
	ReasonDebounced  = "debounced"
	ReasonOffline    = "offline"
)

// Config holds configuration for the orchestrator.
type Config struct {
	// DebounceInterval suppresses new cycles for this long after one completes.
	DebounceInterval time.Duration

	// PeriodicInterval is how often to sync while the queue holds work.
	PeriodicInterval time.Duration

	// HealthInterval is how often to probe the remote.
	HealthInterval time.Duration

	// HealthTimeout bounds a single probe.
	HealthTimeout time.Duration

	// InitialSyncDelay is how long after Start the startup cycle runs.
	InitialSyncDelay time.Duration

	// WakeDir, when set, is watched for wake files.
	WakeDir string

	// Logger for orchestrator activity
	Logger *log.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 5 * time.Second,
		PeriodicInterval: 60 * time.Second,
		HealthInterval:   15 * time.Second,
		HealthTimeout:    gateway.DefaultTimeout,
		InitialSyncDelay: 2 * time.Second,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
		Now:              time.Now,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.DebounceInterval == 0 {
		out.DebounceInterval = d.DebounceInterval
	}
	if out.PeriodicInterval <= 0 {
		out.PeriodicInterval = d.PeriodicInterval
	}
	if out.HealthInterval <= 0 {
		out.HealthInterval = d.HealthInterval
	}
	if out.HealthTimeout <= 0 {
		out.HealthTimeout = d.HealthTimeout
	}
	if out.InitialSyncDelay == 0 {
		out.InitialSyncDelay = d.InitialSyncDelay
	}
	if out.Logger == nil {
		out.Logger = d.Logger
	}
	if out.Now == nil {
		out.Now = d.Now
	}
	return &out
}

// Backlog reports queued work.
type Backlog interface {
	ListPending(ctx context.Context) ([]schema.PendingMutation, error)
}

// Prober checks whether the remote is reachable.
type Prober interface {
	HealthCheck(ctx context.Context) (*gateway.Health, error)
}

// State is the orchestrator's cycle state.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
)

// Status is a snapshot of the orchestrator.
type Status struct {
	State           State         `json:"state"`
	Online          bool          `json:"online"`
	LastResult      *esync.Result `json:"lastResult,omitempty"`
	LastCompletedAt *time.Time    `json:"lastCompletedAt,omitempty"`
}

// Orchestrator decides when sync cycles run.
type Orchestrator struct {
	syncer  esync.Syncer
	backlog Backlog
	prober  Prober
	config  *Config

	mu            sync.Mutex
	state         State
	online        bool
	lastResult    *esync.Result
	lastCompleted time.Time
	subs          []*subscription
	started       bool
	stopped       bool

	watcher     wakeSource
	openWatcher func(dir string) (wakeSource, error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Orchestrator.
//
// The orchestrator starts out believing the remote is reachable; the first
// failed probe or NotifyConnectivity(false) corrects that. Use Start to run
// the background loops, or drive it with SyncNow and NotifyConnectivity.
func New(syncer esync.Syncer, backlog Backlog, prober Prober, config *Config) (*Orchestrator, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if backlog == nil {
		return nil, fmt.Errorf("backlog cannot be nil")
	}
	if prober == nil {
		return nil, fmt.Errorf("prober cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		syncer:      syncer,
		backlog:     backlog,
		prober:      prober,
		config:      config.withDefaults(),
		state:       StateIdle,
		online:      true,
		ctx:         ctx,
		cancel:      cancel,
		openWatcher: openWakeWatcher,
	}, nil
}

// Start launches the health probe, periodic and startup loops, and the wake
// watcher when WakeDir is set. It does not block.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return ErrStopped
	}
	if o.started {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already started")
	}
	o.started = true
	o.mu.Unlock()

	o.config.Logger.Println("Starting orchestrator")

	if o.config.WakeDir != "" {
		w, err := o.openWatcher(o.config.WakeDir)
		if err != nil {
			o.mu.Lock()
			o.started = false
			o.mu.Unlock()
			return fmt.Errorf("failed to watch wake directory: %w", err)
		}
		o.watcher = w
		if n, err := clearWakeFiles(o.config.WakeDir); err != nil {
			o.config.Logger.Printf("WARNING: failed to clear wake files: %v", err)
		} else if n > 0 {
			o.config.Logger.Printf("Cleared %d wake files from before start", n)
		}
		o.wg.Add(1)
		go o.wakeLoop()
		o.config.Logger.Printf("Watching: %s", o.config.WakeDir)
	}

	o.wg.Add(3)
	go o.healthLoop()
	go o.periodicLoop()
	go o.startupSync()

	// Stop with the caller's context
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		select {
		case <-ctx.Done():
			o.config.Logger.Println("Shutdown signal received")
			go func() {
				if err := o.Stop(); err != nil {
					o.config.Logger.Printf("WARNING: failed to stop orchestrator: %v", err)
				}
			}()
		case <-o.ctx.Done():
		}
	}()
	return nil
}

// Run starts the orchestrator and blocks until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return o.Stop()
}

// Stop cancels the loops and any running cycle, then waits for them.
// Calling Stop more than once is safe.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		o.wg.Wait()
		return nil
	}
	o.stopped = true
	o.mu.Unlock()

	o.config.Logger.Println("Stopping orchestrator")
	o.cancel()

	var err error
	if o.watcher != nil {
		if cerr := o.watcher.Stop(); cerr != nil {
			o.config.Logger.Printf("Error closing watcher: %v", cerr)
			err = cerr
		}
	}

	o.wg.Wait()
	o.config.Logger.Println("Orchestrator stopped")
	return err
}

// SyncNow runs a manual cycle and waits for it.
func (o *Orchestrator) SyncNow(ctx context.Context) (esync.Result, error) {
	return o.Trigger(ctx, esync.TriggerManual)
}

// Trigger runs a cycle for src unless one is running, the previous one
// completed within the debounce interval, or the remote is known to be
// offline. A skipped trigger returns a Result with Skipped set and one of
// ErrSyncInProgress, ErrDebounced or ErrOffline.
func (o *Orchestrator) Trigger(ctx context.Context, src esync.Trigger) (esync.Result, error) {
	now := o.config.Now()

	o.mu.Lock()
	var reason string
	var skipErr error
	switch {
	case o.stopped:
		o.mu.Unlock()
		return esync.Result{Trigger: src, StartedAt: now, Skipped: "stopped"}, ErrStopped
	case o.state == StateSyncing:
		reason, skipErr = ReasonInProgress, ErrSyncInProgress
	case !o.online:
		reason, skipErr = ReasonOffline, ErrOffline
	case !o.lastCompleted.IsZero() && now.Sub(o.lastCompleted) < o.config.DebounceInterval:
		reason, skipErr = ReasonDebounced, ErrDebounced
	default:
		o.state = StateSyncing
	}
	o.mu.Unlock()

	if skipErr != nil {
		res := esync.Result{Trigger: src, StartedAt: now, Skipped: reason}
		o.emit(Event{Type: EventSyncSkipped, Trigger: src, Reason: reason, Result: &res, Time: now})
		return res, skipErr
	}

	o.emit(Event{Type: EventSyncStarted, Trigger: src, Time: now})

	res := o.syncer.FullSync(ctx, src)

	done := o.config.Now()
	o.mu.Lock()
	o.state = StateIdle
	o.lastResult = &res
	o.lastCompleted = done
	o.mu.Unlock()

	o.emit(Event{Type: EventSyncCompleted, Trigger: src, Result: &res, Time: done})
	return res, nil
}

// Dispatch runs Trigger for src in the background. Skips are logged.
func (o *Orchestrator) Dispatch(src esync.Trigger) {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		o.run(src)
	}()
}

// run triggers a cycle on the orchestrator's own context.
func (o *Orchestrator) run(src esync.Trigger) {
	res, err := o.Trigger(o.ctx, src)
	switch {
	case err == nil:
		o.config.Logger.Printf("Sync (%s) %s: %s", src, res.Status(), res.Summary())
	case errors.Is(err, ErrStopped):
	default:
		o.config.Logger.Printf("Sync (%s) skipped: %v", src, err)
	}
}

// Wake requests a background cycle.
func (o *Orchestrator) Wake() {
	o.Dispatch(esync.TriggerBackground)
}

// NotifyLocalWrite requests a cycle after a local write while online.
func (o *Orchestrator) NotifyLocalWrite() {
	if o.Online() {
		o.Dispatch(esync.TriggerLocalWrite)
	}
}

// NotifyConnectivity records a connectivity observation. An offline to online
// transition emits an online event and dispatches a connectivity cycle.
func (o *Orchestrator) NotifyConnectivity(online bool) {
	o.mu.Lock()
	prev := o.online
	o.online = online
	o.mu.Unlock()

	if prev == online {
		return
	}

	now := o.config.Now()
	if online {
		o.config.Logger.Println("Remote is reachable")
		o.emit(Event{Type: EventOnline, Time: now})
		o.Dispatch(esync.TriggerConnectivity)
		return
	}
	o.config.Logger.Println("Remote is unreachable")
	o.emit(Event{Type: EventOffline, Time: now})
}

// Online reports the last known connectivity.
func (o *Orchestrator) Online() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online
}

// Status returns a snapshot.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{State: o.state, Online: o.online}
	if o.lastResult != nil {
		r := *o.lastResult
		st.LastResult = &r
	}
	if !o.lastCompleted.IsZero() {
		t := o.lastCompleted
		st.LastCompletedAt = &t
	}
	return st
}

// Probe checks the remote once and records the outcome.
func (o *Orchestrator) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, o.config.HealthTimeout)
	defer cancel()

	h, err := o.prober.HealthCheck(ctx)
	online := err == nil && h.OK()
	if err != nil && o.Online() {
		o.config.Logger.Printf("WARNING: health check failed: %v", err)
	}
	o.NotifyConnectivity(online)
	return online
}

// ===== Loops =====

func (o *Orchestrator) healthLoop() {
	defer o.wg.Done()

	o.Probe(o.ctx)

	ticker := time.NewTicker(o.config.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.Probe(o.ctx)
		}
	}
}

// periodicLoop syncs on every tick while the queue holds work.
func (o *Orchestrator) periodicLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.config.PeriodicInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.periodicCheck()
		}
	}
}

// periodicCheck runs a timer cycle if anything is queued. It reports whether
// a cycle was attempted.
func (o *Orchestrator) periodicCheck() bool {
	pending, err := o.backlog.ListPending(o.ctx)
	if err != nil {
		o.config.Logger.Printf("WARNING: failed to read queue: %v", err)
		return false
	}
	if len(pending) == 0 {
		return false
	}
	o.run(esync.TriggerTimer)
	return true
}

func (o *Orchestrator) startupSync() {
	defer o.wg.Done()

	delay := o.config.InitialSyncDelay
	if delay < 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-o.ctx.Done():
	case <-timer.C:
		o.run(esync.TriggerStartup)
	}
}

func (o *Orchestrator) wakeLoop() {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case path, ok := <-o.watcher.Events():
			if !ok {
				return
			}
			o.config.Logger.Printf("Wake file: %s", path)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				o.config.Logger.Printf("WARNING: failed to remove wake file %s: %v", path, err)
			}
			o.Dispatch(esync.TriggerBackground)
		case err, ok := <-o.watcher.Errors():
			if !ok {
				return
			}
			o.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}
