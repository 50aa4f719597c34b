package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/edebt/syncengine/internal/config"
	"github.com/edebt/syncengine/internal/daemon"
	"github.com/edebt/syncengine/internal/gateway"
	"github.com/edebt/syncengine/internal/queue"
	"github.com/edebt/syncengine/internal/store"
	esync "github.com/edebt/syncengine/internal/sync"
	"github.com/edebt/syncengine/internal/tracker"
)

// app bundles the components a command works with.
type app struct {
	cfg     *config.Config
	logs    *config.Logs
	store   *store.Store
	queue   *queue.Queue
	gateway *gateway.HTTPClient // nil when no remote is configured
	tracker *tracker.Service
}

// openApp opens the local store and builds the service. With probe set the
// remote is health-checked once so writes can go straight through.
func openApp(ctx context.Context, probe bool) (*app, error) {
	logs := config.NewLogs(cfg.Log)
	st, err := store.Open(ctx, store.Options{Dir: cfg.DataDir, Logger: logs.NewLogger("[store] ")})
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	a := &app{cfg: cfg, logs: logs, store: st, queue: queue.New(st, nil)}
	if cfg.Remote.URL != "" {
		a.gateway, err = gateway.NewHTTPClient(cfg.Remote.URL, &gateway.ClientOptions{
			Timeout: cfg.Remote.Timeout,
			Token:   cfg.Remote.Token,
			Logger:  logs.NewLogger("[gateway] "),
			Verbose: verbose,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	n := &cliNotifier{wakeDir: cfg.WakeDir()}
	if probe && a.gateway != nil {
		n.online = a.probe(ctx)
	}
	var gw gateway.Gateway
	if a.gateway != nil {
		gw = a.gateway
	}
	a.tracker = tracker.New(st, a.queue, gw, &tracker.Options{
		Notifier: n,
		Logger:   logs.NewLogger("[tracker] "),
	})
	return a, nil
}

// probe reports whether the remote answers a health check.
func (a *app) probe(ctx context.Context) bool {
	if a.gateway == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Remote.Timeout)
	defer cancel()
	h, err := a.gateway.HealthCheck(ctx)
	return err == nil && h.OK()
}

// requireRemote fails when no remote URL is configured.
func (a *app) requireRemote() error {
	if a.gateway == nil {
		return fmt.Errorf("no remote configured (set remote.url, EDEBT_REMOTE_URL or --remote)")
	}
	return nil
}

// syncer builds a sync engine for the configured remote.
func (a *app) syncer() esync.Syncer {
	return esync.New(a.store, a.queue, a.gateway, &esync.Options{
		Logger:      a.logger("[sync] "),
		BatchOrders: a.cfg.Sync.BatchOrders,
		MaxAttempts: a.cfg.Sync.MaxAttempts,
	})
}

func (a *app) logger(prefix string) *log.Logger {
	return a.logs.NewLogger(prefix)
}

// Close releases the store and the log file.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger("[store] ").Printf("WARNING: failed to close store: %v", err)
	}
	_ = a.logs.Close()
}

// cliNotifier connects one-shot commands to a running daemon. Local writes
// drop a wake file; connectivity is whatever the startup probe found.
type cliNotifier struct {
	online  bool
	wakeDir string
}

func (n *cliNotifier) Online() bool { return n.online }

func (n *cliNotifier) NotifyLocalWrite() {
	// Without a daemon the file is cleared, unread, at its next start.
	_ = daemon.RequestWake(n.wakeDir)
}

// formatTime renders t for tables, or "never".
func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
