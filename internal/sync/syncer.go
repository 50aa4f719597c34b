package sync

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/edebt/syncengine/internal/gateway"
	"github.com/edebt/syncengine/internal/queue"
	"github.com/edebt/syncengine/internal/store"
)

// Options configures a Syncer.
type Options struct {
	// Logger defaults to stderr with a "[sync] " prefix.
	Logger *log.Logger

	// Now defaults to time.Now.
	Now func() time.Time

	// BatchOrders uploads the orders of one customer in a single call.
	BatchOrders bool

	// MaxAttempts quarantines a mutation after that many failed attempts.
	// Zero retries forever.
	MaxAttempts int
}

// syncer implements the Syncer interface.
type syncer struct {
	store   *store.Store
	queue   *queue.Queue
	gateway gateway.Gateway
	logger  *log.Logger
	now     func() time.Time
	batch   bool
	max     int
}

// New creates a new Syncer.
//
// The queue must be backed by st. If opts is nil the defaults are used.
//
// Example:
//
//	st, err := store.Open(ctx, store.Options{Dir: dataDir})
//	if err != nil {
//	    return err
//	}
//	q := queue.New(st, nil)
//	client, err := gateway.NewHTTPClient("http://localhost:5000", nil)
//	if err != nil {
//	    return err
//	}
//	syncer := sync.New(st, q, client, nil)
func New(st *store.Store, q *queue.Queue, gw gateway.Gateway, opts *Options) Syncer {
	if opts == nil {
		opts = &Options{}
	}
	s := &syncer{
		store:   st,
		queue:   q,
		gateway: gw,
		logger:  opts.Logger,
		now:     opts.Now,
		batch:   opts.BatchOrders,
		max:     opts.MaxAttempts,
	}
	if s.logger == nil {
		s.logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// FullSync implements Syncer.FullSync.
func (s *syncer) FullSync(ctx context.Context, trigger Trigger) Result {
	start := s.now()
	s.logger.Printf("Starting sync (trigger=%s)", trigger)

	up := s.Upload(ctx)
	res := Result{
		Trigger:           trigger,
		StartedAt:         start,
		UploadedCustomers: up.UploadedCustomers,
		UploadedOrders:    up.UploadedOrders,
		Failed:            up.Failed,
		Deferred:          up.Deferred,
		Quarantined:       up.Quarantined,
		Failures:          up.Failures,
	}
	if up.Err != nil {
		res.UploadError = up.Err.Error()
	}

	if up.Uploaded() > 0 || up.OK() {
		down, err := s.Download(ctx)
		if err != nil {
			s.logger.Printf("WARNING: download failed: %v", err)
			res.DownloadError = err.Error()
		} else {
			res.Downloaded = true
			res.Download = &down
		}
	} else {
		s.logger.Printf("Skipping download: upload made no progress")
	}

	res.Duration = s.now().Sub(start)
	s.logger.Printf("Sync complete (%s): %s", res.Status(), res.Summary())
	return res
}
