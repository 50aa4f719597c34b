package sync

import "context"

// Syncer runs sync cycles against the remote.
//
// A cycle never fails as a whole: individual failures are recorded in the
// Result and the affected mutations stay queued for the next cycle.
type Syncer interface {
	// Upload drains the pending mutation queue, customers first, then orders.
	//
	// An order whose customer is still waiting for its create to be confirmed
	// is deferred. Each item is confirmed or left queued on its own; a failure
	// does not stop the items after it.
	Upload(ctx context.Context) UploadResult

	// Download replaces the cached customers, orders and menu with the
	// remote's, rebuilding each customer balance as the remote balance plus
	// the amounts of its order creates still in the queue. Rows still pending
	// upload are kept.
	//
	// Returns an error if the customers cannot be fetched or the store update
	// fails; orders and menu are best effort.
	Download(ctx context.Context) (DownloadResult, error)

	// FullSync runs Upload, then Download if the upload made progress or had
	// nothing to report.
	//
	// Example:
	//   res := syncer.FullSync(ctx, sync.TriggerManual)
	//   fmt.Println(res.Status())
	FullSync(ctx context.Context, trigger Trigger) Result
}
