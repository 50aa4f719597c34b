// Package sync reconciles the local store with the remote service.
//
// # Cycle
//
// A cycle has two phases:
//
//  1. Upload: the pending mutation queue is drained in creation order,
//     customer creates first, then order creates. A customer create whose
//     business id already exists remotely adopts the remote record. An
//     order create is skipped while its customer is not confirmed yet.
//     Failures are recorded per item; the mutation stays queued.
//
//  2. Download: only if the upload confirmed something or had nothing to
//     report. Customers are fetched (required), then orders and menu (best
//     effort). Each cached customer balance becomes the remote balance plus
//     the amounts of its order creates still queued. The fallback mirror is
//     refreshed afterwards.
//
// # Delivery guarantees
//
// Every order create carries a client_ref idempotency key, so a mutation
// whose confirmation was lost is retried without creating a second order.
// Confirming a mutation and updating the local rows it touched happen in one
// store transaction.
//
// # Retry policy
//
// The whole queue is retried every cycle. A mutation the remote rejects as
// invalid is quarantined at once; other failures quarantine only after
// Options.MaxAttempts attempts when that is set. Quarantined order creates
// keep counting in the cached balance until they are requeued or discarded.
//
// # Usage
//
//	syncer := sync.New(st, queue.New(st, nil), client, nil)
//	res := syncer.FullSync(ctx, sync.TriggerManual)
//	switch res.Status() {
//	case sync.StatusSuccess:
//	    ...
//	}
package sync
