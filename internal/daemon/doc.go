// Package daemon runs sync cycles in the background.
//
// The Orchestrator decides when a cycle runs. It:
//  1. Tracks connectivity, from NotifyConnectivity or its own health probe,
//     and syncs on every offline to online transition
//  2. Syncs periodically while the queue holds work
//  3. Syncs on demand (SyncNow), on local writes and on Wake, including
//     wake files dropped into the configured wake directory
//  4. Runs one delayed cycle after start
//
// At most one cycle runs at a time. A trigger that arrives while a cycle is
// running is dropped, and no new cycle starts within the debounce interval
// after the previous one completed. Both rules apply to every trigger source.
//
// Lock keeps a second process from draining the same data directory.
package daemon
