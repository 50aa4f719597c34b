package daemon

import (
	"time"

	esync "github.com/edebt/syncengine/internal/sync"
)

// EventType names an orchestrator event.
type EventType string

const (
	EventOnline        EventType = "online"
	EventOffline       EventType = "offline"
	EventSyncStarted   EventType = "sync_started"
	EventSyncCompleted EventType = "sync_completed"
	EventSyncSkipped   EventType = "sync_skipped"
)

// Event is delivered to subscribers.
type Event struct {
	Type    EventType     `json:"type"`
	Trigger esync.Trigger `json:"trigger,omitempty"`
	Result  *esync.Result `json:"result,omitempty"`
	Reason  string        `json:"reason,omitempty"`
	Time    time.Time     `json:"time"`
}

// Handler receives events. Handlers run synchronously on the goroutine that
// produced the event and must not block.
type Handler func(Event)

type subscription struct {
	fn Handler
}

// Subscribe registers h. Handlers are called in registration order. The
// returned function removes h and may be called more than once.
func (o *Orchestrator) Subscribe(h Handler) (unsubscribe func()) {
	sub := &subscription{fn: h}

	o.mu.Lock()
	o.subs = append(o.subs, sub)
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, s := range o.subs {
			if s == sub {
				o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
				return
			}
		}
	}
}

// emit delivers ev to a snapshot of the current subscribers.
func (o *Orchestrator) emit(ev Event) {
	o.mu.Lock()
	subs := append([]*subscription(nil), o.subs...)
	o.mu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}
