package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/edebt/syncengine/internal/daemon"
)

// Subscriber is the event source the Handler attaches to.
type Subscriber interface {
	Subscribe(h daemon.Handler) (unsubscribe func())
}

// Handler turns orchestrator events into dashboard messages.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates a handler broadcasting through server.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = server.logger
	}
	return &Handler{server: server, logger: logger}
}

// Attach subscribes the handler to sub. The returned function detaches it.
func (h *Handler) Attach(sub Subscriber) (detach func()) {
	return sub.Subscribe(h.OnEvent)
}

// OnEvent handles one orchestrator event. It never blocks on clients.
func (h *Handler) OnEvent(ev daemon.Event) {
	switch ev.Type {
	case daemon.EventOnline, daemon.EventOffline:
		h.send(MessageTypeConnectivity, ev.Time, ConnectivityData{Online: ev.Type == daemon.EventOnline})
		h.broadcastStats()

	case daemon.EventSyncStarted:
		h.send(MessageTypeSyncStarted, ev.Time, SyncData{Trigger: ev.Trigger})

	case daemon.EventSyncSkipped:
		h.send(MessageTypeSyncSkipped, ev.Time, SyncData{Trigger: ev.Trigger, Reason: ev.Reason})

	case daemon.EventSyncCompleted:
		data := SyncData{Trigger: ev.Trigger, Result: ev.Result}
		if ev.Result != nil {
			data.Status = ev.Result.Status()
			data.Summary = ev.Result.Summary()
			h.logger.Printf("Sync complete (%s): %s", data.Status, data.Summary)
		}
		h.send(MessageTypeSyncCompleted, ev.Time, data)
		h.broadcastStats()

	default:
		h.logger.Printf("Ignoring event %s", ev.Type)
	}
}

func (h *Handler) send(typ MessageType, at time.Time, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		h.logger.Printf("WARNING: failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: at, Data: raw})
}

// broadcastStats sends current statistics to all clients
func (h *Handler) broadcastStats() {
	ctx, cancel := context.WithTimeout(h.server.ctx, 5*time.Second)
	defer cancel()
	msg, err := h.server.statsMessage(ctx)
	if err != nil {
		return
	}
	h.server.Broadcast(msg)
}
