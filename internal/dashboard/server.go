// Package dashboard serves live sync activity to operators.
//
// The server pushes orchestrator events to WebSocket clients on /ws and
// answers /health, /status and POST /sync. A Handler attached to the
// orchestrator turns its events into dashboard messages.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/edebt/syncengine/internal/daemon"
	esync "github.com/edebt/syncengine/internal/sync"
	"github.com/edebt/syncengine/internal/tracker"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	MessageTypeSyncStarted   MessageType = "sync_started"
	MessageTypeSyncCompleted MessageType = "sync_completed"
	MessageTypeSyncSkipped   MessageType = "sync_skipped"
	MessageTypeConnectivity  MessageType = "connectivity"
	MessageTypeStats         MessageType = "stats"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SyncData describes a cycle that started, completed or was skipped.
type SyncData struct {
	Trigger esync.Trigger `json:"trigger"`
	Status  esync.Status  `json:"status,omitempty"`
	Summary string        `json:"summary,omitempty"`
	Reason  string        `json:"reason,omitempty"`
	Result  *esync.Result `json:"result,omitempty"`
}

// ConnectivityData reports a connectivity transition.
type ConnectivityData struct {
	Online bool `json:"online"`
}

// StatsData is the local sync state plus the number of dashboard clients.
type StatsData struct {
	tracker.SyncStatus
	Clients int `json:"clients"`
}

// Controller is the orchestrator as seen by the dashboard.
type Controller interface {
	Status() daemon.Status
	SyncNow(ctx context.Context) (esync.Result, error)
}

// StatsSource reports local sync state. tracker.Service implements it.
type StatsSource interface {
	SyncStatus(ctx context.Context) (tracker.SyncStatus, error)
}

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8080, 0 picks a free port)
	Port int

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:   8080,
		Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
	}
}

// Server manages WebSocket connections and broadcasts dashboard messages
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	controller Controller
	stats      StatsSource

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewServer creates a dashboard server. stats may be nil.
func NewServer(config *Config, controller Controller, stats StatsSource) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = DefaultConfig().Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:       fmt.Sprintf(":%d", config.Port),
		controller: controller,
		stats:      stats,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Message, 100),
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
	}
}

// Routes returns the HTTP handler of the dashboard.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /sync", s.handleSync)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	return mux
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:     s.Routes(),
		ReadTimeout: 10 * time.Second,
		// POST /sync waits for a whole cycle
		WriteTimeout: 2 * time.Minute,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop closes every client and shuts the server down.
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard server")
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()
	s.logger.Println("Dashboard server stopped")
	return nil
}

// Broadcast queues msg for every connected client. A full queue drops msg.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Println("WARNING: broadcast channel full, dropping message")
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("WARNING: failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()
	s.logger.Printf("Client connected (total: %d)", clientCount)

	// New clients start from the current stats
	if msg, err := s.statsMessage(s.ctx); err == nil {
		data, _ := json.Marshal(msg)
		ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		_ = conn.Write(ctx, websocket.MessageText, data)
		cancel()
	}

	s.readLoop(conn)
}

// readLoop holds the connection until the client goes away.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; !exists {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, conn)
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Printf("Client disconnected (total: %d)", clientCount)
}

// statsMessage builds a stats message from the stats source.
func (s *Server) statsMessage(ctx context.Context) (Message, error) {
	var data StatsData
	if s.stats != nil {
		st, err := s.stats.SyncStatus(ctx)
		if err != nil {
			s.logger.Printf("WARNING: failed to read sync status: %v", err)
			return Message{}, err
		}
		data.SyncStatus = st
	}
	if s.controller != nil {
		data.Online = s.controller.Status().Online
	}
	data.Clients = s.ClientCount()

	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: raw}, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

// statusResponse is the body of GET /status.
type statusResponse struct {
	Orchestrator *daemon.Status      `json:"orchestrator,omitempty"`
	Local        *tracker.SyncStatus `json:"local,omitempty"`
	Clients      int                 `json:"clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Clients: s.ClientCount()}
	if s.controller != nil {
		st := s.controller.Status()
		resp.Orchestrator = &st
	}
	if s.stats != nil {
		st, err := s.stats.SyncStatus(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		resp.Local = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// syncResponse is the body of POST /sync.
type syncResponse struct {
	Status esync.Status `json:"status"`
	Result esync.Result `json:"result"`
	Error  string       `json:"error,omitempty"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.controller == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no orchestrator"})
		return
	}

	res, err := s.controller.SyncNow(r.Context())
	resp := syncResponse{Status: res.Status(), Result: res}
	code := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		switch {
		case errors.Is(err, daemon.ErrSyncInProgress):
			code = http.StatusConflict
		case errors.Is(err, daemon.ErrDebounced):
			code = http.StatusTooManyRequests
		default:
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>edebt sync</title>
</head>
<body>
    <h1>edebt sync dashboard</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Status: <a href="/status">/status</a>, health: <a href="/health">/health</a></p>
    <p>POST /sync runs a manual cycle.</p>
</body>
</html>`, r.Host)
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
