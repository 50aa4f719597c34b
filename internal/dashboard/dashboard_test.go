package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/edebt/syncengine/internal/daemon"
	"github.com/edebt/syncengine/internal/gateway"
	"github.com/edebt/syncengine/internal/schema"
	esync "github.com/edebt/syncengine/internal/sync"
	"github.com/edebt/syncengine/internal/tracker"
)

type fakeController struct {
	status daemon.Status
	result esync.Result
	err    error
}

func (c *fakeController) Status() daemon.Status { return c.status }

func (c *fakeController) SyncNow(ctx context.Context) (esync.Result, error) {
	return c.result, c.err
}

type fakeStats struct {
	status tracker.SyncStatus
}

func (s *fakeStats) SyncStatus(ctx context.Context) (tracker.SyncStatus, error) {
	return s.status, nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func startServer(t *testing.T, ctrl Controller, stats StatsSource) *Server {
	t.Helper()
	server := NewServer(&Config{Port: 0, Logger: quietLogger()}, ctrl, stats)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// readUntil reads messages until one of type typ arrives.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ MessageType) Message {
	t.Helper()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Failed to read %s message: %v", typ, err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		if msg.Type == typ {
			return msg
		}
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0, Logger: quietLogger()}, nil, nil)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if addr := server.GetAddr(); addr == "" || addr == ":0" {
		t.Errorf("GetAddr() = %q, want the bound address", addr)
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocket_WelcomeStats(t *testing.T) {
	stats := &fakeStats{status: tracker.SyncStatus{Pending: 3, Quarantined: 1, Backend: "sqlite"}}
	ctrl := &fakeController{status: daemon.Status{State: daemon.StateIdle, Online: true}}
	server := startServer(t, ctrl, stats)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, server)

	msg := readUntil(t, ctx, conn, MessageTypeStats)
	var data StatsData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal stats: %v", err)
	}
	if data.Pending != 3 || data.Quarantined != 1 || !data.Online || data.Clients != 1 {
		t.Errorf("stats = %+v", data)
	}
	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}

func TestHandler_BroadcastsEvents(t *testing.T) {
	server := startServer(t, &fakeController{}, &fakeStats{})
	handler := NewHandler(server, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const numClients = 2
	var clients []*websocket.Conn
	for i := 0; i < numClients; i++ {
		conn := dial(t, ctx, server)
		readUntil(t, ctx, conn, MessageTypeStats)
		clients = append(clients, conn)
	}

	res := esync.Result{Trigger: esync.TriggerManual, UploadedOrders: 2, Downloaded: true}
	handler.OnEvent(daemon.Event{Type: daemon.EventSyncCompleted, Trigger: esync.TriggerManual, Result: &res, Time: time.Now()})
	handler.OnEvent(daemon.Event{Type: daemon.EventOffline, Time: time.Now()})

	for i, conn := range clients {
		msg := readUntil(t, ctx, conn, MessageTypeSyncCompleted)
		var data SyncData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			t.Fatalf("client %d: failed to unmarshal: %v", i, err)
		}
		if data.Status != esync.StatusSuccess || data.Trigger != esync.TriggerManual {
			t.Errorf("client %d: sync data = %+v", i, data)
		}
		if data.Result == nil || data.Result.UploadedOrders != 2 {
			t.Errorf("client %d: result = %+v", i, data.Result)
		}

		msg = readUntil(t, ctx, conn, MessageTypeConnectivity)
		var conn2 ConnectivityData
		if err := json.Unmarshal(msg.Data, &conn2); err != nil {
			t.Fatalf("client %d: failed to unmarshal: %v", i, err)
		}
		if conn2.Online {
			t.Errorf("client %d: connectivity online = true, want false", i)
		}
	}
}

// fakeSyncer completes every cycle at once.
type fakeSyncer struct{}

func (fakeSyncer) Upload(ctx context.Context) esync.UploadResult { return esync.UploadResult{} }

func (fakeSyncer) Download(ctx context.Context) (esync.DownloadResult, error) {
	return esync.DownloadResult{}, nil
}

func (fakeSyncer) FullSync(ctx context.Context, trigger esync.Trigger) esync.Result {
	return esync.Result{Trigger: trigger, Downloaded: true}
}

type emptyBacklog struct{}

func (emptyBacklog) ListPending(ctx context.Context) ([]schema.PendingMutation, error) {
	return nil, nil
}

type healthy struct{}

func (healthy) HealthCheck(ctx context.Context) (*gateway.Health, error) {
	return &gateway.Health{Status: "OK"}, nil
}

func TestHandler_AttachedToOrchestrator(t *testing.T) {
	o, err := daemon.New(fakeSyncer{}, emptyBacklog{}, healthy{}, &daemon.Config{
		InitialSyncDelay: -1,
		Logger:           quietLogger(),
	})
	if err != nil {
		t.Fatalf("daemon.New() failed: %v", err)
	}
	defer o.Stop()

	server := startServer(t, o, nil)
	detach := NewHandler(server, nil).Attach(o)
	defer detach()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, server)
	readUntil(t, ctx, conn, MessageTypeStats)

	resp, err := http.Post("http://"+server.GetAddr()+"/sync", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /sync failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /sync status = %d, want 200", resp.StatusCode)
	}

	readUntil(t, ctx, conn, MessageTypeSyncStarted)
	msg := readUntil(t, ctx, conn, MessageTypeSyncCompleted)
	var data SyncData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if data.Trigger != esync.TriggerManual {
		t.Errorf("Trigger = %s, want %s", data.Trigger, esync.TriggerManual)
	}
}

func TestHandleSync_StatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ran", nil, http.StatusOK},
		{"in progress", daemon.ErrSyncInProgress, http.StatusConflict},
		{"debounced", daemon.ErrDebounced, http.StatusTooManyRequests},
		{"offline", daemon.ErrOffline, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeController{result: esync.Result{Trigger: esync.TriggerManual, Downloaded: true}, err: tt.err}
			if tt.err != nil {
				ctrl.result.Skipped = "x"
			}
			server := NewServer(&Config{Logger: quietLogger()}, ctrl, nil)

			rec := httptest.NewRecorder()
			server.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync", nil))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}

			var body syncResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			wantStatus := esync.StatusSuccess
			if tt.err != nil {
				wantStatus = esync.StatusSkipped
				if body.Error != tt.err.Error() {
					t.Errorf("error = %q, want %q", body.Error, tt.err.Error())
				}
			}
			if body.Status != wantStatus {
				t.Errorf("status = %s, want %s", body.Status, wantStatus)
			}
		})
	}
}

func TestHandleStatus(t *testing.T) {
	ctrl := &fakeController{status: daemon.Status{State: daemon.StateSyncing, Online: true}}
	stats := &fakeStats{status: tracker.SyncStatus{Pending: 2, Backend: "flat", Degraded: true}}
	server := NewServer(&Config{Logger: quietLogger()}, ctrl, stats)

	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Orchestrator == nil || body.Orchestrator.State != daemon.StateSyncing {
		t.Errorf("orchestrator = %+v", body.Orchestrator)
	}
	if body.Local == nil || body.Local.Pending != 2 || !body.Local.Degraded {
		t.Errorf("local = %+v", body.Local)
	}
}

func TestHandleSync_NoController(t *testing.T) {
	server := NewServer(&Config{Logger: quietLogger()}, nil, nil)
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /sync status = %d, want 405", rec.Code)
	}
}
