package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eventwindow/eventwindow/internal/core"
	"github.com/eventwindow/eventwindow/internal/core/engine"
	apperrors "github.com/eventwindow/eventwindow/internal/errors"
	"github.com/eventwindow/eventwindow/internal/metrics"
	"github.com/eventwindow/eventwindow/internal/observability"
)

const streamWriteWait = 5 * time.Second

// StreamHub fans tracker snapshots out to websocket clients. Each client gets
// the current snapshot on connect, then one message per accepted mutation.
type StreamHub struct {
	tracker  *engine.Tracker
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	closed  bool
}

// NewStreamHub creates a hub for tracker. Call Run to start broadcasting.
func NewStreamHub(tracker *engine.Tracker) *StreamHub {
	return &StreamHub{
		tracker: tracker,
		upgrader: websocket.Upgrader{
			// Snapshots carry no credentials; any origin may watch.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

// Run broadcasts snapshots until snaps is closed, then disconnects every client.
func (h *StreamHub) Run(snaps <-chan core.Snapshot) {
	for snap := range snaps {
		msg, err := sonic.Marshal(snap)
		if err != nil {
			logStreamWarn("Failed to encode snapshot", zap.Error(err))
			continue
		}
		h.broadcast(msg)
	}
	h.closeAll()
}

// Clients returns the number of connected clients.
func (h *StreamHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP handles GET /v1/stream.
func (h *StreamHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("snapshot stream is shut down"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logStreamWarn("Websocket upgrade failed", zap.Error(err))
		return
	}

	snap := h.tracker.Snapshot(h.tracker.Now())
	snap.Reason = "connect"
	msg, err := sonic.Marshal(snap)
	if err != nil {
		_ = conn.Close()
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[conn] = true
	count := len(h.clients)
	h.mu.Unlock()
	metrics.SetStreamClients(count)

	defer h.unregister(conn)

	// Client messages are discarded; the read loop only notices disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
	metrics.SetStreamClients(len(h.clients))
}

func (h *StreamHub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	count := len(h.clients)
	h.mu.Unlock()

	_ = conn.Close()
	metrics.SetStreamClients(count)
}

func (h *StreamHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	deadline := time.Now().Add(streamWriteWait)
	closing := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for conn := range h.clients {
		_ = conn.WriteControl(websocket.CloseMessage, closing, deadline)
		_ = conn.Close()
		delete(h.clients, conn)
	}
	metrics.SetStreamClients(0)
}

func logStreamWarn(msg string, fields ...zap.Field) {
	if observability.ServerLogger != nil {
		observability.ServerLogger.Warn(msg, fields...)
	}
}
