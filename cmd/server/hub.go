package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dontdude/gograde/internal/domain"
)

const writeWait = 5 * time.Second

// hub tracks WebSocket clients per job id.
type hub struct {
	mu      sync.Mutex
	clients map[string]map[*websocket.Conn]struct{}
	logger  *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{clients: make(map[string]map[*websocket.Conn]struct{}), logger: logger}
}

func (h *hub) add(jobID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[jobID] == nil {
		h.clients[jobID] = make(map[*websocket.Conn]struct{})
	}
	h.clients[jobID][conn] = struct{}{}
}

func (h *hub) remove(jobID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[jobID], conn)
	if len(h.clients[jobID]) == 0 {
		delete(h.clients, jobID)
	}
}

// send writes event to every client of its job. Writes happen under the lock,
// which also serialises writers on each connection.
func (h *hub) send(event domain.JobEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients[event.JobID] {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(event); err != nil {
			h.logger.Warn("Failed to write to websocket", "job_id", event.JobID, "err", err)
			delete(h.clients[event.JobID], conn)
			_ = conn.Close()
		}
	}
}

// forward relays store events to clients until ctx is done or the stream closes.
func (h *hub) forward(ctx context.Context, events <-chan domain.JobEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.send(ev)
		}
	}
}
