package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukerupert/remindd/internal/model"
)

// Event types pushed to GUI clients.
const (
	EventReminderUpdated  = "reminder_updated"
	EventReminderDeleted  = "reminder_deleted"
	EventCompletedUpdated = "completed_updated"
	EventRepeatUpdated    = "repeat_updated"
	EventListUpdated      = "list_updated"
	EventListDeleted      = "list_deleted"
)

// Message is one change notification broadcast to all connected clients.
type Message struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Data any    `json:"data,omitempty"`
}

// Hub maintains the set of active WebSocket clients and broadcasts
// change notifications. It implements the reminder service's Events sink.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full; drop rather than block the broadcaster.
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ReminderUpdated pushes the full updated record.
func (h *Hub) ReminderUpdated(r model.Reminder) {
	h.Broadcast(Message{Type: EventReminderUpdated, ID: r.ID, Data: r})
}

// ReminderDeleted pushes just the removed ID.
func (h *Hub) ReminderDeleted(id string) {
	h.Broadcast(Message{Type: EventReminderDeleted, ID: id})
}

// CompletedUpdated pushes a completion toggle.
func (h *Hub) CompletedUpdated(id string, completed bool) {
	h.Broadcast(Message{Type: EventCompletedUpdated, ID: id, Data: map[string]bool{"completed": completed}})
}

// RepeatUpdated pushes the recurrence state after a fire or catch-up.
func (h *Hub) RepeatUpdated(id string, timestamp, oldTimestamp int64, times int) {
	h.Broadcast(Message{Type: EventRepeatUpdated, ID: id, Data: map[string]int64{
		"timestamp":     timestamp,
		"old_timestamp": oldTimestamp,
		"repeat_times":  int64(times),
	}})
}

// ListUpdated pushes the full updated task list.
func (h *Hub) ListUpdated(l model.TaskList) {
	h.Broadcast(Message{Type: EventListUpdated, ID: l.ID, Data: l})
}

// ListDeleted pushes just the removed list ID.
func (h *Hub) ListDeleted(id string) {
	h.Broadcast(Message{Type: EventListDeleted, ID: id})
}
