package room

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// LifecycleEvent is the wire shape pushed to WebSocket subscribers of a room.
type LifecycleEvent struct {
	RoomCode string         `json:"roomCode"`
	Type     EventType      `json:"type"`
	Payload  map[string]any `json:"payload,omitempty"`
	At       time.Time      `json:"at"`
}

// EventBroadcaster manages WebSocket connections and pushes room lifecycle
// events to subscribers, keyed by room code.
type EventBroadcaster struct {
	mu          sync.RWMutex
	connections map[string]map[*websocket.Conn]bool // roomCode -> connections
	// writers serializes writes per connection; gorilla/websocket allows at
	// most one concurrent writer per conn.
	writers map[*websocket.Conn]*sync.Mutex
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		connections: make(map[string]map[*websocket.Conn]bool),
		writers:     make(map[*websocket.Conn]*sync.Mutex),
	}
}

// Subscribe registers a WebSocket connection for a room.
func (b *EventBroadcaster) Subscribe(roomCode string, conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connections[roomCode] == nil {
		b.connections[roomCode] = make(map[*websocket.Conn]bool)
	}
	b.connections[roomCode][conn] = true
	if b.writers[conn] == nil {
		b.writers[conn] = &sync.Mutex{}
	}
}

// Unsubscribe removes a WebSocket connection from all rooms.
func (b *EventBroadcaster) Unsubscribe(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for roomCode, conns := range b.connections {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(b.connections, roomCode)
		}
	}
	delete(b.writers, conn)
}

// Broadcast sends a lifecycle event to all subscribers of a room.
func (b *EventBroadcaster) Broadcast(roomCode string, eventType EventType, payload map[string]any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	conns, exists := b.connections[roomCode]
	if !exists || len(conns) == 0 {
		return
	}

	// Serialize once for all subscribers.
	data, err := json.Marshal(&LifecycleEvent{
		RoomCode: roomCode,
		Type:     eventType,
		Payload:  payload,
		At:       time.Now().UTC(),
	})
	if err != nil {
		slog.Error("failed to marshal lifecycle event", "error", err)
		return
	}

	for conn := range conns {
		wmu := b.writers[conn]
		wmu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		wmu.Unlock()
		if err != nil {
			slog.Warn("failed to send message to websocket client",
				"error", err,
				"room_code", roomCode,
			)
			// Connection is cleaned up when the client disconnects.
		}
	}
}

// ConnectionCount returns the number of active subscribers for a room.
func (b *EventBroadcaster) ConnectionCount(roomCode string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if conns, exists := b.connections[roomCode]; exists {
		return len(conns)
	}
	return 0
}
