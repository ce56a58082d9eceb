// Package api provides the WebSocket subscription handler for room
// lifecycle events.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/trungducnguyen4/classroom-service/internal/middleware"
	"github.com/trungducnguyen4/classroom-service/internal/room"
)

// EventWebSocketHandlers holds dependencies for the lifecycle event
// WebSocket endpoint.
type EventWebSocketHandlers struct {
	store       room.Registry
	broadcaster *room.EventBroadcaster
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// NewEventWebSocketHandlers creates a new EventWebSocketHandlers instance.
// allowedOrigins restricts which browser origins may open a subscription;
// an empty list allows all origins.
func NewEventWebSocketHandlers(store room.Registry, broadcaster *room.EventBroadcaster, allowedOrigins []string, logger *slog.Logger) *EventWebSocketHandlers {
	if logger == nil {
		logger = slog.Default()
	}

	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}

	return &EventWebSocketHandlers{
		store:       store,
		broadcaster: broadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(originSet) == 0 {
					return true
				}
				return originSet[r.Header.Get("Origin")]
			},
		},
		logger: logger,
	}
}

// Subscribe handles GET /meeting/events/{roomCode}.
// Upgrades the connection to a WebSocket and streams room lifecycle events
// (JOIN, LEAVE, PARTICIPANT_KICKED, ROOM_ENDED) until the client disconnects.
func (h *EventWebSocketHandlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	code := room.SanitizeRoomCode(r.PathValue("roomCode"))
	if !room.ValidRoomCode(code) {
		ctxErr := middleware.SetErrorCode(ctx, ErrCodeInvalidRoomCode)
		WriteError(w, ctxErr, http.StatusBadRequest, ErrCodeInvalidRoomCode, "roomCode must match the xxx-yyyy-zzz format")
		return
	}

	// Only existing rooms can be watched; a subscription does not create one.
	if _, err := h.store.GetRoom(ctx, code); err != nil {
		ctxErr := middleware.SetErrorCode(ctx, ErrCodeNotFound)
		WriteError(w, ctxErr, http.StatusNotFound, ErrCodeNotFound, "Room not found")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to upgrade websocket connection",
			"error", err,
			"room_code", code,
		)
		return
	}

	h.broadcaster.Subscribe(code, conn)

	requestID := middleware.GetRequestID(ctx)
	h.logger.InfoContext(ctx, "websocket client subscribed to room events",
		"room_code", code,
		"request_id", requestID,
	)

	defer func() {
		h.broadcaster.Unsubscribe(conn)
		conn.Close()
		h.logger.InfoContext(ctx, "websocket client unsubscribed",
			"room_code", code,
			"request_id", requestID,
		)
	}()

	// Clients do not send messages; reading detects disconnection.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.WarnContext(ctx, "websocket connection closed unexpectedly",
					"error", err,
					"room_code", code,
				)
			}
			break
		}
	}
}
