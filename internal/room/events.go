package room

import (
	"context"
	"time"
)

// EventType identifies a room lifecycle transition in the event log.
type EventType string

// Room lifecycle event types.
const (
	EventRoomCreated       EventType = "ROOM_CREATED"
	EventJoin              EventType = "JOIN"
	EventLeave             EventType = "LEAVE"
	EventParticipantKicked EventType = "PARTICIPANT_KICKED"
	EventRoomEnded         EventType = "ROOM_ENDED"
	EventRoomDeleted       EventType = "ROOM_DELETED"
)

// Event is one row of the append-only room event log. The log is written by
// the registry, tracker, and coordinator and is never read back by business
// logic; it exists for audit and external reporting.
type Event struct {
	ID          string         `json:"id"`
	RoomID      string         `json:"room_id"`
	Type        EventType      `json:"event_type"`
	ActorUserID string         `json:"actor_user_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Entry is the input for appending a room event.
type Entry struct {
	RoomID      string
	Type        EventType
	ActorUserID string
	Payload     map[string]any
}

// EventLog defines the append-only audit log for room lifecycle transitions.
type EventLog interface {
	// Append records a room lifecycle event.
	Append(ctx context.Context, entry Entry) error

	// QueryByRoom returns events for a room, newest first, for admin and
	// reporting surfaces only. Limit 0 means no limit.
	QueryByRoom(ctx context.Context, roomID string, limit int) ([]*Event, error)

	// CleanupOld removes events older than the cutoff across all rooms and
	// reports the count. Used by the admin cleanup endpoints.
	CleanupOld(ctx context.Context, cutoff time.Time) (int64, error)
}
