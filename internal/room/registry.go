package room

import (
	"context"
	"errors"
	"time"
)

// Common errors for room operations.
var (
	// ErrRoomNotFound is returned when a room does not exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomEnded is returned when an operation requires an active room
	// but the room has already been ended.
	ErrRoomEnded = errors.New("room already ended")

	// ErrParticipantNotFound is returned when a participant has no open
	// presence interval in the room.
	ErrParticipantNotFound = errors.New("participant not found in room")

	// ErrNotHost is returned when a non-host attempts a host-only action.
	ErrNotHost = errors.New("only the host can perform this action")

	// ErrCannotKickHost is returned when the kick target is the host.
	// The host can never be kicked, including by itself.
	ErrCannotKickHost = errors.New("cannot kick the host")
)

// Registry is the source of truth for room existence and host identity.
type Registry interface {
	// CreateRoom creates a room with code, owned and hosted by creatorID.
	// Idempotent: if a room with the code already exists (in any status) the
	// existing room is returned unchanged and created is false. Concurrent
	// creates for the same new code must converge on a single row; a
	// unique-constraint loss is converted into a re-fetch, never an error.
	// Emits ROOM_CREATED when a row is actually inserted.
	CreateRoom(ctx context.Context, code, creatorID string) (r *Room, created bool, err error)

	// GetRoom loads the room plus its open presence intervals ordered by
	// join time. Returns ErrRoomNotFound if no room with code exists.
	GetRoom(ctx context.Context, code string) (*Room, error)

	// HasRoom reports whether a room with code exists and is still active.
	HasRoom(ctx context.Context, code string) (bool, error)

	// ListRooms returns all rooms with their open presence intervals,
	// ordered by creation time.
	ListRooms(ctx context.Context) ([]*Room, error)

	// MarkEnded transitions an active room to ended and stamps ended_at.
	// Returns ErrRoomNotFound or ErrRoomEnded as appropriate. There is no
	// transition back from ended to active.
	MarkEnded(ctx context.Context, code string) (*Room, error)

	// DeleteRoom emits ROOM_DELETED then hard-deletes the room row.
	// Dependent participants and events are removed by cascade.
	// Returns false if no room with code exists.
	DeleteRoom(ctx context.Context, code string) (bool, error)
}

// Tracker records participant presence within rooms.
type Tracker interface {
	// AddParticipant upserts the presence interval for (room, identity).
	// If the room does not exist it is implicitly created with this
	// participant as creator and host. The stored host flag is computed at
	// join time by comparing the joiner's id against the room's immutable
	// host id. Emits a JOIN event.
	AddParticipant(ctx context.Context, code string, join Join) (*Participant, error)

	// RemoveParticipant closes the open presence interval for
	// (room, identity) by stamping left_at. Returns false without emitting
	// an event when the room or an open interval does not exist; closing an
	// already-closed interval is a no-op. Never touches room.HostUserID.
	RemoveParticipant(ctx context.Context, code, identity string) (bool, error)

	// ActiveParticipants returns the open presence intervals for a room,
	// ordered by join time. Returns ErrRoomNotFound if the room is absent.
	ActiveParticipants(ctx context.Context, code string) ([]*Participant, error)
}

// StaleRoom is a sweep candidate: an active room with zero open presence
// intervals past the staleness threshold.
type StaleRoom struct {
	ID       string
	RoomCode string
}

// Sweep exposes the staleness and retention queries used by the lifecycle
// coordinator's cleanup passes.
type Sweep interface {
	// StaleEmptyRooms returns active rooms created before cutoff that have
	// zero open presence intervals at snapshot time.
	StaleEmptyRooms(ctx context.Context, cutoff time.Time) ([]StaleRoom, error)

	// DeleteIfStillEmpty re-checks the zero-participant condition and
	// deletes the room in one step. Returns false when the room gained a
	// participant (or vanished) between snapshot and delete.
	DeleteIfStillEmpty(ctx context.Context, roomID string, cutoff time.Time) (bool, error)

	// EndedRoomsBefore returns ended rooms whose ended_at is before cutoff.
	EndedRoomsBefore(ctx context.Context, cutoff time.Time) ([]StaleRoom, error)

	// DeleteRoomByID hard-deletes a room row by id. Returns false if the
	// row no longer exists.
	DeleteRoomByID(ctx context.Context, roomID string) (bool, error)
}

// Store bundles the persistence interfaces implemented by both the
// in-memory and Postgres backends.
type Store interface {
	Registry
	Tracker
	EventLog
	Sweep
}
