// Package room provides models and repositories for classroom meeting rooms,
// their participants, and the room lifecycle event log.
package room

import (
	"time"
)

// Room lifecycle statuses.
const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Room represents a classroom meeting room.
// HostUserID is set to the creator at creation time and is never reassigned,
// even if the host leaves and rejoins while others are present.
type Room struct {
	ID         string     `json:"id"`
	RoomCode   string     `json:"roomCode"`
	CreatedBy  string     `json:"createdBy"`
	HostUserID string     `json:"hostUserId"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`

	// Participants holds the open presence intervals (left_at IS NULL),
	// ordered by join time. Populated by GetRoom/ListRooms.
	Participants []*Participant `json:"participants"`
}

// IsEnded returns true if the room has been explicitly ended by its host.
func (r *Room) IsEnded() bool {
	return r.Status == StatusEnded
}

// Participant represents one presence interval of a participant in a room.
// A rejoin with the same (room, identity) pair reuses the row: joined_at is
// refreshed and left_at cleared rather than inserting a new identity row.
type Participant struct {
	ID          string     `json:"id"`
	RoomID      string     `json:"roomId"`
	UserID      string     `json:"userId"`
	Identity    string     `json:"identity"`
	DisplayName string     `json:"name"`
	Role        string     `json:"role,omitempty"`
	IsHost      bool       `json:"isHost"`
	JoinedAt    time.Time  `json:"joinedAt"`
	LeftAt      *time.Time `json:"leftAt,omitempty"`
}

// IsPresent returns true while the presence interval is open.
func (p *Participant) IsPresent() bool {
	return p.LeftAt == nil
}

// Join carries the attributes of a participant joining a room.
type Join struct {
	Identity    string
	UserID      string
	DisplayName string
	Role        string
}

// creatorID returns the identity used as room creator when a join implicitly
// creates the room: the stable user id when present, else the conferencing
// identity.
func (j Join) creatorID() string {
	if j.UserID != "" {
		return j.UserID
	}
	return j.Identity
}
