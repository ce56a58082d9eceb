package room

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is an in-memory Store implementation for tests and local
// development. Single mutex across rooms, participants, and events so that
// multi-table operations stay atomic, mirroring a transaction.
type InMemoryStore struct {
	mu sync.RWMutex

	// rooms keyed by room code.
	rooms map[string]*Room
	// participants keyed by room id, then by identity.
	participants map[string]map[string]*Participant
	// events per room id, append order.
	events map[string][]*Event

	// now is swappable for tests.
	now func() time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rooms:        make(map[string]*Room),
		participants: make(map[string]map[string]*Participant),
		events:       make(map[string][]*Event),
		now:          time.Now,
	}
}

var _ Store = (*InMemoryStore)(nil)

// CreateRoom creates a room or returns the existing one for the code.
func (s *InMemoryStore) CreateRoom(ctx context.Context, code, creatorID string) (*Room, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createRoomLocked(code, creatorID)
}

func (s *InMemoryStore) createRoomLocked(code, creatorID string) (*Room, bool, error) {
	if existing, ok := s.rooms[code]; ok {
		return s.copyRoomLocked(existing), false, nil
	}

	r := &Room{
		ID:         uuid.NewString(),
		RoomCode:   code,
		CreatedBy:  creatorID,
		HostUserID: creatorID,
		Status:     StatusActive,
		CreatedAt:  s.now().UTC(),
	}
	s.rooms[code] = r
	s.participants[r.ID] = make(map[string]*Participant)
	s.appendLocked(Entry{
		RoomID:      r.ID,
		Type:        EventRoomCreated,
		ActorUserID: creatorID,
		Payload:     map[string]any{"roomCode": code},
	})
	return s.copyRoomLocked(r), true, nil
}

// GetRoom returns the room with its open presence intervals.
func (s *InMemoryStore) GetRoom(ctx context.Context, code string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return s.copyRoomLocked(r), nil
}

// HasRoom reports whether an active room with code exists.
func (s *InMemoryStore) HasRoom(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[code]
	return ok && r.Status == StatusActive, nil
}

// ListRooms returns all rooms ordered by creation time.
func (s *InMemoryStore) ListRooms(ctx context.Context) ([]*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, s.copyRoomLocked(r))
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].RoomCode < rooms[j].RoomCode
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms, nil
}

// MarkEnded transitions an active room to ended.
func (s *InMemoryStore) MarkEnded(ctx context.Context, code string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if r.Status == StatusEnded {
		return nil, ErrRoomEnded
	}
	now := s.now().UTC()
	r.Status = StatusEnded
	r.EndedAt = &now
	return s.copyRoomLocked(r), nil
}

// DeleteRoom removes the room and everything hanging off it.
func (s *InMemoryStore) DeleteRoom(ctx context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[code]
	if !ok {
		return false, nil
	}
	s.appendLocked(Entry{
		RoomID:  r.ID,
		Type:    EventRoomDeleted,
		Payload: map[string]any{"roomCode": code},
	})
	s.deleteRoomLocked(r)
	return true, nil
}

func (s *InMemoryStore) deleteRoomLocked(r *Room) {
	delete(s.rooms, r.RoomCode)
	delete(s.participants, r.ID)
	delete(s.events, r.ID)
}

// AddParticipant upserts the presence interval for (room, identity), creating
// the room when it does not exist yet.
func (s *InMemoryStore) AddParticipant(ctx context.Context, code string, join Join) (*Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[code]
	if !ok {
		created, _, err := s.createRoomLocked(code, join.creatorID())
		if err != nil {
			return nil, err
		}
		r = s.rooms[created.RoomCode]
	}
	if r.Status == StatusEnded {
		return nil, ErrRoomEnded
	}

	now := s.now().UTC()
	isHost := join.UserID != "" && join.UserID == r.HostUserID

	p, ok := s.participants[r.ID][join.Identity]
	if ok {
		p.UserID = join.UserID
		p.DisplayName = join.DisplayName
		p.Role = join.Role
		p.IsHost = isHost
		p.JoinedAt = now
		p.LeftAt = nil
	} else {
		p = &Participant{
			ID:          uuid.NewString(),
			RoomID:      r.ID,
			UserID:      join.UserID,
			Identity:    join.Identity,
			DisplayName: join.DisplayName,
			Role:        join.Role,
			IsHost:      isHost,
			JoinedAt:    now,
		}
		s.participants[r.ID][join.Identity] = p
	}

	s.appendLocked(Entry{
		RoomID:      r.ID,
		Type:        EventJoin,
		ActorUserID: join.UserID,
		Payload:     map[string]any{"identity": join.Identity, "name": join.DisplayName},
	})
	return copyParticipant(p), nil
}

// RemoveParticipant closes the open presence interval for (room, identity).
func (s *InMemoryStore) RemoveParticipant(ctx context.Context, code, identity string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[code]
	if !ok {
		return false, nil
	}
	p, ok := s.participants[r.ID][identity]
	if !ok || p.LeftAt != nil {
		return false, nil
	}
	now := s.now().UTC()
	p.LeftAt = &now
	s.appendLocked(Entry{
		RoomID:      r.ID,
		Type:        EventLeave,
		ActorUserID: p.UserID,
		Payload:     map[string]any{"identity": identity},
	})
	return true, nil
}

// ActiveParticipants returns the open presence intervals ordered by join time.
func (s *InMemoryStore) ActiveParticipants(ctx context.Context, code string) ([]*Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return s.activeParticipantsLocked(r.ID), nil
}

func (s *InMemoryStore) activeParticipantsLocked(roomID string) []*Participant {
	out := make([]*Participant, 0)
	for _, p := range s.participants[roomID] {
		if p.LeftAt == nil {
			out = append(out, copyParticipant(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].Identity < out[j].Identity
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Append records a room lifecycle event.
func (s *InMemoryStore) Append(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(entry)
	return nil
}

func (s *InMemoryStore) appendLocked(entry Entry) {
	e := &Event{
		ID:          uuid.NewString(),
		RoomID:      entry.RoomID,
		Type:        entry.Type,
		ActorUserID: entry.ActorUserID,
		Payload:     entry.Payload,
		CreatedAt:   s.now().UTC(),
	}
	s.events[entry.RoomID] = append(s.events[entry.RoomID], e)
}

// QueryByRoom returns events for a room, newest first.
func (s *InMemoryStore) QueryByRoom(ctx context.Context, roomID string, limit int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.events[roomID]
	out := make([]*Event, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, copyEvent(stored[i]))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// CleanupOld removes room events older than cutoff across all rooms.
func (s *InMemoryStore) CleanupOld(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for roomID, events := range s.events {
		kept := events[:0]
		for _, e := range events {
			if e.CreatedAt.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(s.events, roomID)
			continue
		}
		s.events[roomID] = kept
	}
	return deleted, nil
}

// StaleEmptyRooms returns active rooms older than cutoff with no open
// presence intervals.
func (s *InMemoryStore) StaleEmptyRooms(ctx context.Context, cutoff time.Time) ([]StaleRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []StaleRoom
	for _, r := range s.rooms {
		if r.Status != StatusActive || !r.CreatedAt.Before(cutoff) {
			continue
		}
		if s.openCountLocked(r.ID) == 0 {
			out = append(out, StaleRoom{ID: r.ID, RoomCode: r.RoomCode})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomCode < out[j].RoomCode })
	return out, nil
}

// DeleteIfStillEmpty deletes the room only if it is still active, still old
// enough, and still has no open presence intervals.
func (s *InMemoryStore) DeleteIfStillEmpty(ctx context.Context, roomID string, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.roomByIDLocked(roomID)
	if r == nil || r.Status != StatusActive || !r.CreatedAt.Before(cutoff) {
		return false, nil
	}
	if s.openCountLocked(r.ID) != 0 {
		return false, nil
	}
	s.deleteRoomLocked(r)
	return true, nil
}

// EndedRoomsBefore returns ended rooms whose ended_at is before cutoff.
func (s *InMemoryStore) EndedRoomsBefore(ctx context.Context, cutoff time.Time) ([]StaleRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []StaleRoom
	for _, r := range s.rooms {
		if r.Status == StatusEnded && r.EndedAt != nil && r.EndedAt.Before(cutoff) {
			out = append(out, StaleRoom{ID: r.ID, RoomCode: r.RoomCode})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomCode < out[j].RoomCode })
	return out, nil
}

// DeleteRoomByID hard-deletes a room row by id.
func (s *InMemoryStore) DeleteRoomByID(ctx context.Context, roomID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.roomByIDLocked(roomID)
	if r == nil {
		return false, nil
	}
	s.deleteRoomLocked(r)
	return true, nil
}

func (s *InMemoryStore) roomByIDLocked(roomID string) *Room {
	for _, r := range s.rooms {
		if r.ID == roomID {
			return r
		}
	}
	return nil
}

func (s *InMemoryStore) openCountLocked(roomID string) int {
	n := 0
	for _, p := range s.participants[roomID] {
		if p.LeftAt == nil {
			n++
		}
	}
	return n
}

func (s *InMemoryStore) copyRoomLocked(r *Room) *Room {
	cp := *r
	if r.EndedAt != nil {
		t := *r.EndedAt
		cp.EndedAt = &t
	}
	cp.Participants = s.activeParticipantsLocked(r.ID)
	return &cp
}

func copyParticipant(p *Participant) *Participant {
	cp := *p
	if p.LeftAt != nil {
		t := *p.LeftAt
		cp.LeftAt = &t
	}
	return &cp
}

func copyEvent(e *Event) *Event {
	cp := *e
	if e.Payload != nil {
		cp.Payload = make(map[string]any, len(e.Payload))
		for k, v := range e.Payload {
			cp.Payload[k] = v
		}
	}
	return &cp
}
