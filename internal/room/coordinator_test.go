package room

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

type fakeMedia struct {
	removeErr  error
	deleteErr  error
	removed    []string
	deleted    []string
	lastRoom   string
	lastTarget string
}

func (f *fakeMedia) RemoveParticipant(ctx context.Context, roomCode, identity string) error {
	f.lastRoom, f.lastTarget = roomCode, identity
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, identity)
	return nil
}

func (f *fakeMedia) DeleteRoom(ctx context.Context, roomCode string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, roomCode)
	return nil
}

type fakePurger struct {
	count int64
	err   error
	rooms []string
}

func (f *fakePurger) DeleteByRoom(ctx context.Context, roomID string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.rooms = append(f.rooms, roomID)
	return f.count, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func seedRoom(t *testing.T, store *InMemoryStore) {
	t.Helper()
	ctx := context.Background()
	if _, err := store.AddParticipant(ctx, "abc-defg-hij", Join{Identity: "Teacher", UserID: "teacher-1"}); err != nil {
		t.Fatalf("host join error = %v", err)
	}
	if _, err := store.AddParticipant(ctx, "abc-defg-hij", Join{Identity: "Student", UserID: "student-1"}); err != nil {
		t.Fatalf("student join error = %v", err)
	}
}

func TestCoordinatorKickParticipant(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	media := &fakeMedia{}
	c := NewCoordinator(store, discardLogger(), WithMediaController(media))
	seedRoom(t, store)

	result, err := c.KickParticipant(ctx, "abc-defg-hij", "teacher-1", "Student")
	if err != nil {
		t.Fatalf("KickParticipant() error = %v", err)
	}
	if !result.MediaDisconnected {
		t.Error("expected media disconnect to succeed")
	}
	if media.lastTarget != "Student" {
		t.Errorf("media target = %q, want Student", media.lastTarget)
	}

	active := mustActive(t, store, "abc-defg-hij")
	if len(active) != 1 || active[0].Identity != "Teacher" {
		t.Errorf("active after kick = %+v, want only the host", active)
	}

	// A PARTICIPANT_KICKED event follows the LEAVE event.
	r, err := store.GetRoom(ctx, "abc-defg-hij")
	if err != nil {
		t.Fatalf("GetRoom() error = %v", err)
	}
	events, err := store.QueryByRoom(ctx, r.ID, 2)
	if err != nil {
		t.Fatalf("QueryByRoom() error = %v", err)
	}
	if len(events) != 2 || events[0].Type != EventParticipantKicked || events[1].Type != EventLeave {
		t.Errorf("recent events = %v, %v; want PARTICIPANT_KICKED then LEAVE", events[0].Type, events[1].Type)
	}
}

func TestCoordinatorKickAuthorization(t *testing.T) {
	tests := []struct {
		name      string
		requester string
		target    string
		wantErr   error
	}{
		{"non-host requester", "student-1", "Teacher", ErrNotHost},
		{"empty requester", "", "Student", ErrNotHost},
		{"host targets itself", "teacher-1", "Teacher", ErrCannotKickHost},
		{"unknown target", "teacher-1", "Ghost", ErrParticipantNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewInMemoryStore()
			c := NewCoordinator(store, discardLogger())
			seedRoom(t, store)

			_, err := c.KickParticipant(context.Background(), "abc-defg-hij", tt.requester, tt.target)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("KickParticipant() error = %v, want %v", err, tt.wantErr)
			}
			// Nothing was removed on a refused kick.
			if got := len(mustActive(t, store, "abc-defg-hij")); got != 2 {
				t.Errorf("active participants = %d after refused kick, want 2", got)
			}
		})
	}
}

func TestCoordinatorKickMissingRoom(t *testing.T) {
	c := NewCoordinator(NewInMemoryStore(), discardLogger())

	if _, err := c.KickParticipant(context.Background(), "nox-such-roo", "teacher-1", "Student"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("KickParticipant() error = %v, want ErrRoomNotFound", err)
	}
}

func TestCoordinatorKickMediaFailureIsSoft(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	media := &fakeMedia{removeErr: errors.New("media server unreachable")}
	c := NewCoordinator(store, discardLogger(), WithMediaController(media), WithMediaTimeout(time.Second))
	seedRoom(t, store)

	result, err := c.KickParticipant(ctx, "abc-defg-hij", "teacher-1", "Student")
	if err != nil {
		t.Fatalf("KickParticipant() error = %v, want soft media failure", err)
	}
	if result.MediaDisconnected {
		t.Error("expected MediaDisconnected=false when the media call fails")
	}
	if result.MediaError == "" {
		t.Error("expected MediaError to carry the failure")
	}
	// Local removal still happened.
	if got := len(mustActive(t, store, "abc-defg-hij")); got != 1 {
		t.Errorf("active participants = %d, want 1", got)
	}
}

func TestCoordinatorEndRoom(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	media := &fakeMedia{}
	messages := &fakePurger{count: 12}
	transcripts := &fakePurger{count: 3}
	c := NewCoordinator(store, discardLogger(),
		WithMediaController(media),
		WithMessagePurger(messages),
		WithTranscriptPurger(transcripts),
	)
	seedRoom(t, store)

	result, err := c.EndRoom(ctx, "abc-defg-hij", "teacher-1")
	if err != nil {
		t.Fatalf("EndRoom() error = %v", err)
	}
	if result.MessagesDeleted != 12 || result.TranscriptsDeleted != 3 {
		t.Errorf("deleted counts = %d/%d, want 12/3", result.MessagesDeleted, result.TranscriptsDeleted)
	}
	if !result.MediaRoomDeleted {
		t.Error("expected media room teardown to succeed")
	}
	if result.Room == nil || result.Room.Status != StatusEnded {
		t.Errorf("room = %+v, want ended", result.Room)
	}
	if got := len(mustActive(t, store, "abc-defg-hij")); got != 0 {
		t.Errorf("active participants = %d after end, want 0", got)
	}
	if len(messages.rooms) != 1 || len(transcripts.rooms) != 1 {
		t.Error("expected both collaborators to be purged exactly once")
	}
}

func TestCoordinatorEndRoomAuthorization(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	c := NewCoordinator(store, discardLogger())
	seedRoom(t, store)

	if _, err := c.EndRoom(ctx, "abc-defg-hij", "student-1"); !errors.Is(err, ErrNotHost) {
		t.Errorf("EndRoom() by non-host error = %v, want ErrNotHost", err)
	}
	if _, err := c.EndRoom(ctx, "nox-such-roo", "teacher-1"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("EndRoom() on missing room error = %v, want ErrRoomNotFound", err)
	}

	if _, err := c.EndRoom(ctx, "abc-defg-hij", "teacher-1"); err != nil {
		t.Fatalf("EndRoom() error = %v", err)
	}
	if _, err := c.EndRoom(ctx, "abc-defg-hij", "teacher-1"); !errors.Is(err, ErrRoomEnded) {
		t.Errorf("second EndRoom() error = %v, want ErrRoomEnded", err)
	}
}

func TestCoordinatorEndRoomMediaFailureIsSoft(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	media := &fakeMedia{deleteErr: errors.New("timeout")}
	c := NewCoordinator(store, discardLogger(), WithMediaController(media))
	seedRoom(t, store)

	result, err := c.EndRoom(ctx, "abc-defg-hij", "teacher-1")
	if err != nil {
		t.Fatalf("EndRoom() error = %v, want soft media failure", err)
	}
	if result.MediaRoomDeleted {
		t.Error("expected MediaRoomDeleted=false when teardown fails")
	}
	if result.MediaError == "" {
		t.Error("expected MediaError to carry the failure")
	}
	// The room is ended locally regardless.
	r, err := store.GetRoom(ctx, "abc-defg-hij")
	if err != nil {
		t.Fatalf("GetRoom() error = %v", err)
	}
	if !r.IsEnded() {
		t.Error("expected room to be ended despite the media failure")
	}
}

func TestCoordinatorSweepStaleRooms(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	messages := &fakePurger{}
	c := NewCoordinator(store, discardLogger(), WithMessagePurger(messages))

	past := time.Now().Add(-48 * time.Hour)
	store.now = func() time.Time { return past }
	if _, _, err := store.CreateRoom(ctx, "aaa-empt-yyy", "teacher-1"); err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	if _, err := store.AddParticipant(ctx, "bbb-busy-yyy", Join{Identity: "Alice", UserID: "user-1"}); err != nil {
		t.Fatalf("AddParticipant() error = %v", err)
	}
	store.now = time.Now

	report, err := c.SweepStaleRooms(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("SweepStaleRooms() error = %v", err)
	}
	if report.Candidates != 1 || report.Deleted != 1 || report.Skipped != 0 {
		t.Errorf("report = %+v, want 1 candidate deleted", report)
	}
	if _, err := store.GetRoom(ctx, "aaa-empt-yyy"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("stale room still present, GetRoom() error = %v", err)
	}
	if _, err := store.GetRoom(ctx, "bbb-busy-yyy"); err != nil {
		t.Errorf("occupied room removed by sweep: %v", err)
	}
	if len(messages.rooms) != 1 {
		t.Errorf("message purges = %d, want 1", len(messages.rooms))
	}
}

func TestCoordinatorSweepEndedRooms(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	c := NewCoordinator(store, discardLogger())

	past := time.Now().Add(-10 * 24 * time.Hour)
	store.now = func() time.Time { return past }
	if _, _, err := store.CreateRoom(ctx, "aaa-olde-ddd", "teacher-1"); err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	if _, err := store.MarkEnded(ctx, "aaa-olde-ddd"); err != nil {
		t.Fatalf("MarkEnded() error = %v", err)
	}
	store.now = time.Now

	report, err := c.SweepEndedRooms(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("SweepEndedRooms() error = %v", err)
	}
	if report.Deleted != 1 {
		t.Errorf("report = %+v, want one deletion", report)
	}
	if _, err := store.GetRoom(ctx, "aaa-olde-ddd"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("expired room still present, GetRoom() error = %v", err)
	}
}
