package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/trungducnguyen4/classroom-service/internal/chat"
	"github.com/trungducnguyen4/classroom-service/internal/livekit"
	"github.com/trungducnguyen4/classroom-service/internal/room"
	"github.com/trungducnguyen4/classroom-service/internal/token"
	"github.com/trungducnguyen4/classroom-service/internal/transcript"
)

// fakeMinter signs predictable tokens without touching LiveKit.
type fakeMinter struct {
	err error
}

func (m *fakeMinter) GenerateToken(req *livekit.TokenRequest) (*livekit.TokenResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &livekit.TokenResponse{Token: "tok-" + req.Identity}, nil
}

// fakeResolver resolves display names without a user directory.
type fakeResolver struct{}

func (fakeResolver) ResolveDisplayName(ctx context.Context, userID, preferred string) string {
	if preferred != "" {
		return preferred
	}
	if userID != "" {
		return "user-" + userID
	}
	return "guest"
}

// fakeMedia records media-server calls and can be told to fail.
type fakeMedia struct {
	mu          sync.Mutex
	removeErr   error
	deleteErr   error
	removed     []string
	deletedRoom []string
}

func (m *fakeMedia) RemoveParticipant(ctx context.Context, roomCode, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeErr != nil {
		return m.removeErr
	}
	m.removed = append(m.removed, roomCode+"/"+identity)
	return nil
}

func (m *fakeMedia) DeleteRoom(ctx context.Context, roomCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deletedRoom = append(m.deletedRoom, roomCode)
	return nil
}

// meetingTestEnv bundles the handler wiring used by the meeting tests.
type meetingTestEnv struct {
	store       *room.InMemoryStore
	messages    *chat.InMemoryRepository
	transcripts *transcript.InMemoryRepository
	media       *fakeMedia
	mux         *http.ServeMux
}

func newMeetingTestEnv(t *testing.T) *meetingTestEnv {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	store := room.NewInMemoryStore()
	messages := chat.NewInMemoryRepository()
	transcripts := transcript.NewInMemoryRepository()
	media := &fakeMedia{}

	coordinator := room.NewCoordinator(store, logger,
		room.WithMediaController(media),
		room.WithMessagePurger(messages),
		room.WithTranscriptPurger(transcripts),
	)
	issuer := token.NewIssuer(&fakeMinter{}, fakeResolver{}, store, nil, logger)

	h := NewMeetingHandlers(MeetingHandlersConfig{
		Store:       store,
		Issuer:      issuer,
		Coordinator: coordinator,
		Logger:      logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /meeting/token", h.IssueToken)
	mux.HandleFunc("POST /meeting/create", h.CreateRoom)
	mux.HandleFunc("GET /meeting/rooms", h.ListRooms)
	mux.HandleFunc("GET /meeting/check/{roomCode}", h.CheckRoom)
	mux.HandleFunc("DELETE /meeting/room/{roomCode}", h.DeleteRoom)
	mux.HandleFunc("POST /meeting/end/{roomCode}", h.End)
	mux.HandleFunc("POST /meeting/kick-participant", h.KickParticipant)
	mux.HandleFunc("POST /meeting/participant-left", h.ParticipantLeft)
	mux.HandleFunc("GET /meeting/participants/{roomCode}", h.ListParticipants)
	mux.HandleFunc("GET /meeting/{roomCode}", h.GetRoom)

	return &meetingTestEnv{
		store:       store,
		messages:    messages,
		transcripts: transcripts,
		media:       media,
		mux:         mux,
	}
}

func (e *meetingTestEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response: %v, body: %s", err, w.Body.String())
	}
	return v
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	if w.Code != wantStatus {
		t.Errorf("expected status %d, got %d, body: %s", wantStatus, w.Code, w.Body.String())
	}
	resp := decodeBody[ErrorResponse](t, w)
	if resp.Error.Code != wantCode {
		t.Errorf("expected error code %s, got %s", wantCode, resp.Error.Code)
	}
}

func TestCreateRoom_GeneratesCode(t *testing.T) {
	env := newMeetingTestEnv(t)

	w := env.do(t, http.MethodPost, "/meeting/create", CreateRoomRequest{UserID: "teacher-1"})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d, body: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[CreateRoomResponse](t, w)
	if !resp.Created {
		t.Error("expected created=true")
	}
	if !room.ValidRoomCode(resp.Room.RoomCode) {
		t.Errorf("generated code %q does not match the room code format", resp.Room.RoomCode)
	}
	if resp.Room.HostUserID != "teacher-1" {
		t.Errorf("expected host teacher-1, got %s", resp.Room.HostUserID)
	}
}

func TestCreateRoom_ExplicitCodeConflict(t *testing.T) {
	env := newMeetingTestEnv(t)

	first := env.do(t, http.MethodPost, "/meeting/create", CreateRoomRequest{UserID: "teacher-1", RoomCode: "abc-defg-hij"})
	if first.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", first.Code)
	}

	second := env.do(t, http.MethodPost, "/meeting/create", CreateRoomRequest{UserID: "teacher-2", RoomCode: "abc-defg-hij"})
	assertErrorCode(t, second, http.StatusConflict, ErrCodeConflict)

	// The existing room keeps its original host.
	rm, err := env.store.GetRoom(context.Background(), "abc-defg-hij")
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if rm.HostUserID != "teacher-1" {
		t.Errorf("host changed to %s after conflicting create", rm.HostUserID)
	}
}

func TestCreateRoom_Validation(t *testing.T) {
	env := newMeetingTestEnv(t)

	tests := []struct {
		name     string
		body     any
		wantCode string
	}{
		{"missing userId", CreateRoomRequest{RoomCode: "abc-defg-hij"}, ErrCodeValidation},
		{"malformed code", CreateRoomRequest{UserID: "u1", RoomCode: "not-a-code"}, ErrCodeInvalidRoomCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/meeting/create", tt.body)
			assertErrorCode(t, w, http.StatusBadRequest, tt.wantCode)
		})
	}
}

func TestCreateRoom_InvalidBody(t *testing.T) {
	env := newMeetingTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/meeting/create", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, req)

	assertErrorCode(t, w, http.StatusBadRequest, ErrCodeBadRequest)
}

func TestIssueToken_FirstJoinerBecomesHost(t *testing.T) {
	env := newMeetingTestEnv(t)

	w := env.do(t, http.MethodPost, "/meeting/token", TokenRequest{
		RoomCode: "abc-defg-hij",
		UserID:   "teacher-1",
		Name:     "Ms Nguyen",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d, body: %s", w.Code, w.Body.String())
	}
	grant := decodeBody[token.Grant](t, w)
	if grant.Token != "tok-Ms Nguyen" {
		t.Errorf("unexpected token %q", grant.Token)
	}
	if grant.Identity != "Ms Nguyen" {
		t.Errorf("expected identity to be the resolved name, got %q", grant.Identity)
	}
	if !grant.IsHost {
		t.Error("first joiner should be the host")
	}
	if !grant.Tracked {
		t.Error("expected presence to be tracked")
	}

	rm, err := env.store.GetRoom(context.Background(), "abc-defg-hij")
	if err != nil {
		t.Fatalf("room was not implicitly created: %v", err)
	}
	if rm.HostUserID != "teacher-1" {
		t.Errorf("expected host teacher-1, got %s", rm.HostUserID)
	}
}

func TestIssueToken_SecondJoinerIsNotHost(t *testing.T) {
	env := newMeetingTestEnv(t)

	env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "abc-defg-hij", UserID: "teacher-1"})
	w := env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "abc-defg-hij", UserID: "student-1"})

	grant := decodeBody[token.Grant](t, w)
	if grant.IsHost {
		t.Error("second joiner must not be the host")
	}
}

func TestIssueToken_NormalizesRoomCode(t *testing.T) {
	env := newMeetingTestEnv(t)

	w := env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "  ABC-DEFG-HIJ  ", UserID: "u1"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	grant := decodeBody[token.Grant](t, w)
	if grant.RoomCode != "abc-defg-hij" {
		t.Errorf("expected lowercased code, got %s", grant.RoomCode)
	}
}

func TestIssueToken_EndedRoomRefused(t *testing.T) {
	env := newMeetingTestEnv(t)
	ctx := context.Background()

	if _, _, err := env.store.CreateRoom(ctx, "abc-defg-hij", "teacher-1"); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if _, err := env.store.MarkEnded(ctx, "abc-defg-hij"); err != nil {
		t.Fatalf("MarkEnded failed: %v", err)
	}

	w := env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "abc-defg-hij", UserID: "student-1"})
	assertErrorCode(t, w, http.StatusConflict, ErrCodeRoomEnded)
}

func TestIssueToken_Validation(t *testing.T) {
	env := newMeetingTestEnv(t)

	tests := []struct {
		name     string
		body     TokenRequest
		wantCode string
	}{
		{"missing roomCode", TokenRequest{UserID: "u1"}, ErrCodeValidation},
		{"malformed roomCode", TokenRequest{RoomCode: "abcdefg", UserID: "u1"}, ErrCodeInvalidRoomCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/meeting/token", tt.body)
			assertErrorCode(t, w, http.StatusBadRequest, tt.wantCode)
		})
	}
}

func TestGetRoom(t *testing.T) {
	env := newMeetingTestEnv(t)

	env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "abc-defg-hij", UserID: "teacher-1", Name: "Host"})

	w := env.do(t, http.MethodGet, "/meeting/abc-defg-hij", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	rm := decodeBody[room.Room](t, w)
	if rm.RoomCode != "abc-defg-hij" {
		t.Errorf("unexpected room code %s", rm.RoomCode)
	}
	if len(rm.Participants) != 1 {
		t.Errorf("expected 1 present participant, got %d", len(rm.Participants))
	}
}

func TestGetRoom_NotFound(t *testing.T) {
	env := newMeetingTestEnv(t)

	w := env.do(t, http.MethodGet, "/meeting/zzz-zzzz-zzz", nil)
	assertErrorCode(t, w, http.StatusNotFound, ErrCodeNotFound)
}

func TestGetRoom_InvalidCode(t *testing.T) {
	env := newMeetingTestEnv(t)

	w := env.do(t, http.MethodGet, "/meeting/bogus", nil)
	assertErrorCode(t, w, http.StatusBadRequest, ErrCodeInvalidRoomCode)
}

func TestListParticipants(t *testing.T) {
	env := newMeetingTestEnv(t)

	env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "abc-defg-hij", UserID: "teacher-1", Name: "Host"})
	env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "abc-defg-hij", UserID: "student-1", Name: "Student"})

	w := env.do(t, http.MethodGet, "/meeting/participants/abc-defg-hij", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp struct {
		RoomCode     string              `json:"roomCode"`
		Participants []*room.Participant `json:"participants"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(resp.Participants))
	}
	if !resp.Participants[0].IsHost {
		t.Error("expected first joiner to be flagged as host")
	}
}

func TestParticipantLeft(t *testing.T) {
	env := newMeetingTestEnv(t)

	env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "abc-defg-hij", UserID: "student-1", Name: "Student"})

	w := env.do(t, http.MethodPost, "/meeting/participant-left", ParticipantLeftRequest{RoomCode: "abc-defg-hij", Identity: "Student"})
	resp := decodeBody[ParticipantLeftResponse](t, w)
	if !resp.Left {
		t.Error("expected left=true for an open presence interval")
	}

	// Leaving twice is a no-op.
	w = env.do(t, http.MethodPost, "/meeting/participant-left", ParticipantLeftRequest{RoomCode: "abc-defg-hij", Identity: "Student"})
	resp = decodeBody[ParticipantLeftResponse](t, w)
	if resp.Left {
		t.Error("expected left=false for an already-closed interval")
	}
}

func TestParticipantLeft_ReportsRemaining(t *testing.T) {
	env := newMeetingTestEnv(t)

	env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "abc-defg-hij", UserID: "teacher-1", Name: "Host"})
	env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "abc-defg-hij", UserID: "student-1", Name: "Student"})

	w := env.do(t, http.MethodPost, "/meeting/participant-left", ParticipantLeftRequest{RoomCode: "abc-defg-hij", Identity: "Student"})
	resp := decodeBody[ParticipantLeftResponse](t, w)
	if !resp.Left {
		t.Error("expected left=true")
	}
	if resp.IsEmpty {
		t.Error("expected isEmpty=false while the host is still present")
	}
	if resp.RemainingParticipants != 1 {
		t.Errorf("expected 1 remaining participant, got %d", resp.RemainingParticipants)
	}

	w = env.do(t, http.MethodPost, "/meeting/participant-left", ParticipantLeftRequest{RoomCode: "abc-defg-hij", Identity: "Host"})
	resp = decodeBody[ParticipantLeftResponse](t, w)
	if !resp.IsEmpty {
		t.Error("expected isEmpty=true after the last participant left")
	}
	if resp.RemainingParticipants != 0 {
		t.Errorf("expected 0 remaining participants, got %d", resp.RemainingParticipants)
	}
}

func TestParticipantLeft_UnknownRoomIsNoOp(t *testing.T) {
	env := newMeetingTestEnv(t)

	w := env.do(t, http.MethodPost, "/meeting/participant-left", ParticipantLeftRequest{RoomCode: "zzz-zzzz-zzz", Identity: "Student"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	resp := decodeBody[ParticipantLeftResponse](t, w)
	if resp.Left {
		t.Error("expected left=false for a room that does not exist")
	}
	if !resp.IsEmpty || resp.RemainingParticipants != 0 {
		t.Errorf("expected an empty report for an absent room, got %+v", resp)
	}
}

func TestParticipantLeft_InvalidRoomCode(t *testing.T) {
	env := newMeetingTestEnv(t)

	w := env.do(t, http.MethodPost, "/meeting/participant-left", ParticipantLeftRequest{RoomCode: "bogus", Identity: "Student"})
	assertErrorCode(t, w, http.StatusBadRequest, ErrCodeInvalidRoomCode)
}

func TestKickParticipant_HostRemovesParticipant(t *testing.T) {
	env := newMeetingTestEnv(t)

	env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "abc-defg-hij", UserID: "teacher-1", Name: "Host"})
	env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "abc-defg-hij", UserID: "student-1", Name: "Student"})

	w := env.do(t, http.MethodPost, "/meeting/kick-participant", KickParticipantRequest{RoomCode: "abc-defg-hij", HostUserID: "teacher-1", TargetIdentity: "Student"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d, body: %s", w.Code, w.Body.String())
	}
	result := decodeBody[room.KickResult](t, w)
	if !result.MediaDisconnected {
		t.Error("expected media disconnect to succeed")
	}

	participants, err := env.store.ActiveParticipants(context.Background(), "abc-defg-hij")
	if err != nil {
		t.Fatalf("ActiveParticipants failed: %v", err)
	}
	for _, p := range participants {
		if p.Identity == "Student" {
			t.Error("kicked participant still present")
		}
	}
}

func TestKickParticipant_AuthorizationMatrix(t *testing.T) {
	env := newMeetingTestEnv(t)

	env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "abc-defg-hij", UserID: "teacher-1", Name: "Host"})
	env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "abc-defg-hij", UserID: "student-1", Name: "Student"})

	tests := []struct {
		name       string
		req        KickParticipantRequest
		wantStatus int
		wantCode   string
	}{
		{"non-host requester", KickParticipantRequest{RoomCode: "abc-defg-hij", HostUserID: "student-1", TargetIdentity: "Host"}, http.StatusForbidden, ErrCodeNotHost},
		{"host kicking itself", KickParticipantRequest{RoomCode: "abc-defg-hij", HostUserID: "teacher-1", TargetIdentity: "Host"}, http.StatusForbidden, ErrCodeCannotKickHost},
		{"absent target", KickParticipantRequest{RoomCode: "abc-defg-hij", HostUserID: "teacher-1", TargetIdentity: "Nobody"}, http.StatusNotFound, ErrCodeNotFound},
		{"malformed room code", KickParticipantRequest{RoomCode: "bogus", HostUserID: "teacher-1", TargetIdentity: "Student"}, http.StatusBadRequest, ErrCodeInvalidRoomCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/meeting/kick-participant", tt.req)
			assertErrorCode(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestKickParticipant_UnknownRoom(t *testing.T) {
	env := newMeetingTestEnv(t)

	w := env.do(t, http.MethodPost, "/meeting/kick-participant", KickParticipantRequest{RoomCode: "zzz-zzzz-zzz", HostUserID: "teacher-1", TargetIdentity: "Student"})
	assertErrorCode(t, w, http.StatusNotFound, ErrCodeNotFound)
}

func TestKickParticipant_MediaFailureIsSoft(t *testing.T) {
	env := newMeetingTestEnv(t)
	env.media.removeErr = errors.New("media server unavailable")

	env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "abc-defg-hij", UserID: "teacher-1", Name: "Host"})
	env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "abc-defg-hij", UserID: "student-1", Name: "Student"})

	w := env.do(t, http.MethodPost, "/meeting/kick-participant", KickParticipantRequest{RoomCode: "abc-defg-hij", HostUserID: "teacher-1", TargetIdentity: "Student"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 despite media failure, got %d", w.Code)
	}
	result := decodeBody[room.KickResult](t, w)
	if result.MediaDisconnected {
		t.Error("expected mediaDisconnected=false")
	}
	if result.MediaError == "" {
		t.Error("expected mediaError to carry the failure")
	}

	// The local removal is authoritative regardless of the media outcome.
	participants, err := env.store.ActiveParticipants(context.Background(), "abc-defg-hij")
	if err != nil {
		t.Fatalf("ActiveParticipants failed: %v", err)
	}
	if len(participants) != 1 {
		t.Errorf("expected only the host to remain, got %d participants", len(participants))
	}
}

func TestEnd_PurgesCollaborators(t *testing.T) {
	env := newMeetingTestEnv(t)
	ctx := context.Background()

	env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "abc-defg-hij", UserID: "teacher-1", Name: "Host"})
	env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "abc-defg-hij", UserID: "student-1", Name: "Student"})

	rm, err := env.store.GetRoom(ctx, "abc-defg-hij")
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := env.messages.Save(ctx, &chat.Message{RoomID: rm.ID, SenderName: "Student", Body: fmt.Sprintf("hello %d", i)}); err != nil {
			t.Fatalf("failed to seed message: %v", err)
		}
	}
	if err := env.transcripts.Save(ctx, &transcript.Segment{RoomID: rm.ID, SpeakerIdentity: "Host", Text: "welcome"}); err != nil {
		t.Fatalf("failed to seed transcript: %v", err)
	}

	w := env.do(t, http.MethodPost, "/meeting/end/abc-defg-hij", EndRequest{UserID: "teacher-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d, body: %s", w.Code, w.Body.String())
	}
	result := decodeBody[room.EndResult](t, w)
	if result.MessagesDeleted != 3 {
		t.Errorf("expected 3 messages deleted, got %d", result.MessagesDeleted)
	}
	if result.TranscriptsDeleted != 1 {
		t.Errorf("expected 1 transcript deleted, got %d", result.TranscriptsDeleted)
	}
	if !result.MediaRoomDeleted {
		t.Error("expected media room teardown to succeed")
	}
	if result.Room == nil || !result.Room.IsEnded() {
		t.Error("expected the returned room to be ended")
	}

	// All presence intervals are closed.
	participants, err := env.store.ActiveParticipants(ctx, "abc-defg-hij")
	if err != nil {
		t.Fatalf("ActiveParticipants failed: %v", err)
	}
	if len(participants) != 0 {
		t.Errorf("expected no open intervals after end, got %d", len(participants))
	}
}

func TestEnd_Authorization(t *testing.T) {
	env := newMeetingTestEnv(t)

	env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "abc-defg-hij", UserID: "teacher-1", Name: "Host"})

	w := env.do(t, http.MethodPost, "/meeting/end/abc-defg-hij", EndRequest{UserID: "student-1"})
	assertErrorCode(t, w, http.StatusForbidden, ErrCodeNotHost)
}

func TestEnd_Twice(t *testing.T) {
	env := newMeetingTestEnv(t)

	env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "abc-defg-hij", UserID: "teacher-1", Name: "Host"})

	first := env.do(t, http.MethodPost, "/meeting/end/abc-defg-hij", EndRequest{UserID: "teacher-1"})
	if first.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", first.Code)
	}

	second := env.do(t, http.MethodPost, "/meeting/end/abc-defg-hij", EndRequest{UserID: "teacher-1"})
	assertErrorCode(t, second, http.StatusConflict, ErrCodeRoomEnded)
}

func TestCheckRoom(t *testing.T) {
	env := newMeetingTestEnv(t)

	env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "abc-defg-hij", UserID: "teacher-1", Name: "Host"})

	w := env.do(t, http.MethodGet, "/meeting/check/abc-defg-hij", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	resp := decodeBody[CheckRoomResponse](t, w)
	if !resp.Exists {
		t.Fatal("expected exists=true")
	}
	if resp.Data == nil {
		t.Fatal("expected data for an existing room")
	}
	if resp.Data.RoomCode != "abc-defg-hij" {
		t.Errorf("unexpected room code %s", resp.Data.RoomCode)
	}
	if resp.Data.ParticipantCount != 1 {
		t.Errorf("expected 1 participant, got %d", resp.Data.ParticipantCount)
	}
	if resp.Data.HostUserID != "teacher-1" {
		t.Errorf("expected host teacher-1, got %s", resp.Data.HostUserID)
	}
}

func TestCheckRoom_Absent(t *testing.T) {
	env := newMeetingTestEnv(t)

	w := env.do(t, http.MethodGet, "/meeting/check/zzz-zzzz-zzz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 for an absent room, got %d", w.Code)
	}
	resp := decodeBody[CheckRoomResponse](t, w)
	if resp.Exists {
		t.Error("expected exists=false")
	}
	if resp.Data != nil {
		t.Error("expected no data for an absent room")
	}
}

func TestCheckRoom_InvalidCode(t *testing.T) {
	env := newMeetingTestEnv(t)

	w := env.do(t, http.MethodGet, "/meeting/check/bogus", nil)
	assertErrorCode(t, w, http.StatusBadRequest, ErrCodeInvalidRoomCode)
}

func TestDeleteRoom(t *testing.T) {
	env := newMeetingTestEnv(t)
	ctx := context.Background()

	env.do(t, http.MethodPost, "/meeting/token", TokenRequest{RoomCode: "abc-defg-hij", UserID: "teacher-1", Name: "Host"})

	rm, err := env.store.GetRoom(ctx, "abc-defg-hij")
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if err := env.messages.Save(ctx, &chat.Message{RoomID: rm.ID, SenderName: "Host", Body: "hello"}); err != nil {
		t.Fatalf("failed to seed message: %v", err)
	}

	w := env.do(t, http.MethodDelete, "/meeting/room/abc-defg-hij", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d, body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		RoomCode string `json:"roomCode"`
		Deleted  bool   `json:"deleted"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Deleted || resp.RoomCode != "abc-defg-hij" {
		t.Errorf("unexpected response %+v", resp)
	}

	if _, err := env.store.GetRoom(ctx, "abc-defg-hij"); !errors.Is(err, room.ErrRoomNotFound) {
		t.Errorf("expected the room to be gone, got %v", err)
	}

	// Chat rows go with the room, and the media room is torn down.
	remaining, err := env.messages.ListByRoom(ctx, rm.ID, 0)
	if err != nil {
		t.Fatalf("ListByRoom failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected 0 messages after delete, got %d", len(remaining))
	}
	if len(env.media.deletedRoom) != 1 || env.media.deletedRoom[0] != "abc-defg-hij" {
		t.Errorf("expected one media teardown for abc-defg-hij, got %v", env.media.deletedRoom)
	}
}

func TestDeleteRoom_NotFound(t *testing.T) {
	env := newMeetingTestEnv(t)

	w := env.do(t, http.MethodDelete, "/meeting/room/zzz-zzzz-zzz", nil)
	assertErrorCode(t, w, http.StatusNotFound, ErrCodeNotFound)
}

func TestDeleteRoom_InvalidCode(t *testing.T) {
	env := newMeetingTestEnv(t)

	w := env.do(t, http.MethodDelete, "/meeting/room/bogus", nil)
	assertErrorCode(t, w, http.StatusBadRequest, ErrCodeInvalidRoomCode)
}

func TestListRooms(t *testing.T) {
	env := newMeetingTestEnv(t)

	env.do(t, http.MethodPost, "/meeting/create", CreateRoomRequest{UserID: "teacher-1", RoomCode: "abc-defg-hij"})
	env.do(t, http.MethodPost, "/meeting/create", CreateRoomRequest{UserID: "teacher-2", RoomCode: "klm-nopq-rst"})

	w := env.do(t, http.MethodGet, "/meeting/rooms", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp struct {
		Rooms []*room.Room `json:"rooms"`
		Count int          `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 2 || len(resp.Rooms) != 2 {
		t.Errorf("expected 2 rooms, got count=%d len=%d", resp.Count, len(resp.Rooms))
	}
}
