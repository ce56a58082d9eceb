// Package api provides HTTP handlers for the classroom meeting API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/trungducnguyen4/classroom-service/internal/middleware"
	"github.com/trungducnguyen4/classroom-service/internal/room"
	"github.com/trungducnguyen4/classroom-service/internal/token"
)

// MeetingHandlers holds dependencies for the room lifecycle HTTP handlers.
type MeetingHandlers struct {
	store       room.Store
	issuer      *token.Issuer
	coordinator *room.Coordinator
	broadcaster *room.EventBroadcaster
	metrics     *room.Metrics
	logger      *slog.Logger
}

// MeetingHandlersConfig configures the meeting handlers. Broadcaster and
// Metrics are optional.
type MeetingHandlersConfig struct {
	Store       room.Store
	Issuer      *token.Issuer
	Coordinator *room.Coordinator
	Broadcaster *room.EventBroadcaster
	Metrics     *room.Metrics
	Logger      *slog.Logger
}

// NewMeetingHandlers creates a new MeetingHandlers instance.
func NewMeetingHandlers(cfg MeetingHandlersConfig) *MeetingHandlers {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MeetingHandlers{
		store:       cfg.Store,
		issuer:      cfg.Issuer,
		coordinator: cfg.Coordinator,
		broadcaster: cfg.Broadcaster,
		metrics:     cfg.Metrics,
		logger:      logger,
	}
}

// TokenRequest is the request body for POST /meeting/token.
type TokenRequest struct {
	RoomCode      string `json:"roomCode"`
	UserID        string `json:"userId"`
	Name          string `json:"name,omitempty"`
	Role          string `json:"role,omitempty"`
	ExpirySeconds int64  `json:"expirySeconds,omitempty"`
}

// CreateRoomRequest is the request body for POST /meeting/create.
type CreateRoomRequest struct {
	UserID   string `json:"userId"`
	RoomCode string `json:"roomCode,omitempty"`
}

// CreateRoomResponse is the response body for POST /meeting/create.
type CreateRoomResponse struct {
	Room    *room.Room `json:"room"`
	Created bool       `json:"created"`
}

// ParticipantLeftRequest is the request body for POST /meeting/participant-left.
type ParticipantLeftRequest struct {
	RoomCode string `json:"roomCode"`
	Identity string `json:"identity"`
}

// ParticipantLeftResponse is the response body for POST /meeting/participant-left.
type ParticipantLeftResponse struct {
	RoomCode              string `json:"roomCode"`
	Identity              string `json:"identity"`
	Left                  bool   `json:"left"`
	IsEmpty               bool   `json:"isEmpty"`
	RemainingParticipants int    `json:"remainingParticipants"`
}

// KickParticipantRequest is the request body for POST /meeting/kick-participant.
type KickParticipantRequest struct {
	RoomCode       string `json:"roomCode"`
	HostUserID     string `json:"hostUserId"`
	TargetIdentity string `json:"targetIdentity"`
}

// EndRequest is the request body for POST /meeting/end/{roomCode}.
type EndRequest struct {
	UserID string `json:"userId"`
}

// IssueToken handles POST /meeting/token.
// Resolves the participant's display name, mints a media access token and
// records presence. If the room does not exist it is created implicitly with
// the requester as host.
func (h *MeetingHandlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}

	code := room.SanitizeRoomCode(req.RoomCode)
	if code == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "roomCode is required")
		return
	}
	if !room.ValidRoomCode(code) {
		ctx = middleware.SetErrorCode(ctx, ErrCodeInvalidRoomCode)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidRoomCode, "roomCode must match the xxx-yyyy-zzz format")
		return
	}

	if req.UserID != "" {
		ctx = middleware.SetActorID(ctx, req.UserID)
		middleware.UpdateResponseContext(w, ctx)
	}

	grant, err := h.issuer.Issue(ctx, token.Request{
		RoomCode:      code,
		UserID:        req.UserID,
		PreferredName: strings.TrimSpace(req.Name),
		Role:          req.Role,
		Expiry:        time.Duration(req.ExpirySeconds) * time.Second,
	})
	if err != nil {
		h.writeRoomError(ctx, w, r, err, "failed to issue room token")
		return
	}

	if grant.Tracked {
		h.broadcast(code, room.EventJoin, map[string]any{
			"identity": grant.Identity,
			"isHost":   grant.IsHost,
		})
	}

	writeJSON(ctx, w, http.StatusOK, grant)
}

// CreateRoom handles POST /meeting/create.
// Generates a room code when the client does not supply one. Creation is
// idempotent at the registry level; supplying a code that is already taken
// returns 409 with the existing room.
func (h *MeetingHandlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "userId is required")
		return
	}
	ctx = middleware.SetActorID(ctx, req.UserID)
	middleware.UpdateResponseContext(w, ctx)

	code := room.SanitizeRoomCode(req.RoomCode)
	if code == "" {
		code = room.GenerateRoomCode()
	} else if !room.ValidRoomCode(code) {
		ctx = middleware.SetErrorCode(ctx, ErrCodeInvalidRoomCode)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidRoomCode, "roomCode must match the xxx-yyyy-zzz format")
		return
	}

	created, wasCreated, err := h.store.CreateRoom(ctx, code, req.UserID)
	if err != nil {
		h.writeRoomError(ctx, w, r, err, "failed to create room")
		return
	}

	if !wasCreated {
		// The code is already in use. The registry treats this as idempotent
		// success but a client asking for a specific code gets a conflict.
		ctx = middleware.SetErrorCode(ctx, ErrCodeConflict)
		WriteError(w, ctx, http.StatusConflict, ErrCodeConflict, "Room code is already in use")
		return
	}

	if h.metrics != nil {
		h.metrics.IncRoomCreates()
	}
	writeJSON(ctx, w, http.StatusCreated, CreateRoomResponse{Room: created, Created: true})
}

// GetRoom handles GET /meeting/{roomCode}.
// Returns the room with its currently present participants.
func (h *MeetingHandlers) GetRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	code, ok := h.roomCodeFromPath(w, r)
	if !ok {
		return
	}

	rm, err := h.store.GetRoom(ctx, code)
	if err != nil {
		h.writeRoomError(ctx, w, r, err, "failed to load room")
		return
	}
	writeJSON(ctx, w, http.StatusOK, rm)
}

// ListParticipants handles GET /meeting/participants/{roomCode}.
func (h *MeetingHandlers) ListParticipants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	code, ok := h.roomCodeFromPath(w, r)
	if !ok {
		return
	}

	participants, err := h.store.ActiveParticipants(ctx, code)
	if err != nil {
		h.writeRoomError(ctx, w, r, err, "failed to list participants")
		return
	}
	writeJSON(ctx, w, http.StatusOK, map[string]any{
		"roomCode":     code,
		"participants": participants,
	})
}

// ParticipantLeft handles POST /meeting/participant-left.
// Closes the caller's presence interval and reports how many participants
// remain so the caller can tell whether the room emptied out. Leaving a room
// or interval that does not exist is a no-op, reported as left=false.
func (h *MeetingHandlers) ParticipantLeft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ParticipantLeftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	if req.Identity == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "identity is required")
		return
	}
	code, ok := h.roomCodeFromBody(w, r, req.RoomCode)
	if !ok {
		return
	}

	left, err := h.store.RemoveParticipant(ctx, code, req.Identity)
	if err != nil {
		h.writeRoomError(ctx, w, r, err, "failed to record leave")
		return
	}

	remaining := 0
	participants, err := h.store.ActiveParticipants(ctx, code)
	switch {
	case err == nil:
		remaining = len(participants)
	case !errors.Is(err, room.ErrRoomNotFound):
		h.writeRoomError(ctx, w, r, err, "failed to count remaining participants")
		return
	}

	if left {
		if h.metrics != nil {
			h.metrics.IncRoomLeaves()
		}
		h.broadcast(code, room.EventLeave, map[string]any{"identity": req.Identity})
	}
	writeJSON(ctx, w, http.StatusOK, ParticipantLeftResponse{
		RoomCode:              code,
		Identity:              req.Identity,
		Left:                  left,
		IsEmpty:               remaining == 0,
		RemainingParticipants: remaining,
	})
}

// KickParticipant handles POST /meeting/kick-participant.
// Host-only. The local removal is authoritative; a media disconnect failure
// is reported in the result body rather than failing the request.
func (h *MeetingHandlers) KickParticipant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req KickParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	if req.HostUserID == "" || req.TargetIdentity == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "hostUserId and targetIdentity are required")
		return
	}
	code, ok := h.roomCodeFromBody(w, r, req.RoomCode)
	if !ok {
		return
	}
	ctx = middleware.SetActorID(ctx, req.HostUserID)
	middleware.UpdateResponseContext(w, ctx)

	result, err := h.coordinator.KickParticipant(ctx, code, req.HostUserID, req.TargetIdentity)
	if err != nil {
		h.writeRoomError(ctx, w, r, err, "failed to kick participant")
		return
	}

	h.broadcast(code, room.EventParticipantKicked, map[string]any{"identity": req.TargetIdentity})
	writeJSON(ctx, w, http.StatusOK, result)
}

// End handles POST /meeting/end/{roomCode}.
// Host-only. Purges chat and transcripts, closes presence, marks the room
// ended and tears down the media room best effort.
func (h *MeetingHandlers) End(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	code, ok := h.roomCodeFromPath(w, r)
	if !ok {
		return
	}

	var req EndRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "userId is required")
		return
	}
	ctx = middleware.SetActorID(ctx, req.UserID)
	middleware.UpdateResponseContext(w, ctx)

	result, err := h.coordinator.EndRoom(ctx, code, req.UserID)
	if err != nil {
		h.writeRoomError(ctx, w, r, err, "failed to end room")
		return
	}

	h.broadcast(code, room.EventRoomEnded, map[string]any{
		"messagesDeleted":    result.MessagesDeleted,
		"transcriptsDeleted": result.TranscriptsDeleted,
	})
	writeJSON(ctx, w, http.StatusOK, result)
}

// CheckRoomResponse is the response body for GET /meeting/check/{roomCode}.
type CheckRoomResponse struct {
	Exists bool           `json:"exists"`
	Data   *CheckRoomData `json:"data,omitempty"`
}

// CheckRoomData carries the room summary returned by the check endpoint.
type CheckRoomData struct {
	RoomCode         string    `json:"roomCode"`
	CreatedAt        time.Time `json:"createdAt"`
	ParticipantCount int       `json:"participantCount"`
	HostUserID       string    `json:"hostUserId"`
}

// CheckRoom handles GET /meeting/check/{roomCode}.
// Reports whether the room exists without creating it. Absence is a normal
// answer, not an error.
func (h *MeetingHandlers) CheckRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	code, ok := h.roomCodeFromPath(w, r)
	if !ok {
		return
	}

	rm, err := h.store.GetRoom(ctx, code)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			writeJSON(ctx, w, http.StatusOK, CheckRoomResponse{Exists: false})
			return
		}
		h.writeRoomError(ctx, w, r, err, "failed to check room")
		return
	}

	writeJSON(ctx, w, http.StatusOK, CheckRoomResponse{
		Exists: true,
		Data: &CheckRoomData{
			RoomCode:         rm.RoomCode,
			CreatedAt:        rm.CreatedAt,
			ParticipantCount: len(rm.Participants),
			HostUserID:       rm.HostUserID,
		},
	})
}

// DeleteRoom handles DELETE /meeting/room/{roomCode}.
// Hard-deletes the room and everything hanging off it. The media room is
// torn down best effort.
func (h *MeetingHandlers) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	code, ok := h.roomCodeFromPath(w, r)
	if !ok {
		return
	}

	deleted, err := h.coordinator.DeleteRoom(ctx, code)
	if err != nil {
		h.writeRoomError(ctx, w, r, err, "failed to delete room")
		return
	}
	if !deleted {
		ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Room not found")
		return
	}

	h.broadcast(code, room.EventRoomDeleted, map[string]any{"roomCode": code})
	writeJSON(ctx, w, http.StatusOK, map[string]any{
		"roomCode": code,
		"deleted":  true,
	})
}

// ListRooms handles GET /meeting/rooms.
func (h *MeetingHandlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rooms, err := h.store.ListRooms(ctx)
	if err != nil {
		h.writeRoomError(ctx, w, r, err, "failed to list rooms")
		return
	}
	writeJSON(ctx, w, http.StatusOK, map[string]any{
		"rooms": rooms,
		"count": len(rooms),
	})
}

// roomCodeFromPath extracts and validates the roomCode path segment.
func (h *MeetingHandlers) roomCodeFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	return h.validRoomCode(w, r, r.PathValue("roomCode"))
}

// roomCodeFromBody validates a room code supplied in a request body.
func (h *MeetingHandlers) roomCodeFromBody(w http.ResponseWriter, r *http.Request, raw string) (string, bool) {
	return h.validRoomCode(w, r, raw)
}

func (h *MeetingHandlers) validRoomCode(w http.ResponseWriter, r *http.Request, raw string) (string, bool) {
	code := room.SanitizeRoomCode(raw)
	if !room.ValidRoomCode(code) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidRoomCode)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidRoomCode, "roomCode must match the xxx-yyyy-zzz format")
		return "", false
	}
	return code, true
}

// writeRoomError maps room domain errors onto HTTP responses.
func (h *MeetingHandlers) writeRoomError(ctx context.Context, w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	var code string
	var message string
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		code, message = ErrCodeNotFound, "Room not found"
	case errors.Is(err, room.ErrParticipantNotFound):
		code, message = ErrCodeNotFound, "Participant not found in room"
	case errors.Is(err, room.ErrRoomEnded):
		code, message = ErrCodeRoomEnded, "Room has already ended"
	case errors.Is(err, room.ErrNotHost):
		code, message = ErrCodeNotHost, "Only the host can perform this action"
	case errors.Is(err, room.ErrCannotKickHost):
		code, message = ErrCodeCannotKickHost, "The host cannot be kicked"
	default:
		h.logger.ErrorContext(ctx, logMsg,
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		code, message = ErrCodeInternal, "Internal server error"
	}

	ctx = middleware.SetErrorCode(ctx, code)
	WriteError(w, ctx, StatusCodeMapping(code), code, message)
}

// broadcast pushes a lifecycle event to room subscribers, if a broadcaster
// is wired.
func (h *MeetingHandlers) broadcast(code string, eventType room.EventType, payload map[string]any) {
	if h.broadcaster == nil {
		return
	}
	h.broadcaster.Broadcast(code, eventType, payload)
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}
