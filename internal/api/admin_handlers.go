// Package api provides administrative maintenance endpoints.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/trungducnguyen4/classroom-service/internal/chat"
	"github.com/trungducnguyen4/classroom-service/internal/middleware"
	"github.com/trungducnguyen4/classroom-service/internal/room"
	"github.com/trungducnguyen4/classroom-service/internal/transcript"
)

// defaultCleanupDays is applied when a cleanup request omits daysOld.
const defaultCleanupDays = 30

// AdminHandlers holds dependencies for the admin maintenance endpoints.
// These endpoints are operator-facing and sit behind the admin rate limit.
type AdminHandlers struct {
	store       room.Store
	coordinator *room.Coordinator
	messages    chat.Repository
	transcripts transcript.Repository
	logger      *slog.Logger
}

// NewAdminHandlers creates a new AdminHandlers instance.
func NewAdminHandlers(store room.Store, coordinator *room.Coordinator, messages chat.Repository, transcripts transcript.Repository, logger *slog.Logger) *AdminHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandlers{
		store:       store,
		coordinator: coordinator,
		messages:    messages,
		transcripts: transcripts,
		logger:      logger,
	}
}

// StatsResponse is the response body for GET /admin/stats.
type StatsResponse struct {
	TotalRooms          int    `json:"totalRooms"`
	ActiveRooms         int    `json:"activeRooms"`
	EndedRooms          int    `json:"endedRooms"`
	PresentParticipants int    `json:"presentParticipants"`
	Timestamp           string `json:"timestamp"`
}

// CleanupResponse is the response body for the cleanup endpoints. Only the
// fields relevant to the invoked endpoint are populated.
type CleanupResponse struct {
	MessagesDeleted    *int64            `json:"messagesDeleted,omitempty"`
	TranscriptsDeleted *int64            `json:"transcriptsDeleted,omitempty"`
	EventsDeleted      *int64            `json:"eventsDeleted,omitempty"`
	StaleRooms         *room.SweepReport `json:"staleRooms,omitempty"`
	EndedRooms         *room.SweepReport `json:"endedRooms,omitempty"`
	CutoffDays         int               `json:"cutoffDays"`
}

// Stats handles GET /admin/stats.
func (h *AdminHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rooms, err := h.store.ListRooms(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list rooms for stats", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	stats := StatsResponse{
		TotalRooms: len(rooms),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for _, rm := range rooms {
		if rm.IsEnded() {
			stats.EndedRooms++
		} else {
			stats.ActiveRooms++
		}
		stats.PresentParticipants += len(rm.Participants)
	}

	writeJSON(ctx, w, http.StatusOK, stats)
}

// CleanupMessages handles POST /admin/cleanup/messages.
// Deletes chat messages older than daysOld (default 30) across all rooms.
func (h *AdminHandlers) CleanupMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	days, ok := h.daysOld(w, r)
	if !ok {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	n, err := h.messages.CleanupOld(ctx, cutoff)
	if err != nil {
		h.logger.ErrorContext(ctx, "message cleanup failed", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	h.logger.InfoContext(ctx, "admin message cleanup completed",
		slog.Int64("deleted", n), slog.Int("days_old", days))
	writeJSON(ctx, w, http.StatusOK, CleanupResponse{MessagesDeleted: &n, CutoffDays: days})
}

// CleanupTranscripts handles POST /admin/cleanup/transcripts.
// Deletes transcript segments older than daysOld (default 30).
func (h *AdminHandlers) CleanupTranscripts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	days, ok := h.daysOld(w, r)
	if !ok {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	n, err := h.transcripts.CleanupOld(ctx, cutoff)
	if err != nil {
		h.logger.ErrorContext(ctx, "transcript cleanup failed", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	h.logger.InfoContext(ctx, "admin transcript cleanup completed",
		slog.Int64("deleted", n), slog.Int("days_old", days))
	writeJSON(ctx, w, http.StatusOK, CleanupResponse{TranscriptsDeleted: &n, CutoffDays: days})
}

// CleanupEvents handles POST /admin/cleanup/events.
// Deletes lifecycle events older than daysOld (default 30) across all rooms.
// The event log is append-only, so without this the room_events table grows
// without bound.
func (h *AdminHandlers) CleanupEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	days, ok := h.daysOld(w, r)
	if !ok {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	n, err := h.store.CleanupOld(ctx, cutoff)
	if err != nil {
		h.logger.ErrorContext(ctx, "event cleanup failed", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	h.logger.InfoContext(ctx, "admin event cleanup completed",
		slog.Int64("deleted", n), slog.Int("days_old", days))
	writeJSON(ctx, w, http.StatusOK, CleanupResponse{EventsDeleted: &n, CutoffDays: days})
}

// CleanupRooms handles POST /admin/cleanup/rooms.
// Runs both sweep passes with daysOld as the age threshold: stale empty
// active rooms and ended rooms past retention.
func (h *AdminHandlers) CleanupRooms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	days, ok := h.daysOld(w, r)
	if !ok {
		return
	}
	age := time.Duration(days) * 24 * time.Hour

	stale, err := h.coordinator.SweepStaleRooms(ctx, age)
	if err != nil {
		h.logger.ErrorContext(ctx, "stale room sweep failed", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}
	ended, err := h.coordinator.SweepEndedRooms(ctx, age)
	if err != nil {
		h.logger.ErrorContext(ctx, "ended room sweep failed", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	h.logger.InfoContext(ctx, "admin room cleanup completed",
		slog.Int("stale_deleted", stale.Deleted),
		slog.Int("ended_deleted", ended.Deleted),
		slog.Int("days_old", days))
	writeJSON(ctx, w, http.StatusOK, CleanupResponse{StaleRooms: stale, EndedRooms: ended, CutoffDays: days})
}

// CleanupAll handles POST /admin/cleanup/all.
// Runs message, transcript, event and room cleanup with one threshold.
func (h *AdminHandlers) CleanupAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	days, ok := h.daysOld(w, r)
	if !ok {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	age := time.Duration(days) * 24 * time.Hour

	messages, err := h.messages.CleanupOld(ctx, cutoff)
	if err != nil {
		h.logger.ErrorContext(ctx, "message cleanup failed", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}
	transcripts, err := h.transcripts.CleanupOld(ctx, cutoff)
	if err != nil {
		h.logger.ErrorContext(ctx, "transcript cleanup failed", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}
	events, err := h.store.CleanupOld(ctx, cutoff)
	if err != nil {
		h.logger.ErrorContext(ctx, "event cleanup failed", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}
	stale, err := h.coordinator.SweepStaleRooms(ctx, age)
	if err != nil {
		h.logger.ErrorContext(ctx, "stale room sweep failed", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}
	ended, err := h.coordinator.SweepEndedRooms(ctx, age)
	if err != nil {
		h.logger.ErrorContext(ctx, "ended room sweep failed", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	h.logger.InfoContext(ctx, "admin full cleanup completed",
		slog.Int64("messages_deleted", messages),
		slog.Int64("transcripts_deleted", transcripts),
		slog.Int64("events_deleted", events),
		slog.Int("stale_rooms_deleted", stale.Deleted),
		slog.Int("ended_rooms_deleted", ended.Deleted),
		slog.Int("days_old", days))
	writeJSON(ctx, w, http.StatusOK, CleanupResponse{
		MessagesDeleted:    &messages,
		TranscriptsDeleted: &transcripts,
		EventsDeleted:      &events,
		StaleRooms:         stale,
		EndedRooms:         ended,
		CutoffDays:         days,
	})
}

// RoomEvents handles GET /admin/rooms/{roomCode}/events.
// Returns the lifecycle event log for a room, newest first.
func (h *AdminHandlers) RoomEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	code := room.SanitizeRoomCode(r.PathValue("roomCode"))
	if !room.ValidRoomCode(code) {
		ctx = middleware.SetErrorCode(ctx, ErrCodeInvalidRoomCode)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidRoomCode, "roomCode must match the xxx-yyyy-zzz format")
		return
	}

	rm, err := h.store.GetRoom(ctx, code)
	if err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Room not found")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	events, err := h.store.QueryByRoom(ctx, rm.ID, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to query room events", "error", err, "room_code", code)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	writeJSON(ctx, w, http.StatusOK, map[string]any{
		"roomCode": code,
		"events":   events,
		"count":    len(events),
	})
}

// daysOld parses the daysOld query parameter, defaulting to
// defaultCleanupDays.
func (h *AdminHandlers) daysOld(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("daysOld")
	if raw == "" {
		return defaultCleanupDays, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "daysOld must be a positive integer")
		return 0, false
	}
	return days, true
}
