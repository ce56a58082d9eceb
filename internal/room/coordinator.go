package room

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// MediaController is the subset of the media-server control API the
// coordinator needs. The local database remains authoritative; media calls
// are best effort and never fail a lifecycle operation on their own.
type MediaController interface {
	// RemoveParticipant disconnects a participant from the media room.
	RemoveParticipant(ctx context.Context, roomCode, identity string) error

	// DeleteRoom tears down the media room, disconnecting everyone in it.
	DeleteRoom(ctx context.Context, roomCode string) error
}

// Purger deletes all rows belonging to a room and reports how many went.
// Implemented by the chat and transcript repositories.
type Purger interface {
	DeleteByRoom(ctx context.Context, roomID string) (int64, error)
}

// KickResult reports the outcome of a kick. The participant is always
// removed locally; MediaDisconnected reports whether the media server also
// dropped the connection.
type KickResult struct {
	RoomCode          string `json:"roomCode"`
	Identity          string `json:"identity"`
	MediaDisconnected bool   `json:"mediaDisconnected"`
	MediaError        string `json:"mediaError,omitempty"`
}

// EndResult reports the outcome of ending a room.
type EndResult struct {
	Room               *Room  `json:"room"`
	MessagesDeleted    int64  `json:"messagesDeleted"`
	TranscriptsDeleted int64  `json:"transcriptsDeleted"`
	MediaRoomDeleted   bool   `json:"mediaRoomDeleted"`
	MediaError         string `json:"mediaError,omitempty"`
}

// SweepReport summarizes one cleanup pass.
type SweepReport struct {
	Candidates int `json:"candidates"`
	Deleted    int `json:"deleted"`
	Skipped    int `json:"skipped"`
}

// Coordinator implements the host-authority operations that span the local
// store, the chat and transcript collaborators, and the media server.
type Coordinator struct {
	store       Store
	media       MediaController
	messages    Purger
	transcripts Purger
	metrics     *Metrics
	logger      *slog.Logger

	// mediaTimeout bounds every outbound media-server call.
	mediaTimeout time.Duration
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithMediaController sets the media-server client. Without one, media
// disconnects are skipped and reported as not performed.
func WithMediaController(media MediaController) CoordinatorOption {
	return func(c *Coordinator) { c.media = media }
}

// WithMessagePurger sets the chat message collaborator.
func WithMessagePurger(p Purger) CoordinatorOption {
	return func(c *Coordinator) { c.messages = p }
}

// WithTranscriptPurger sets the transcript collaborator.
func WithTranscriptPurger(p Purger) CoordinatorOption {
	return func(c *Coordinator) { c.transcripts = p }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// WithMediaTimeout overrides the default media-server call timeout.
func WithMediaTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.mediaTimeout = d
		}
	}
}

// NewCoordinator creates a Coordinator over the given store.
func NewCoordinator(store Store, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		store:        store,
		logger:       logger,
		mediaTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// KickParticipant removes targetIdentity from the room on the authority of
// requesterID. Only the host may kick, and the host itself can never be the
// target. Local removal is authoritative; the media disconnect is attempted
// afterwards and a failure there is reported in the result, not as an error.
func (c *Coordinator) KickParticipant(ctx context.Context, code, requesterID, targetIdentity string) (*KickResult, error) {
	r, err := c.store.GetRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if r.IsEnded() {
		return nil, ErrRoomEnded
	}
	if requesterID == "" || requesterID != r.HostUserID {
		return nil, ErrNotHost
	}

	var target *Participant
	for _, p := range r.Participants {
		if p.Identity == targetIdentity {
			target = p
			break
		}
	}
	if target == nil {
		return nil, ErrParticipantNotFound
	}
	if target.IsHost || (target.UserID != "" && target.UserID == r.HostUserID) {
		return nil, ErrCannotKickHost
	}

	removed, err := c.store.RemoveParticipant(ctx, code, targetIdentity)
	if err != nil {
		return nil, fmt.Errorf("failed to remove participant: %w", err)
	}
	if !removed {
		// The interval closed between the snapshot and the update.
		return nil, ErrParticipantNotFound
	}

	if err := c.store.Append(ctx, Entry{
		RoomID:      r.ID,
		Type:        EventParticipantKicked,
		ActorUserID: requesterID,
		Payload:     map[string]any{"identity": targetIdentity},
	}); err != nil {
		c.logger.Warn("failed to record kick event",
			slog.String("room_code", code),
			slog.String("error", err.Error()))
	}
	if c.metrics != nil {
		c.metrics.IncRoomKicks()
		c.metrics.IncRoomLeaves()
	}

	result := &KickResult{RoomCode: code, Identity: targetIdentity}
	if c.media == nil {
		return result, nil
	}

	mediaCtx, cancel := context.WithTimeout(ctx, c.mediaTimeout)
	defer cancel()
	if err := c.media.RemoveParticipant(mediaCtx, code, targetIdentity); err != nil {
		c.logger.Warn("media disconnect failed after kick",
			slog.String("room_code", code),
			slog.String("identity", targetIdentity),
			slog.String("error", err.Error()))
		if c.metrics != nil {
			c.metrics.IncMediaDisconnectErrors()
		}
		result.MediaError = err.Error()
		return result, nil
	}
	result.MediaDisconnected = true
	return result, nil
}

// EndRoom ends the room on the authority of requesterID. Chat messages and
// transcripts are deleted first, open presence intervals are closed, then
// the room transitions to ended. The media room teardown runs last and its
// failure degrades to a result field.
func (c *Coordinator) EndRoom(ctx context.Context, code, requesterID string) (*EndResult, error) {
	r, err := c.store.GetRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if r.IsEnded() {
		return nil, ErrRoomEnded
	}
	if requesterID == "" || requesterID != r.HostUserID {
		return nil, ErrNotHost
	}

	result := &EndResult{}

	if c.messages != nil {
		n, err := c.messages.DeleteByRoom(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to delete room messages: %w", err)
		}
		result.MessagesDeleted = n
	}
	if c.transcripts != nil {
		n, err := c.transcripts.DeleteByRoom(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to delete room transcripts: %w", err)
		}
		result.TranscriptsDeleted = n
	}

	for _, p := range r.Participants {
		if _, err := c.store.RemoveParticipant(ctx, code, p.Identity); err != nil {
			return nil, fmt.Errorf("failed to close presence for %s: %w", p.Identity, err)
		}
	}

	ended, err := c.store.MarkEnded(ctx, code)
	if err != nil {
		return nil, err
	}
	result.Room = ended

	if err := c.store.Append(ctx, Entry{
		RoomID:      r.ID,
		Type:        EventRoomEnded,
		ActorUserID: requesterID,
		Payload: map[string]any{
			"messagesDeleted":    result.MessagesDeleted,
			"transcriptsDeleted": result.TranscriptsDeleted,
		},
	}); err != nil {
		c.logger.Warn("failed to record room ended event",
			slog.String("room_code", code),
			slog.String("error", err.Error()))
	}
	if c.metrics != nil {
		c.metrics.IncRoomEnds()
	}

	if c.media == nil {
		return result, nil
	}

	mediaCtx, cancel := context.WithTimeout(ctx, c.mediaTimeout)
	defer cancel()
	if err := c.media.DeleteRoom(mediaCtx, code); err != nil {
		c.logger.Warn("media room teardown failed",
			slog.String("room_code", code),
			slog.String("error", err.Error()))
		if c.metrics != nil {
			c.metrics.IncMediaDisconnectErrors()
		}
		result.MediaError = err.Error()
		return result, nil
	}
	result.MediaRoomDeleted = true
	return result, nil
}

// DeleteRoom hard-deletes a room by code, purging chat and transcripts
// first. The media room teardown runs last, best effort. Returns false when
// no room with the code exists.
func (c *Coordinator) DeleteRoom(ctx context.Context, code string) (bool, error) {
	r, err := c.store.GetRoom(ctx, code)
	if err != nil {
		if err == ErrRoomNotFound {
			return false, nil
		}
		return false, err
	}

	if err := c.purgeCollaborators(ctx, r.ID); err != nil {
		return false, fmt.Errorf("failed to purge room collaborators: %w", err)
	}

	deleted, err := c.store.DeleteRoom(ctx, code)
	if err != nil || !deleted {
		return deleted, err
	}

	if c.media != nil {
		mediaCtx, cancel := context.WithTimeout(ctx, c.mediaTimeout)
		defer cancel()
		if err := c.media.DeleteRoom(mediaCtx, code); err != nil {
			c.logger.Warn("media room teardown failed",
				slog.String("room_code", code),
				slog.String("error", err.Error()))
			if c.metrics != nil {
				c.metrics.IncMediaDisconnectErrors()
			}
		}
	}
	return true, nil
}

// SweepStaleRooms deletes active rooms older than maxAge that have no open
// presence intervals. Each candidate is re-checked at delete time so a join
// racing the sweep keeps its room.
func (c *Coordinator) SweepStaleRooms(ctx context.Context, maxAge time.Duration) (*SweepReport, error) {
	cutoff := time.Now().Add(-maxAge)

	candidates, err := c.store.StaleEmptyRooms(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale rooms: %w", err)
	}

	report := &SweepReport{Candidates: len(candidates)}
	for _, cand := range candidates {
		if err := c.purgeCollaborators(ctx, cand.ID); err != nil {
			c.logger.Warn("failed to purge room collaborators",
				slog.String("room_code", cand.RoomCode),
				slog.String("error", err.Error()))
			report.Skipped++
			continue
		}
		deleted, err := c.store.DeleteIfStillEmpty(ctx, cand.ID, cutoff)
		if err != nil {
			return report, fmt.Errorf("failed to delete stale room %s: %w", cand.RoomCode, err)
		}
		if !deleted {
			report.Skipped++
			continue
		}
		report.Deleted++
		if c.metrics != nil {
			c.metrics.IncRoomsSwept(SweepReasonStaleEmpty)
		}
		c.logger.Info("swept stale empty room",
			slog.String("room_code", cand.RoomCode))
	}
	return report, nil
}

// SweepEndedRooms deletes ended rooms whose ended_at is older than retention.
func (c *Coordinator) SweepEndedRooms(ctx context.Context, retention time.Duration) (*SweepReport, error) {
	cutoff := time.Now().Add(-retention)

	candidates, err := c.store.EndedRoomsBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired ended rooms: %w", err)
	}

	report := &SweepReport{Candidates: len(candidates)}
	for _, cand := range candidates {
		if err := c.purgeCollaborators(ctx, cand.ID); err != nil {
			c.logger.Warn("failed to purge room collaborators",
				slog.String("room_code", cand.RoomCode),
				slog.String("error", err.Error()))
			report.Skipped++
			continue
		}
		deleted, err := c.store.DeleteRoomByID(ctx, cand.ID)
		if err != nil {
			return report, fmt.Errorf("failed to delete ended room %s: %w", cand.RoomCode, err)
		}
		if !deleted {
			report.Skipped++
			continue
		}
		report.Deleted++
		if c.metrics != nil {
			c.metrics.IncRoomsSwept(SweepReasonRetention)
		}
		c.logger.Info("swept expired ended room",
			slog.String("room_code", cand.RoomCode))
	}
	return report, nil
}

func (c *Coordinator) purgeCollaborators(ctx context.Context, roomID string) error {
	if c.messages != nil {
		if _, err := c.messages.DeleteByRoom(ctx, roomID); err != nil {
			return fmt.Errorf("messages: %w", err)
		}
	}
	if c.transcripts != nil {
		if _, err := c.transcripts.DeleteByRoom(ctx, roomID); err != nil {
			return fmt.Errorf("transcripts: %w", err)
		}
	}
	return nil
}
