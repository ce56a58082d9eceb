// Package token issues LiveKit access tokens for classroom rooms and
// records the corresponding presence intervals.
package token

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/trungducnguyen4/classroom-service/internal/livekit"
	"github.com/trungducnguyen4/classroom-service/internal/room"
)

// Minter signs media access tokens. Implemented by livekit.TokenService.
type Minter interface {
	GenerateToken(req *livekit.TokenRequest) (*livekit.TokenResponse, error)
}

// NameResolver resolves a participant's display name.
// Implemented by userdir.Client.
type NameResolver interface {
	ResolveDisplayName(ctx context.Context, userID, preferred string) string
}

// Request carries the parameters for issuing a room token.
type Request struct {
	RoomCode      string
	UserID        string
	PreferredName string
	Role          string
	Expiry        time.Duration
}

// Grant is an issued token plus the resolved participant attributes.
type Grant struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	RoomCode  string    `json:"roomCode"`
	Identity  string    `json:"identity"`
	UserID    string    `json:"userId,omitempty"`
	IsHost    bool      `json:"isHost"`

	// Tracked is false when the token was issued but the presence row
	// could not be written. The client can still join the media room.
	Tracked bool `json:"tracked"`
}

// Issuer mints access tokens and tracks the resulting presence.
type Issuer struct {
	minter   Minter
	resolver NameResolver
	tracker  room.Tracker
	metrics  *room.Metrics
	logger   *slog.Logger
}

// NewIssuer creates an Issuer. The metrics sink may be nil.
func NewIssuer(minter Minter, resolver NameResolver, tracker room.Tracker, metrics *room.Metrics, logger *slog.Logger) *Issuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Issuer{
		minter:   minter,
		resolver: resolver,
		tracker:  tracker,
		metrics:  metrics,
		logger:   logger,
	}
}

// Issue resolves the participant's display name, mints a token whose
// identity is that name, and records the presence interval. The token is
// authoritative: if presence tracking fails after a token was signed, the
// failure is logged and reported via Grant.Tracked rather than discarding
// the token.
func (i *Issuer) Issue(ctx context.Context, req Request) (*Grant, error) {
	displayName := i.resolver.ResolveDisplayName(ctx, req.UserID, req.PreferredName)

	resp, err := i.minter.GenerateToken(&livekit.TokenRequest{
		RoomName: req.RoomCode,
		Identity: displayName,
		Expiry:   req.Expiry,
		Metadata: map[string]any{
			"userId":      req.UserID,
			"displayName": displayName,
			"joinedAt":    time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, err
	}

	grant := &Grant{
		Token:     resp.Token,
		ExpiresAt: resp.ExpiresAt,
		RoomCode:  req.RoomCode,
		Identity:  displayName,
		UserID:    req.UserID,
	}

	p, err := i.tracker.AddParticipant(ctx, req.RoomCode, room.Join{
		Identity:    displayName,
		UserID:      req.UserID,
		DisplayName: displayName,
		Role:        req.Role,
	})
	if err != nil {
		// An ended room is a hard refusal, not a tracking hiccup.
		if errors.Is(err, room.ErrRoomEnded) {
			return nil, err
		}
		i.logger.Warn("issued token but failed to track participant",
			slog.String("room_code", req.RoomCode),
			slog.String("identity", displayName),
			slog.String("error", err.Error()))
		return grant, nil
	}
	grant.Tracked = true
	grant.IsHost = p.IsHost
	if i.metrics != nil {
		i.metrics.IncRoomJoins()
	}
	return grant, nil
}
