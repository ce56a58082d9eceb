// Package livekit provides utilities for LiveKit token generation and
// room control.
package livekit

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
)

// Token expiry configuration. Classroom sessions run for hours, so tokens
// stay valid far longer than a typical short-lived media token.
const (
	DefaultTokenExpiry = 6 * time.Hour
	MinTokenExpiry     = 1 * time.Minute
	MaxTokenExpiry     = 24 * time.Hour
)

var (
	// ErrInvalidExpiry is returned when token expiry is outside valid bounds.
	ErrInvalidExpiry = errors.New("token expiry must be between 1 minute and 24 hours")

	// ErrMissingAPIKey is returned when API key is empty.
	ErrMissingAPIKey = errors.New("livekit API key is required")

	// ErrMissingAPISecret is returned when API secret is empty.
	ErrMissingAPISecret = errors.New("livekit API secret is required")

	// ErrMissingRoomName is returned when room name is empty.
	ErrMissingRoomName = errors.New("room name is required")

	// ErrMissingIdentity is returned when identity is empty.
	ErrMissingIdentity = errors.New("participant identity is required")
)

// TokenService handles LiveKit token generation.
type TokenService struct {
	apiKey    string
	apiSecret string
}

// NewTokenService creates a new TokenService with the given API credentials.
func NewTokenService(apiKey, apiSecret string) (*TokenService, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if apiSecret == "" {
		return nil, ErrMissingAPISecret
	}

	return &TokenService{
		apiKey:    apiKey,
		apiSecret: apiSecret,
	}, nil
}

// TokenRequest represents the parameters for generating a LiveKit access token.
type TokenRequest struct {
	RoomName string         // Required: room code used as the LiveKit room name
	Identity string         // Required: participant identity (resolved display name)
	Expiry   time.Duration  // Token expiry (defaults to DefaultTokenExpiry if zero)
	Metadata map[string]any // Optional: arbitrary metadata to attach to the token
}

// TokenResponse represents the generated token with expiry information.
type TokenResponse struct {
	Token     string    `json:"token"`      // The JWT access token
	ExpiresAt time.Time `json:"expires_at"` // Token expiration time in UTC (RFC3339)
}

// GenerateToken creates a new LiveKit access token with the specified
// parameters. The grant allows joining the named room and publishing audio,
// video, and data channel messages.
func (s *TokenService) GenerateToken(req *TokenRequest) (*TokenResponse, error) {
	if req.RoomName == "" {
		return nil, ErrMissingRoomName
	}
	if req.Identity == "" {
		return nil, ErrMissingIdentity
	}

	expiry := req.Expiry
	if expiry == 0 {
		expiry = DefaultTokenExpiry
	}
	if expiry < MinTokenExpiry || expiry > MaxTokenExpiry {
		return nil, ErrInvalidExpiry
	}

	expiresAt := time.Now().Add(expiry)

	canPublish := true
	canSubscribe := true
	canPublishData := true

	at := auth.NewAccessToken(s.apiKey, s.apiSecret)
	at.SetIdentity(req.Identity)
	at.AddGrant(&auth.VideoGrant{
		RoomJoin:       true,
		Room:           req.RoomName,
		CanPublish:     &canPublish,
		CanSubscribe:   &canSubscribe,
		CanPublishData: &canPublishData,
	})
	at.SetValidFor(expiry)

	if len(req.Metadata) > 0 {
		at.SetMetadata(formatMetadata(req.Metadata))
	}

	token, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC(),
	}, nil
}

// formatMetadata converts a metadata map to a JSON string for the token.
// LiveKit expects a string metadata field.
func formatMetadata(metadata map[string]any) string {
	data, err := json.Marshal(metadata)
	if err != nil {
		return "{}"
	}
	return string(data)
}
