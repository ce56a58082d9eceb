// Package livekit provides utilities for LiveKit integration.
package livekit

import (
	"context"
	"errors"
	"fmt"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

var (
	// ErrRoomServiceNotConfigured is returned when room control operations are
	// attempted without proper configuration.
	ErrRoomServiceNotConfigured = errors.New("livekit room service not configured")

	// ErrRoomNotFound is returned when a requested room does not exist in LiveKit.
	ErrRoomNotFound = errors.New("room not found")
)

// RoomService provides control-plane operations against the LiveKit server.
// The local database remains the source of truth for room membership; these
// calls only affect live media connections.
type RoomService struct {
	roomClient *lksdk.RoomServiceClient
	url        string
}

// NewRoomService creates a new RoomService with the given configuration.
// Returns nil if url, apiKey, or apiSecret is empty (room control will not
// be available and lifecycle operations degrade to local-only).
func NewRoomService(url, apiKey, apiSecret string) *RoomService {
	if url == "" || apiKey == "" || apiSecret == "" {
		return nil
	}

	return &RoomService{
		roomClient: lksdk.NewRoomServiceClient(url, apiKey, apiSecret),
		url:        url,
	}
}

// RemoveParticipant disconnects a participant from the media room.
func (s *RoomService) RemoveParticipant(ctx context.Context, roomName, participantIdentity string) error {
	if s == nil || s.roomClient == nil {
		return ErrRoomServiceNotConfigured
	}

	req := &livekit.RoomParticipantIdentity{
		Room:     roomName,
		Identity: participantIdentity,
	}

	if _, err := s.roomClient.RemoveParticipant(ctx, req); err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	return nil
}

// DeleteRoom deletes a LiveKit room, disconnecting all participants.
func (s *RoomService) DeleteRoom(ctx context.Context, roomName string) error {
	if s == nil || s.roomClient == nil {
		return ErrRoomServiceNotConfigured
	}

	req := &livekit.DeleteRoomRequest{
		Room: roomName,
	}

	if _, err := s.roomClient.DeleteRoom(ctx, req); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	return nil
}

// GetRoom retrieves information about a specific LiveKit room.
// Returns ErrRoomNotFound if the room does not exist in LiveKit.
func (s *RoomService) GetRoom(ctx context.Context, roomName string) (*livekit.Room, error) {
	if s == nil || s.roomClient == nil {
		return nil, ErrRoomServiceNotConfigured
	}

	resp, err := s.roomClient.ListRooms(ctx, &livekit.ListRoomsRequest{
		Names: []string{roomName},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	if len(resp.Rooms) == 0 {
		return nil, ErrRoomNotFound
	}
	return resp.Rooms[0], nil
}

// ListParticipants lists all participants connected to a media room.
func (s *RoomService) ListParticipants(ctx context.Context, roomName string) ([]*livekit.ParticipantInfo, error) {
	if s == nil || s.roomClient == nil {
		return nil, ErrRoomServiceNotConfigured
	}

	req := &livekit.ListParticipantsRequest{
		Room: roomName,
	}

	resp, err := s.roomClient.ListParticipants(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return resp.Participants, nil
}
