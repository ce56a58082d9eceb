// Package transcript stores speech-to-text transcript segments for rooms.
package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Segment is one transcribed utterance within a room.
type Segment struct {
	ID              string    `json:"id"`
	RoomID          string    `json:"roomId"`
	SpeakerIdentity string    `json:"speakerIdentity"`
	Text            string    `json:"text"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Repository persists transcript segments. Segments live only as long as
// their room: ending or sweeping a room purges them.
type Repository interface {
	// Save stores a segment and fills in its id and timestamp.
	Save(ctx context.Context, seg *Segment) error

	// ListByRoom returns segments for a room in utterance order.
	ListByRoom(ctx context.Context, roomID string, limit int) ([]*Segment, error)

	// DeleteByRoom removes all segments for a room and reports the count.
	DeleteByRoom(ctx context.Context, roomID string) (int64, error)

	// CleanupOld removes segments older than the cutoff and reports the
	// count. Used by the admin cleanup endpoints.
	CleanupOld(ctx context.Context, cutoff time.Time) (int64, error)
}

// InMemoryRepository is an in-memory Repository for tests and development.
type InMemoryRepository struct {
	mu       sync.RWMutex
	segments map[string][]*Segment // roomID -> segments
	now      func() time.Time
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		segments: make(map[string][]*Segment),
		now:      time.Now,
	}
}

var _ Repository = (*InMemoryRepository)(nil)

// Save stores a segment.
func (r *InMemoryRepository) Save(ctx context.Context, seg *Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seg.ID = uuid.NewString()
	seg.CreatedAt = r.now().UTC()
	cp := *seg
	r.segments[seg.RoomID] = append(r.segments[seg.RoomID], &cp)
	return nil
}

// ListByRoom returns segments for a room in utterance order.
func (r *InMemoryRepository) ListByRoom(ctx context.Context, roomID string, limit int) ([]*Segment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.segments[roomID]
	out := make([]*Segment, 0, len(stored))
	for _, s := range stored {
		cp := *s
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// DeleteByRoom removes all segments for a room.
func (r *InMemoryRepository) DeleteByRoom(ctx context.Context, roomID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int64(len(r.segments[roomID]))
	delete(r.segments, roomID)
	return n, nil
}

// CleanupOld removes segments older than cutoff across all rooms.
func (r *InMemoryRepository) CleanupOld(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for roomID, segs := range r.segments {
		kept := segs[:0]
		for _, s := range segs {
			if s.CreatedAt.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) == 0 {
			delete(r.segments, roomID)
		} else {
			r.segments[roomID] = kept
		}
	}
	return deleted, nil
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

// Save stores a segment.
func (r *PostgresRepository) Save(ctx context.Context, seg *Segment) error {
	insert := `
		INSERT INTO room_transcripts (id, room_id, speaker_identity, text, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, insert,
		uuid.NewString(), seg.RoomID, seg.SpeakerIdentity, seg.Text,
	).Scan(&seg.ID, &seg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save transcript segment: %w", err)
	}
	return nil
}

// ListByRoom returns segments for a room in utterance order.
func (r *PostgresRepository) ListByRoom(ctx context.Context, roomID string, limit int) ([]*Segment, error) {
	query := `
		SELECT id, room_id, speaker_identity, text, created_at
		FROM room_transcripts
		WHERE room_id = $1
		ORDER BY created_at, id`
	args := []any{roomID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcript segments: %w", err)
	}
	defer rows.Close()

	out := make([]*Segment, 0)
	for rows.Next() {
		var s Segment
		if err := rows.Scan(&s.ID, &s.RoomID, &s.SpeakerIdentity, &s.Text, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcript segment: %w", err)
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcript segments: %w", err)
	}
	return out, nil
}

// DeleteByRoom removes all segments for a room.
func (r *PostgresRepository) DeleteByRoom(ctx context.Context, roomID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM room_transcripts WHERE room_id = $1`, roomID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transcript segments: %w", err)
	}
	return result.RowsAffected()
}

// CleanupOld removes segments older than cutoff across all rooms.
func (r *PostgresRepository) CleanupOld(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM room_transcripts WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up transcript segments: %w", err)
	}
	return result.RowsAffected()
}
