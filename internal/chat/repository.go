// Package chat stores in-room chat messages.
package chat

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one chat message sent inside a room.
type Message struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"roomId"`
	SenderID   string    `json:"senderId,omitempty"`
	SenderName string    `json:"senderName"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Repository persists chat messages. Messages live only as long as their
// room: ending or sweeping a room purges them.
type Repository interface {
	// Save stores a message and fills in its id and timestamp.
	Save(ctx context.Context, msg *Message) error

	// ListByRoom returns messages for a room in send order.
	ListByRoom(ctx context.Context, roomID string, limit int) ([]*Message, error)

	// DeleteByRoom removes all messages for a room and reports the count.
	DeleteByRoom(ctx context.Context, roomID string) (int64, error)

	// CleanupOld removes messages older than the cutoff and reports the
	// count. Used by the admin cleanup endpoints.
	CleanupOld(ctx context.Context, cutoff time.Time) (int64, error)
}

// InMemoryRepository is an in-memory Repository for tests and development.
type InMemoryRepository struct {
	mu       sync.RWMutex
	messages map[string][]*Message // roomID -> messages
	now      func() time.Time
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		messages: make(map[string][]*Message),
		now:      time.Now,
	}
}

var _ Repository = (*InMemoryRepository)(nil)

// Save stores a message.
func (r *InMemoryRepository) Save(ctx context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg.ID = uuid.NewString()
	msg.CreatedAt = r.now().UTC()
	cp := *msg
	r.messages[msg.RoomID] = append(r.messages[msg.RoomID], &cp)
	return nil
}

// ListByRoom returns messages for a room in send order.
func (r *InMemoryRepository) ListByRoom(ctx context.Context, roomID string, limit int) ([]*Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.messages[roomID]
	out := make([]*Message, 0, len(stored))
	for _, m := range stored {
		cp := *m
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// DeleteByRoom removes all messages for a room.
func (r *InMemoryRepository) DeleteByRoom(ctx context.Context, roomID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int64(len(r.messages[roomID]))
	delete(r.messages, roomID)
	return n, nil
}

// CleanupOld removes messages older than cutoff across all rooms.
func (r *InMemoryRepository) CleanupOld(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for roomID, msgs := range r.messages {
		kept := msgs[:0]
		for _, m := range msgs {
			if m.CreatedAt.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, m)
		}
		if len(kept) == 0 {
			delete(r.messages, roomID)
		} else {
			r.messages[roomID] = kept
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

// Save stores a message.
func (r *PostgresRepository) Save(ctx context.Context, msg *Message) error {
	insert := `
		INSERT INTO room_messages (id, room_id, sender_id, sender_name, body, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at`

	id := uuid.NewString()
	err := r.db.QueryRowContext(ctx, insert,
		id, msg.RoomID, nullable(msg.SenderID), msg.SenderName, msg.Body,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// ListByRoom returns messages for a room in send order.
func (r *PostgresRepository) ListByRoom(ctx context.Context, roomID string, limit int) ([]*Message, error) {
	query := `
		SELECT id, room_id, sender_id, sender_name, body, created_at
		FROM room_messages
		WHERE room_id = $1
		ORDER BY created_at, id`
	args := []any{roomID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	out := make([]*Message, 0)
	for rows.Next() {
		var (
			m      Message
			sender sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.RoomID, &sender, &m.SenderName, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.SenderID = sender.String
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return out, nil
}

// DeleteByRoom removes all messages for a room.
func (r *PostgresRepository) DeleteByRoom(ctx context.Context, roomID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM room_messages WHERE room_id = $1`, roomID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return result.RowsAffected()
}

// CleanupOld removes messages older than cutoff across all rooms.
func (r *PostgresRepository) CleanupOld(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM room_messages WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up messages: %w", err)
	}
	return result.RowsAffected()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
