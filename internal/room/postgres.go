package room

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

var _ Store = (*PostgresStore)(nil)

const roomColumns = `id, room_code, created_by, host_user_id, status, created_at, ended_at`

// CreateRoom inserts a room row, or returns the existing row for the code.
// ON CONFLICT DO NOTHING plus a re-fetch makes concurrent creates for the
// same code converge on one row without surfacing a constraint error.
func (s *PostgresStore) CreateRoom(ctx context.Context, code, creatorID string) (*Room, bool, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx, s.logger)

	insert := `
		INSERT INTO rooms (id, room_code, created_by, host_user_id, status, created_at)
		VALUES ($1, $2, $3, $3, $4, NOW())
		ON CONFLICT (room_code) DO NOTHING
		RETURNING ` + roomColumns

	var r Room
	err = scanRoom(tx.QueryRowContext(ctx, insert, uuid.NewString(), code, creatorID, StatusActive), &r)
	created := err == nil
	if err == sql.ErrNoRows {
		// Lost the race or the room pre-existed. Fetch the winner.
		fetch := `SELECT ` + roomColumns + ` FROM rooms WHERE room_code = $1`
		err = scanRoom(tx.QueryRowContext(ctx, fetch, code), &r)
		if err == sql.ErrNoRows {
			// Insert skipped but no row visible: the conflicting insert has
			// not committed yet. Treat as not found so the caller retries.
			return nil, false, ErrRoomNotFound
		}
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create room: %w", err)
	}

	if created {
		if err := appendEventTx(ctx, tx, Entry{
			RoomID:      r.ID,
			Type:        EventRoomCreated,
			ActorUserID: creatorID,
			Payload:     map[string]any{"roomCode": code},
		}); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit: %w", err)
	}
	r.Participants = []*Participant{}
	return &r, created, nil
}

// GetRoom loads the room row and its open presence intervals.
func (s *PostgresStore) GetRoom(ctx context.Context, code string) (*Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE room_code = $1`

	var r Room
	err := scanRoom(s.db.QueryRowContext(ctx, query, code), &r)
	if err == sql.ErrNoRows {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	participants, err := s.activeParticipantsByRoomID(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.Participants = participants
	return &r, nil
}

// HasRoom reports whether an active room with code exists.
func (s *PostgresStore) HasRoom(ctx context.Context, code string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM rooms WHERE room_code = $1 AND status = $2)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, code, StatusActive).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check room existence: %w", err)
	}
	return exists, nil
}

// ListRooms returns all rooms with their open presence intervals.
func (s *PostgresStore) ListRooms(ctx context.Context) ([]*Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms ORDER BY created_at, room_code`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var out []*Room
	for rows.Next() {
		var r Room
		if err := scanRoom(rows, &r); err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rooms: %w", err)
	}

	for _, r := range out {
		participants, err := s.activeParticipantsByRoomID(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		r.Participants = participants
	}
	return out, nil
}

// MarkEnded transitions an active room to ended and stamps ended_at.
func (s *PostgresStore) MarkEnded(ctx context.Context, code string) (*Room, error) {
	update := `
		UPDATE rooms
		SET status = $1, ended_at = NOW()
		WHERE room_code = $2 AND status = $3
		RETURNING ` + roomColumns

	var r Room
	err := scanRoom(s.db.QueryRowContext(ctx, update, StatusEnded, code, StatusActive), &r)
	if err == sql.ErrNoRows {
		// Distinguish absent from already ended.
		var status string
		err = s.db.QueryRowContext(ctx, `SELECT status FROM rooms WHERE room_code = $1`, code).Scan(&status)
		if err == sql.ErrNoRows {
			return nil, ErrRoomNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to check room status: %w", err)
		}
		return nil, ErrRoomEnded
	}
	if err != nil {
		return nil, fmt.Errorf("failed to end room: %w", err)
	}
	r.Participants = []*Participant{}
	return &r, nil
}

// DeleteRoom emits ROOM_DELETED then deletes the room row. Participants and
// events go with it via ON DELETE CASCADE.
func (s *PostgresStore) DeleteRoom(ctx context.Context, code string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx, s.logger)

	var roomID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM rooms WHERE room_code = $1`, code).Scan(&roomID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up room: %w", err)
	}

	if err := appendEventTx(ctx, tx, Entry{
		RoomID:  roomID,
		Type:    EventRoomDeleted,
		Payload: map[string]any{"roomCode": code},
	}); err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, roomID); err != nil {
		return false, fmt.Errorf("failed to delete room: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

// AddParticipant upserts the presence interval for (room, identity),
// creating the room first when it does not exist.
func (s *PostgresStore) AddParticipant(ctx context.Context, code string, join Join) (*Participant, error) {
	r, err := s.GetRoom(ctx, code)
	if err == ErrRoomNotFound {
		r, _, err = s.CreateRoom(ctx, code, join.creatorID())
	}
	if err != nil {
		return nil, err
	}
	if r.IsEnded() {
		return nil, ErrRoomEnded
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx, s.logger)

	isHost := join.UserID != "" && join.UserID == r.HostUserID

	// Rejoin reuses the (room, identity) row: refresh joined_at, clear left_at.
	upsert := `
		INSERT INTO room_participants (id, room_id, user_id, identity, display_name, role, is_host, joined_at, left_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NULL)
		ON CONFLICT (room_id, identity) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    display_name = EXCLUDED.display_name,
		    role = EXCLUDED.role,
		    is_host = EXCLUDED.is_host,
		    joined_at = NOW(),
		    left_at = NULL
		RETURNING id, room_id, user_id, identity, display_name, role, is_host, joined_at, left_at`

	var p Participant
	if err := scanParticipant(tx.QueryRowContext(ctx, upsert,
		uuid.NewString(), r.ID, join.UserID, join.Identity, join.DisplayName, join.Role, isHost,
	), &p); err != nil {
		return nil, fmt.Errorf("failed to upsert participant: %w", err)
	}

	if err := appendEventTx(ctx, tx, Entry{
		RoomID:      r.ID,
		Type:        EventJoin,
		ActorUserID: join.UserID,
		Payload:     map[string]any{"identity": join.Identity, "name": join.DisplayName},
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return &p, nil
}

// RemoveParticipant closes the open presence interval for (room, identity).
func (s *PostgresStore) RemoveParticipant(ctx context.Context, code, identity string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx, s.logger)

	update := `
		UPDATE room_participants p
		SET left_at = NOW()
		FROM rooms r
		WHERE p.room_id = r.id AND r.room_code = $1 AND p.identity = $2 AND p.left_at IS NULL
		RETURNING p.room_id, p.user_id`

	var roomID, userID string
	err = tx.QueryRowContext(ctx, update, code, identity).Scan(&roomID, &userID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to remove participant: %w", err)
	}

	if err := appendEventTx(ctx, tx, Entry{
		RoomID:      roomID,
		Type:        EventLeave,
		ActorUserID: userID,
		Payload:     map[string]any{"identity": identity},
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

// ActiveParticipants returns the open presence intervals for a room.
func (s *PostgresStore) ActiveParticipants(ctx context.Context, code string) ([]*Participant, error) {
	var roomID string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM rooms WHERE room_code = $1`, code).Scan(&roomID)
	if err == sql.ErrNoRows {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up room: %w", err)
	}
	return s.activeParticipantsByRoomID(ctx, roomID)
}

func (s *PostgresStore) activeParticipantsByRoomID(ctx context.Context, roomID string) ([]*Participant, error) {
	query := `
		SELECT id, room_id, user_id, identity, display_name, role, is_host, joined_at, left_at
		FROM room_participants
		WHERE room_id = $1 AND left_at IS NULL
		ORDER BY joined_at, identity`

	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	out := make([]*Participant, 0)
	for rows.Next() {
		var p Participant
		if err := scanParticipant(rows, &p); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return out, nil
}

// Append records a room lifecycle event.
func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	payload, err := marshalPayload(entry.Payload)
	if err != nil {
		return err
	}

	insert := `
		INSERT INTO room_events (id, room_id, event_type, actor_user_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`

	if _, err := s.db.ExecContext(ctx, insert,
		uuid.NewString(), entry.RoomID, string(entry.Type), nullString(entry.ActorUserID), payload,
	); err != nil {
		return fmt.Errorf("failed to append room event: %w", err)
	}
	return nil
}

// QueryByRoom returns events for a room, newest first.
func (s *PostgresStore) QueryByRoom(ctx context.Context, roomID string, limit int) ([]*Event, error) {
	query := `
		SELECT id, room_id, event_type, actor_user_id, payload, created_at
		FROM room_events
		WHERE room_id = $1
		ORDER BY created_at DESC, id DESC`
	args := []any{roomID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query room events: %w", err)
	}
	defer rows.Close()

	out := make([]*Event, 0)
	for rows.Next() {
		var (
			e       Event
			actor   sql.NullString
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.RoomID, &e.Type, &actor, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan room event: %w", err)
		}
		e.ActorUserID = actor.String
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode event payload: %w", err)
			}
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate room events: %w", err)
	}
	return out, nil
}

// CleanupOld removes room events older than cutoff across all rooms.
func (s *PostgresStore) CleanupOld(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM room_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up room events: %w", err)
	}
	return result.RowsAffected()
}

// StaleEmptyRooms returns active rooms older than cutoff with zero open
// presence intervals.
func (s *PostgresStore) StaleEmptyRooms(ctx context.Context, cutoff time.Time) ([]StaleRoom, error) {
	query := `
		SELECT r.id, r.room_code
		FROM rooms r
		WHERE r.status = $1
		  AND r.created_at < $2
		  AND NOT EXISTS (
			SELECT 1 FROM room_participants p
			WHERE p.room_id = r.id AND p.left_at IS NULL
		  )
		ORDER BY r.created_at`

	return s.queryStaleRooms(ctx, query, StatusActive, cutoff)
}

// DeleteIfStillEmpty deletes the room in one statement, re-checking the
// zero-participant and staleness conditions so a join racing the sweep wins.
func (s *PostgresStore) DeleteIfStillEmpty(ctx context.Context, roomID string, cutoff time.Time) (bool, error) {
	del := `
		DELETE FROM rooms r
		WHERE r.id = $1
		  AND r.status = $2
		  AND r.created_at < $3
		  AND NOT EXISTS (
			SELECT 1 FROM room_participants p
			WHERE p.room_id = r.id AND p.left_at IS NULL
		  )`

	result, err := s.db.ExecContext(ctx, del, roomID, StatusActive, cutoff)
	if err != nil {
		return false, fmt.Errorf("failed to delete stale room: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// EndedRoomsBefore returns ended rooms with ended_at before cutoff.
func (s *PostgresStore) EndedRoomsBefore(ctx context.Context, cutoff time.Time) ([]StaleRoom, error) {
	query := `
		SELECT id, room_code
		FROM rooms
		WHERE status = $1 AND ended_at IS NOT NULL AND ended_at < $2
		ORDER BY ended_at`

	return s.queryStaleRooms(ctx, query, StatusEnded, cutoff)
}

// DeleteRoomByID hard-deletes a room row by id.
func (s *PostgresStore) DeleteRoomByID(ctx context.Context, roomID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, roomID)
	if err != nil {
		return false, fmt.Errorf("failed to delete room: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) queryStaleRooms(ctx context.Context, query string, args ...any) ([]StaleRoom, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sweep candidates: %w", err)
	}
	defer rows.Close()

	var out []StaleRoom
	for rows.Next() {
		var sr StaleRoom
		if err := rows.Scan(&sr.ID, &sr.RoomCode); err != nil {
			return nil, fmt.Errorf("failed to scan sweep candidate: %w", err)
		}
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sweep candidates: %w", err)
	}
	return out, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(row scanner, r *Room) error {
	var endedAt sql.NullTime
	if err := row.Scan(&r.ID, &r.RoomCode, &r.CreatedBy, &r.HostUserID, &r.Status, &r.CreatedAt, &endedAt); err != nil {
		return err
	}
	if endedAt.Valid {
		t := endedAt.Time
		r.EndedAt = &t
	}
	return nil
}

func scanParticipant(row scanner, p *Participant) error {
	var (
		userID sql.NullString
		role   sql.NullString
		leftAt sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.RoomID, &userID, &p.Identity, &p.DisplayName, &role, &p.IsHost, &p.JoinedAt, &leftAt); err != nil {
		return err
	}
	p.UserID = userID.String
	p.Role = role.String
	if leftAt.Valid {
		t := leftAt.Time
		p.LeftAt = &t
	}
	return nil
}

func appendEventTx(ctx context.Context, tx *sql.Tx, entry Entry) error {
	payload, err := marshalPayload(entry.Payload)
	if err != nil {
		return err
	}
	insert := `
		INSERT INTO room_events (id, room_id, event_type, actor_user_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`
	if _, err := tx.ExecContext(ctx, insert,
		uuid.NewString(), entry.RoomID, string(entry.Type), nullString(entry.ActorUserID), payload,
	); err != nil {
		return fmt.Errorf("failed to append room event: %w", err)
	}
	return nil
}

func marshalPayload(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event payload: %w", err)
	}
	return b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func rollback(tx *sql.Tx, logger *slog.Logger) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		logger.Warn("failed to rollback transaction",
			slog.String("error", err.Error()))
	}
}
