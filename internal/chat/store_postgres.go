package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the repository ports on PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
//
// Concurrency model:
// - Room creation takes a per-pair transactional advisory lock plus a unique
//   constraint on (teacher_id, student_id), so two concurrent ensures for the
//   same pair cannot both create a room.
// - Message append and the room last_message_at bump run in one transaction.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "chat").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("chat: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("chat: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "chat",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("chat: nil pool")
	}
	return st, nil
}

var (
	_ RoomRepository        = (*PostgresStore)(nil)
	_ ParticipantRepository = (*PostgresStore)(nil)
	_ MessageRepository     = (*PostgresStore)(nil)
	_ PresenceRepository    = (*PostgresStore)(nil)
)

// EnsureDirectRoom returns the pair's room, creating room + participants in
// one transaction when absent.
func (s *PostgresStore) EnsureDirectRoom(ctx context.Context, teacherID, studentID string, now time.Time) (Room, bool, error) {
	if s == nil || s.pool == nil {
		return Room{}, false, errors.New("chat: nil store")
	}
	if teacherID == "" || studentID == "" {
		return Room{}, false, fmt.Errorf("%w: missing teacher or student id", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return Room{}, false, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Room{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rooms := pgIdent(s.schema, "rooms")
	participants := pgIdent(s.schema, "room_participants")

	// Serialize room creation per pair so concurrent ensures cannot both
	// observe "no existing room".
	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		teacherID+":"+studentID,
	); err != nil {
		return Room{}, false, fmt.Errorf("advisory lock: %w", err)
	}

	id, err := NewID(now)
	if err != nil {
		return Room{}, false, err
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO `+rooms+` (id, kind, teacher_id, student_id, created_at, is_active)
		 VALUES ($1, $2, $3, $4, $5, TRUE)
		 ON CONFLICT (teacher_id, student_id) DO NOTHING`,
		id, RoomKindDirect, teacherID, studentID, now,
	)
	if err != nil {
		return Room{}, false, fmt.Errorf("insert room: %w", err)
	}

	created := tag.RowsAffected() == 1
	if created {
		if _, err := tx.Exec(ctx,
			`INSERT INTO `+participants+` (room_id, user_id, last_read_at, joined_at)
			 VALUES ($1, $2, $3, $3), ($1, $4, $3, $3)`,
			id, teacherID, now, studentID,
		); err != nil {
			return Room{}, false, fmt.Errorf("insert participants: %w", err)
		}
	}

	room, err := scanRoom(tx.QueryRow(ctx,
		`SELECT id, kind, teacher_id, student_id, created_at, last_message_at, is_active
		   FROM `+rooms+`
		  WHERE teacher_id = $1 AND student_id = $2`,
		teacherID, studentID,
	))
	if err != nil {
		return Room{}, false, fmt.Errorf("select room: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Room{}, false, err
	}
	return room, created, nil
}

// RoomByID returns the room or ErrNotFound.
func (s *PostgresStore) RoomByID(ctx context.Context, roomID string) (Room, error) {
	rooms := pgIdent(s.schema, "rooms")

	room, err := scanRoom(s.pool.QueryRow(ctx,
		`SELECT id, kind, teacher_id, student_id, created_at, last_message_at, is_active
		   FROM `+rooms+`
		  WHERE id = $1`,
		roomID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Room{}, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	if err != nil {
		return Room{}, err
	}
	return room, nil
}

// RoomsByTeacher orders by last message time descending with creation-time
// fallback for empty rooms.
func (s *PostgresStore) RoomsByTeacher(ctx context.Context, teacherID string) ([]Room, error) {
	rooms := pgIdent(s.schema, "rooms")

	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, teacher_id, student_id, created_at, last_message_at, is_active
		   FROM `+rooms+`
		  WHERE teacher_id = $1
		  ORDER BY COALESCE(last_message_at, created_at) DESC`,
		teacherID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Room, 0, 16)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, room)
	}
	return out, rows.Err()
}

// Participant returns the membership row or ErrNotFound.
func (s *PostgresStore) Participant(ctx context.Context, roomID, userID string) (Participant, error) {
	participants := pgIdent(s.schema, "room_participants")

	var p Participant
	err := s.pool.QueryRow(ctx,
		`SELECT room_id, user_id, last_read_at, joined_at
		   FROM `+participants+`
		  WHERE room_id = $1 AND user_id = $2`,
		roomID, userID,
	).Scan(&p.RoomID, &p.UserID, &p.LastReadAt, &p.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Participant{}, fmt.Errorf("participant %s in room %s: %w", userID, roomID, ErrNotFound)
	}
	if err != nil {
		return Participant{}, err
	}
	return p, nil
}

// ParticipantsByRoom lists the room's membership rows.
func (s *PostgresStore) ParticipantsByRoom(ctx context.Context, roomID string) ([]Participant, error) {
	participants := pgIdent(s.schema, "room_participants")

	rows, err := s.pool.Query(ctx,
		`SELECT room_id, user_id, last_read_at, joined_at
		   FROM `+participants+`
		  WHERE room_id = $1
		  ORDER BY user_id`,
		roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Participant, 0, 2)
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.RoomID, &p.UserID, &p.LastReadAt, &p.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RoomIDsByUser lists every room the user participates in.
func (s *PostgresStore) RoomIDsByUser(ctx context.Context, userID string) ([]string, error) {
	participants := pgIdent(s.schema, "room_participants")

	rows, err := s.pool.Query(ctx,
		`SELECT room_id FROM `+participants+` WHERE user_id = $1 ORDER BY room_id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0, 16)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SetLastRead advances the read marker; zero rows affected is not an error.
func (s *PostgresStore) SetLastRead(ctx context.Context, roomID, userID string, at time.Time) error {
	participants := pgIdent(s.schema, "room_participants")

	_, err := s.pool.Exec(ctx,
		`UPDATE `+participants+` SET last_read_at = $3 WHERE room_id = $1 AND user_id = $2`,
		roomID, userID, at,
	)
	return err
}

// Append inserts the message and bumps rooms.last_message_at in one
// transaction.
func (s *PostgresStore) Append(ctx context.Context, msg Message) error {
	if msg.ID == "" || msg.RoomID == "" || msg.SenderID == "" {
		return fmt.Errorf("%w: incomplete message", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rooms := pgIdent(s.schema, "rooms")
	messages := pgIdent(s.schema, "messages")

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+messages+` (
		     id, room_id, sender_id, sender_name, sender_role, body, kind, sent_at, is_deleted
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)`,
		msg.ID, msg.RoomID, msg.SenderID, msg.SenderName, string(msg.SenderRole), msg.Body, msg.Kind, msg.SentAt,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE `+rooms+` SET last_message_at = $2 WHERE id = $1`,
		msg.RoomID, msg.SentAt,
	)
	if err != nil {
		return fmt.Errorf("touch room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("room %s: %w", msg.RoomID, ErrNotFound)
	}

	return tx.Commit(ctx)
}

// RecentByRoom pages non-deleted messages newest-first by (sent_at, id).
func (s *PostgresStore) RecentByRoom(ctx context.Context, roomID string, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	messages := pgIdent(s.schema, "messages")

	rows, err := s.pool.Query(ctx,
		`SELECT id, room_id, sender_id, sender_name, sender_role, body, kind, sent_at, is_deleted
		   FROM `+messages+`
		  WHERE room_id = $1 AND NOT is_deleted
		  ORDER BY sent_at DESC, id DESC
		  LIMIT $2 OFFSET $3`,
		roomID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// LastByRoom returns the most recent non-deleted message, nil when none.
func (s *PostgresStore) LastByRoom(ctx context.Context, roomID string) (*Message, error) {
	messages := pgIdent(s.schema, "messages")

	msg, err := scanMessage(s.pool.QueryRow(ctx,
		`SELECT id, room_id, sender_id, sender_name, sender_role, body, kind, sent_at, is_deleted
		   FROM `+messages+`
		  WHERE room_id = $1 AND NOT is_deleted
		  ORDER BY sent_at DESC, id DESC
		  LIMIT 1`,
		roomID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// CountUnread counts messages by other senders after the given time.
func (s *PostgresStore) CountUnread(ctx context.Context, roomID, excludeSenderID string, after time.Time) (int, error) {
	messages := pgIdent(s.schema, "messages")

	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*)
		   FROM `+messages+`
		  WHERE room_id = $1 AND sender_id <> $2 AND sent_at > $3 AND NOT is_deleted`,
		roomID, excludeSenderID, after,
	).Scan(&n)
	return n, err
}

// Upsert stores the presence record, last write wins.
func (s *PostgresStore) Upsert(ctx context.Context, rec PresenceRecord) error {
	if rec.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidInput)
	}

	presence := pgIdent(s.schema, "presence")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+presence+` (user_id, is_online, last_seen, connection_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		    SET is_online = EXCLUDED.is_online,
		        last_seen = EXCLUDED.last_seen,
		        connection_id = EXCLUDED.connection_id`,
		rec.UserID, rec.Online, rec.LastSeen, rec.ConnectionID,
	)
	return err
}

// Presence returns the record or ErrNotFound.
func (s *PostgresStore) Presence(ctx context.Context, userID string) (PresenceRecord, error) {
	presence := pgIdent(s.schema, "presence")

	var rec PresenceRecord
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, is_online, last_seen, connection_id
		   FROM `+presence+`
		  WHERE user_id = $1`,
		userID,
	).Scan(&rec.UserID, &rec.Online, &rec.LastSeen, &rec.ConnectionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return PresenceRecord{}, fmt.Errorf("presence %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return PresenceRecord{}, err
	}
	return rec, nil
}

// ---- external collaborator reads ----

// PostgresRoster reads the student-to-teacher assignment from the users
// table owned by the identity system.
type PostgresRoster struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresRoster constructs a roster reader (schema default: "chat").
func NewPostgresRoster(pool *pgxpool.Pool, schema string) (*PostgresRoster, error) {
	if pool == nil {
		return nil, errors.New("chat: nil pool")
	}
	if schema == "" {
		schema = "chat"
	}
	if !isValidPGIdent(schema) {
		return nil, errors.New("chat: invalid schema identifier")
	}
	return &PostgresRoster{pool: pool, schema: schema}, nil
}

// AssignedTeacher returns ErrNotFound when the student has no teacher.
func (r *PostgresRoster) AssignedTeacher(ctx context.Context, studentID string) (string, error) {
	users := pgIdent(r.schema, "users")

	var teacherID *string
	err := r.pool.QueryRow(ctx,
		`SELECT teacher_id FROM `+users+` WHERE id = $1`,
		studentID,
	).Scan(&teacherID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("student %s: %w", studentID, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	if teacherID == nil || *teacherID == "" {
		return "", fmt.Errorf("assignment for student %s: %w", studentID, ErrNotFound)
	}
	return *teacherID, nil
}

// PostgresUserDirectory reads public profiles from the users table owned by
// the identity system.
type PostgresUserDirectory struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresUserDirectory constructs a profile reader (schema default: "chat").
func NewPostgresUserDirectory(pool *pgxpool.Pool, schema string) (*PostgresUserDirectory, error) {
	if pool == nil {
		return nil, errors.New("chat: nil pool")
	}
	if schema == "" {
		schema = "chat"
	}
	if !isValidPGIdent(schema) {
		return nil, errors.New("chat: invalid schema identifier")
	}
	return &PostgresUserDirectory{pool: pool, schema: schema}, nil
}

// UserByID returns ErrNotFound for unknown users.
func (d *PostgresUserDirectory) UserByID(ctx context.Context, userID string) (UserProfile, error) {
	users := pgIdent(d.schema, "users")

	var p UserProfile
	var role string
	err := d.pool.QueryRow(ctx,
		`SELECT id, name, role FROM `+users+` WHERE id = $1`,
		userID,
	).Scan(&p.ID, &p.Name, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserProfile{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return UserProfile{}, err
	}
	p.Role = Role(role)
	return p, nil
}

// ---- row scanning helpers ----

func scanRoom(row pgx.Row) (Room, error) {
	var room Room
	var lastMessageAt *time.Time
	if err := row.Scan(
		&room.ID,
		&room.Kind,
		&room.TeacherID,
		&room.StudentID,
		&room.CreatedAt,
		&lastMessageAt,
		&room.IsActive,
	); err != nil {
		return Room{}, err
	}
	if lastMessageAt != nil {
		room.LastMessageAt = *lastMessageAt
	}
	return room, nil
}

func scanMessage(row pgx.Row) (Message, error) {
	var msg Message
	var role string
	if err := row.Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.SenderID,
		&msg.SenderName,
		&role,
		&msg.Body,
		&msg.Kind,
		&msg.SentAt,
		&msg.Deleted,
	); err != nil {
		return Message{}, err
	}
	msg.SenderRole = Role(role)
	return msg, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
