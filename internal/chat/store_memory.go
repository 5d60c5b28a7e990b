package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of all four repository ports,
// used when no database is configured (dev) and by unit tests.
//
// A single mutex guards all maps so that the cross-entity writes the ports
// require to be atomic (room + participants, message + room timestamp) are
// serialized the same way a transaction would.
type MemoryStore struct {
	mu           sync.Mutex
	rooms        map[string]Room
	pairIndex    map[pairKey]string               // (teacher, student) -> room id
	participants map[string]map[string]Participant // room id -> user id -> row
	messages     map[string][]Message              // room id -> append order
	presence     map[string]PresenceRecord
}

type pairKey struct {
	teacherID string
	studentID string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:        make(map[string]Room),
		pairIndex:    make(map[pairKey]string),
		participants: make(map[string]map[string]Participant),
		messages:     make(map[string][]Message),
		presence:     make(map[string]PresenceRecord),
	}
}

var (
	_ RoomRepository        = (*MemoryStore)(nil)
	_ ParticipantRepository = (*MemoryStore)(nil)
	_ MessageRepository     = (*MemoryStore)(nil)
	_ PresenceRepository    = (*MemoryStore)(nil)
)

// EnsureDirectRoom creates the room and both participant rows atomically, or
// returns the existing room for the pair.
func (s *MemoryStore) EnsureDirectRoom(ctx context.Context, teacherID, studentID string, now time.Time) (Room, bool, error) {
	if teacherID == "" || studentID == "" {
		return Room{}, false, fmt.Errorf("%w: missing teacher or student id", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return Room{}, false, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{teacherID: teacherID, studentID: studentID}
	if id, ok := s.pairIndex[key]; ok {
		return s.rooms[id], false, nil
	}

	id, err := NewID(now)
	if err != nil {
		return Room{}, false, err
	}

	room := Room{
		ID:        id,
		Kind:      RoomKindDirect,
		TeacherID: teacherID,
		StudentID: studentID,
		CreatedAt: now,
		IsActive:  true,
	}
	s.rooms[id] = room
	s.pairIndex[key] = id
	s.participants[id] = map[string]Participant{
		teacherID: {RoomID: id, UserID: teacherID, LastReadAt: now, JoinedAt: now},
		studentID: {RoomID: id, UserID: studentID, LastReadAt: now, JoinedAt: now},
	}
	return room, true, nil
}

// RoomByID returns the room or ErrNotFound.
func (s *MemoryStore) RoomByID(ctx context.Context, roomID string) (Room, error) {
	if err := ctx.Err(); err != nil {
		return Room{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return Room{}, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	return room, nil
}

// RoomsByTeacher returns rooms ordered by last message time descending,
// falling back to creation time for rooms with no messages.
func (s *MemoryStore) RoomsByTeacher(ctx context.Context, teacherID string) ([]Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Room, 0, 8)
	for _, room := range s.rooms {
		if room.TeacherID == teacherID {
			out = append(out, room)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return roomSortKey(out[i]).After(roomSortKey(out[j]))
	})
	return out, nil
}

func roomSortKey(r Room) time.Time {
	if !r.LastMessageAt.IsZero() {
		return r.LastMessageAt
	}
	return r.CreatedAt
}

// Participant returns the membership row or ErrNotFound.
func (s *MemoryStore) Participant(ctx context.Context, roomID, userID string) (Participant, error) {
	if err := ctx.Err(); err != nil {
		return Participant{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[roomID][userID]
	if !ok {
		return Participant{}, fmt.Errorf("participant %s in room %s: %w", userID, roomID, ErrNotFound)
	}
	return p, nil
}

// ParticipantsByRoom lists the room's membership rows.
func (s *MemoryStore) ParticipantsByRoom(ctx context.Context, roomID string) ([]Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.participants[roomID]
	out := make([]Participant, 0, len(rows))
	for _, p := range rows {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// RoomIDsByUser lists every room the user participates in.
func (s *MemoryStore) RoomIDsByUser(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, 8)
	for roomID, rows := range s.participants {
		if _, ok := rows[userID]; ok {
			out = append(out, roomID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// SetLastRead advances the read marker; no-op when the row does not exist.
func (s *MemoryStore) SetLastRead(ctx context.Context, roomID, userID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.participants[roomID]
	if !ok {
		return nil
	}
	p, ok := rows[userID]
	if !ok {
		return nil
	}
	p.LastReadAt = at
	rows[userID] = p
	return nil
}

// Append persists the message and bumps the room's last message timestamp
// under the same lock.
func (s *MemoryStore) Append(ctx context.Context, msg Message) error {
	if msg.ID == "" || msg.RoomID == "" || msg.SenderID == "" {
		return fmt.Errorf("%w: incomplete message", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[msg.RoomID]
	if !ok {
		return fmt.Errorf("room %s: %w", msg.RoomID, ErrNotFound)
	}

	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], msg)
	room.LastMessageAt = msg.SentAt
	s.rooms[msg.RoomID] = room
	return nil
}

// RecentByRoom returns non-deleted messages newest-first with paging.
func (s *MemoryStore) RecentByRoom(ctx context.Context, roomID string, limit, offset int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.Lock()
	snap := make([]Message, 0, len(s.messages[roomID]))
	for _, m := range s.messages[roomID] {
		if !m.Deleted {
			snap = append(snap, m)
		}
	}
	s.mu.Unlock()

	// Newest-first by the (sent_at, id) ordering key.
	sort.Slice(snap, func(i, j int) bool {
		if !snap[i].SentAt.Equal(snap[j].SentAt) {
			return snap[i].SentAt.After(snap[j].SentAt)
		}
		return snap[i].ID > snap[j].ID
	})

	if offset >= len(snap) {
		return nil, nil
	}
	snap = snap[offset:]
	if len(snap) > limit {
		snap = snap[:limit]
	}
	return snap, nil
}

// LastByRoom returns the most recent non-deleted message, nil when none.
func (s *MemoryStore) LastByRoom(ctx context.Context, roomID string) (*Message, error) {
	page, err := s.RecentByRoom(ctx, roomID, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(page) == 0 {
		return nil, nil
	}
	m := page[0]
	return &m, nil
}

// CountUnread counts messages by other senders after the given time.
func (s *MemoryStore) CountUnread(ctx context.Context, roomID, excludeSenderID string, after time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.messages[roomID] {
		if m.Deleted || m.SenderID == excludeSenderID {
			continue
		}
		if m.SentAt.After(after) {
			n++
		}
	}
	return n, nil
}

// Upsert stores the presence record, last write wins.
func (s *MemoryStore) Upsert(ctx context.Context, rec PresenceRecord) error {
	if rec.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.presence[rec.UserID] = rec
	return nil
}

// Presence returns the record or ErrNotFound.
func (s *MemoryStore) Presence(ctx context.Context, userID string) (PresenceRecord, error) {
	if err := ctx.Err(); err != nil {
		return PresenceRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.presence[userID]
	if !ok {
		return PresenceRecord{}, fmt.Errorf("presence %s: %w", userID, ErrNotFound)
	}
	return rec, nil
}

// ---- collaborator fakes for dev mode and tests ----

// MemoryRoster is an in-memory student-to-teacher assignment table.
type MemoryRoster struct {
	mu       sync.RWMutex
	teachers map[string]string // student id -> teacher id
}

// NewMemoryRoster constructs an empty roster.
func NewMemoryRoster() *MemoryRoster {
	return &MemoryRoster{teachers: make(map[string]string)}
}

// Assign binds a student to a teacher.
func (r *MemoryRoster) Assign(studentID, teacherID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teachers[studentID] = teacherID
}

// AssignedTeacher returns ErrNotFound when the student has no teacher.
func (r *MemoryRoster) AssignedTeacher(ctx context.Context, studentID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	teacherID, ok := r.teachers[studentID]
	if !ok {
		return "", fmt.Errorf("assignment for student %s: %w", studentID, ErrNotFound)
	}
	return teacherID, nil
}

// MemoryUserDirectory is an in-memory profile lookup.
type MemoryUserDirectory struct {
	mu    sync.RWMutex
	users map[string]UserProfile
}

// NewMemoryUserDirectory constructs an empty directory.
func NewMemoryUserDirectory() *MemoryUserDirectory {
	return &MemoryUserDirectory{users: make(map[string]UserProfile)}
}

// Put stores a profile.
func (d *MemoryUserDirectory) Put(p UserProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[p.ID] = p
}

// UserByID returns ErrNotFound for unknown users.
func (d *MemoryUserDirectory) UserByID(ctx context.Context, userID string) (UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return UserProfile{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.users[userID]
	if !ok {
		return UserProfile{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return p, nil
}
