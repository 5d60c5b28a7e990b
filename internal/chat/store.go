package chat

import (
	"context"
	"time"
)

// RoomRepository persists rooms and enforces the one-room-per-pair invariant.
type RoomRepository interface {
	// EnsureDirectRoom returns the single direct room for the pair, creating
	// it together with its two participant rows when absent. Creation is
	// atomic: two concurrent calls for the same pair observe one room.
	// Both participants start with LastReadAt = now (zero initial unread).
	EnsureDirectRoom(ctx context.Context, teacherID, studentID string, now time.Time) (Room, bool, error)

	// RoomByID returns ErrNotFound when the room does not exist.
	RoomByID(ctx context.Context, roomID string) (Room, error)

	// RoomsByTeacher returns the teacher's direct rooms ordered by
	// last_message_at descending; rooms with no messages sort by creation time.
	RoomsByTeacher(ctx context.Context, teacherID string) ([]Room, error)
}

// ParticipantRepository reads and updates room membership rows.
type ParticipantRepository interface {
	// Participant returns ErrNotFound when the user is not a member.
	Participant(ctx context.Context, roomID, userID string) (Participant, error)

	ParticipantsByRoom(ctx context.Context, roomID string) ([]Participant, error)

	// RoomIDsByUser lists every room the user participates in.
	RoomIDsByUser(ctx context.Context, userID string) ([]string, error)

	// SetLastRead advances the read marker. It is a no-op (not an error)
	// when no participant row exists for the pair.
	SetLastRead(ctx context.Context, roomID, userID string, at time.Time) error
}

// MessageRepository persists and queries messages for a room.
type MessageRepository interface {
	// Append persists the message and updates the room's last_message_at to
	// the message timestamp as one unit: either both happen or neither.
	Append(ctx context.Context, msg Message) error

	// RecentByRoom returns non-deleted messages newest-first with paging.
	// Callers that need chronological order must reverse the page.
	RecentByRoom(ctx context.Context, roomID string, limit, offset int) ([]Message, error)

	// LastByRoom returns the most recent non-deleted message, nil when none.
	LastByRoom(ctx context.Context, roomID string) (*Message, error)

	// CountUnread counts non-deleted messages in the room sent after the
	// given time by anyone other than excludeSenderID.
	CountUnread(ctx context.Context, roomID, excludeSenderID string, after time.Time) (int, error)
}

// PresenceRepository stores per-user presence records, last-write-wins.
type PresenceRepository interface {
	Upsert(ctx context.Context, rec PresenceRecord) error

	// Presence returns ErrNotFound when the user has never connected.
	Presence(ctx context.Context, userID string) (PresenceRecord, error)
}
