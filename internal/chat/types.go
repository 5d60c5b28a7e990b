// Package chat contains the realtime messaging core: direct rooms between a
// teacher and a student, message persistence, presence tracking, and unread
// accounting. Transport lives in internal/realtime; this package is storage-
// and transport-agnostic behind small repository ports.
package chat

import "time"

// Role is the platform role attached to an authenticated identity.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// RoomKindDirect is the only room kind currently supported.
const RoomKindDirect = "direct"

// MessageKindText is the default message type.
const MessageKindText = "text"

// Identity is the verified identity attached to a connection or request.
// It is produced by the external identity verifier, never by this core.
type Identity struct {
	UserID string
	Name   string
	Role   Role
}

// UserProfile is the public profile of a referenced user.
// User records are owned by the external identity system.
type UserProfile struct {
	ID   string
	Name string
	Role Role
}

// Room is a one-to-one chat room between exactly one teacher and one student.
// At most one room exists per (teacher, student) pair.
type Room struct {
	ID            string
	Kind          string
	TeacherID     string
	StudentID     string
	CreatedAt     time.Time
	LastMessageAt time.Time // zero until the first message
	IsActive      bool
}

// Participant grants a user access to a room and tracks their read position.
// Exactly two participants exist per direct room, created atomically with it.
type Participant struct {
	RoomID     string
	UserID     string
	LastReadAt time.Time
	JoinedAt   time.Time
}

// Message is a persisted chat message. Immutable once created except for the
// soft-delete flag. Ordering key is (SentAt, ID).
type Message struct {
	ID         string
	RoomID     string
	SenderID   string
	SenderName string
	SenderRole Role
	Body       string
	Kind       string
	SentAt     time.Time
	Deleted    bool
}

// PresenceRecord is a user's last reported online state. Last-write-wins,
// no history retained.
type PresenceRecord struct {
	UserID       string
	Online       bool
	LastSeen     time.Time
	ConnectionID string
}
