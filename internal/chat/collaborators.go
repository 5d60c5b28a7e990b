package chat

import "context"

// Roster resolves the student-to-teacher assignment. The relation is owned
// by the external identity system; this core only reads it.
type Roster interface {
	// AssignedTeacher returns ErrNotFound when the student has no teacher.
	AssignedTeacher(ctx context.Context, studentID string) (string, error)
}

// UserDirectory resolves public profiles for referenced users.
// User records are owned by the external identity system.
type UserDirectory interface {
	// UserByID returns ErrNotFound for unknown users.
	UserByID(ctx context.Context, userID string) (UserProfile, error)
}
