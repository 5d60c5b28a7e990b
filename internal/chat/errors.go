package chat

import "errors"

var (
	// ErrUnauthorized is returned when a credential is missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when an authenticated identity is not a
	// participant of the target room, or a teacher addresses a student not
	// assigned to them.
	ErrForbidden = errors.New("forbidden room access")

	// ErrNotFound is returned when a referenced room, user, or
	// student-teacher assignment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for structurally invalid operation input.
	ErrInvalidInput = errors.New("invalid input")
)
