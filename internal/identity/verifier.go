// Package identity adapts the external identity system's bearer credentials
// into verified identities for the messaging core. Token issuance and account
// management live outside this service; only verification happens here.
package identity

import (
	"context"
	"errors"

	"github.com/IamJunnn/ecoblox-web-curriculum-sub000/internal/chat"
)

var (
	// ErrInvalidToken is returned when a credential fails verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrConfig is returned for invalid verifier configuration.
	ErrConfig = errors.New("invalid identity config")
)

// Verifier validates a bearer credential and yields the subject's identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (chat.Identity, error)
}

func validRole(r chat.Role) bool {
	switch r {
	case chat.RoleStudent, chat.RoleTeacher, chat.RoleAdmin:
		return true
	default:
		return false
	}
}
