package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/IamJunnn/ecoblox-web-curriculum-sub000/internal/chat"
)

// StaticVerifier maps fixed tokens to identities. It backs local development
// when no verifier key is configured, and tests.
type StaticVerifier struct {
	mu     sync.RWMutex
	tokens map[string]chat.Identity
}

// NewStaticVerifier constructs an empty StaticVerifier.
func NewStaticVerifier() *StaticVerifier {
	return &StaticVerifier{tokens: make(map[string]chat.Identity)}
}

// Add registers a token for the identity.
func (v *StaticVerifier) Add(token string, id chat.Identity) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tokens[token] = id
}

// Verify resolves the token or fails with ErrInvalidToken.
func (v *StaticVerifier) Verify(ctx context.Context, token string) (chat.Identity, error) {
	if err := ctx.Err(); err != nil {
		return chat.Identity{}, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	id, ok := v.tokens[token]
	if !ok {
		return chat.Identity{}, ErrInvalidToken
	}
	return id, nil
}

// Identities returns a copy of every registered identity. Used to seed dev
// fixtures such as the in-memory user directory.
func (v *StaticVerifier) Identities() []chat.Identity {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]chat.Identity, 0, len(v.tokens))
	for _, id := range v.tokens {
		out = append(out, id)
	}
	return out
}

// ParseStaticTokens parses the dev token spec "token:userID:role:name"
// entries separated by commas, as read from the environment.
func ParseStaticTokens(spec string) (*StaticVerifier, error) {
	v := NewStaticVerifier()

	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.SplitN(entry, ":", 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("%w: malformed dev token entry %q", ErrConfig, entry)
		}

		role := chat.Role(parts[2])
		if !validRole(role) {
			return nil, fmt.Errorf("%w: unknown role %q", ErrConfig, parts[2])
		}

		v.Add(parts[0], chat.Identity{
			UserID: parts[1],
			Name:   parts[3],
			Role:   role,
		})
	}
	return v, nil
}
