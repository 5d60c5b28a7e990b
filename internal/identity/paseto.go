package identity

import (
	"context"
	"time"

	paseto "aidanwoods.dev/go-paseto"

	"github.com/IamJunnn/ecoblox-web-curriculum-sub000/internal/chat"
)

const defaultClockSkew = 30 * time.Second

// PasetoVerifier verifies PASETO v4.public access tokens issued by the
// platform's identity service. Tokens carry `uid`, `role`, and `name` claims
// alongside the standard issuer/expiry set.
type PasetoVerifier struct {
	issuer    string
	clockSkew time.Duration
	public    paseto.V4AsymmetricPublicKey
}

// NewPasetoVerifier builds a verifier from the identity service's
// hex-encoded Ed25519 public key.
func NewPasetoVerifier(publicKeyHex, issuer string, clockSkew time.Duration) (*PasetoVerifier, error) {
	if publicKeyHex == "" || issuer == "" {
		return nil, ErrConfig
	}
	if clockSkew <= 0 {
		clockSkew = defaultClockSkew
	}

	public, err := paseto.NewV4AsymmetricPublicKeyFromHex(publicKeyHex)
	if err != nil {
		return nil, ErrConfig
	}

	return &PasetoVerifier{
		issuer:    issuer,
		clockSkew: clockSkew,
		public:    public,
	}, nil
}

// Verify validates signature, issuer, and expiry, then extracts the
// subject's identity claims.
func (v *PasetoVerifier) Verify(ctx context.Context, token string) (chat.Identity, error) {
	if err := ctx.Err(); err != nil {
		return chat.Identity{}, err
	}
	if token == "" {
		return chat.Identity{}, ErrInvalidToken
	}

	// Clock-skew tolerance:
	// Validate slightly in the future to avoid failing "nbf" when clocks
	// differ between this service and the issuer.
	validNow := time.Now().UTC().Add(v.clockSkew)

	// Build a fresh parser per call to avoid accumulating rules across verifies.
	p := paseto.NewParser()
	p.AddRule(paseto.IssuedBy(v.issuer))
	p.AddRule(paseto.NotExpired())
	p.AddRule(paseto.ValidAt(validNow))

	parsed, err := p.ParseV4Public(v.public, token, nil)
	if err != nil {
		return chat.Identity{}, ErrInvalidToken
	}

	uid, err := parsed.GetString("uid")
	if err != nil || uid == "" {
		return chat.Identity{}, ErrInvalidToken
	}
	role, err := parsed.GetString("role")
	if err != nil || !validRole(chat.Role(role)) {
		return chat.Identity{}, ErrInvalidToken
	}
	name, err := parsed.GetString("name")
	if err != nil {
		return chat.Identity{}, ErrInvalidToken
	}

	return chat.Identity{
		UserID: uid,
		Name:   name,
		Role:   chat.Role(role),
	}, nil
}
