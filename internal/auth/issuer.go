package auth

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/todo-api/internal/user"
)

// Issuer mints and decodes access tokens for users.
type Issuer struct {
	tokens TokenService
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(tokens TokenService, ttl time.Duration) *Issuer {
	return &Issuer{tokens: tokens, ttl: ttl, now: time.Now}
}

// TTL is the lifetime of issued access tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// IssueAccessToken returns a token whose subject is the user id.
func (i *Issuer) IssueAccessToken(u *user.User) (string, error) {
	now := i.now()

	token, err := i.tokens.CreateToken(TokenClaims{
		Subject:   u.ID.String(),
		IssuedAt:  now,
		ExpiresAt: now.Add(i.ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create access token: %w", err)
	}
	return token, nil
}

// Decode verifies token and returns its claims.
func (i *Issuer) Decode(token string) (*TokenClaims, error) {
	return i.tokens.VerifyToken(token)
}

// SubjectID decodes token and parses its subject as a user id.
func (i *Issuer) SubjectID(token string) (uuid.UUID, error) {
	claims, err := i.Decode(token)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}
