package auth

import (
	"context"
	"time"

	"github.com/redmonkez12/todo-api/internal/oauth"
)

// TokenClaims are the claims carried by an access token.
type TokenClaims struct {
	Subject   string    `json:"sub"` // user id
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// TokenService defines the interface for token creation and validation.
// Implementations include PasetoService (PASETO v4.local) and JWTService (HS256).
// VerifyToken returns ErrExpiredToken for authentic tokens past their expiry
// and ErrInvalidToken for anything else it rejects.
type TokenService interface {
	CreateToken(claims TokenClaims) (string, error)
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

// ProfileFetcher resolves an external access token to the provider profile.
type ProfileFetcher interface {
	Profile(ctx context.Context, accessToken string) (*oauth.Profile, error)
}
