package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// RefreshToken is a ledger entry. The token itself is never stored, only
// its SHA-256 hash.
type RefreshToken struct {
	TokenHash string
	UserID    uuid.UUID
	UserEmail string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the token is past its expiry at now.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// RefreshTokenRepository defines the interface for refresh token storage
type RefreshTokenRepository interface {
	StoreRefreshToken(ctx context.Context, token *RefreshToken) error
	// GetRefreshToken returns ErrRefreshTokenNotFound for unknown hashes.
	GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error)
	// CleanupExpiredTokens removes entries expired before now.
	CleanupExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// HashToken returns the hex SHA-256 digest used as the storage key.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
