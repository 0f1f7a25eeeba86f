// Package authtest provides an in-memory refresh token repository for tests.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/redmonkez12/todo-api/internal/auth"
)

// RefreshTokenRepository keeps refresh tokens in a map keyed by hash.
type RefreshTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]auth.RefreshToken
}

func NewRefreshTokenRepository() *RefreshTokenRepository {
	return &RefreshTokenRepository{tokens: make(map[string]auth.RefreshToken)}
}

// Len returns the number of stored tokens.
func (r *RefreshTokenRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

func (r *RefreshTokenRepository) StoreRefreshToken(ctx context.Context, token *auth.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.TokenHash] = *token
	return nil
}

func (r *RefreshTokenRepository) GetRefreshToken(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenHash]
	if !ok {
		return nil, auth.ErrRefreshTokenNotFound
	}
	return &token, nil
}

func (r *RefreshTokenRepository) CleanupExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for hash, token := range r.tokens {
		if token.IsExpired(now) {
			delete(r.tokens, hash)
			n++
		}
	}
	return n, nil
}
