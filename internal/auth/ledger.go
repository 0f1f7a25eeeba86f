package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redmonkez12/todo-api/internal/user"
)

// refreshTokenBytes is the length of the random part of a refresh token.
const refreshTokenBytes = 40

// Ledger issues refresh tokens and exchanges them for access tokens.
// Exchanging a token does not consume it; it stays valid until it expires.
type Ledger struct {
	repo    RefreshTokenRepository
	users   *user.Service
	issuer  *Issuer
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
}

func NewLedger(repo RefreshTokenRepository, users *user.Service, issuer *Issuer, ttl, timeout time.Duration) *Ledger {
	return &Ledger{
		repo:    repo,
		users:   users,
		issuer:  issuer,
		ttl:     ttl,
		timeout: timeout,
		now:     time.Now,
	}
}

func (l *Ledger) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}

// Issue creates and persists a refresh token bound to u and returns the
// token string. Only its hash is stored.
func (l *Ledger) Issue(ctx context.Context, u *user.User) (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	token := u.ID.String() + "." + hex.EncodeToString(b)

	now := l.now()
	storeCtx, cancel := l.storeContext(ctx)
	defer cancel()

	err := l.repo.StoreRefreshToken(storeCtx, &RefreshToken{
		TokenHash: HashToken(token),
		UserID:    u.ID,
		UserEmail: u.Email,
		ExpiresAt: now.Add(l.ttl),
		CreatedAt: now,
	})
	if err != nil {
		return "", err
	}

	return token, nil
}

// Exchange returns the user bound to token and a fresh access token. The
// token must exist, belong to email and not be expired; every other
// outcome is ErrInvalidRefreshToken.
func (l *Ledger) Exchange(ctx context.Context, email, token string) (*user.User, string, error) {
	email = user.NormalizeEmail(email)

	storeCtx, cancel := l.storeContext(ctx)
	rt, err := l.repo.GetRefreshToken(storeCtx, HashToken(token))
	cancel()
	if err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			return nil, "", ErrInvalidRefreshToken
		}
		return nil, "", fmt.Errorf("failed to get refresh token: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(rt.UserEmail), []byte(email)) != 1 {
		return nil, "", ErrInvalidRefreshToken
	}
	if rt.IsExpired(l.now()) {
		return nil, "", ErrInvalidRefreshToken
	}

	u, err := l.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, "", ErrInvalidRefreshToken
		}
		return nil, "", err
	}
	// The email may have moved to another account since issuance.
	if u.ID != rt.UserID {
		return nil, "", ErrInvalidRefreshToken
	}

	accessToken, err := l.issuer.IssueAccessToken(u)
	if err != nil {
		return nil, "", err
	}

	return u, accessToken, nil
}

// Prune removes expired entries and returns how many were deleted.
func (l *Ledger) Prune(ctx context.Context) (int64, error) {
	return l.repo.CleanupExpiredTokens(ctx, l.now())
}
