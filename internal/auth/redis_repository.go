package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisRepository handles refresh token persistence in Redis.
// Entries expire through key TTLs.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

// getTokenKey generates the Redis key for a refresh token
func getTokenKey(tokenHash string) string {
	return fmt.Sprintf("refresh_token:%s", tokenHash)
}

// StoreRefreshToken stores a refresh token in Redis with TTL
func (r *RedisRepository) StoreRefreshToken(ctx context.Context, token *RefreshToken) error {
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("token expiration time is in the past")
	}

	tokenKey := getTokenKey(token.TokenHash)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, tokenKey, map[string]any{
		"user_id":    token.UserID.String(),
		"user_email": token.UserEmail,
		"expires_at": token.ExpiresAt.UnixMilli(),
		"created_at": token.CreatedAt.UnixMilli(),
	})
	pipe.PExpire(ctx, tokenKey, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	return nil
}

// GetRefreshToken retrieves a refresh token by its hash
func (r *RedisRepository) GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	data, err := r.client.HGetAll(ctx, getTokenKey(tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	if len(data) == 0 {
		return nil, ErrRefreshTokenNotFound
	}

	userID, err := uuid.Parse(data["user_id"])
	if err != nil {
		return nil, fmt.Errorf("corrupt refresh token user_id: %w", err)
	}

	expiresAt, err := strconv.ParseInt(data["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt refresh token expires_at: %w", err)
	}

	createdAt, _ := strconv.ParseInt(data["created_at"], 10, 64)

	return &RefreshToken{
		TokenHash: tokenHash,
		UserID:    userID,
		UserEmail: data["user_email"],
		ExpiresAt: time.UnixMilli(expiresAt),
		CreatedAt: time.UnixMilli(createdAt),
	}, nil
}

// CleanupExpiredTokens is a no-op: Redis expires keys itself.
func (r *RedisRepository) CleanupExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
