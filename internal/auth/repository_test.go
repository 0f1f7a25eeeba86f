package auth_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/todo-api/internal/auth"
	"github.com/redmonkez12/todo-api/internal/auth/authtest"
	"github.com/redmonkez12/todo-api/internal/database/databasetest"
)

// Compile-time interface checks
var (
	_ auth.RefreshTokenRepository = (*auth.Repository)(nil)
	_ auth.RefreshTokenRepository = (*auth.RedisRepository)(nil)
	_ auth.RefreshTokenRepository = (*auth.MongoRepository)(nil)
	_ auth.RefreshTokenRepository = (*authtest.RefreshTokenRepository)(nil)
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func repositories(t *testing.T) map[string]func(t *testing.T) auth.RefreshTokenRepository {
	return map[string]func(t *testing.T) auth.RefreshTokenRepository{
		"memory": func(t *testing.T) auth.RefreshTokenRepository {
			return authtest.NewRefreshTokenRepository()
		},
		"bun": func(t *testing.T) auth.RefreshTokenRepository {
			return auth.NewRepository(databasetest.NewSQLite(t))
		},
		"mongo": func(t *testing.T) auth.RefreshTokenRepository {
			repo, err := auth.NewMongoRepository(context.Background(), databasetest.NewMongo(t))
			require.NoError(t, err)
			return repo
		},
		"redis": func(t *testing.T) auth.RefreshTokenRepository {
			return auth.NewRedisRepository(newRedisClient(t))
		},
	}
}

func TestRefreshTokenRepository_StoreAndGet(t *testing.T) {
	for name, open := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := open(t)

			now := time.Now().UTC().Truncate(time.Millisecond)
			token := &auth.RefreshToken{
				TokenHash: auth.HashToken(uuid.NewString()),
				UserID:    uuid.New(),
				UserEmail: "a@x.com",
				ExpiresAt: now.Add(time.Hour),
				CreatedAt: now,
			}
			require.NoError(t, repo.StoreRefreshToken(ctx, token))

			got, err := repo.GetRefreshToken(ctx, token.TokenHash)
			require.NoError(t, err)
			assert.Equal(t, token.TokenHash, got.TokenHash)
			assert.Equal(t, token.UserID, got.UserID)
			assert.Equal(t, token.UserEmail, got.UserEmail)
			assert.WithinDuration(t, token.ExpiresAt, got.ExpiresAt, time.Millisecond)
			assert.False(t, got.IsExpired(now))

			_, err = repo.GetRefreshToken(ctx, auth.HashToken("missing"))
			assert.ErrorIs(t, err, auth.ErrRefreshTokenNotFound)
		})
	}
}

func TestRefreshTokenRepository_Cleanup(t *testing.T) {
	for name, open := range repositories(t) {
		if name == "redis" {
			// Redis expires entries through key TTLs.
			continue
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := open(t)

			now := time.Now().UTC().Truncate(time.Millisecond)
			live := &auth.RefreshToken{
				TokenHash: auth.HashToken("live"),
				UserID:    uuid.New(),
				UserEmail: "a@x.com",
				ExpiresAt: now.Add(time.Hour),
				CreatedAt: now,
			}
			stale := &auth.RefreshToken{
				TokenHash: auth.HashToken("stale"),
				UserID:    uuid.New(),
				UserEmail: "b@x.com",
				ExpiresAt: now.Add(30 * time.Minute),
				CreatedAt: now,
			}
			require.NoError(t, repo.StoreRefreshToken(ctx, live))
			require.NoError(t, repo.StoreRefreshToken(ctx, stale))

			n, err := repo.CleanupExpiredTokens(ctx, now.Add(45*time.Minute))
			require.NoError(t, err)
			assert.EqualValues(t, 1, n)

			_, err = repo.GetRefreshToken(ctx, stale.TokenHash)
			assert.ErrorIs(t, err, auth.ErrRefreshTokenNotFound)
			_, err = repo.GetRefreshToken(ctx, live.TokenHash)
			assert.NoError(t, err)
		})
	}
}

func TestRedisRepository_RejectsExpired(t *testing.T) {
	repo := auth.NewRedisRepository(newRedisClient(t))

	err := repo.StoreRefreshToken(context.Background(), &auth.RefreshToken{
		TokenHash: auth.HashToken("old"),
		UserID:    uuid.New(),
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	assert.Error(t, err)
}

func TestHashToken(t *testing.T) {
	h := auth.HashToken("abc")
	assert.Len(t, h, 64)
	assert.Equal(t, h, auth.HashToken("abc"))
	assert.NotEqual(t, h, auth.HashToken("abd"))
}
