package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the users table row.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           uuid.UUID `bun:"id,pk,type:uuid"`
	Email        string    `bun:"email,notnull,unique"`
	PasswordHash string    `bun:"password_hash,notnull"`
	Name         string    `bun:"name,notnull"`
	Role         string    `bun:"role,notnull"`
	Picture      string    `bun:"picture,notnull"`
	FacebookID   *string   `bun:"facebook_id"`
	GoogleID     *string   `bun:"google_id"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
	UpdatedAt    time.Time `bun:"updated_at,notnull"`
}

// RefreshToken is the refresh_tokens table row. Only the SHA-256 hash of
// the token is stored.
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rt"`

	TokenHash string    `bun:"token_hash,pk"`
	UserID    uuid.UUID `bun:"user_id,notnull,type:uuid"`
	UserEmail string    `bun:"user_email,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}
