package user

import (
	"context"

	"github.com/google/uuid"

	"github.com/redmonkez12/todo-api/internal/apperror"
)

var (
	ErrNotFound       = apperror.New(apperror.KindNotFound, "USER_NOT_FOUND", "User does not exist")
	ErrDuplicateEmail = apperror.Conflict("EMAIL_ALREADY_EXISTS", "email", `"email" already exists`)
)

// Store persists users. Implementations must enforce email uniqueness
// atomically (unique index or equivalent) and return ErrDuplicateEmail on
// violation, and ErrNotFound for absent records.
type Store interface {
	// Create inserts u, assigning ID and timestamps when unset.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// List returns users matching f, newest first.
	List(ctx context.Context, f Filter, p Page) ([]*User, error)
	// Update writes every mutable field of u and refreshes UpdatedAt.
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id uuid.UUID) error
	// UpsertOAuth atomically finds the user linked to the identity (by
	// provider link or email) and links it, or inserts candidate when none
	// exists. Name and picture are only filled when unset.
	UpsertOAuth(ctx context.Context, identity OAuthIdentity, candidate *User) (*User, error)
}
