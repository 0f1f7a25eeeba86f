package user

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/todo-api/internal/validate"
)

// CreateInput holds the fields accepted when creating a user.
type CreateInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=128"`
	Name     string `json:"name,omitempty" validate:"max=128"`
	Role     Role   `json:"role,omitempty" validate:"omitempty,oneof=user admin"`
}

// ReplaceInput holds a full replacement of a user's writable fields.
type ReplaceInput = CreateInput

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Email    *string `json:"email,omitempty" validate:"omitnil,email,max=254"`
	Password *string `json:"password,omitempty" validate:"omitnil,min=6,max=128"`
	Name     *string `json:"name,omitempty" validate:"omitnil,max=128"`
	Role     *Role   `json:"role,omitempty" validate:"omitnil,oneof=user admin"`
}

// Service is the credential store. It validates and normalizes input,
// hashes passwords and runs every store call under a bounded timeout.
type Service struct {
	store     Store
	hasher    *Hasher
	validator *validate.Validator
	timeout   time.Duration
}

func NewService(store Store, hasher *Hasher, validator *validate.Validator, timeout time.Duration) *Service {
	return &Service{
		store:     store,
		hasher:    hasher,
		validator: validator,
		timeout:   timeout,
	}
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Create validates in, hashes the password and persists a new user.
func (s *Service) Create(ctx context.Context, in CreateInput) (*User, error) {
	in.Email = NormalizeEmail(in.Email)
	if err := s.validator.Body(in); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = RoleUser
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &User{
		Email:        in.Email,
		PasswordHash: hash,
		Name:         in.Name,
		Role:         in.Role,
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.store.Create(storeCtx, u); err != nil {
		return nil, err
	}

	return u, nil
}

// VerifyPassword reports whether plaintext matches the stored hash of u.
func (s *Service) VerifyPassword(ctx context.Context, u *User, plaintext string) (bool, error) {
	if u == nil || u.PasswordHash == "" {
		return false, nil
	}
	return s.hasher.Verify(ctx, u.PasswordHash, plaintext)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	return s.store.GetByID(storeCtx, id)
}

// GetByEmail looks a user up by normalized email.
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	return s.store.GetByEmail(storeCtx, NormalizeEmail(email))
}

// List returns users matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter, p Page) ([]*User, error) {
	if f.Email != nil {
		email := NormalizeEmail(*f.Email)
		f.Email = &email
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	return s.store.List(storeCtx, f, p.Normalize())
}

// Update applies a partial update to the user id. The role field is
// dropped unless caller is an admin. The password is rehashed only when
// a new one is supplied.
func (s *Service) Update(ctx context.Context, caller *User, id uuid.UUID, patch Patch) (*User, error) {
	if patch.Email != nil {
		email := NormalizeEmail(*patch.Email)
		patch.Email = &email
	}
	if caller == nil || !caller.IsAdmin() {
		patch.Role = nil
	}
	if err := s.validator.Body(patch); err != nil {
		return nil, err
	}

	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Email != nil {
		u.Email = *patch.Email
	}
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	if patch.Password != nil {
		hash, err := s.hasher.Hash(ctx, *patch.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		u.PasswordHash = hash
	}

	return s.save(ctx, u)
}

// Replace overwrites every writable field of the user id. Fields not in
// in (picture and provider links) are cleared; the role is kept unless
// caller is an admin.
func (s *Service) Replace(ctx context.Context, caller *User, id uuid.UUID, in ReplaceInput) (*User, error) {
	in.Email = NormalizeEmail(in.Email)
	if caller == nil || !caller.IsAdmin() {
		in.Role = ""
	}
	if err := s.validator.Body(in); err != nil {
		return nil, err
	}

	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u.Email = in.Email
	u.PasswordHash = hash
	u.Name = in.Name
	u.Picture = ""
	u.Providers = nil
	if in.Role != "" {
		u.Role = in.Role
	}

	return s.save(ctx, u)
}

func (s *Service) save(ctx context.Context, u *User) (*User, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.store.Update(storeCtx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	return s.store.Delete(storeCtx, id)
}

// LinkOAuth finds the user owning identity, by provider link or email, and
// links it, or creates a new user with a random placeholder password that
// is never disclosed. The lookup and write happen in one store operation.
func (s *Service) LinkOAuth(ctx context.Context, identity OAuthIdentity) (*User, error) {
	identity.Email = NormalizeEmail(identity.Email)
	// Provider names are not bound by our validation rules.
	identity.Name = truncateName(identity.Name)

	hash, err := s.hasher.Hash(ctx, uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to hash placeholder password: %w", err)
	}

	candidate := &User{
		Email:        identity.Email,
		PasswordHash: hash,
		Name:         identity.Name,
		Picture:      identity.Picture,
		Role:         RoleUser,
		Providers:    ProviderLinks{identity.Provider: identity.ExternalID},
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	return s.store.UpsertOAuth(storeCtx, identity, candidate)
}

// Promote sets the role of the user id to admin.
func (s *Service) Promote(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Role = RoleAdmin
	return s.save(ctx, u)
}
