// Package usertest provides an in-memory user.Store for tests.
package usertest

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/todo-api/internal/user"
)

// Store keeps users in memory. It enforces email uniqueness and performs
// UpsertOAuth under a single lock, like a unique index would.
type Store struct {
	mu    sync.Mutex
	users []*user.User
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

// Len returns the number of stored users.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *Store) Create(ctx context.Context, u *user.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(u)
}

func (s *Store) insertLocked(u *user.User) error {
	if s.indexByEmailLocked(u.Email) >= 0 {
		return user.ErrDuplicateEmail
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	// Keep creation times strictly increasing so newest-first order is stable.
	now := s.now()
	if n := len(s.users); n > 0 && !now.After(s.users[n-1].CreatedAt) {
		now = s.users[n-1].CreatedAt.Add(time.Microsecond)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = u.CreatedAt
	s.users = append(s.users, clone(u))
	return nil
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexByIDLocked(id); i >= 0 {
		return clone(s.users[i]), nil
	}
	return nil, user.ErrNotFound
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexByEmailLocked(email); i >= 0 {
		return clone(s.users[i]), nil
	}
	return nil, user.ErrNotFound
}

func (s *Store) List(ctx context.Context, f user.Filter, p user.Page) ([]*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*user.User
	for i := len(s.users) - 1; i >= 0; i-- {
		u := s.users[i]
		if f.Name != nil && u.Name != *f.Name {
			continue
		}
		if f.Email != nil && u.Email != *f.Email {
			continue
		}
		if f.Role != nil && u.Role != *f.Role {
			continue
		}
		matched = append(matched, clone(u))
	}

	if p.Skip >= len(matched) {
		return []*user.User{}, nil
	}
	matched = matched[p.Skip:]
	if p.Limit > 0 && len(matched) > p.Limit {
		matched = matched[:p.Limit]
	}
	return matched, nil
}

func (s *Store) Update(ctx context.Context, u *user.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexByIDLocked(u.ID)
	if i < 0 {
		return user.ErrNotFound
	}
	if j := s.indexByEmailLocked(u.Email); j >= 0 && j != i {
		return user.ErrDuplicateEmail
	}

	u.UpdatedAt = s.now()
	s.users[i] = clone(u)
	return nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexByIDLocked(id)
	if i < 0 {
		return user.ErrNotFound
	}
	s.users = append(s.users[:i], s.users[i+1:]...)
	return nil
}

func (s *Store) UpsertOAuth(ctx context.Context, identity user.OAuthIdentity, candidate *user.User) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A provider link wins over an email match.
	i := -1
	if identity.ExternalID != "" {
		for j, u := range s.users {
			if u.Providers[identity.Provider] == identity.ExternalID {
				i = j
				break
			}
		}
	}
	if i < 0 {
		i = s.indexByEmailLocked(identity.Email)
	}

	if i < 0 {
		if err := s.insertLocked(candidate); err != nil {
			return nil, err
		}
		return clone(candidate), nil
	}

	u := s.users[i]
	if u.Providers == nil {
		u.Providers = user.ProviderLinks{}
	}
	u.Providers[identity.Provider] = identity.ExternalID
	if u.Name == "" {
		u.Name = identity.Name
	}
	if u.Picture == "" {
		u.Picture = identity.Picture
	}
	u.UpdatedAt = s.now()
	return clone(u), nil
}

func (s *Store) indexByIDLocked(id uuid.UUID) int {
	for i, u := range s.users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) indexByEmailLocked(email string) int {
	for i, u := range s.users {
		if u.Email == email {
			return i
		}
	}
	return -1
}

func clone(u *user.User) *user.User {
	c := *u
	if u.Providers != nil {
		c.Providers = maps.Clone(u.Providers)
	}
	return &c
}
