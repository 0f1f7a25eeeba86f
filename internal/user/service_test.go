package user_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/redmonkez12/todo-api/internal/apperror"
	"github.com/redmonkez12/todo-api/internal/user"
	"github.com/redmonkez12/todo-api/internal/user/usertest"
	"github.com/redmonkez12/todo-api/internal/validate"
)

var _ user.Store = (*usertest.Store)(nil)

func newService(t *testing.T) (*user.Service, *usertest.Store) {
	t.Helper()

	store := usertest.NewStore()
	hasher := user.NewHasher(user.HasherOptions{
		Algorithm:     "argon2id",
		Argon2Time:    1,
		Argon2Memory:  64,
		Argon2Threads: 1,
		BcryptCost:    bcrypt.MinCost,
		Concurrency:   4,
	})
	return user.NewService(store, hasher, validate.New(), time.Second), store
}

func newBcryptService(t *testing.T) *user.Service {
	t.Helper()

	hasher := user.NewHasher(user.HasherOptions{
		Algorithm:   "bcrypt",
		BcryptCost:  bcrypt.MinCost,
		Concurrency: 4,
	})
	return user.NewService(usertest.NewStore(), hasher, validate.New(), time.Second)
}

func strPtr(s string) *string { return &s }

func TestService_CreateAndVerifyPassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	u, err := svc.Create(ctx, user.CreateInput{Email: "  A@X.com ", Password: "abcdef"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, u.ID)
	assert.Equal(t, "a@x.com", u.Email)
	assert.Equal(t, user.RoleUser, u.Role)
	assert.NotEqual(t, "abcdef", u.PasswordHash)
	assert.False(t, u.CreatedAt.IsZero())

	ok, err := svc.VerifyPassword(ctx, u, "abcdef")
	require.NoError(t, err)
	assert.True(t, ok)

	for _, wrong := range []string{"", "abcdeg", "ABCDEF", "abcdef "} {
		ok, err := svc.VerifyPassword(ctx, u, wrong)
		require.NoError(t, err)
		assert.False(t, ok, "password %q", wrong)
	}
}

func TestService_BcryptPasswordLength(t *testing.T) {
	ctx := context.Background()
	svc := newBcryptService(t)

	longest := strings.Repeat("p", 72)
	u, err := svc.Create(ctx, user.CreateInput{Email: "a@x.com", Password: longest})
	require.NoError(t, err)
	ok, err := svc.VerifyPassword(ctx, u, longest)
	require.NoError(t, err)
	assert.True(t, ok)

	tooLong := strings.Repeat("p", 100)
	assertTooLong := func(t *testing.T, err error) {
		t.Helper()
		require.ErrorIs(t, err, user.ErrPasswordTooLong)
		var appErr *apperror.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperror.KindValidation, appErr.Kind)
		require.Len(t, appErr.Errors, 1)
		assert.Equal(t, "password", appErr.Errors[0].Field)
		assert.Equal(t, 1, strings.Count(err.Error(), "failed to hash password"))
	}

	_, err = svc.Create(ctx, user.CreateInput{Email: "b@x.com", Password: tooLong})
	assertTooLong(t, err)

	_, err = svc.Update(ctx, u, u.ID, user.Patch{Password: strPtr(tooLong)})
	assertTooLong(t, err)

	_, err = svc.Replace(ctx, u, u.ID, user.ReplaceInput{Email: "a@x.com", Password: tooLong})
	assertTooLong(t, err)
}

func TestService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	tests := []struct {
		name  string
		in    user.CreateInput
		field string
	}{
		{"missing email", user.CreateInput{Password: "abcdef"}, "email"},
		{"bad email", user.CreateInput{Email: "nope", Password: "abcdef"}, "email"},
		{"short password", user.CreateInput{Email: "a@x.com", Password: "abc"}, "password"},
		{"long name", user.CreateInput{Email: "a@x.com", Password: "abcdef", Name: string(make([]byte, 129))}, "name"},
		{"unknown role", user.CreateInput{Email: "a@x.com", Password: "abcdef", Role: "root"}, "role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.in)

			var appErr *apperror.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperror.KindValidation, appErr.Kind)
			require.NotEmpty(t, appErr.Errors)
			assert.Equal(t, tt.field, appErr.Errors[0].Field)
		})
	}

	assert.Zero(t, store.Len())
}

func TestService_CreateDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.Create(ctx, user.CreateInput{Email: "a@x.com", Password: "abcdef"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, user.CreateInput{Email: "A@X.COM", Password: "other-password"})
	require.ErrorIs(t, err, user.ErrDuplicateEmail)

	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.KindConflict, appErr.Kind)
	assert.Equal(t, "email", appErr.Errors[0].Field)
}

func TestService_CreateConcurrentSameEmail(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(ctx, user.CreateInput{Email: "race@x.com", Password: "abcdef"})
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, user.ErrDuplicateEmail):
			dup++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, dup)
	assert.Equal(t, 1, store.Len())
}

func TestService_Get(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	created, err := svc.Create(ctx, user.CreateInput{Email: "a@x.com", Password: "abcdef", Name: "Alice"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)

	_, err = svc.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, user.ErrNotFound)

	byEmail, err := svc.GetByEmail(ctx, " A@x.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	for _, in := range []user.CreateInput{
		{Email: "first@x.com", Password: "abcdef", Name: "bob"},
		{Email: "second@x.com", Password: "abcdef", Name: "alice", Role: user.RoleAdmin},
		{Email: "third@x.com", Password: "abcdef", Name: "bob"},
	} {
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, user.Filter{}, user.Page{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "third@x.com", all[0].Email, "newest first")
	assert.Equal(t, "first@x.com", all[2].Email)

	bobs, err := svc.List(ctx, user.Filter{Name: strPtr("bob")}, user.Page{})
	require.NoError(t, err)
	assert.Len(t, bobs, 2)

	// An empty name filter matches users whose name is empty, not everyone.
	none, err := svc.List(ctx, user.Filter{Name: strPtr("")}, user.Page{})
	require.NoError(t, err)
	assert.Empty(t, none)

	admin := user.RoleAdmin
	admins, err := svc.List(ctx, user.Filter{Role: &admin}, user.Page{})
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "second@x.com", admins[0].Email)

	byEmail, err := svc.List(ctx, user.Filter{Email: strPtr("FIRST@x.com")}, user.Page{})
	require.NoError(t, err)
	assert.Len(t, byEmail, 1)

	page, err := svc.List(ctx, user.Filter{}, user.Page{Skip: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "second@x.com", page[0].Email)

	empty, err := svc.List(ctx, user.Filter{}, user.Page{Skip: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPage_Normalize(t *testing.T) {
	assert.Equal(t, user.Page{Skip: 0, Limit: 30}, user.Page{}.Normalize())
	assert.Equal(t, user.Page{Skip: 0, Limit: 100}, user.Page{Skip: -3, Limit: 1000}.Normalize())
	assert.Equal(t, user.Page{Skip: 5, Limit: 10}, user.Page{Skip: 5, Limit: 10}.Normalize())
}

func TestService_UpdateStripsRoleForNonAdmin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	u, err := svc.Create(ctx, user.CreateInput{Email: "a@x.com", Password: "abcdef"})
	require.NoError(t, err)

	admin := user.RoleAdmin
	updated, err := svc.Update(ctx, u, u.ID, user.Patch{Role: &admin, Name: strPtr("Alice")})
	require.NoError(t, err)
	assert.Equal(t, user.RoleUser, updated.Role)
	assert.Equal(t, "Alice", updated.Name)

	stored, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, user.RoleUser, stored.Role)
}

func TestService_UpdateRoleByAdmin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	admin, err := svc.Create(ctx, user.CreateInput{Email: "admin@x.com", Password: "abcdef", Role: user.RoleAdmin})
	require.NoError(t, err)
	target, err := svc.Create(ctx, user.CreateInput{Email: "u@x.com", Password: "abcdef"})
	require.NoError(t, err)

	role := user.RoleAdmin
	updated, err := svc.Update(ctx, admin, target.ID, user.Patch{Role: &role})
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, updated.Role)
}

func TestService_UpdatePasswordRehashOnlyWhenSupplied(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	u, err := svc.Create(ctx, user.CreateInput{Email: "a@x.com", Password: "abcdef"})
	require.NoError(t, err)

	renamed, err := svc.Update(ctx, u, u.ID, user.Patch{Name: strPtr("Alice")})
	require.NoError(t, err)
	assert.Equal(t, u.PasswordHash, renamed.PasswordHash)

	changed, err := svc.Update(ctx, u, u.ID, user.Patch{Password: strPtr("new-password")})
	require.NoError(t, err)
	assert.NotEqual(t, u.PasswordHash, changed.PasswordHash)

	ok, err := svc.VerifyPassword(ctx, changed, "new-password")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestService_UpdateErrors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	a, err := svc.Create(ctx, user.CreateInput{Email: "a@x.com", Password: "abcdef"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, user.CreateInput{Email: "b@x.com", Password: "abcdef"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, a, a.ID, user.Patch{Email: strPtr("B@x.com")})
	assert.ErrorIs(t, err, user.ErrDuplicateEmail)

	_, err = svc.Update(ctx, a, a.ID, user.Patch{Email: strPtr("")})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = svc.Update(ctx, a, a.ID, user.Patch{Password: strPtr("abc")})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = svc.Update(ctx, a, uuid.New(), user.Patch{Name: strPtr("x")})
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestService_Replace(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	u, err := svc.LinkOAuth(ctx, user.OAuthIdentity{
		Provider:   user.ProviderGoogle,
		ExternalID: "g-1",
		Email:      "a@x.com",
		Name:       "Alice",
		Picture:    "https://example.com/a.png",
	})
	require.NoError(t, err)

	replaced, err := svc.Replace(ctx, u, u.ID, user.ReplaceInput{
		Email:    "new@x.com",
		Password: "abcdef",
		Role:     user.RoleAdmin,
	})
	require.NoError(t, err)

	assert.Equal(t, "new@x.com", replaced.Email)
	assert.Equal(t, user.RoleUser, replaced.Role, "non-admin cannot grant themselves admin")
	assert.Empty(t, replaced.Name)
	assert.Empty(t, replaced.Picture)
	assert.Empty(t, replaced.Providers)

	ok, err := svc.VerifyPassword(ctx, replaced, "abcdef")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	u, err := svc.Create(ctx, user.CreateInput{Email: "a@x.com", Password: "abcdef"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, u.ID))
	assert.ErrorIs(t, svc.Delete(ctx, u.ID), user.ErrNotFound)

	_, err = svc.Get(ctx, u.ID)
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestService_LinkOAuthCreatesOnce(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	identity := user.OAuthIdentity{
		Provider:   user.ProviderFacebook,
		ExternalID: "fb-42",
		Email:      "Fb@X.com",
		Name:       "Fred",
	}

	first, err := svc.LinkOAuth(ctx, identity)
	require.NoError(t, err)
	second, err := svc.LinkOAuth(ctx, identity)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "fb@x.com", first.Email)
	assert.Equal(t, "fb-42", first.Providers[user.ProviderFacebook])
	assert.Equal(t, 1, store.Len())
}

func TestService_LinkOAuthConcurrent(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	identity := user.OAuthIdentity{Provider: user.ProviderGoogle, ExternalID: "g-7", Email: "new@x.com"}

	const workers = 8
	var wg sync.WaitGroup
	ids := make([]uuid.UUID, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := svc.LinkOAuth(ctx, identity)
			if assert.NoError(t, err) {
				ids[i] = u.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, store.Len())
}

func TestService_LinkOAuthTruncatesLongName(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	u, err := svc.LinkOAuth(ctx, user.OAuthIdentity{
		Provider:   user.ProviderFacebook,
		ExternalID: "fb-1",
		Email:      "a@x.com",
		Name:       strings.Repeat("é", 200),
	})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", user.MaxNameLength), u.Name)

	got, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Name, got.Name)
}

func TestService_LinkOAuthExistingAccount(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	existing, err := svc.Create(ctx, user.CreateInput{Email: "a@x.com", Password: "abcdef", Name: "Alice"})
	require.NoError(t, err)

	linked, err := svc.LinkOAuth(ctx, user.OAuthIdentity{
		Provider:   user.ProviderGoogle,
		ExternalID: "g-1",
		Email:      "a@x.com",
		Name:       "Google Alice",
		Picture:    "https://example.com/a.png",
	})
	require.NoError(t, err)

	assert.Equal(t, existing.ID, linked.ID)
	assert.Equal(t, "Alice", linked.Name, "name is only filled when unset")
	assert.Equal(t, "https://example.com/a.png", linked.Picture)
	assert.Equal(t, "g-1", linked.Providers[user.ProviderGoogle])
	assert.Equal(t, existing.PasswordHash, linked.PasswordHash)
	assert.Equal(t, 1, store.Len())

	// Relinking with a new external id overwrites the link.
	relinked, err := svc.LinkOAuth(ctx, user.OAuthIdentity{Provider: user.ProviderGoogle, ExternalID: "g-2", Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "g-2", relinked.Providers[user.ProviderGoogle])

	ok, err := svc.VerifyPassword(ctx, relinked, "abcdef")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestService_LinkOAuthPlaceholderPassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	u, err := svc.LinkOAuth(ctx, user.OAuthIdentity{Provider: user.ProviderGoogle, ExternalID: "g-1", Email: "a@x.com"})
	require.NoError(t, err)

	assert.NotEmpty(t, u.PasswordHash)
	for _, guess := range []string{"", "password", u.ID.String()} {
		ok, err := svc.VerifyPassword(ctx, u, guess)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestService_Promote(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	u, err := svc.Create(ctx, user.CreateInput{Email: "a@x.com", Password: "abcdef"})
	require.NoError(t, err)

	promoted, err := svc.Promote(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, promoted.IsAdmin())
}
