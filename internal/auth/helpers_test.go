package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/redmonkez12/todo-api/internal/auth"
	"github.com/redmonkez12/todo-api/internal/auth/authtest"
	"github.com/redmonkez12/todo-api/internal/oauth"
	"github.com/redmonkez12/todo-api/internal/user"
	"github.com/redmonkez12/todo-api/internal/user/usertest"
	"github.com/redmonkez12/todo-api/internal/validate"
)

const refreshTTL = 24 * time.Hour

// fakeProvider maps access tokens to profiles.
type fakeProvider struct {
	mu       sync.Mutex
	profiles map[string]*oauth.Profile
	calls    int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{profiles: make(map[string]*oauth.Profile)}
}

func (f *fakeProvider) add(token string, p *oauth.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[token] = p
}

func (f *fakeProvider) Profile(ctx context.Context, accessToken string) (*oauth.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	p, ok := f.profiles[accessToken]
	if !ok {
		return nil, oauth.ErrInvalidAccessToken
	}
	cp := *p
	return &cp, nil
}

type testEnv struct {
	store    *usertest.Store
	tokens   *authtest.RefreshTokenRepository
	users    *user.Service
	issuer   *auth.Issuer
	ledger   *auth.Ledger
	linker   *auth.Linker
	service  *auth.Service
	facebook *fakeProvider
	google   *fakeProvider
}

func newTestEnv(t *testing.T) *testEnv {
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
	v := validate.New()
	users := user.NewService(store, hasher, v, time.Second)

	tokenSvc, err := auth.NewPasetoService(testPasetoKey)
	require.NoError(t, err)
	issuer := auth.NewIssuer(tokenSvc, 15*time.Minute)

	tokens := authtest.NewRefreshTokenRepository()
	ledger := auth.NewLedger(tokens, users, issuer, refreshTTL, time.Second)

	facebook, google := newFakeProvider(), newFakeProvider()
	linker := auth.NewLinker(users, map[user.Provider]auth.ProfileFetcher{
		user.ProviderFacebook: facebook,
		user.ProviderGoogle:   google,
	})

	return &testEnv{
		store:    store,
		tokens:   tokens,
		users:    users,
		issuer:   issuer,
		ledger:   ledger,
		linker:   linker,
		service:  auth.NewService(users, issuer, ledger, linker, v, nil),
		facebook: facebook,
		google:   google,
	}
}

func (e *testEnv) createUser(t *testing.T, email string, role user.Role) *user.User {
	t.Helper()
	u, err := e.users.Create(context.Background(), user.CreateInput{Email: email, Password: "abcdef", Role: role})
	require.NoError(t, err)
	return u
}
