package auth_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/todo-api/internal/apperror"
	"github.com/redmonkez12/todo-api/internal/auth"
	"github.com/redmonkez12/todo-api/internal/metrics"
	"github.com/redmonkez12/todo-api/internal/oauth"
	"github.com/redmonkez12/todo-api/internal/user"
	"github.com/redmonkez12/todo-api/internal/validate"
)

func TestService_Register(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	session, err := env.service.Register(ctx, auth.RegisterInput{Email: "a@x.com", Password: "abcdef"})
	require.NoError(t, err)

	assert.Equal(t, user.RoleUser, session.User.Role)
	assert.Equal(t, "Bearer", session.Tokens.TokenType)
	assert.EqualValues(t, 15*60, session.Tokens.ExpiresIn)
	assert.NotEmpty(t, session.Tokens.AccessToken)
	assert.NotEmpty(t, session.Tokens.RefreshToken)

	id, err := env.issuer.SubjectID(session.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, id)

	_, err = env.service.Register(ctx, auth.RegisterInput{Email: "A@X.com", Password: "abcdef"})
	assert.ErrorIs(t, err, user.ErrDuplicateEmail)

	_, err = env.service.Register(ctx, auth.RegisterInput{Email: "bad", Password: "abc"})
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.createUser(t, "a@x.com", user.RoleUser)

	session, err := env.service.Login(ctx, auth.LoginInput{Email: "A@x.com", Password: "abcdef"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, session.User.ID)

	_, err = env.service.Login(ctx, auth.LoginInput{Email: "a@x.com", Password: "wrong!"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = env.service.Login(ctx, auth.LoginInput{Email: "nobody@x.com", Password: "abcdef"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = env.service.Login(ctx, auth.LoginInput{Email: "a@x.com"})
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestService_Refresh(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createUser(t, "a@x.com", user.RoleUser)
	env.createUser(t, "b@x.com", user.RoleUser)

	a, err := env.service.Login(ctx, auth.LoginInput{Email: "a@x.com", Password: "abcdef"})
	require.NoError(t, err)
	b, err := env.service.Login(ctx, auth.LoginInput{Email: "b@x.com", Password: "abcdef"})
	require.NoError(t, err)

	pair, err := env.service.Refresh(ctx, auth.RefreshInput{Email: "a@x.com", RefreshToken: a.Tokens.RefreshToken})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.NotEqual(t, a.Tokens.RefreshToken, pair.RefreshToken)

	id, err := env.issuer.SubjectID(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, a.User.ID, id)

	// The new refresh token works, and so does the old one.
	_, err = env.service.Refresh(ctx, auth.RefreshInput{Email: "a@x.com", RefreshToken: pair.RefreshToken})
	require.NoError(t, err)
	_, err = env.service.Refresh(ctx, auth.RefreshInput{Email: "a@x.com", RefreshToken: a.Tokens.RefreshToken})
	require.NoError(t, err)

	_, err = env.service.Refresh(ctx, auth.RefreshInput{Email: "a@x.com", RefreshToken: b.Tokens.RefreshToken})
	assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken)

	_, err = env.service.Refresh(ctx, auth.RefreshInput{Email: "a@x.com"})
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestService_OAuthLogin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.google.add("g-token", &oauth.Profile{ID: "g-1", Email: "g@x.com", Name: "G"})

	first, err := env.service.OAuthLogin(ctx, user.ProviderGoogle, "g-token")
	require.NoError(t, err)
	second, err := env.service.OAuthLogin(ctx, user.ProviderGoogle, "g-token")
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.NotEmpty(t, first.Tokens.RefreshToken)

	_, err = env.service.OAuthLogin(ctx, user.ProviderGoogle, "")
	assert.ErrorIs(t, err, auth.ErrMissingAccessToken)
	assert.Equal(t, 2, env.google.calls)

	_, err = env.service.OAuthLogin(ctx, user.ProviderFacebook, "g-token")
	assert.ErrorIs(t, err, auth.ErrOAuthRejected)
}

func TestService_RecordsMetrics(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	m := metrics.New("test")
	svc := auth.NewService(env.users, env.issuer, env.ledger, env.linker, validate.New(), m)

	_, err := svc.Register(ctx, auth.RegisterInput{Email: "a@x.com", Password: "abcdef"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, auth.RegisterInput{Email: "a@x.com", Password: "abcdef"})
	require.Error(t, err)
	_, err = svc.Login(ctx, auth.LoginInput{Email: "a@x.com", Password: "nope!!"})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistrationsTotal.WithLabelValues(metrics.ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistrationsTotal.WithLabelValues(metrics.ResultFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginsTotal.WithLabelValues(auth.MethodPassword, metrics.ResultFailure)))
}
