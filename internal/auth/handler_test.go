package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/todo-api/internal/auth"
	"github.com/redmonkez12/todo-api/internal/httputil"
	"github.com/redmonkez12/todo-api/internal/oauth"
	"github.com/redmonkez12/todo-api/internal/user"
)

// countingLimiter allows the first limit requests per purpose and ip.
type countingLimiter struct {
	limit int
	seen  map[string]int
}

func (l *countingLimiter) Allow(ctx context.Context, purpose, ip string) (bool, error) {
	key := purpose + ":" + ip
	l.seen[key]++
	return l.seen[key] <= l.limit, nil
}

func newAuthRouter(env *testEnv, limiter auth.RateLimiter) http.Handler {
	h := auth.NewHandler(env.service, limiter)
	r := chi.NewRouter()
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/refresh-token", h.RefreshToken)
	r.Post("/auth/facebook", h.Facebook)
	r.Post("/auth/google", h.Google)
	return r
}

func post(h http.Handler, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(http.MethodPost, path, nil)
	} else {
		req = httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_RegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	h := newAuthRouter(env, nil)

	rec := post(h, "/auth/register", `{"email":"a@x.com","password":"abcdef"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp auth.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a@x.com", resp.User.Email)
	assert.Equal(t, user.RoleUser, resp.User.Role)
	assert.Equal(t, "Bearer", resp.Token.TokenType)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = post(h, "/auth/login", `{"email":"a@x.com","password":"abcdef"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = post(h, "/auth/login", `{"email":"a@x.com","password":"wrong!"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var errResp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "Incorrect email or password", errResp.Message)

	rec = post(h, "/auth/login", `{"email":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_RegisterIgnoresRole(t *testing.T) {
	env := newTestEnv(t)
	h := newAuthRouter(env, nil)

	rec := post(h, "/auth/register", `{"email":"a@x.com","password":"abcdef","role":"admin"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp auth.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, user.RoleUser, resp.User.Role)
}

func TestHandler_OAuthAccessTokenSources(t *testing.T) {
	env := newTestEnv(t)
	env.facebook.add("fb-token", &oauth.Profile{ID: "fb-1", Email: "fb@x.com"})
	h := newAuthRouter(env, nil)

	rec := post(h, "/auth/facebook", "", map[string]string{"Authorization": "Bearer fb-token"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = post(h, "/auth/facebook", `{"access_token":"fb-token"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = post(h, "/auth/facebook", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var errResp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Len(t, errResp.Errors, 1)
	assert.Equal(t, "access_token", errResp.Errors[0].Field)

	rec = post(h, "/auth/facebook", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(h, "/auth/google", "", map[string]string{"Authorization": "Bearer unknown"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, 1, env.store.Len())
}

func TestHandler_RateLimit(t *testing.T) {
	env := newTestEnv(t)
	h := newAuthRouter(env, &countingLimiter{limit: 2, seen: map[string]int{}})

	for i := 0; i < 2; i++ {
		rec := post(h, "/auth/login", `{"email":"a@x.com","password":"abcdef"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := post(h, "/auth/login", `{"email":"a@x.com","password":"abcdef"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Registration has its own budget.
	rec = post(h, "/auth/register", `{"email":"a@x.com","password":"abcdef"}`, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
}
