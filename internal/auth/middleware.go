package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/redmonkez12/todo-api/internal/apperror"
	"github.com/redmonkez12/todo-api/internal/httputil"
	"github.com/redmonkez12/todo-api/internal/logging"
	"github.com/redmonkez12/todo-api/internal/user"
)

type capabilityKind int

const (
	capabilityAnyAuthenticated capabilityKind = iota
	capabilityAdmin
	capabilityLoggedUser
)

// Capability is an authorization requirement evaluated against the
// authenticated user.
type Capability struct {
	kind  capabilityKind
	owner uuid.UUID
}

var (
	// AnyAuthenticated passes for every authenticated user.
	AnyAuthenticated = Capability{kind: capabilityAnyAuthenticated}
	// Admin passes for admins only.
	Admin = Capability{kind: capabilityAdmin}
)

// LoggedUser passes for admins and for the owner of the resource.
func LoggedUser(owner uuid.UUID) Capability {
	return Capability{kind: capabilityLoggedUser, owner: owner}
}

// Authorize checks u against c. A nil user is unauthorized.
func Authorize(u *user.User, c Capability) error {
	if u == nil {
		return ErrUnauthorized
	}

	switch c.kind {
	case capabilityAnyAuthenticated:
		return nil
	case capabilityAdmin:
		if u.IsAdmin() {
			return nil
		}
	case capabilityLoggedUser:
		if u.IsAdmin() || u.ID == c.owner {
			return nil
		}
	}
	return ErrForbidden
}

var (
	errMissingAuth       = apperror.New(apperror.KindUnauthorized, httputil.CodeMissingAuth, "Missing authentication")
	errInvalidAuthHeader = apperror.New(apperror.KindUnauthorized, httputil.CodeInvalidAuthHeader, "Invalid authorization header format")
)

// Guard authenticates requests and enforces capabilities.
type Guard struct {
	issuer *Issuer
	users  *user.Service
}

func NewGuard(issuer *Issuer, users *user.Service) *Guard {
	return &Guard{issuer: issuer, users: users}
}

// Authenticate validates the bearer access token and loads the user it
// names into the request context.
func (g *Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.FromContext(r.Context())

		token, err := bearerToken(r)
		if err != nil {
			httputil.RespondError(w, err)
			return
		}

		id, err := g.issuer.SubjectID(token)
		if err != nil {
			logger.Debug("access token rejected", "error", err.Error())
			httputil.RespondError(w, err)
			return
		}

		u, err := g.users.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				logger.Warn("access token for missing user", "user_id", id)
				httputil.RespondError(w, ErrUnauthorized)
				return
			}
			logger.Error("failed to load authenticated user", "error", err.Error())
			httputil.RespondError(w, err)
			return
		}

		ctx := user.WithUser(r.Context(), u)
		ctx = logging.WithLogger(ctx, logger.WithFields(map[string]any{"user_id": u.ID}))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require rejects requests whose user does not hold c.
func (g *Guard) Require(c Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, _ := user.FromContext(r.Context())
			if err := Authorize(u, c); err != nil {
				httputil.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireLoggedUser requires LoggedUser for the id in route parameter
// param. A malformed id matches no owner, so only admins pass and the
// handler reports the user as missing.
func (g *Guard) RequireLoggedUser(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, err := uuid.Parse(chi.URLParam(r, param))
			if err != nil {
				owner = uuid.Nil
			}

			u, _ := user.FromContext(r.Context())
			if err := Authorize(u, LoggedUser(owner)); err != nil {
				logging.FromContext(r.Context()).Warn("access denied", "owner_id", chi.URLParam(r, param))
				httputil.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errMissingAuth
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errInvalidAuthHeader
	}
	return strings.TrimSpace(token), nil
}
