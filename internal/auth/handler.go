package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/redmonkez12/todo-api/internal/apperror"
	"github.com/redmonkez12/todo-api/internal/httputil"
	"github.com/redmonkez12/todo-api/internal/logging"
	"github.com/redmonkez12/todo-api/internal/user"
)

// Rate limit purposes.
const (
	purposeLogin    = "login"
	purposeRegister = "register"
)

var errTooManyRequests = apperror.New(apperror.KindRateLimited, httputil.CodeTooManyRequests, "Too many requests, please try again later")

// RateLimiter decides whether a client may make another request.
type RateLimiter interface {
	Allow(ctx context.Context, purpose, ip string) (bool, error)
}

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service     *Service
	rateLimiter RateLimiter
}

// NewHandler creates the handlers. rateLimiter may be nil to disable
// rate limiting.
func NewHandler(service *Service, rateLimiter RateLimiter) *Handler {
	return &Handler{service: service, rateLimiter: rateLimiter}
}

// AuthResponse is returned by register, login and the OAuth logins.
type AuthResponse struct {
	Token TokenPair `json:"token"`
	User  user.View `json:"user"`
}

// OAuthRequest is the optional body of an OAuth login.
type OAuthRequest struct {
	AccessToken string `json:"access_token"`
}

func newAuthResponse(s *Session) AuthResponse {
	return AuthResponse{Token: s.Tokens, User: s.User.View()}
}

// Register handles user registration
// @Summary      Register a new user
// @Description  Create a new user account with the user role and log it in.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RegisterInput true "Registration credentials"
// @Success      201 {object} AuthResponse
// @Failure      400 {object} httputil.ErrorResponse "Validation error"
// @Failure      409 {object} httputil.ErrorResponse "Email already exists"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, purposeRegister) {
		return
	}

	var in RegisterInput
	if err := httputil.DecodeJSON(w, r, &in); err != nil {
		httputil.RespondError(w, err)
		return
	}

	session, err := h.service.Register(r.Context(), in)
	if err != nil {
		h.fail(w, r, "registration failed", err)
		return
	}

	logging.FromContext(r.Context()).Info("user registered", "user_id", session.User.ID)
	httputil.RespondJSON(w, newAuthResponse(session), http.StatusCreated)
}

// Login handles user login
// @Summary      Login
// @Description  Authenticate with email and password.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginInput true "Login credentials"
// @Success      200 {object} AuthResponse
// @Failure      400 {object} httputil.ErrorResponse "Validation error"
// @Failure      401 {object} httputil.ErrorResponse "Incorrect email or password"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, purposeLogin) {
		return
	}

	var in LoginInput
	if err := httputil.DecodeJSON(w, r, &in); err != nil {
		httputil.RespondError(w, err)
		return
	}

	session, err := h.service.Login(r.Context(), in)
	if err != nil {
		h.fail(w, r, "login failed", err)
		return
	}

	logging.FromContext(r.Context()).Info("user logged in", "user_id", session.User.ID)
	httputil.RespondJSON(w, newAuthResponse(session), http.StatusOK)
}

// RefreshToken handles access token refresh
// @Summary      Refresh access token
// @Description  Exchange a refresh token for a new token pair.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RefreshInput true "Refresh token and its email"
// @Success      200 {object} TokenPair
// @Failure      400 {object} httputil.ErrorResponse "Validation error"
// @Failure      401 {object} httputil.ErrorResponse "Incorrect email or refreshToken"
// @Router       /auth/refresh-token [post]
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var in RefreshInput
	if err := httputil.DecodeJSON(w, r, &in); err != nil {
		httputil.RespondError(w, err)
		return
	}

	tokens, err := h.service.Refresh(r.Context(), in)
	if err != nil {
		h.fail(w, r, "token refresh failed", err)
		return
	}

	httputil.RespondJSON(w, tokens, http.StatusOK)
}

// Facebook handles login with a Facebook access token
// @Summary      Login with Facebook
// @Description  The Facebook access token is read from the Authorization header or the access_token body field.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body OAuthRequest false "Facebook access token"
// @Success      200 {object} AuthResponse
// @Failure      400 {object} httputil.ErrorResponse "Missing access token"
// @Failure      401 {object} httputil.ErrorResponse "Access token rejected"
// @Router       /auth/facebook [post]
func (h *Handler) Facebook(w http.ResponseWriter, r *http.Request) {
	h.oauthLogin(w, r, user.ProviderFacebook)
}

// Google handles login with a Google access token
// @Summary      Login with Google
// @Description  The Google access token is read from the Authorization header or the access_token body field.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body OAuthRequest false "Google access token"
// @Success      200 {object} AuthResponse
// @Failure      400 {object} httputil.ErrorResponse "Missing access token"
// @Failure      401 {object} httputil.ErrorResponse "Access token rejected"
// @Router       /auth/google [post]
func (h *Handler) Google(w http.ResponseWriter, r *http.Request) {
	h.oauthLogin(w, r, user.ProviderGoogle)
}

func (h *Handler) oauthLogin(w http.ResponseWriter, r *http.Request, provider user.Provider) {
	accessToken, err := externalAccessToken(w, r)
	if err != nil {
		httputil.RespondError(w, err)
		return
	}

	session, err := h.service.OAuthLogin(r.Context(), provider, accessToken)
	if err != nil {
		h.fail(w, r, string(provider)+" login failed", err)
		return
	}

	logging.FromContext(r.Context()).Info("user logged in", "user_id", session.User.ID, "provider", provider)
	httputil.RespondJSON(w, newAuthResponse(session), http.StatusOK)
}

// externalAccessToken reads the provider token from the Authorization
// header, falling back to the access_token body field.
func externalAccessToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token), nil
		}
	}

	if r.ContentLength == 0 {
		return "", ErrMissingAccessToken
	}

	var req OAuthRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		return "", err
	}
	if req.AccessToken == "" {
		return "", ErrMissingAccessToken
	}
	return req.AccessToken, nil
}

// allow applies the rate limit for purpose. Limiter failures let the
// request through.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, purpose string) bool {
	if h.rateLimiter == nil {
		return true
	}

	logger := logging.FromContext(r.Context())
	ip := getClientIP(r)

	ok, err := h.rateLimiter.Allow(r.Context(), purpose, ip)
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
		return true
	}
	if !ok {
		logger.Warn("IP rate limit exceeded", "ip", ip, "purpose", purpose)
		httputil.RespondError(w, errTooManyRequests)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logger := logging.FromContext(r.Context())

	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		logger.Warn(msg, "code", appErr.Code)
	} else {
		logger.Error(msg, "error", err.Error())
	}
	httputil.RespondError(w, err)
}

// getClientIP returns the client address. RemoteAddr has already been
// rewritten from proxy headers by the RealIP middleware.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
