package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/redmonkez12/todo-api/internal/apperror"
	"github.com/redmonkez12/todo-api/internal/metrics"
	"github.com/redmonkez12/todo-api/internal/user"
	"github.com/redmonkez12/todo-api/internal/validate"
)

// Login methods used as metric labels.
const (
	MethodPassword = "password"
)

// TokenPair is returned to clients after a successful authentication.
type TokenPair struct {
	TokenType    string `json:"tokenType"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"` // access token lifetime in seconds
}

// Session is an authenticated user with its tokens.
type Session struct {
	User   *user.User
	Tokens TokenPair
}

// RegisterInput is the body of a self-registration. The role is always user.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=128"`
	Name     string `json:"name" validate:"max=128"`
}

// LoginInput holds password credentials.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

// RefreshInput identifies a refresh token and its owner.
type RefreshInput struct {
	Email        string `json:"email" validate:"required,email,max=254"`
	RefreshToken string `json:"refreshToken" validate:"required,max=512"`
}

// Service handles authentication business logic
type Service struct {
	users     *user.Service
	issuer    *Issuer
	ledger    *Ledger
	linker    *Linker
	validator *validate.Validator
	metrics   *metrics.Metrics
}

func NewService(
	users *user.Service,
	issuer *Issuer,
	ledger *Ledger,
	linker *Linker,
	validator *validate.Validator,
	m *metrics.Metrics,
) *Service {
	return &Service{
		users:     users,
		issuer:    issuer,
		ledger:    ledger,
		linker:    linker,
		validator: validator,
		metrics:   m,
	}
}

// Register creates a user with the user role and starts a session.
func (s *Service) Register(ctx context.Context, in RegisterInput) (session *Session, err error) {
	defer func() { s.metrics.Registration(result(err)) }()

	u, err := s.users.Create(ctx, user.CreateInput{
		Email:    in.Email,
		Password: in.Password,
		Name:     in.Name,
		Role:     user.RoleUser,
	})
	if err != nil {
		return nil, err
	}

	return s.startSession(ctx, u)
}

// Login authenticates with email and password. Unknown emails and wrong
// passwords fail the same way.
func (s *Service) Login(ctx context.Context, in LoginInput) (session *Session, err error) {
	defer func() { s.metrics.Login(MethodPassword, result(err)) }()

	in.Email = user.NormalizeEmail(in.Email)
	if err := s.validator.Body(in); err != nil {
		return nil, err
	}

	u, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	ok, err := s.users.VerifyPassword(ctx, u, in.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	return s.startSession(ctx, u)
}

// Refresh exchanges a refresh token for a new access token. The response
// also carries a new refresh token; the presented one is not revoked.
func (s *Service) Refresh(ctx context.Context, in RefreshInput) (tokens *TokenPair, err error) {
	defer func() { s.metrics.Refresh(result(err)) }()

	in.Email = user.NormalizeEmail(in.Email)
	if err := s.validator.Body(in); err != nil {
		return nil, err
	}

	u, accessToken, err := s.ledger.Exchange(ctx, in.Email, in.RefreshToken)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.ledger.Issue(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}

	pair := s.tokenPair(accessToken, refreshToken)
	return &pair, nil
}

// OAuthLogin logs in with an access token from provider.
func (s *Service) OAuthLogin(ctx context.Context, provider user.Provider, accessToken string) (session *Session, err error) {
	defer func() { s.metrics.Login(string(provider), result(err)) }()

	if accessToken == "" {
		return nil, ErrMissingAccessToken
	}

	u, err := s.linker.LoginWithToken(ctx, provider, accessToken)
	if err != nil {
		return nil, err
	}

	return s.startSession(ctx, u)
}

func (s *Service) startSession(ctx context.Context, u *user.User) (*Session, error) {
	accessToken, err := s.issuer.IssueAccessToken(u)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.ledger.Issue(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}

	return &Session{User: u, Tokens: s.tokenPair(accessToken, refreshToken)}, nil
}

func (s *Service) tokenPair(accessToken, refreshToken string) TokenPair {
	return TokenPair{
		TokenType:    "Bearer",
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.issuer.TTL().Seconds()),
	}
}

// result classifies err for metrics: client mistakes are failures,
// everything else unexpected is an error.
func result(err error) string {
	if err == nil {
		return metrics.ResultSuccess
	}
	switch apperror.KindOf(err) {
	case apperror.KindInternal, apperror.KindUnavailable:
		return metrics.ResultError
	}
	return metrics.ResultFailure
}
