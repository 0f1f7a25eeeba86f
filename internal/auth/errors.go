package auth

import (
	"errors"

	"github.com/redmonkez12/todo-api/internal/apperror"
)

var (
	ErrInvalidToken        = apperror.New(apperror.KindUnauthorized, "INVALID_TOKEN", "Invalid token")
	ErrExpiredToken        = apperror.New(apperror.KindUnauthorized, "TOKEN_EXPIRED", "Token has expired")
	ErrUnauthorized        = apperror.New(apperror.KindUnauthorized, "UNAUTHORIZED", "Unauthorized")
	ErrForbidden           = apperror.New(apperror.KindForbidden, "FORBIDDEN", "Forbidden")
	ErrInvalidCredentials  = apperror.New(apperror.KindUnauthorized, "INVALID_CREDENTIALS", "Incorrect email or password")
	ErrInvalidRefreshToken = apperror.New(apperror.KindUnauthorized, "INVALID_REFRESH_TOKEN", "Incorrect email or refreshToken")
	ErrOAuthRejected       = apperror.New(apperror.KindUnauthorized, "OAUTH_REJECTED", "Identity provider rejected the access token")
	ErrOAuthProfile        = apperror.New(apperror.KindUnauthorized, "OAUTH_PROFILE_INCOMPLETE", "Identity provider did not return an id and email")
	ErrUnknownProvider     = apperror.New(apperror.KindNotFound, "UNKNOWN_PROVIDER", "Unknown identity provider")

	ErrMissingAccessToken = apperror.Validation(apperror.FieldError{
		Field:    "access_token",
		Location: "body",
		Messages: []string{`"access_token" is required`},
	})

	// ErrRefreshTokenNotFound is returned by repositories for unknown tokens.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
)
