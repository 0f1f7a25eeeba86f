// Package apperror defines the error taxonomy shared by every layer of the API.
//
// An *Error carries a Kind that decides the HTTP status, an optional machine-readable
// Code, a user-safe Message and optional field-level details. Domain packages declare
// their sentinel errors as *Error values so callers can match them with errors.Is.
package apperror

import (
	"context"
	"errors"
	"net/http"
)

// Kind classifies an error for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindRateLimited
	KindUnavailable
)

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// FieldError describes a problem with a single request field.
type FieldError struct {
	Field    string   `json:"field"`
	Location string   `json:"location"`
	Messages []string `json:"message"`
}

// Error is the tagged error variant used across the API.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Errors  []FieldError
}

func (e *Error) Error() string {
	return e.Message
}

// New creates an error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Validation creates a validation error carrying field details.
func Validation(fields ...FieldError) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    "VALIDATION_ERROR",
		Message: "Validation Error",
		Errors:  fields,
	}
}

// Conflict creates a conflict error for a single body field.
func Conflict(code, field, message string) *Error {
	return &Error{
		Kind:    KindConflict,
		Code:    code,
		Message: "Validation Error",
		Errors: []FieldError{{
			Field:    field,
			Location: "body",
			Messages: []string{message},
		}},
	}
}

// KindOf returns the kind of err. Errors that are not *Error are internal,
// except deadline expiry which is reported as unavailable.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindUnavailable
	}
	return KindInternal
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
