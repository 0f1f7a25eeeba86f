// Package httputil holds the JSON response helpers shared by HTTP handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/redmonkez12/todo-api/internal/apperror"
)

// maxBodyBytes bounds decoded request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    int                   `json:"code"`
	Message string                `json:"message"`
	Error   string                `json:"error,omitempty"`
	Errors  []apperror.FieldError `json:"errors,omitempty"`
}

// RespondJSON sends a JSON response with the given status code.
// Logs encoding errors to avoid silent failures.
func RespondJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

// RespondError renders err. Only *apperror.Error details reach the client;
// anything else becomes a generic message for its kind.
func RespondError(w http.ResponseWriter, err error) {
	RespondJSON(w, NewErrorResponse(err), apperror.KindOf(err).Status())
}

// NewErrorResponse builds the body RespondError writes for err.
func NewErrorResponse(err error) ErrorResponse {
	kind := apperror.KindOf(err)
	resp := ErrorResponse{Code: kind.Status()}

	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		resp.Message = appErr.Message
		resp.Error = appErr.Code
		resp.Errors = appErr.Errors
		return resp
	}

	if kind == apperror.KindUnavailable {
		resp.Message = "Service temporarily unavailable, please retry"
		resp.Error = CodeStoreTimeout
		return resp
	}

	resp.Message = http.StatusText(http.StatusInternalServerError)
	resp.Error = CodeInternalError
	return resp
}

// DecodeJSON decodes a JSON request body into dst. Malformed or oversized
// bodies produce a validation error.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.New(apperror.KindValidation, CodeInvalidRequestBody, "Request body is required")
		}
		return apperror.New(apperror.KindValidation, CodeInvalidRequestBody, fmt.Sprintf("Invalid request body: %s", describeDecodeError(err)))
	}

	return nil
}

func describeDecodeError(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var maxErr *http.MaxBytesError

	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		return fmt.Sprintf("%q has the wrong type", typeErr.Field)
	case errors.As(err, &maxErr):
		return "body too large"
	default:
		return "malformed JSON"
	}
}
