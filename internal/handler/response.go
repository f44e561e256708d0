package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError, so the API has one
// error shape:
//
//	{"error": "not_found", "message": "exam not found with id abc123"}
//
// The "error" field is machine-readable and stable; "message" is for humans.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/exam-archive/internal/apperror"
)

// maxJSONBody caps JSON request bodies. Uploads go through multipart and
// have their own limit.
const maxJSONBody = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// writeJSON sends a JSON response with the given status code.
// Headers and status must go out before the body; Encode writes the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps an error kind to its HTTP status and machine-readable name.
// ErrDependency is checked first: a dependency failure may carry a cause
// that itself matches another kind, and the outer kind wins.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrDependency):
		return http.StatusBadGateway, "dependency_failure"
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// Services return *apperror.AppError values (possibly wrapped with
// fmt.Errorf("...: %w")); errors.As finds them anywhere in the chain. Anything
// else is a bug or an untyped failure and becomes a generic 500: raw error
// text can carry SQL or file paths and never reaches the client.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, kind := statusFor(appErr)
		writeJSON(w, status, ErrorResponse{Error: kind, Message: appErr.Message})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// logFailure logs errors that are not the caller's fault. Client errors
// (validation, not found, ...) are part of normal traffic and stay quiet.
func logFailure(logger *slog.Logger, r *http.Request, err error) {
	status, _ := statusFor(err)
	if status < http.StatusInternalServerError {
		return
	}
	attrs := []any{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Cause != nil {
		attrs = append(attrs, slog.String("cause", appErr.Cause.Error()))
	}
	logger.Error("request failed", attrs...)
}

// fail logs server-side failures and writes the error response.
func fail(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	logFailure(logger, r, err)
	writeError(w, err)
}

// decodeJSON reads a JSON body of bounded size into dst. An empty or
// malformed body is a validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("body", "request body is required")
		}
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperror.ValidationFailed("body", "request body is too large")
		}
		return apperror.ValidationFailed("body", "invalid JSON in request body")
	}
	return nil
}
