package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from the API has the same shape:
//
//	{"error": "not_found", "message": "Team not found"}
//	{"error": "unauthorized", "message": "Token has expired", "reason": "token_expired"}
//
// "error" is the machine-readable kind, "message" is for humans, and
// "reason" appears only on authentication failures.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/teamrally/internal/apperror"
	"github.com/sakif/teamrally/internal/auth"
)

// maxBodyBytes caps request bodies; every request in this API is tiny.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`            // Machine-readable error kind (e.g., "not_found")
	Message string `json:"message"`          // Human-readable description
	Reason  string `json:"reason,omitempty"` // Auth failure subtype
}

// MessageResponse is the body of mutations that return nothing else.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
//
// Headers and status must be set BEFORE the body is written; once Encode
// writes, later header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// decodeJSON reads a single JSON object from the request body into dst.
// A malformed or oversized body is a validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("body", "Request body is required")
		}
		return apperror.ValidationFailed("body", "Invalid JSON body")
	}
	return nil
}

// classify maps an error to its HTTP status, API kind and auth reason.
//
// Conflicts are 400 rather than 409: existing clients of this API already
// treat "Username already exists" and "User is already a team member" as
// bad requests.
func classify(err error) (status int, kind, reason string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error", ""
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found", ""
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusBadRequest, "conflict", ""
	case errors.Is(err, apperror.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", ""
	case errors.Is(err, apperror.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited", ""
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", AuthReason(err)
	}
	return http.StatusInternalServerError, "internal_error", ""
}

// AuthReason returns the API reason code for an authentication failure,
// or "" when err is not one.
func AuthReason(err error) string {
	switch {
	case errors.Is(err, apperror.ErrMalformedAuthHeader):
		return "malformed_auth_header"
	case errors.Is(err, apperror.ErrUnsupportedScheme):
		return "unsupported_scheme"
	case errors.Is(err, apperror.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, apperror.ErrTokenInvalid):
		return "invalid_token"
	case errors.Is(err, apperror.ErrUnknownUser):
		return "unknown_user"
	}
	return ""
}

// writeError maps a domain error to the appropriate HTTP status code and
// sends it.
//
// The service layer returns apperror kinds; this function is the only
// place they become status codes. Anything without a kind is an internal
// failure: it is logged with the request's method and path, and the client
// gets a generic message. The raw error might contain SQL or file paths.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, kind, reason := classify(err)

	var appErr *apperror.AppError
	if status == http.StatusInternalServerError || !errors.As(err, &appErr) {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	writeJSON(w, status, ErrorResponse{
		Error:   kind,
		Message: appErr.Message,
		Reason:  reason,
	})
}

// AuthFailureRecorder counts rejected authentications by reason.
type AuthFailureRecorder interface {
	RecordAuthFailure(reason string)
}

// AuthErrorWriter returns the auth.ErrorWriter used by auth.RequireAuth:
// it counts the rejection, logs it at Warn, and writes the standard error
// body. rec may be nil.
func AuthErrorWriter(logger *slog.Logger, rec AuthFailureRecorder) auth.ErrorWriter {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		if reason := AuthReason(err); reason != "" {
			if rec != nil {
				rec.RecordAuthFailure(reason)
			}
			logger.Warn("authentication rejected",
				slog.String("path", r.URL.Path),
				slog.String("reason", reason),
			)
		}
		writeError(w, r, logger, err)
	}
}

// ErrorWriter returns writeError bound to logger, for middleware that
// rejects requests before they reach a handler.
func ErrorWriter(logger *slog.Logger) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		writeError(w, r, logger, err)
	}
}
