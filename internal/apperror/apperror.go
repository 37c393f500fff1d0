// Package apperror defines the error kinds shared by every layer.
//
// Each kind is a sentinel; callers branch with errors.Is, never on message
// text. An *AppError pairs a kind with the human-readable message returned
// to the client. Errors that carry no kind are internal failures.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation error")
	ErrConflict           = errors.New("conflict")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("rate limited")
)

// Authentication failure subtypes. Each wraps ErrUnauthorized, so
// errors.Is(err, ErrUnauthorized) matches all of them while the subtype
// stays distinguishable.
var (
	ErrMalformedAuthHeader = fmt.Errorf("%w: malformed authorization header", ErrUnauthorized)
	ErrUnsupportedScheme   = fmt.Errorf("%w: unsupported authorization scheme", ErrUnauthorized)
	ErrTokenExpired        = fmt.Errorf("%w: token expired", ErrUnauthorized)
	ErrTokenInvalid        = fmt.Errorf("%w: invalid token", ErrUnauthorized)
	ErrUnknownUser         = fmt.Errorf("%w: unknown user", ErrUnauthorized)
)

type AppError struct {
	Err     error  // kind sentinel
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// NotFoundMessage is NotFound with a caller-chosen message, for endpoints
// whose clients already depend on a fixed wording ("Team not found").
func NotFoundMessage(message string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: message,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Unauthorized returns an authentication failure of the given subtype.
// kind should be one of the ErrMalformedAuthHeader..ErrUnknownUser sentinels.
func Unauthorized(kind error, message string) *AppError {
	return &AppError{
		Err:     kind,
		Message: message,
	}
}

// InvalidCredentials is the single login failure. The message is fixed so
// the response does not reveal whether the username exists.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "Invalid credentials",
	}
}

func RateLimited() *AppError {
	return &AppError{
		Err:     ErrRateLimited,
		Message: "Too many requests",
	}
}
