package errors

import (
	"errors"
	"fmt"
)

// Common error types for the budget API client
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrRegistration       = errors.New("registration failed")

	// Token errors
	ErrNoRefreshToken      = errors.New("no refresh token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrMalformedToken      = errors.New("malformed token")

	// Session errors
	ErrSessionExpired = errors.New("session expired")

	// Storage errors
	ErrKeyNotFound    = errors.New("key not found")
	ErrCorruptStorage = errors.New("session storage unreadable")

	// General errors
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternal       = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// ValidationError reports input rejected locally, before any request was sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Is lets callers match any ValidationError with ErrInvalidRequest.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// Invalid returns a ValidationError for field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
