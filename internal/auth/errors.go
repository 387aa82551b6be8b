package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound and ErrSessionExpired are distinguished for
	// logging only; HTTP responses collapse both into a generic
	// "invalid session" so expired ids cannot be probed.
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")

	// ErrInvalidCredentials covers unknown email and wrong password
	// uniformly, so sign-in responses cannot be used to enumerate
	// accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrConflict is returned by repositories on unique-constraint
	// violations (duplicate email, duplicate OAuth account).
	ErrConflict = errors.New("conflict")
)

// CreateSessionError reports an expected OAuth sign-in failure with a
// human-readable, non-sensitive reason. Flow handlers surface it as
// HTTP 400; anything else bubbling out of a provider adapter is an
// internal error.
type CreateSessionError struct {
	Reason string
}

func (e *CreateSessionError) Error() string {
	return e.Reason
}

func createSessionErrorf(format string, args ...any) *CreateSessionError {
	return &CreateSessionError{Reason: fmt.Sprintf(format, args...)}
}
