package auth

import (
	"errors"
	"fmt"
)

// Authentication phases.
const (
	PhaseCredentials = "credentials"
	PhaseRegister    = "register"
	PhaseLogin1      = "srpPhase1"
	PhaseLogin2      = "srpPhase2"
)

var (
	// ErrServerProofMismatch is returned when the relay's proof does not verify.
	ErrServerProofMismatch = errors.New("auth: server proof mismatch")
	// ErrNotRegistered is returned by Login for an identity without credentials.
	ErrNotRegistered = errors.New("auth: identity is not registered")
)

// Error reports the phase in which authentication failed.
type Error struct {
	Phase string
	Err   error
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("auth %s failed: %v", e.Phase, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func phaseError(phase string, err error) error {
	return &Error{Phase: phase, Err: err}
}
