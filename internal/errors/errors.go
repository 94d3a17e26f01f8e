package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy for the connection hub
var (
	// Login failures, classified by the provider that produced them
	ErrInvalidCredentials        = errors.New("invalid credentials")
	ErrEnvironmentUnreachable    = errors.New("environment unreachable")
	ErrTimeout                   = errors.New("login timed out")
	ErrUpstreamContractViolation = errors.New("upstream contract violation")
	ErrUnknown                   = errors.New("unknown login failure")

	// Session errors
	ErrNotFound          = errors.New("connection not found")
	ErrSessionAbsent     = errors.New("session absent")
	ErrPersistence       = errors.New("persistence failure")
	ErrConnectionExpired = errors.New("connection expired")

	// Request errors
	ErrInvalidRequest   = errors.New("invalid request")
	ErrUnknownPlatform  = errors.New("unknown platform")
	ErrRateLimited      = errors.New("too many login attempts")
	ErrProviderMissing  = errors.New("no login provider registered for platform")
	ErrInvalidSecretKey = errors.New("invalid secret key")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Persistence marks err as a persistence failure while keeping the original cause in the chain.
func Persistence(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), ErrPersistence, err)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
