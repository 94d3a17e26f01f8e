package providers

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/url"

	apperrors "github.com/rentcopilot/connection-hub/internal/errors"
)

// Failure is a classified login failure. Kind is one of the login sentinels in
// internal/errors, so callers can match with errors.Is.
type Failure struct {
	Kind     error
	Platform string
	Detail   string
	Cause    error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("%s login failed: %s", f.Platform, f.Kind)
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	if f.Cause != nil {
		msg += ": " + f.Cause.Error()
	}
	return msg
}

func (f *Failure) Unwrap() []error {
	if f.Cause == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Cause}
}

// Message is the user facing text for the failure's classification.
func (f *Failure) Message() string {
	return Message(f.Kind)
}

func newFailure(kind error, platform, detail string, cause error) *Failure {
	return &Failure{Kind: kind, Platform: platform, Detail: detail, Cause: cause}
}

func InvalidCredentials(platform, detail string) *Failure {
	return newFailure(apperrors.ErrInvalidCredentials, platform, detail, nil)
}

func EnvironmentUnreachable(platform string, cause error) *Failure {
	return newFailure(apperrors.ErrEnvironmentUnreachable, platform, "", cause)
}

func Timeout(platform string, cause error) *Failure {
	return newFailure(apperrors.ErrTimeout, platform, "", cause)
}

func ContractViolation(platform, detail string, cause error) *Failure {
	return newFailure(apperrors.ErrUpstreamContractViolation, platform, detail, cause)
}

func Unknown(platform string, cause error) *Failure {
	return newFailure(apperrors.ErrUnknown, platform, "", cause)
}

// Classify turns a transport level error into a Failure. Errors that are already
// classified pass through untouched.
func Classify(platform string, err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if stderrors.As(err, &f) {
		return f
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return Timeout(platform, err)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return Timeout(platform, err)
	}
	var dnsErr *net.DNSError
	var opErr *net.OpError
	var urlErr *url.Error
	if stderrors.As(err, &dnsErr) || stderrors.As(err, &opErr) || stderrors.As(err, &urlErr) {
		return EnvironmentUnreachable(platform, err)
	}
	return Unknown(platform, err)
}

// Message maps a failure kind to a user facing message.
func Message(kind error) string {
	switch {
	case stderrors.Is(kind, apperrors.ErrInvalidCredentials):
		return "Invalid credentials. Check your login and password."
	case stderrors.Is(kind, apperrors.ErrEnvironmentUnreachable):
		return "Unable to reach the platform environment. Check the environment name."
	case stderrors.Is(kind, apperrors.ErrTimeout):
		return "The platform took too long to answer. Try again later."
	case stderrors.Is(kind, apperrors.ErrUpstreamContractViolation):
		return "The platform answered in an unexpected format. Its login page may have changed."
	default:
		return "Unexpected error while logging in to the platform."
	}
}

// KindName returns a stable identifier for the failure kind, used in API responses and metrics.
func KindName(kind error) string {
	switch {
	case stderrors.Is(kind, apperrors.ErrInvalidCredentials):
		return "invalid_credentials"
	case stderrors.Is(kind, apperrors.ErrEnvironmentUnreachable):
		return "environment_unreachable"
	case stderrors.Is(kind, apperrors.ErrTimeout):
		return "timeout"
	case stderrors.Is(kind, apperrors.ErrUpstreamContractViolation):
		return "upstream_contract_violation"
	default:
		return "unknown"
	}
}
