package server

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	apperrors "github.com/rentcopilot/connection-hub/internal/errors"
	"github.com/rentcopilot/connection-hub/providers"
	"github.com/rs/zerolog/log"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

// errorKind maps a sentinel to its status code, stable kind and whether the error text
// may be shown to the caller.
type errorKind struct {
	target error
	status int
	kind   string
	expose bool
}

var errorKinds = []errorKind{
	{apperrors.ErrInvalidRequest, http.StatusBadRequest, "invalid_request", true},
	{apperrors.ErrUnknownPlatform, http.StatusNotFound, "unknown_platform", true},
	{apperrors.ErrProviderMissing, http.StatusNotImplemented, "provider_missing", true},
	{apperrors.ErrNotFound, http.StatusNotFound, "not_found", true},
	{apperrors.ErrSessionAbsent, http.StatusNotFound, "session_absent", false},
	{apperrors.ErrConnectionExpired, http.StatusUnauthorized, "connection_expired", false},
	{ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated", false},
	{apperrors.ErrRateLimited, http.StatusTooManyRequests, "rate_limited", false},
	{apperrors.ErrPersistence, http.StatusServiceUnavailable, "persistence", false},
}

var errorMessages = map[string]string{
	"session_absent":     "No session for this handle.",
	"connection_expired": "The active connection has expired. Log in again.",
	"unauthenticated":    "Not authenticated.",
	"rate_limited":       "Too many login attempts. Wait a moment and try again.",
	"persistence":        "Session storage is unavailable. Try again later.",
	"internal":           "Internal server error.",
}

// loginFailureStatus maps each classified login failure to its status code.
func loginFailureStatus(kind error) int {
	switch {
	case stderrors.Is(kind, apperrors.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case stderrors.Is(kind, apperrors.ErrTimeout):
		return http.StatusGatewayTimeout
	case stderrors.Is(kind, apperrors.ErrEnvironmentUnreachable), stderrors.Is(kind, apperrors.ErrUpstreamContractViolation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// describeError resolves the response status and body of err.
func describeError(err error) (int, errorBody) {
	var failure *providers.Failure
	if stderrors.As(err, &failure) {
		return loginFailureStatus(failure.Kind), errorBody{Kind: providers.KindName(failure.Kind), Message: failure.Message()}
	}
	for _, k := range errorKinds {
		if stderrors.Is(err, k.target) {
			msg := errorMessages[k.kind]
			if k.expose {
				msg = err.Error()
			}
			return k.status, errorBody{Kind: k.kind, Message: msg}
		}
	}
	return http.StatusInternalServerError, errorBody{Kind: "internal", Message: errorMessages["internal"]}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := describeError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("kind", body.Kind).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Success: false, Error: body})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "malformed body: %s", err.Error())
	}
	return nil
}
