package providers

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rentcopilot/connection-hub/connections"
	"github.com/rentcopilot/connection-hub/platforms"
)

// Raw is what a provider extracted from its platform before normalization.
type Raw struct {
	Credentials Credentials
	Token       string
	User        connections.User
	ExpiresAt   *time.Time        // Explicit expiry reported by the platform
	DefaultTTL  time.Duration     // Used when neither ExpiresAt nor a JWT exp claim is available
	Extra       map[string]string // Carried opaquely
}

// Normalize builds the frozen Connection for a platform and rejects malformed output
// as an upstream contract violation.
func Normalize(platform platforms.Descriptor, raw Raw, now time.Time) (*Result, error) {
	conn := connections.New(platform, raw.Credentials.Environment, raw.Credentials.Login, raw.Token, now)
	conn.Extra = raw.Extra
	conn.ExpiresAt = expiry(raw, now)

	if err := conn.Validate(); err != nil {
		return nil, ContractViolation(platform.Slug, "malformed login result", err)
	}
	return &Result{Connection: conn, User: raw.User}, nil
}

func expiry(raw Raw, now time.Time) *time.Time {
	if raw.ExpiresAt != nil && !raw.ExpiresAt.IsZero() {
		exp := raw.ExpiresAt.UTC()
		return &exp
	}
	if exp, ok := TokenExpiry(raw.Token); ok {
		return &exp
	}
	if raw.DefaultTTL > 0 {
		exp := now.Add(raw.DefaultTTL).UTC()
		return &exp
	}
	return nil
}

// TokenExpiry reads the exp claim of a JWT bearer token without verifying it.
// Platforms sign their own tokens, we only need the expiry hint.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time.UTC(), true
}
