package connections

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/pkg/errors"
	apperrors "github.com/rentcopilot/connection-hub/internal/errors"
	"github.com/rentcopilot/connection-hub/platforms"
	"github.com/rs/zerolog"
)

// Connection is one authenticated session with one platform in one environment.
type Connection struct {
	ID          string               `json:"id"` // slug + "-" + environment, the dedup key
	Platform    platforms.Descriptor `json:"platform"`
	Environment string               `json:"environment"`
	Login       string               `json:"login"` // Credentials echo, never the password
	Token       string               `json:"token"`
	ExpiresAt   *time.Time           `json:"expiresAt,omitempty"` // nil means non-expiring
	ConnectedAt time.Time            `json:"connectedAt"`
	Extra       map[string]string    `json:"extra,omitempty"` // Provider specific, not interpreted
}

// ID computes the deterministic connection identifier for a platform and environment.
func ID(slug, environment string) string {
	return slug + "-" + environment
}

// New builds a connection with its computed id.
func New(platform platforms.Descriptor, environment, login, token string, connectedAt time.Time) Connection {
	return Connection{
		ID:          ID(platform.Slug, environment),
		Platform:    platform,
		Environment: environment,
		Login:       login,
		Token:       token,
		ConnectedAt: connectedAt,
	}
}

// Validate enforces the frozen connection schema.
func (c Connection) Validate() error {
	switch {
	case strings.TrimSpace(c.Platform.Slug) == "":
		return errors.Wrap(apperrors.ErrUpstreamContractViolation, "platform slug is required")
	case strings.TrimSpace(c.Environment) == "":
		return errors.Wrap(apperrors.ErrUpstreamContractViolation, "environment is required")
	case c.Token == "":
		return errors.Wrap(apperrors.ErrUpstreamContractViolation, "token is required")
	case c.ID != ID(c.Platform.Slug, c.Environment):
		return errors.Wrapf(apperrors.ErrUpstreamContractViolation, "connection id %q does not match %q", c.ID, ID(c.Platform.Slug, c.Environment))
	}
	return nil
}

// IsExpired reports whether the connection's token is past its expiry.
func (c Connection) IsExpired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Before(*c.ExpiresAt)
}

// IsValid reports whether the connection can be used for API calls at now.
func (c Connection) IsValid(now time.Time) bool {
	return c.Token != "" && !c.IsExpired(now)
}

// Clone returns a deep copy.
func (c Connection) Clone() Connection {
	out := c
	if c.ExpiresAt != nil {
		exp := *c.ExpiresAt
		out.ExpiresAt = &exp
	}
	if c.Extra != nil {
		out.Extra = maps.Clone(c.Extra)
	}
	return out
}

// Redacted returns a copy without the token, suitable for client responses.
func (c Connection) Redacted() Connection {
	out := c.Clone()
	out.Token = ""
	return out
}

func (c Connection) String() string {
	return fmt.Sprintf("Connection{%s login=%s token=[REDACTED]}", c.ID, c.Login)
}

// MarshalZerologObject logs everything but the token.
func (c Connection) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", c.ID).
		Str("platform", c.Platform.Slug).
		Str("environment", c.Environment).
		Str("login", c.Login).
		Time("connected_at", c.ConnectedAt)
	if c.ExpiresAt != nil {
		e.Time("expires_at", *c.ExpiresAt)
	}
}
