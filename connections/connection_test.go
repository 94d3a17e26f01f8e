package connections_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/rentcopilot/connection-hub/connections"
	apperrors "github.com/rentcopilot/connection-hub/internal/errors"
	"github.com/rentcopilot/connection-hub/platforms"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestConnection_Expiry(t *testing.T) {
	c := newConnection(platforms.Wipimo, "prod", "secret")
	require.False(t, c.IsExpired(connectedAt.Add(100*365*24*time.Hour)), "no expiry means non-expiring")

	exp := connectedAt.Add(time.Hour)
	c.ExpiresAt = &exp
	require.False(t, c.IsExpired(exp.Add(-time.Second)))
	require.True(t, c.IsExpired(exp))
	require.True(t, c.IsValid(exp.Add(-time.Second)))
	require.False(t, c.IsValid(exp.Add(time.Second)))
}

func TestConnection_Validate(t *testing.T) {
	valid := newConnection(platforms.X14, "prod", "tok")
	require.NoError(t, valid.Validate())

	tests := map[string]func(c *connections.Connection){
		"missing token":       func(c *connections.Connection) { c.Token = "" },
		"missing environment": func(c *connections.Connection) { c.Environment = "" },
		"missing slug":        func(c *connections.Connection) { c.Platform.Slug = "" },
		"id mismatch":         func(c *connections.Connection) { c.ID = "x14-other" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid.Clone()
			mutate(&c)
			require.ErrorIs(t, c.Validate(), apperrors.ErrUpstreamContractViolation)
		})
	}
}

func TestConnection_TokenNeverLogged(t *testing.T) {
	c := newConnection(platforms.X14, "prod", "super-secret-token")
	c.Extra = map[string]string{"agencyId": "A1"}

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	logger.Info().Object("connection", c).Msg("connected")

	require.Contains(t, buf.String(), "x14-prod")
	require.NotContains(t, buf.String(), "super-secret-token")
	require.NotContains(t, c.String(), "super-secret-token")
	require.Empty(t, c.Redacted().Token)
	require.Equal(t, "super-secret-token", c.Token)
}

func TestConnection_CloneIsDeep(t *testing.T) {
	exp := connectedAt.Add(time.Hour)
	c := newConnection(platforms.X14, "prod", "tok")
	c.ExpiresAt = &exp
	c.Extra = map[string]string{"agencyId": "A1"}

	clone := c.Clone()
	clone.Extra["agencyId"] = "B2"
	*clone.ExpiresAt = exp.Add(time.Hour)

	require.Equal(t, "A1", c.Extra["agencyId"])
	require.Equal(t, exp, *c.ExpiresAt)
}

func TestAppSession_RedactedAndValidConnections(t *testing.T) {
	s := &connections.AppSession{}
	expired := connectedAt.Add(-time.Minute)
	old := newConnection(platforms.Wipimo, "prod", "w")
	old.ExpiresAt = &expired
	s.ApplyLogin(connections.User{}, old)
	s.ApplyLogin(connections.User{}, newConnection(platforms.X14, "prod", "x"))

	valid := s.ValidConnections(connectedAt)
	require.Len(t, valid, 1)
	require.Equal(t, "x14-prod", valid[0].ID)

	redacted := s.Redacted()
	for _, c := range redacted.Connections {
		require.Empty(t, c.Token)
	}
	require.Equal(t, "x", s.Connections[1].Token)

	var nilSession *connections.AppSession
	require.True(t, nilSession.Empty())
	require.Nil(t, nilSession.ActiveConnection())
}
