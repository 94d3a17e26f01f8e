package cache

import (
	"time"

	"github.com/rentcopilot/connection-hub/connections"
	"github.com/rs/zerolog"
)

// Entry is the cached snapshot of one connection. It may be stale and must never be used
// to decide authorization.
type Entry struct {
	ConnectionID string     `json:"connectionId"`
	PlatformSlug string     `json:"platformSlug"`
	Environment  string     `json:"environment"`
	Token        string     `json:"token"`
	UserID       string     `json:"userId"`
	UserName     string     `json:"userName"`
	UserEmail    string     `json:"userEmail"`
	ConnectedAt  time.Time  `json:"connectedAt"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// NewEntry snapshots a connection and the identity that owned it.
func NewEntry(c connections.Connection, user *connections.User) Entry {
	e := Entry{
		ConnectionID: c.ID,
		PlatformSlug: c.Platform.Slug,
		Environment:  c.Environment,
		Token:        c.Token,
		ConnectedAt:  c.ConnectedAt,
	}
	if c.ExpiresAt != nil {
		exp := *c.ExpiresAt
		e.ExpiresAt = &exp
	}
	if user != nil {
		e.UserID = user.ID
		e.UserName = user.DisplayName
		e.UserEmail = user.Email
	}
	return e
}

func (e Entry) IsExpired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// supersededBy reports whether c is a newer login for the same connection id. A login
// with the same timestamp but another token or expiry also replaces the entry; an older
// login never does.
func (e Entry) supersededBy(c connections.Connection) bool {
	if c.ConnectedAt.Before(e.ConnectedAt) {
		return false
	}
	return e.ConnectedAt.Before(c.ConnectedAt) || e.Token != c.Token || !sameExpiry(e.ExpiresAt, c.ExpiresAt)
}

func sameExpiry(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (e Entry) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("connection_id", e.ConnectionID).
		Str("platform", e.PlatformSlug).
		Str("environment", e.Environment).
		Time("connected_at", e.ConnectedAt)
}
