package connections

import (
	"time"

	"github.com/pkg/errors"
	apperrors "github.com/rentcopilot/connection-hub/internal/errors"
)

// User is the normalized identity of whoever logged in last.
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"userName"`
	Email       string `json:"email"`
	CompanyName string `json:"companyName"`
}

// AppSession is the authoritative state of one logical user session.
type AppSession struct {
	ID                 string       `json:"id"`
	User               *User        `json:"user,omitempty"`
	Connections        []Connection `json:"connections"`
	ActiveConnectionID string       `json:"activeConnectionId,omitempty"` // Empty or the id of a member of Connections
	CreatedAt          time.Time    `json:"createdAt"`
	UpdatedAt          time.Time    `json:"updatedAt"`
}

// Empty reports whether the session has never been populated or was cleared.
func (s *AppSession) Empty() bool {
	return s == nil || (s.User == nil && len(s.Connections) == 0)
}

// Find returns the index of the connection with the given id.
func (s *AppSession) Find(connectionID string) (int, bool) {
	if s == nil {
		return -1, false
	}
	for i := range s.Connections {
		if s.Connections[i].ID == connectionID {
			return i, true
		}
	}
	return -1, false
}

// ActiveConnection resolves the active connection, nil when there is none.
func (s *AppSession) ActiveConnection() *Connection {
	if s == nil || s.ActiveConnectionID == "" {
		return nil
	}
	i, ok := s.Find(s.ActiveConnectionID)
	if !ok {
		return nil
	}
	c := s.Connections[i].Clone()
	return &c
}

// ValidConnections returns the connections that are not expired at now.
func (s *AppSession) ValidConnections(now time.Time) []Connection {
	if s == nil {
		return nil
	}
	valid := make([]Connection, 0, len(s.Connections))
	for _, c := range s.Connections {
		if c.IsValid(now) {
			valid = append(valid, c.Clone())
		}
	}
	return valid
}

// ApplyLogin merges a freshly authenticated connection and overwrites the identity.
func (s *AppSession) ApplyLogin(user User, c Connection) {
	var active Connection
	s.Connections, active = Merge(s.Connections, c)
	s.ActiveConnectionID = active.ID
	s.User = &user
}

// SwitchActive makes connectionID the active connection. Unknown ids leave the session untouched.
func (s *AppSession) SwitchActive(connectionID string) error {
	if _, ok := s.Find(connectionID); !ok {
		return errors.Wrap(apperrors.ErrNotFound, connectionID)
	}
	s.ActiveConnectionID = connectionID
	return nil
}

// RemoveConnection deletes connectionID. When it was active, the first remaining
// connection becomes active, or none if the list is now empty.
func (s *AppSession) RemoveConnection(connectionID string) error {
	i, ok := s.Find(connectionID)
	if !ok {
		return errors.Wrap(apperrors.ErrNotFound, connectionID)
	}
	remaining := make([]Connection, 0, len(s.Connections)-1)
	remaining = append(remaining, s.Connections[:i]...)
	remaining = append(remaining, s.Connections[i+1:]...)
	s.Connections = remaining

	if s.ActiveConnectionID == connectionID {
		s.ActiveConnectionID = ""
		if len(s.Connections) > 0 {
			s.ActiveConnectionID = s.Connections[0].ID
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s *AppSession) Clone() *AppSession {
	if s == nil {
		return nil
	}
	out := *s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	out.Connections = make([]Connection, len(s.Connections))
	for i, c := range s.Connections {
		out.Connections[i] = c.Clone()
	}
	return &out
}

// Redacted returns a copy with every token removed.
func (s *AppSession) Redacted() *AppSession {
	out := s.Clone()
	if out == nil {
		return nil
	}
	for i := range out.Connections {
		out.Connections[i].Token = ""
	}
	return out
}
