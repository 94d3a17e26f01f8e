package sessions

import (
	"context"

	"github.com/rentcopilot/connection-hub/connections"
)

// UpdateFunc receives a copy of the current session, nil when none exists, and returns
// the session to persist. An error aborts the update and is returned unchanged.
type UpdateFunc func(current *connections.AppSession) (*connections.AppSession, error)

// Repo is the persistence medium for AppSessions, keyed by logical session id.
// Implementations wrap their own failures with apperrors.Persistence.
type Repo interface {
	// Get returns nil, nil when the session does not exist
	Get(ctx context.Context, sessionID string) (*connections.AppSession, error)

	// Update is a single atomic read-modify-write
	Update(ctx context.Context, sessionID string, fn UpdateFunc) (*connections.AppSession, error)

	// Delete removes the session. Deleting an absent session is not an error
	Delete(ctx context.Context, sessionID string) error
}
