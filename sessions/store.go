// Package sessions owns the authoritative AppSession of each logical user session.
// The Store is the only component allowed to mutate an AppSession.
package sessions

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rentcopilot/connection-hub/connections"
	apperrors "github.com/rentcopilot/connection-hub/internal/errors"
	"github.com/rentcopilot/connection-hub/internal/metrics"
	"github.com/rentcopilot/connection-hub/providers"
	"github.com/rs/zerolog/log"
)

type Store struct {
	repo     Repo
	notifier Notifier
	clock    clockwork.Clock
}

type Option func(*Store)

func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

func NewStore(repo Repo, options ...Option) *Store {
	s := &Store{
		repo:     repo,
		notifier: noopNotifier{},
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Login merges a successful login into the session, creating the session when absent.
// The login's connection becomes active and its user replaces the session identity.
func (s *Store) Login(ctx context.Context, sessionID string, result *providers.Result) (*connections.AppSession, error) {
	if result == nil {
		return nil, errors.Wrap(apperrors.ErrInvalidRequest, "[Store.Login] no login result")
	}
	if err := result.Connection.Validate(); err != nil {
		return nil, errors.Wrap(err, "[Store.Login]")
	}

	now := s.clock.Now()
	session, err := s.update(ctx, "login", sessionID, func(current *connections.AppSession) (*connections.AppSession, error) {
		if current == nil {
			current = &connections.AppSession{ID: sessionID, Connections: []connections.Connection{}, CreatedAt: now}
		}
		current.ApplyLogin(result.User, result.Connection)
		current.UpdatedAt = now
		return current, nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("session_id", sessionID).Object("connection", result.Connection).Int("connections", len(session.Connections)).Msg("connection merged into session")
	return session, nil
}

// Get returns the session, or an empty session when none exists.
func (s *Store) Get(ctx context.Context, sessionID string) (*connections.AppSession, error) {
	session, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		metrics.StoreOpsTotal.WithLabelValues("get", "error").Inc()
		return nil, err
	}
	metrics.StoreOpsTotal.WithLabelValues("get", "ok").Inc()
	if session == nil {
		return &connections.AppSession{ID: sessionID, Connections: []connections.Connection{}}, nil
	}
	return session, nil
}

// ActiveConnection returns nil when the session holds no active connection.
func (s *Store) ActiveConnection(ctx context.Context, sessionID string) (*connections.Connection, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.ActiveConnection(), nil
}

// SwitchActive fails with ErrNotFound, without mutating, when connectionID is not in the session.
func (s *Store) SwitchActive(ctx context.Context, sessionID, connectionID string) (*connections.AppSession, error) {
	return s.update(ctx, "switch", sessionID, func(current *connections.AppSession) (*connections.AppSession, error) {
		if current == nil {
			return nil, errors.Wrapf(apperrors.ErrSessionAbsent, "[Store.SwitchActive] %s", connectionID)
		}
		if err := current.SwitchActive(connectionID); err != nil {
			return nil, err
		}
		current.UpdatedAt = s.clock.Now()
		return current, nil
	})
}

// RemoveConnection deletes connectionID. The session and its user survive even when no
// connection is left.
func (s *Store) RemoveConnection(ctx context.Context, sessionID, connectionID string) (*connections.AppSession, error) {
	return s.update(ctx, "remove", sessionID, func(current *connections.AppSession) (*connections.AppSession, error) {
		if current == nil {
			return nil, errors.Wrapf(apperrors.ErrNotFound, "[Store.RemoveConnection] %s", connectionID)
		}
		if err := current.RemoveConnection(connectionID); err != nil {
			return nil, err
		}
		current.UpdatedAt = s.clock.Now()
		return current, nil
	})
}

// Clear destroys the session. Clearing an absent session succeeds.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := s.repo.Delete(ctx, sessionID); err != nil {
		metrics.StoreOpsTotal.WithLabelValues("clear", "error").Inc()
		return err
	}
	metrics.StoreOpsTotal.WithLabelValues("clear", "ok").Inc()
	s.notifier.Notify(ctx, &connections.AppSession{ID: sessionID, Connections: []connections.Connection{}})
	return nil
}

func (s *Store) update(ctx context.Context, op, sessionID string, fn UpdateFunc) (*connections.AppSession, error) {
	session, err := s.repo.Update(ctx, sessionID, fn)
	if err != nil {
		status := "error"
		if apperrors.Is(err, apperrors.ErrNotFound) || apperrors.Is(err, apperrors.ErrSessionAbsent) {
			status = "not_found"
		}
		metrics.StoreOpsTotal.WithLabelValues(op, status).Inc()
		return nil, err
	}
	metrics.StoreOpsTotal.WithLabelValues(op, "ok").Inc()
	s.notifier.Notify(ctx, session)
	return session, nil
}
