// Package manager orchestrates platform logins, the authoritative session store and the
// per-session connection caches.
package manager

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rentcopilot/connection-hub/cache"
	"github.com/rentcopilot/connection-hub/connections"
	apperrors "github.com/rentcopilot/connection-hub/internal/errors"
	"github.com/rentcopilot/connection-hub/internal/metrics"
	"github.com/rentcopilot/connection-hub/platforms"
	"github.com/rentcopilot/connection-hub/providers"
	"github.com/rentcopilot/connection-hub/sessions"
	"github.com/rs/zerolog/log"
)

const defaultProviderTimeout = 60 * time.Second

type Manager struct {
	catalog   platforms.Catalog
	providers *providers.Registry
	store     *sessions.Store
	caches    *cache.Registry
	clock     clockwork.Clock
	timeout   time.Duration
}

type Option func(*Manager)

func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithProviderTimeout bounds each provider call. A provider that overruns fails as a Timeout.
func WithProviderTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

func New(catalog platforms.Catalog, registry *providers.Registry, store *sessions.Store, caches *cache.Registry, options ...Option) *Manager {
	m := &Manager{
		catalog:   catalog,
		providers: registry,
		store:     store,
		caches:    caches,
		clock:     clockwork.NewRealClock(),
		timeout:   defaultProviderTimeout,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Login authenticates against a platform and merges the new connection into the session.
// A failed or timed out provider call leaves the session untouched and is never retried.
func (m *Manager) Login(ctx context.Context, sessionID, platformSlug string, creds providers.Credentials) (*connections.AppSession, error) {
	if _, err := m.catalog.Get(platformSlug); err != nil {
		return nil, err
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	provider, err := m.providers.Get(platformSlug)
	if err != nil {
		return nil, err
	}

	result, err := m.authenticate(ctx, provider, creds)
	if err != nil {
		var failure *providers.Failure
		if stderrors.As(err, &failure) {
			metrics.LoginsTotal.WithLabelValues(platformSlug, providers.KindName(failure.Kind)).Inc()
			log.Warn().Str("session_id", sessionID).Str("platform", platformSlug).Str("environment", creds.Environment).
				Str("kind", providers.KindName(failure.Kind)).Err(err).Msg("platform login failed")
		}
		return nil, err
	}

	session, err := m.store.Login(ctx, sessionID, result)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(platformSlug, "store_error").Inc()
		return nil, err
	}
	metrics.LoginsTotal.WithLabelValues(platformSlug, "success").Inc()
	m.reconcile(ctx, session)
	return session, nil
}

func (m *Manager) authenticate(ctx context.Context, provider providers.LoginProvider, creds providers.Credentials) (*providers.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := m.clock.Now()
	result, err := provider.Authenticate(callCtx, creds)
	metrics.LoginDuration.WithLabelValues(provider.Slug()).Observe(m.clock.Since(start).Seconds())

	if err != nil {
		if ctx.Err() == nil && stderrors.Is(callCtx.Err(), context.DeadlineExceeded) {
			var failure *providers.Failure
			if !stderrors.As(err, &failure) || !stderrors.Is(failure.Kind, apperrors.ErrTimeout) {
				return nil, providers.Timeout(provider.Slug(), err)
			}
		}
		var failure *providers.Failure
		if !stderrors.As(err, &failure) && stderrors.Is(err, apperrors.ErrInvalidRequest) {
			// Rejected input is the caller's fault, not a login failure
			return nil, err
		}
		return nil, providers.Classify(provider.Slug(), err)
	}
	if result == nil {
		return nil, providers.ContractViolation(provider.Slug(), "provider returned no result", nil)
	}
	if result.Connection.Platform.Slug != provider.Slug() {
		return nil, providers.ContractViolation(provider.Slug(), "connection belongs to platform "+result.Connection.Platform.Slug, nil)
	}
	return result, nil
}

// Switch makes connectionID active and refreshes the cache right away. It reports false,
// without error, when the connection or the session does not exist.
func (m *Manager) Switch(ctx context.Context, sessionID, connectionID string) (bool, error) {
	session, err := m.store.SwitchActive(ctx, sessionID, connectionID)
	switch {
	case apperrors.Is(err, apperrors.ErrNotFound), apperrors.Is(err, apperrors.ErrSessionAbsent):
		metrics.SwitchesTotal.WithLabelValues("not_found").Inc()
		return false, nil
	case err != nil:
		metrics.SwitchesTotal.WithLabelValues("error").Inc()
		return false, err
	}
	metrics.SwitchesTotal.WithLabelValues("ok").Inc()
	m.reconcile(ctx, session)
	return true, nil
}

// Remove drops a connection from the session. Unknown ids fail with ErrNotFound.
func (m *Manager) Remove(ctx context.Context, sessionID, connectionID string) (*connections.AppSession, error) {
	session, err := m.store.RemoveConnection(ctx, sessionID, connectionID)
	if err != nil {
		return nil, err
	}
	metrics.RemovalsTotal.Inc()
	m.reconcile(ctx, session)
	return session, nil
}

// Logout clears the session, its cache and the cache medium. It always succeeds: failures
// are logged and swallowed so a user can never be stuck logged in.
func (m *Manager) Logout(ctx context.Context, sessionID string) {
	result := "ok"
	if err := m.store.Clear(ctx, sessionID); err != nil {
		result = "degraded"
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to clear authoritative session on logout")
	}
	if err := m.caches.For(sessionID).Clear(); err != nil {
		result = "degraded"
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to clear connection cache on logout")
	}
	m.caches.Forget(sessionID)
	metrics.LogoutsTotal.WithLabelValues(result).Inc()
	log.Info().Str("session_id", sessionID).Str("result", result).Msg("logged out")
}

func (m *Manager) Session(ctx context.Context, sessionID string) (*connections.AppSession, error) {
	return m.store.Get(ctx, sessionID)
}

// ActiveConnection returns nil, nil when the session is not authenticated for any platform
// and ErrConnectionExpired when the active connection's token is past its expiry.
func (m *Manager) ActiveConnection(ctx context.Context, sessionID string) (*connections.Connection, error) {
	active, err := m.store.ActiveConnection(ctx, sessionID)
	if err != nil || active == nil {
		return nil, err
	}
	if active.IsExpired(m.clock.Now()) {
		return nil, errors.Wrapf(apperrors.ErrConnectionExpired, "[Manager.ActiveConnection] %s", active.ID)
	}
	return active, nil
}

// Cache returns the connection cache of a session.
func (m *Manager) Cache(sessionID string) *cache.Cache {
	return m.caches.For(sessionID)
}

func (m *Manager) Catalog() platforms.Catalog {
	return m.catalog
}

func (m *Manager) reconcile(ctx context.Context, session *connections.AppSession) {
	m.caches.For(session.ID).SessionChanged(ctx, session)
}
