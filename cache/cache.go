// Package cache keeps a local, possibly stale mirror of the connections of a session.
// It is fed one way from the authoritative session and never writes back.
package cache

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/rentcopilot/connection-hub/connections"
	"github.com/rentcopilot/connection-hub/internal/metrics"
	"github.com/rentcopilot/connection-hub/sessions"
	"github.com/rs/zerolog/log"
)

// Cache is keyed by connection id. The medium is loaded on first use.
type Cache struct {
	medium  Medium
	entries map[string]Entry // Replaced on every change, never mutated in place
	loaded  bool
	lock    sync.RWMutex
}

var _ sessions.Observer = (*Cache)(nil)

func New(medium Medium) *Cache {
	return &Cache{medium: medium}
}

// load must be called with the write lock held.
func (c *Cache) load() error {
	if c.loaded {
		return nil
	}
	entries, err := c.medium.Load()
	if err != nil {
		return err
	}
	if entries == nil {
		entries = map[string]Entry{}
	}
	c.entries = entries
	c.loaded = true
	metrics.CachedConnections.Add(float64(len(entries)))
	return nil
}

func (c *Cache) read() map[string]Entry {
	c.lock.RLock()
	if c.loaded {
		defer c.lock.RUnlock()
		return c.entries
	}
	c.lock.RUnlock()

	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.load(); err != nil {
		log.Warn().Err(err).Msg("connection cache unreadable, treating as empty")
		return nil
	}
	return c.entries
}

// Reconcile mirrors the active connection of the authoritative session. It only ever adds
// or refreshes entries, and repeating it with the same session changes nothing.
func (c *Cache) Reconcile(_ context.Context, session *connections.AppSession) error {
	active := session.ActiveConnection()
	if active == nil {
		metrics.ReconciliationsTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.load(); err != nil {
		metrics.ReconciliationsTotal.WithLabelValues("error").Inc()
		return err
	}

	existing, ok := c.entries[active.ID]
	if ok && !existing.supersededBy(*active) {
		metrics.ReconciliationsTotal.WithLabelValues("unchanged").Inc()
		return nil
	}

	next := maps.Clone(c.entries)
	next[active.ID] = NewEntry(*active, session.User)
	if err := c.medium.Save(next); err != nil {
		metrics.ReconciliationsTotal.WithLabelValues("error").Inc()
		return err
	}
	c.entries = next
	if !ok {
		metrics.CachedConnections.Inc()
	}
	metrics.ReconciliationsTotal.WithLabelValues("updated").Inc()
	log.Debug().Object("entry", next[active.ID]).Bool("replaced", ok).Msg("connection cache reconciled")
	return nil
}

// SessionChanged reconciles on every authoritative change.
func (c *Cache) SessionChanged(ctx context.Context, session *connections.AppSession) {
	if err := c.Reconcile(ctx, session); err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("connection cache reconciliation failed")
	}
}

func (c *Cache) IsConnectedTo(connectionID string) bool {
	_, ok := c.read()[connectionID]
	return ok
}

func (c *Cache) Get(connectionID string) (Entry, bool) {
	e, ok := c.read()[connectionID]
	return e, ok
}

// ListConnectedPlatformIDs returns the cached connection ids, sorted.
func (c *Cache) ListConnectedPlatformIDs() []string {
	ids := slices.AppendSeq(make([]string, 0), maps.Keys(c.read()))
	slices.Sort(ids)
	return ids
}

// Clear empties the cache and its medium. The in-memory state is emptied even when the
// medium fails.
func (c *Cache) Clear() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	metrics.CachedConnections.Sub(float64(len(c.entries)))
	c.entries = map[string]Entry{}
	c.loaded = true
	return c.medium.Clear()
}

// release forgets the loaded entries once the cache leaves the registry.
func (c *Cache) release() {
	c.lock.Lock()
	defer c.lock.Unlock()
	metrics.CachedConnections.Sub(float64(len(c.entries)))
	c.entries = nil
	c.loaded = false
}
