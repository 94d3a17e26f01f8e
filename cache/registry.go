package cache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rentcopilot/connection-hub/connections"
	"github.com/rentcopilot/connection-hub/sessions"
	"github.com/rs/zerolog/log"
)

// DefaultMaxSessions bounds how many session caches are kept in memory.
const DefaultMaxSessions = 10_000

// Registry holds one Cache per logical session and routes change notifications to it.
// The least recently used caches are dropped from memory past the bound; their medium
// is left as is, so a file backed cache is reloaded on next use.
type Registry struct {
	newMedium func(sessionID string) Medium
	caches    *lru.Cache[string, *Cache]
	lock      sync.Mutex
}

var _ sessions.Observer = (*Registry)(nil)

type RegistryOption func(*registryOptions)

type registryOptions struct {
	maxSessions int
}

func WithMaxSessions(n int) RegistryOption {
	return func(o *registryOptions) { o.maxSessions = n }
}

func NewRegistry(newMedium func(sessionID string) Medium, options ...RegistryOption) *Registry {
	opts := registryOptions{maxSessions: DefaultMaxSessions}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.maxSessions < 1 {
		opts.maxSessions = DefaultMaxSessions
	}
	// NewWithEvict only fails on a non-positive size
	caches, _ := lru.NewWithEvict(opts.maxSessions, func(_ string, c *Cache) {
		c.release()
	})
	return &Registry{
		newMedium: newMedium,
		caches:    caches,
	}
}

// NewMemoryRegistry backs every session cache with memory only. An evicted cache is lost.
func NewMemoryRegistry(options ...RegistryOption) *Registry {
	return NewRegistry(func(string) Medium { return NewMemoryMedium() }, options...)
}

// For returns the cache of a session, creating it on first use.
func (r *Registry) For(sessionID string) *Cache {
	r.lock.Lock()
	defer r.lock.Unlock()
	c, ok := r.caches.Get(sessionID)
	if !ok {
		c = New(r.newMedium(sessionID))
		r.caches.Add(sessionID, c)
	}
	return c
}

// Forget drops the in-memory handle of a session cache. The medium is left as is.
func (r *Registry) Forget(sessionID string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.caches.Remove(sessionID)
}

// Len is the number of session caches held in memory.
func (r *Registry) Len() int {
	return r.caches.Len()
}

func (r *Registry) SessionChanged(ctx context.Context, session *connections.AppSession) {
	if session == nil || session.ID == "" {
		return
	}
	if session.Empty() {
		r.cleared(session.ID)
		return
	}
	r.For(session.ID).SessionChanged(ctx, session)
}

// cleared empties the cache of a logged out session without taking a registry slot for it.
// A cache that is not held in memory is cleared through a fresh handle on its medium.
func (r *Registry) cleared(sessionID string) {
	r.lock.Lock()
	c, ok := r.caches.Peek(sessionID)
	r.lock.Unlock()

	var err error
	if ok {
		err = c.Clear()
		r.Forget(sessionID)
	} else {
		err = r.newMedium(sessionID).Clear()
	}
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to clear connection cache of a cleared session")
	}
}
