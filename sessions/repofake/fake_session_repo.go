package repofake

import (
	"context"
	"errors"
	"sync"

	"github.com/rentcopilot/connection-hub/connections"
	apperrors "github.com/rentcopilot/connection-hub/internal/errors"
	"github.com/rentcopilot/connection-hub/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

// FakeSessionRepo keeps sessions in memory. Every read and write goes through a deep copy
// so callers can never alias stored state.
type FakeSessionRepo struct {
	sessions map[string]*connections.AppSession
	lock     sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[string]*connections.AppSession),
	}
}

func (sr *FakeSessionRepo) Get(_ context.Context, sessionID string) (*connections.AppSession, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	return sr.sessions[sessionID].Clone(), nil
}

func (sr *FakeSessionRepo) Update(_ context.Context, sessionID string, fn sessions.UpdateFunc) (*connections.AppSession, error) {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	next, err := fn(sr.sessions[sessionID].Clone())
	if err != nil {
		return nil, err
	}
	next.ID = sessionID
	sr.sessions[sessionID] = next.Clone()
	return next, nil
}

func (sr *FakeSessionRepo) Delete(_ context.Context, sessionID string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	delete(sr.sessions, sessionID)
	return nil
}

// Len returns the number of stored sessions.
func (sr *FakeSessionRepo) Len() int {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	return len(sr.sessions)
}

var _ sessions.Repo = (*FailingSessionRepo)(nil)

var errStorageOffline = errors.New("storage offline")

// FailingSessionRepo fails every operation with a persistence error.
type FailingSessionRepo struct {
	Err error
}

func (f FailingSessionRepo) err(op string) error {
	cause := f.Err
	if cause == nil {
		cause = errStorageOffline
	}
	return apperrors.Persistence(cause, "[FailingSessionRepo.%s]", op)
}

func (f FailingSessionRepo) Get(context.Context, string) (*connections.AppSession, error) {
	return nil, f.err("Get")
}

func (f FailingSessionRepo) Update(context.Context, string, sessions.UpdateFunc) (*connections.AppSession, error) {
	return nil, f.err("Update")
}

func (f FailingSessionRepo) Delete(context.Context, string) error {
	return f.err("Delete")
}
