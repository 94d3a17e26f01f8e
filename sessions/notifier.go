package sessions

import (
	"context"
	"sync"

	"github.com/rentcopilot/connection-hub/connections"
)

// Observer is told about every committed change to a session. A cleared session is
// delivered as an empty session carrying only its id.
type Observer interface {
	SessionChanged(ctx context.Context, session *connections.AppSession)
}

// Notifier publishes session changes.
type Notifier interface {
	Notify(ctx context.Context, session *connections.AppSession)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(ctx context.Context, session *connections.AppSession)

func (f ObserverFunc) SessionChanged(ctx context.Context, session *connections.AppSession) {
	f(ctx, session)
}

// Broadcaster fans changes out to in-process observers, synchronously and in subscription order.
type Broadcaster struct {
	observers []Observer
	lock      sync.RWMutex
}

var _ Notifier = (*Broadcaster)(nil)

func NewBroadcaster(observers ...Observer) *Broadcaster {
	return &Broadcaster{observers: observers}
}

func (b *Broadcaster) Subscribe(o Observer) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.observers = append(b.observers, o)
}

func (b *Broadcaster) Notify(ctx context.Context, session *connections.AppSession) {
	b.lock.RLock()
	observers := append([]Observer(nil), b.observers...)
	b.lock.RUnlock()

	for _, o := range observers {
		o.SessionChanged(ctx, session.Clone())
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, *connections.AppSession) {}
