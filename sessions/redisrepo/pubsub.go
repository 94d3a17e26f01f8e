package redisrepo

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rentcopilot/connection-hub/connections"
	"github.com/rentcopilot/connection-hub/sessions"
	"github.com/rs/zerolog/log"
)

const changesChannel = "hub:session-changes"

// SessionChange is the message published on every committed session change.
// It only names the session; subscribers read the state back from the repository.
type SessionChange struct {
	SessionID string `json:"sessionId"`
	Cleared   bool   `json:"cleared,omitempty"`
}

// Publisher is a sessions.Notifier that broadcasts changes to every instance.
type Publisher struct {
	rdb *redis.Client
}

var _ sessions.Notifier = (*Publisher)(nil)

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// Notify never fails the caller; a lost notification only delays cache reconciliation.
func (p *Publisher) Notify(ctx context.Context, session *connections.AppSession) {
	if session == nil {
		return
	}
	data, err := json.Marshal(SessionChange{SessionID: session.ID, Cleared: session.Empty()})
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("failed to marshal session change")
		return
	}
	if err := p.rdb.Publish(ctx, changesChannel, data).Err(); err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to publish session change")
	}
}

// Subscription is an active change feed. Call Close when done.
type Subscription struct {
	sub    *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Subscription) Close() {
	s.cancel()
	_ = s.sub.Close()
	<-s.done
}

// Subscribe delivers every published change to observer, after reloading the session from repo.
// It returns once the subscription is confirmed by the server.
func Subscribe(ctx context.Context, rdb *redis.Client, repo sessions.Repo, observer sessions.Observer) (*Subscription, error) {
	sub := rdb.Subscribe(ctx, changesChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		msgCh := sub.Channel()
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				deliver(subCtx, repo, observer, msg.Payload)
			case <-subCtx.Done():
				return
			}
		}
	}()

	return &Subscription{sub: sub, cancel: cancel, done: done}, nil
}

func deliver(ctx context.Context, repo sessions.Repo, observer sessions.Observer, payload string) {
	var change SessionChange
	if err := json.Unmarshal([]byte(payload), &change); err != nil || change.SessionID == "" {
		log.Warn().Str("payload", payload).Msg("ignoring malformed session change")
		return
	}
	session := &connections.AppSession{ID: change.SessionID, Connections: []connections.Connection{}}
	if !change.Cleared {
		current, err := repo.Get(ctx, change.SessionID)
		if err != nil {
			log.Warn().Err(err).Str("session_id", change.SessionID).Msg("failed to reload changed session")
			return
		}
		if current != nil {
			session = current
		}
	}
	observer.SessionChanged(ctx, session)
}
