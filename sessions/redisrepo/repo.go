// Package redisrepo persists AppSessions in Redis and propagates session changes across
// processes with Redis Pub/Sub.
package redisrepo

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rentcopilot/connection-hub/connections"
	"github.com/rentcopilot/connection-hub/internal/crypto"
	apperrors "github.com/rentcopilot/connection-hub/internal/errors"
	"github.com/rentcopilot/connection-hub/sessions"
	"github.com/rs/zerolog/log"
)

// Key schema:
//   hub:session:{sessionID}  string, JSON AppSession with sealed tokens, expires after the session TTL

const (
	keyPrefix      = "hub:session:"
	maxTxRetries   = 5
	defaultTTL     = 7 * 24 * time.Hour
	sealedTokenTag = "sealed:"
)

func sessionKey(sessionID string) string {
	return keyPrefix + sessionID
}

// Connect parses a redis URL (e.g. "redis://localhost:6379/0") and verifies the server answers.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "[redisrepo.Connect] parse redis URL")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "[redisrepo.Connect] ping")
	}
	return rdb, nil
}

type Repo struct {
	rdb    *redis.Client
	ttl    time.Duration
	crypto crypto.Service
}

var _ sessions.Repo = (*Repo)(nil)

type Option func(*Repo)

// WithTTL sets how long an untouched session survives. Every update refreshes it.
func WithTTL(ttl time.Duration) Option {
	return func(r *Repo) { r.ttl = ttl }
}

// WithCrypto seals tokens before they are written.
func WithCrypto(c crypto.Service) Option {
	return func(r *Repo) { r.crypto = c }
}

func New(rdb *redis.Client, options ...Option) *Repo {
	r := &Repo{
		rdb:    rdb,
		ttl:    defaultTTL,
		crypto: crypto.NoopService{},
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *Repo) Get(ctx context.Context, sessionID string) (*connections.AppSession, error) {
	data, err := r.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Persistence(err, "[Repo.Get] %s", sessionID)
	}
	return r.decode(data)
}

func (r *Repo) Update(ctx context.Context, sessionID string, fn sessions.UpdateFunc) (*connections.AppSession, error) {
	key := sessionKey(sessionID)
	var (
		next  *connections.AppSession
		fnErr error
	)

	txf := func(tx *redis.Tx) error {
		var current *connections.AppSession
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case stderrors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if current, err = r.decode(data); err != nil {
				return err
			}
		}

		next, fnErr = fn(current)
		if fnErr != nil {
			return fnErr
		}
		next.ID = sessionID
		encoded, err := r.encode(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, r.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := r.rdb.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return next, nil
		case fnErr != nil:
			return nil, fnErr
		case stderrors.Is(err, redis.TxFailedErr):
			log.Debug().Str("session_id", sessionID).Int("attempt", attempt+1).Msg("session update raced, retrying")
			continue
		case apperrors.Is(err, apperrors.ErrPersistence):
			return nil, err
		default:
			return nil, apperrors.Persistence(err, "[Repo.Update] %s", sessionID)
		}
	}
	return nil, apperrors.Persistence(redis.TxFailedErr, "[Repo.Update] %s: too much contention", sessionID)
}

func (r *Repo) Delete(ctx context.Context, sessionID string) error {
	if err := r.rdb.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return apperrors.Persistence(err, "[Repo.Delete] %s", sessionID)
	}
	return nil
}

func (r *Repo) encode(s *connections.AppSession) ([]byte, error) {
	sealed := s.Clone()
	for i := range sealed.Connections {
		token, err := r.crypto.Encrypt(sealed.Connections[i].Token)
		if err != nil {
			return nil, apperrors.Persistence(err, "[Repo.encode] seal token for %s", sealed.Connections[i].ID)
		}
		sealed.Connections[i].Token = sealedTokenTag + token
	}
	data, err := json.Marshal(sealed)
	if err != nil {
		return nil, apperrors.Persistence(err, "[Repo.encode] marshal session")
	}
	return data, nil
}

func (r *Repo) decode(data []byte) (*connections.AppSession, error) {
	var s connections.AppSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, apperrors.Persistence(err, "[Repo.decode] unmarshal session")
	}
	for i := range s.Connections {
		token := s.Connections[i].Token
		if !strings.HasPrefix(token, sealedTokenTag) {
			return nil, apperrors.Persistence(errors.New("token is not sealed"), "[Repo.decode] %s", s.Connections[i].ID)
		}
		plain, err := r.crypto.Decrypt(strings.TrimPrefix(token, sealedTokenTag))
		if err != nil {
			return nil, apperrors.Persistence(err, "[Repo.decode] open token for %s", s.Connections[i].ID)
		}
		s.Connections[i].Token = plain
	}
	if s.Connections == nil {
		s.Connections = []connections.Connection{}
	}
	return &s, nil
}
