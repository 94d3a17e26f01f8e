package redisrepo_test

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rentcopilot/connection-hub/connections"
	"github.com/rentcopilot/connection-hub/internal/crypto"
	apperrors "github.com/rentcopilot/connection-hub/internal/errors"
	"github.com/rentcopilot/connection-hub/platforms"
	"github.com/rentcopilot/connection-hub/providers"
	"github.com/rentcopilot/connection-hub/sessions"
	"github.com/rentcopilot/connection-hub/sessions/redisrepo"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

var testRedisURL string

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		// No Docker: the integration tests skip themselves.
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(m.Run())
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get redis endpoint: %v\n", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}
	testRedisURL = "redis://" + endpoint

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func setupTestClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() || testRedisURL == "" {
		t.Skip("skipping redis integration test")
	}
	ctx := context.Background()
	rdb, err := redisrepo.Connect(ctx, testRedisURL)
	require.NoError(t, err)
	require.NoError(t, rdb.FlushAll(ctx).Err())
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func newStore(t *testing.T, rdb *redis.Client, options ...sessions.Option) (*sessions.Store, *redisrepo.Repo) {
	t.Helper()
	sealer, err := crypto.NewSealService(testKey)
	require.NoError(t, err)
	repo := redisrepo.New(rdb, redisrepo.WithCrypto(sealer), redisrepo.WithTTL(time.Hour))
	return sessions.NewStore(repo, options...), repo
}

func loginResult(platform platforms.Platform, env, token string) *providers.Result {
	return &providers.Result{
		Connection: connections.New(platform.Descriptor, env, "agent", token, time.Now().UTC().Truncate(time.Second)),
		User:       connections.User{ID: "u-1", Login: "agent"},
	}
}

func TestRepo_LoginAndGet(t *testing.T) {
	rdb := setupTestClient(t)
	store, _ := newStore(t, rdb)
	ctx := context.Background()

	_, err := store.Login(ctx, "s1", loginResult(platforms.Wipimo, "prod", "secret-token"))
	require.NoError(t, err)
	_, err = store.Login(ctx, "s1", loginResult(platforms.X14, "prod", "x14-token"))
	require.NoError(t, err)

	s, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, s.Connections, 2)
	require.Equal(t, "x14-prod", s.ActiveConnectionID)
	require.Equal(t, "secret-token", s.Connections[0].Token)

	raw, err := rdb.Get(ctx, "hub:session:s1").Result()
	require.NoError(t, err)
	require.NotContains(t, raw, "secret-token", "tokens are sealed at rest")

	ttl, err := rdb.TTL(ctx, "hub:session:s1").Result()
	require.NoError(t, err)
	require.Greater(t, ttl, 50*time.Minute)
}

func TestRepo_SwitchRemoveClear(t *testing.T) {
	rdb := setupTestClient(t)
	store, _ := newStore(t, rdb)
	ctx := context.Background()

	_, err := store.SwitchActive(ctx, "s1", "wipimo-prod")
	require.ErrorIs(t, err, apperrors.ErrSessionAbsent)

	_, err = store.Login(ctx, "s1", loginResult(platforms.Wipimo, "prod", "w"))
	require.NoError(t, err)
	_, err = store.Login(ctx, "s1", loginResult(platforms.X14, "prod", "x"))
	require.NoError(t, err)

	_, err = store.SwitchActive(ctx, "s1", "nonexistent")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	s, err := store.RemoveConnection(ctx, "s1", "x14-prod")
	require.NoError(t, err)
	require.Equal(t, "wipimo-prod", s.ActiveConnectionID)

	require.NoError(t, store.Clear(ctx, "s1"))
	require.NoError(t, store.Clear(ctx, "s1"))
	s, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, s.Empty())
}

func TestRepo_ConcurrentLoginsAreNotLost(t *testing.T) {
	rdb := setupTestClient(t)
	store, _ := newStore(t, rdb)
	ctx := context.Background()
	envs := []string{"a", "b", "c", "d", "e", "f"}

	var wg sync.WaitGroup
	errs := make(chan error, len(envs))
	for _, env := range envs {
		wg.Add(1)
		go func(env string) {
			defer wg.Done()
			_, err := store.Login(ctx, "s1", loginResult(platforms.X14, env, "t-"+env))
			errs <- err
		}(env)
	}
	wg.Wait()
	close(errs)

	// Under heavy contention an update may give up; those are reported, never silently lost.
	committed := 0
	for err := range errs {
		if err == nil {
			committed++
			continue
		}
		require.ErrorIs(t, err, apperrors.ErrPersistence)
	}
	s, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, s.Connections, committed)
}

func TestRepo_WrongKeyIsPersistenceFailure(t *testing.T) {
	rdb := setupTestClient(t)
	store, _ := newStore(t, rdb)
	ctx := context.Background()
	_, err := store.Login(ctx, "s1", loginResult(platforms.Wipimo, "prod", "w"))
	require.NoError(t, err)

	other, err := crypto.NewSealService("f123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	_, err = redisrepo.New(rdb, redisrepo.WithCrypto(other)).Get(ctx, "s1")
	require.ErrorIs(t, err, apperrors.ErrPersistence)
}

func TestPubSub_DeliversChanges(t *testing.T) {
	rdb := setupTestClient(t)
	ctx := context.Background()
	store, repo := newStore(t, rdb, sessions.WithNotifier(redisrepo.NewPublisher(rdb)))

	received := make(chan *connections.AppSession, 4)
	sub, err := redisrepo.Subscribe(ctx, rdb, repo, sessions.ObserverFunc(func(_ context.Context, s *connections.AppSession) {
		received <- s
	}))
	require.NoError(t, err)
	defer sub.Close()

	_, err = store.Login(ctx, "s1", loginResult(platforms.Wipimo, "prod", "w"))
	require.NoError(t, err)

	select {
	case s := <-received:
		require.Equal(t, "s1", s.ID)
		require.Equal(t, "wipimo-prod", s.ActiveConnectionID)
		require.Equal(t, "w", s.Connections[0].Token)
	case <-time.After(5 * time.Second):
		t.Fatal("no session change delivered")
	}

	require.NoError(t, store.Clear(ctx, "s1"))
	select {
	case s := <-received:
		require.Equal(t, "s1", s.ID)
		require.True(t, s.Empty())
	case <-time.After(5 * time.Second):
		t.Fatal("no clear delivered")
	}
}
