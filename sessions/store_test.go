package sessions_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rentcopilot/connection-hub/connections"
	apperrors "github.com/rentcopilot/connection-hub/internal/errors"
	"github.com/rentcopilot/connection-hub/platforms"
	"github.com/rentcopilot/connection-hub/providers"
	"github.com/rentcopilot/connection-hub/sessions"
	"github.com/rentcopilot/connection-hub/sessions/repofake"
	"github.com/stretchr/testify/require"
)

const sessionID = "session-1"

type testFixture struct {
	ctx      context.Context
	clock    *clockwork.FakeClock
	repo     *repofake.FakeSessionRepo
	store    *sessions.Store
	observed []*connections.AppSession
	lock     sync.Mutex
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		ctx:   context.Background(),
		clock: clockwork.NewFakeClockAt(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)),
		repo:  repofake.NewFakeSessionRepo(),
	}
	observer := sessions.ObserverFunc(func(_ context.Context, s *connections.AppSession) {
		f.lock.Lock()
		defer f.lock.Unlock()
		f.observed = append(f.observed, s)
	})
	f.store = sessions.NewStore(f.repo,
		sessions.WithClock(f.clock),
		sessions.WithNotifier(sessions.NewBroadcaster(observer)),
	)
	return f
}

func (f *testFixture) result(platform platforms.Platform, env, token string) *providers.Result {
	return &providers.Result{
		Connection: connections.New(platform.Descriptor, env, "agent", token, f.clock.Now()),
		User:       connections.User{ID: "u-" + platform.Slug, Login: "agent", DisplayName: "Agent " + platform.Name},
	}
}

func (f *testFixture) login(t *testing.T, platform platforms.Platform, env, token string) *connections.AppSession {
	t.Helper()
	s, err := f.store.Login(f.ctx, sessionID, f.result(platform, env, token))
	require.NoError(t, err)
	return s
}

func ids(s *connections.AppSession) []string {
	out := make([]string, 0, len(s.Connections))
	for _, c := range s.Connections {
		out = append(out, c.ID)
	}
	return out
}

func TestStore_Scenario(t *testing.T) {
	f := setupTestFixture(t)

	s := f.login(t, platforms.Wipimo, "prod", "w1")
	require.Equal(t, []string{"wipimo-prod"}, ids(s))
	require.Equal(t, "wipimo-prod", s.ActiveConnectionID)
	require.Equal(t, f.clock.Now(), s.CreatedAt)

	s = f.login(t, platforms.X14, "prod", "x1")
	require.Equal(t, []string{"wipimo-prod", "x14-prod"}, ids(s))
	require.Equal(t, "x14-prod", s.ActiveConnectionID)
	require.Equal(t, "Agent X14", s.User.DisplayName, "last login wins for identity")

	s, err := f.store.SwitchActive(f.ctx, sessionID, "wipimo-prod")
	require.NoError(t, err)
	require.Equal(t, "wipimo-prod", s.ActiveConnectionID)
	require.Len(t, s.Connections, 2)

	f.clock.Advance(time.Minute)
	s = f.login(t, platforms.Wipimo, "prod", "w2")
	require.Equal(t, []string{"x14-prod", "wipimo-prod"}, ids(s))
	require.Equal(t, "w2", s.Connections[1].Token)
	require.Equal(t, "wipimo-prod", s.ActiveConnectionID)

	active, err := f.store.ActiveConnection(f.ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, "w2", active.Token)
}

func TestStore_GetAbsentSessionIsEmpty(t *testing.T) {
	f := setupTestFixture(t)

	s, err := f.store.Get(f.ctx, "nobody")
	require.NoError(t, err)
	require.True(t, s.Empty())
	require.Equal(t, "nobody", s.ID)

	active, err := f.store.ActiveConnection(f.ctx, "nobody")
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestStore_SwitchUnknownIsNoOp(t *testing.T) {
	f := setupTestFixture(t)
	before := f.login(t, platforms.Wipimo, "prod", "w1")
	notifications := len(f.observed)

	_, err := f.store.SwitchActive(f.ctx, sessionID, "nonexistent")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	after, err := f.store.Get(f.ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Len(t, f.observed, notifications, "failed switch must not notify")
}

func TestStore_SwitchWithoutSession(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.store.SwitchActive(f.ctx, sessionID, "wipimo-prod")
	require.ErrorIs(t, err, apperrors.ErrSessionAbsent)
	require.Zero(t, f.repo.Len())
}

func TestStore_RemoveConnection(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, platforms.X14, "prod", "x1")
	f.login(t, platforms.Wipimo, "prod", "w1")
	_, err := f.store.SwitchActive(f.ctx, sessionID, "x14-prod")
	require.NoError(t, err)

	s, err := f.store.RemoveConnection(f.ctx, sessionID, "x14-prod")
	require.NoError(t, err)
	require.Equal(t, "wipimo-prod", s.ActiveConnectionID, "first remaining connection becomes active")

	s, err = f.store.RemoveConnection(f.ctx, sessionID, "wipimo-prod")
	require.NoError(t, err)
	require.Empty(t, s.Connections)
	require.Empty(t, s.ActiveConnectionID)
	require.NotNil(t, s.User, "identity survives the last removal")

	_, err = f.store.RemoveConnection(f.ctx, sessionID, "wipimo-prod")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.store.RemoveConnection(f.ctx, "nobody", "wipimo-prod")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, platforms.Wipimo, "prod", "w1")

	require.NoError(t, f.store.Clear(f.ctx, sessionID))
	first, err := f.store.Get(f.ctx, sessionID)
	require.NoError(t, err)

	require.NoError(t, f.store.Clear(f.ctx, sessionID))
	second, err := f.store.Get(f.ctx, sessionID)
	require.NoError(t, err)

	require.True(t, first.Empty())
	require.Equal(t, first, second)

	last := f.observed[len(f.observed)-1]
	require.True(t, last.Empty())
	require.Equal(t, sessionID, last.ID)
}

func TestStore_LoginRejectsMalformedConnection(t *testing.T) {
	f := setupTestFixture(t)
	result := f.result(platforms.Wipimo, "prod", "")

	_, err := f.store.Login(f.ctx, sessionID, result)
	require.ErrorIs(t, err, apperrors.ErrUpstreamContractViolation)
	require.Zero(t, f.repo.Len())
}

func TestStore_ConcurrentLoginsToDifferentPlatformsAreKept(t *testing.T) {
	f := setupTestFixture(t)
	envs := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	var wg sync.WaitGroup
	errs := make(chan error, len(envs))
	for _, env := range envs {
		wg.Add(1)
		go func(env string) {
			defer wg.Done()
			_, err := f.store.Login(f.ctx, sessionID, f.result(platforms.X14, env, "t-"+env))
			errs <- err
		}(env)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	s, err := f.store.Get(f.ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, s.Connections, len(envs))
	_, ok := s.Find(s.ActiveConnectionID)
	require.True(t, ok)
}

func TestStore_PersistenceFailure(t *testing.T) {
	store := sessions.NewStore(repofake.FailingSessionRepo{})
	result := &providers.Result{
		Connection: connections.New(platforms.X14.Descriptor, "prod", "agent", "x1", time.Now()),
	}

	_, err := store.Login(context.Background(), sessionID, result)
	require.ErrorIs(t, err, apperrors.ErrPersistence)
	require.ErrorIs(t, store.Clear(context.Background(), sessionID), apperrors.ErrPersistence)
}

func TestStore_ReturnedSessionDoesNotAliasStorage(t *testing.T) {
	f := setupTestFixture(t)
	s := f.login(t, platforms.Wipimo, "prod", "w1")
	s.Connections[0].Token = "mutated"
	s.ActiveConnectionID = "bogus"

	stored, err := f.store.Get(f.ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, "w1", stored.Connections[0].Token)
	require.Equal(t, "wipimo-prod", stored.ActiveConnectionID)
}
