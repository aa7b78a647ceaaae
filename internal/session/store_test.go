package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/fraudlens/fraudlens/internal/authz"
	"github.com/fraudlens/fraudlens/internal/session"
)

func newTestStore(t *testing.T) (*session.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := session.NewRedisStore(client, session.StoreConfig{
		Timeout:  time.Second,
		Attempts: 2,
		Backoff:  5 * time.Millisecond,
	})
	return store, mr
}

func testSession(id, userID string, ttl time.Duration) *session.Session {
	now := time.Now()
	return &session.Session{
		ID:             id,
		Principal:      authz.Principal{ID: userID, Role: authz.RoleCitizen},
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(ttl),
		State:          session.StateActive,
	}
}

func TestStorePutGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := testSession("s-1", "u-1", time.Hour)
	sess.Principal.TemporaryGrants = []authz.TemporaryGrant{
		{Permissions: []string{"reports:view:all"}, ExpiresAt: time.Now().Add(time.Hour), GrantedBy: "admin-1", Reason: "escalation"},
	}
	require.NoError(t, store.Put(ctx, sess))

	got, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, "s-1", got.ID)
	require.Equal(t, "u-1", got.UserID())
	require.Equal(t, session.StateActive, got.State)
	require.Len(t, got.Principal.TemporaryGrants, 1)
}

func TestStoreGetAbsent(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestStoreNeverReturnsExpired(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := testSession("s-exp", "u-1", 30*time.Millisecond)
	require.NoError(t, store.Put(ctx, sess))
	time.Sleep(50 * time.Millisecond)

	_, err := store.Get(ctx, "s-exp")
	require.ErrorIs(t, err, session.ErrSessionNotFound)

	list, err := store.GetByUser(ctx, "u-1")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestStoreGetByUserListsLiveSessions(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testSession("s-a", "u-2", time.Hour)))
	require.NoError(t, store.Put(ctx, testSession("s-b", "u-2", time.Hour)))
	require.NoError(t, store.Put(ctx, testSession("s-c", "other", time.Hour)))

	list, err := store.GetByUser(ctx, "u-2")
	require.NoError(t, err)
	require.Len(t, list, 2)
	ids := []string{list[0].ID, list[1].ID}
	require.ElementsMatch(t, []string{"s-a", "s-b"}, ids)
}

func TestStoreIndexKeepsLongestMemberTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testSession("s-long", "u-6", time.Hour)))
	require.NoError(t, store.Put(ctx, testSession("s-short", "u-6", time.Minute)))

	// The short-lived write must not pull the index TTL under its
	// longer-lived sibling.
	require.Greater(t, mr.TTL("user:u-6:sessions"), 30*time.Minute)

	list, err := store.GetByUser(ctx, "u-6")
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestStoreRemove(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testSession("s-rm", "u-3", time.Hour)))
	require.NoError(t, store.Remove(ctx, "s-rm"))

	_, err := store.Get(ctx, "s-rm")
	require.ErrorIs(t, err, session.ErrSessionNotFound)

	list, err := store.GetByUser(ctx, "u-3")
	require.NoError(t, err)
	require.Empty(t, list)

	// Removing an absent session is a no-op.
	require.NoError(t, store.Remove(ctx, "s-rm"))
}

func TestStoreRemoveAll(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testSession("s-x", "u-4", time.Hour)))
	require.NoError(t, store.Put(ctx, testSession("s-y", "u-4", time.Hour)))
	require.NoError(t, store.RemoveAll(ctx, "u-4"))

	list, err := store.GetByUser(ctx, "u-4")
	require.NoError(t, err)
	require.Empty(t, list)
	_, err = store.Get(ctx, "s-x")
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestStoreUnavailableWrapsIOFailure(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testSession("s-io", "u-5", time.Hour)))
	mr.Close()

	_, err := store.Get(ctx, "s-io")
	require.ErrorIs(t, err, session.ErrStoreUnavailable)

	err = store.Put(ctx, testSession("s-io2", "u-5", time.Hour))
	require.ErrorIs(t, err, session.ErrStoreUnavailable)
}
