package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/fraudlens/fraudlens/jobs"
	_ "github.com/fraudlens/fraudlens/testing"
)

func newSweepFixture(t *testing.T) (*miniredis.Miniredis, *redis.Client, *jobs.Sweeper) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client, jobs.NewSweeper(client, nil, nil)
}

func TestSweepRemovesOrphanedIndexEntries(t *testing.T) {
	mr, client, sweeper := newSweepFixture(t)
	ctx := context.Background()

	// Live session: record present, indexed.
	require.NoError(t, client.Set(ctx, "session:live", `{}`, time.Hour).Err())
	require.NoError(t, client.SAdd(ctx, "user:7:sessions", "live", "orphan-a", "orphan-b").Err())
	require.NoError(t, client.SAdd(ctx, "user:8:sessions", "orphan-c").Err())

	pruned, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, pruned)

	members, err := client.SMembers(ctx, "user:7:sessions").Result()
	require.NoError(t, err)
	require.Equal(t, []string{"live"}, members)
	require.False(t, mr.Exists("user:8:sessions"))
}

func TestSweepNoopOnCleanIndex(t *testing.T) {
	_, client, sweeper := newSweepFixture(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "session:s1", `{}`, time.Hour).Err())
	require.NoError(t, client.SAdd(ctx, "user:1:sessions", "s1").Err())

	pruned, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, pruned)
}

func TestSweepSurfacesStoreErrors(t *testing.T) {
	mr, _, sweeper := newSweepFixture(t)
	ctx := context.Background()
	mr.Close()

	_, err := sweeper.Sweep(ctx)
	require.Error(t, err)
}
