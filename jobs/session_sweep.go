package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/fraudlens/fraudlens/internal/jobs"
)

// Sweeper removes index entries that point at session records Redis has
// already expired. Records carry a TTL, the per-user index sets do not,
// so a crashed process can leave the index referencing dead ids.
type Sweeper struct {
	client  *redis.Client
	logger  *slog.Logger
	metrics *jobmetrics.Metrics

	// concurrency bounds the per-user fan-out.
	concurrency int
}

// NewSweeper constructs a Sweeper.
func NewSweeper(client *redis.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{client: client, logger: logger, metrics: metrics, concurrency: 8}
}

// Handler adapts the sweep to an Asynq task handler.
func (s *Sweeper) Handler() asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		tracker := s.metrics.Track("session_sweep")
		_, err := s.Sweep(ctx)
		return tracker.End(err)
	}
}

// Sweep walks every user index set and removes members whose session
// record no longer exists. It returns the number of pruned entries.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	var pruned atomic.Int64

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)

	iter := s.client.Scan(ctx, 0, "user:*:sessions", 100).Iterator()
	for iter.Next(ctx) {
		indexKey := iter.Val()
		group.Go(func() error {
			n, err := s.sweepIndex(ctx, indexKey)
			pruned.Add(int64(n))
			return err
		})
	}
	if err := iter.Err(); err != nil {
		_ = group.Wait()
		return int(pruned.Load()), err
	}
	if err := group.Wait(); err != nil {
		return int(pruned.Load()), err
	}

	total := int(pruned.Load())
	if total > 0 {
		s.logger.Info("session sweep pruned stale index entries", slog.Int("count", total))
	}
	s.metrics.AddPruned(total)
	return total, nil
}

func (s *Sweeper) sweepIndex(ctx context.Context, indexKey string) (int, error) {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		exists, err := s.client.Exists(ctx, "session:"+id).Result()
		if err != nil {
			return removed, err
		}
		if exists == 0 {
			if err := s.client.SRem(ctx, indexKey, id).Err(); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
