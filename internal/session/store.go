package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// Store is the persistence boundary for session records. Implementations
// must be atomic per session id and must never return a record whose
// absolute expiry has passed.
type Store interface {
	Put(ctx context.Context, sess *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	GetByUser(ctx context.Context, userID string) ([]*Session, error)
	Remove(ctx context.Context, id string) error
	RemoveAll(ctx context.Context, userID string) error
}

// StoreConfig tunes the Redis adapter.
type StoreConfig struct {
	// Timeout bounds every Redis round trip. Exceeding it is reported as
	// ErrStoreUnavailable, never as "session invalid".
	Timeout time.Duration
	// Attempts is the total number of tries per operation.
	Attempts int
	// Backoff is the sleep before the second attempt, doubling after.
	Backoff time.Duration
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 50 * time.Millisecond
	}
	return c
}

// RedisStore keeps session records in Redis: the record itself under
// session:<id> with a TTL capped at the absolute expiry, and a per-user
// index set under user:<uid>:sessions for conflict detection.
type RedisStore struct {
	client  *redis.Client
	cfg     StoreConfig
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client, cfg StoreConfig) *RedisStore {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "session-store",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A cache miss is a successful round trip.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
	})
	return &RedisStore{
		client:  client,
		cfg:     cfg.withDefaults(),
		breaker: breaker,
		now:     time.Now,
	}
}

func sessionKey(id string) string {
	return "session:" + id
}

func userSessionsKey(userID string) string {
	return "user:" + userID + ":sessions"
}

// Put writes the record and refreshes the owner index atomically.
func (s *RedisStore) Put(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: marshal record: %w", err)
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		// Writing an already-expired record is equivalent to removing it.
		return s.Remove(ctx, sess.ID)
	}
	return s.do(ctx, func(ctx context.Context) error {
		pipe := s.client.TxPipeline()
		pipe.Set(ctx, sessionKey(sess.ID), data, ttl)
		pipe.SAdd(ctx, userSessionsKey(sess.UserID()), sess.ID)
		// The index must outlive its longest-lived member, so its TTL
		// only ever moves forward. A shorter-lived sibling must not
		// shrink it.
		pipe.ExpireNX(ctx, userSessionsKey(sess.UserID()), ttl)
		pipe.ExpireGT(ctx, userSessionsKey(sess.UserID()), ttl)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// Get fetches a record by id. Records past their absolute expiry are
// treated as absent.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	var payload []byte
	err := s.do(ctx, func(ctx context.Context) error {
		data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
		if err != nil {
			return err
		}
		payload = data
		return nil
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("session: unmarshal record %s: %w", id, err)
	}
	if !sess.ExpiresAt.After(s.now()) {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

// GetByUser lists the user's live sessions, pruning stale index members.
func (s *RedisStore) GetByUser(ctx context.Context, userID string) ([]*Session, error) {
	var ids []string
	err := s.do(ctx, func(ctx context.Context) error {
		members, err := s.client.SMembers(ctx, userSessionsKey(userID)).Result()
		if err != nil {
			return err
		}
		ids = members
		return nil
	})
	if err != nil {
		return nil, err
	}
	sessions := make([]*Session, 0, len(ids))
	var stale []interface{}
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				stale = append(stale, id)
				continue
			}
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if len(stale) > 0 {
		_ = s.do(ctx, func(ctx context.Context) error {
			return s.client.SRem(ctx, userSessionsKey(userID), stale...).Err()
		})
	}
	return sessions, nil
}

// Remove deletes a single record and its index entry. Removing an absent
// session is a no-op.
func (s *RedisStore) Remove(ctx context.Context, id string) error {
	var owner string
	err := s.do(ctx, func(ctx context.Context) error {
		data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return err
		}
		var sess Session
		if jsonErr := json.Unmarshal(data, &sess); jsonErr == nil {
			owner = sess.UserID()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.do(ctx, func(ctx context.Context) error {
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, sessionKey(id))
		if owner != "" {
			pipe.SRem(ctx, userSessionsKey(owner), id)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
}

// RemoveAll deletes every session owned by the user.
func (s *RedisStore) RemoveAll(ctx context.Context, userID string) error {
	var ids []string
	err := s.do(ctx, func(ctx context.Context) error {
		members, err := s.client.SMembers(ctx, userSessionsKey(userID)).Result()
		if err != nil {
			return err
		}
		ids = members
		return nil
	})
	if err != nil {
		return err
	}
	return s.do(ctx, func(ctx context.Context) error {
		pipe := s.client.TxPipeline()
		for _, id := range ids {
			pipe.Del(ctx, sessionKey(id))
		}
		pipe.Del(ctx, userSessionsKey(userID))
		_, err := pipe.Exec(ctx)
		return err
	})
}

// do runs op through the circuit breaker with a bounded timeout and a
// bounded retry. redis.Nil is a successful miss, not a failure.
func (s *RedisStore) do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		var lastErr error
		backoff := s.cfg.Backoff
		for attempt := 0; attempt < s.cfg.Attempts; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
			}
			opCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
			err := op(opCtx)
			cancel()
			if err == nil || errors.Is(err, redis.Nil) {
				return nil, err
			}
			lastErr = err
		}
		return nil, lastErr
	})
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

var _ Store = (*RedisStore)(nil)
