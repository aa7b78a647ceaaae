// Package audit records security-relevant engine events.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event is one security-relevant occurrence.
type Event struct {
	Actor     string
	Action    string
	SessionID string
	Meta      map[string]any
	At        time.Time
}

// Sink persists events. Engine callers treat recording as fire-and-forget:
// a sink must never block the caller on failure.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// PGSink writes events into the audit_logs table.
type PGSink struct {
	pool *pgxpool.Pool
}

// NewPGSink returns a postgres-backed sink.
func NewPGSink(pool *pgxpool.Pool) *PGSink {
	return &PGSink{pool: pool}
}

// Record persists the event.
func (s *PGSink) Record(ctx context.Context, event Event) error {
	if s == nil || s.pool == nil {
		return errors.New("audit: sink not initialised")
	}
	if event.Action == "" {
		return errors.New("audit: event requires an action")
	}
	metaJSON, err := json.Marshal(event.Meta)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_logs (actor, action, session_id, meta, occurred_at) VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))`,
		event.Actor, event.Action, event.SessionID, metaJSON, event.At)
	return err
}

// LogSink writes events to the structured logger. Used in development and
// as a fallback when postgres is not configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a slog-backed sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record logs the event.
func (s *LogSink) Record(_ context.Context, event Event) error {
	if s == nil || s.logger == nil {
		return nil
	}
	s.logger.Info("audit",
		slog.String("actor", event.Actor),
		slog.String("action", event.Action),
		slog.String("session_id", event.SessionID),
		slog.Any("meta", event.Meta),
	)
	return nil
}

// AsyncSink decouples callers from sink latency: events are queued and
// written by a background goroutine. When the queue is full the event is
// dropped and counted, never blocking the caller.
type AsyncSink struct {
	inner   Sink
	logger  *slog.Logger
	mu      sync.RWMutex
	closed  bool
	queue   chan Event
	done    chan struct{}
	timeout time.Duration
}

// NewAsyncSink wraps inner with a bounded queue of the given depth.
func NewAsyncSink(inner Sink, logger *slog.Logger, depth int) *AsyncSink {
	if depth <= 0 {
		depth = 256
	}
	s := &AsyncSink{
		inner:   inner,
		logger:  logger,
		queue:   make(chan Event, depth),
		done:    make(chan struct{}),
		timeout: 5 * time.Second,
	}
	go s.drain()
	return s
}

// Record enqueues the event without blocking. Events arriving after
// Close are discarded.
func (s *AsyncSink) Record(_ context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	select {
	case s.queue <- event:
	default:
		if s.logger != nil {
			s.logger.Warn("audit queue full, dropping event", slog.String("action", event.Action))
		}
	}
	return nil
}

// Close flushes queued events and stops the writer. Safe to call more
// than once.
func (s *AsyncSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *AsyncSink) drain() {
	defer close(s.done)
	for event := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.inner.Record(ctx, event); err != nil && s.logger != nil {
			s.logger.Warn("audit record failed", slog.String("action", event.Action), slog.Any("error", err))
		}
		cancel()
	}
}

var (
	_ Sink = (*PGSink)(nil)
	_ Sink = (*LogSink)(nil)
	_ Sink = (*AsyncSink)(nil)
)
