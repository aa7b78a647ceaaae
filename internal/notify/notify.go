// Package notify delivers user-facing session messages to the host UI.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Message kinds, mirroring the host's toast styles.
const (
	KindInfo    = "info"
	KindWarning = "warning"
	KindError   = "error"
)

// Message codes so the host can react without parsing text.
const (
	CodeSessionExpiring   = "session.expiring"
	CodeSessionExpired    = "session.expired"
	CodeSessionConflict   = "session.conflict"
	CodeSessionTerminated = "session.terminated"
)

// Message is one user-facing notification.
type Message struct {
	Kind string `json:"kind"`
	Code string `json:"code"`
	Text string `json:"text"`
}

// Sink receives notifications for a user. Implementations must not block;
// delivery is best effort.
type Sink interface {
	Notify(ctx context.Context, userID string, msg Message)
}

// LogSink writes notifications to the structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a slog-backed sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Notify logs the message.
func (s *LogSink) Notify(_ context.Context, userID string, msg Message) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Info("notify",
		slog.String("user_id", userID),
		slog.String("kind", msg.Kind),
		slog.String("code", msg.Code),
		slog.String("text", msg.Text),
	)
}

// Fanout delivers each notification to every registered sink.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewFanout constructs a Fanout over the given sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Add registers another sink.
func (f *Fanout) Add(sink Sink) {
	if sink == nil {
		return
	}
	f.mu.Lock()
	f.sinks = append(f.sinks, sink)
	f.mu.Unlock()
}

// Notify delivers to all sinks.
func (f *Fanout) Notify(ctx context.Context, userID string, msg Message) {
	f.mu.RLock()
	sinks := make([]Sink, len(f.sinks))
	copy(sinks, f.sinks)
	f.mu.RUnlock()
	for _, sink := range sinks {
		sink.Notify(ctx, userID, msg)
	}
}

var (
	_ Sink = (*LogSink)(nil)
	_ Sink = (*Fanout)(nil)
)
