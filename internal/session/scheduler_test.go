package session_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fraudlens/fraudlens/internal/session"
)

type recordingSignals struct {
	mu       sync.Mutex
	warnings []string
	expiries []string
}

func (r *recordingSignals) HandleWarning(id string, _ session.WarningCause) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, id)
}

func (r *recordingSignals) HandleExpired(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expiries = append(r.expiries, id)
}

func (r *recordingSignals) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.warnings), len(r.expiries)
}

func TestSchedulerWarningThenExpiryExactlyOnce(t *testing.T) {
	signals := &recordingSignals{}
	sched := session.NewScheduler(time.Hour, 60*time.Millisecond, signals)
	defer sched.Shutdown()

	now := time.Now()
	sched.Rearm("s-1", now, now.Add(120*time.Millisecond))

	time.Sleep(90 * time.Millisecond)
	warned, expired := signals.counts()
	require.Equal(t, 1, warned)
	require.Equal(t, 0, expired)

	time.Sleep(80 * time.Millisecond)
	warned, expired = signals.counts()
	require.Equal(t, 1, warned)
	require.Equal(t, 1, expired)
	require.False(t, sched.Tracked("s-1"))
}

func TestSchedulerRearmCancelsStaleTimers(t *testing.T) {
	signals := &recordingSignals{}
	sched := session.NewScheduler(time.Hour, 10*time.Millisecond, signals)
	defer sched.Shutdown()

	now := time.Now()
	sched.Rearm("s-2", now, now.Add(40*time.Millisecond))
	// Push the deadline out before the first timers fire.
	sched.Rearm("s-2", now, now.Add(500*time.Millisecond))

	time.Sleep(100 * time.Millisecond)
	_, expired := signals.counts()
	require.Equal(t, 0, expired)
	require.True(t, sched.Tracked("s-2"))
}

func TestSchedulerCancelDiscardsLateSignals(t *testing.T) {
	signals := &recordingSignals{}
	sched := session.NewScheduler(time.Hour, 10*time.Millisecond, signals)
	defer sched.Shutdown()

	now := time.Now()
	sched.Rearm("s-3", now, now.Add(30*time.Millisecond))
	sched.Cancel("s-3")

	time.Sleep(80 * time.Millisecond)
	warned, expired := signals.counts()
	require.Equal(t, 0, warned)
	require.Equal(t, 0, expired)
}

func TestSchedulerInactivityDeadlineWinsWhenSooner(t *testing.T) {
	signals := &recordingSignals{}
	// Idle timeout shorter than the absolute window.
	sched := session.NewScheduler(50*time.Millisecond, 10*time.Millisecond, signals)
	defer sched.Shutdown()

	now := time.Now()
	sched.Rearm("s-4", now, now.Add(time.Hour))

	time.Sleep(120 * time.Millisecond)
	_, expired := signals.counts()
	require.Equal(t, 1, expired)
}
