package session

import (
	"sync"
	"time"
)

// Signals receives timing transitions from the Scheduler. Callbacks run on
// timer goroutines; the Manager serializes them against user calls with
// its per-session locks.
type Signals interface {
	// HandleWarning fires once per threshold crossing before a deadline.
	HandleWarning(id string, cause WarningCause)
	// HandleExpired fires once when a deadline is reached. The scheduler
	// drops the session's handle before delivering it.
	HandleExpired(id string)
}

// Scheduler owns one timer set per live session: an inactivity countdown
// reset on every recorded activity, and an absolute countdown reset only
// by an explicit extend. Rearm atomically replaces any prior timers, so a
// stale timer can never fire for a rearmed session.
type Scheduler struct {
	mu            sync.Mutex
	entries       map[string]*timerSet
	idleTimeout   time.Duration
	warningWindow time.Duration
	signals       Signals
	now           func() time.Time
}

type timerSet struct {
	warn   *time.Timer
	expire *time.Timer
	warned bool
	gen    uint64
}

// NewScheduler constructs a Scheduler delivering to signals.
func NewScheduler(idleTimeout, warningWindow time.Duration, signals Signals) *Scheduler {
	return &Scheduler{
		entries:       make(map[string]*timerSet),
		idleTimeout:   idleTimeout,
		warningWindow: warningWindow,
		signals:       signals,
		now:           time.Now,
	}
}

// Track starts timers for a freshly created session.
func (s *Scheduler) Track(sess *Session) {
	s.Rearm(sess.ID, sess.LastActivityAt, sess.ExpiresAt)
}

// Rearm cancels any scheduled signal for the session and schedules fresh
// warning and expiry timers from the given activity and absolute expiry.
func (s *Scheduler) Rearm(id string, lastActivity, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if ok {
		stopTimers(entry)
	} else {
		entry = &timerSet{}
		s.entries[id] = entry
	}
	entry.gen++
	entry.warned = false
	gen := entry.gen

	deadline := expiresAt
	cause := WarningAbsolute
	if idle := lastActivity.Add(s.idleTimeout); idle.Before(deadline) {
		deadline = idle
		cause = WarningInactivity
	}

	now := s.now()
	entry.warn = time.AfterFunc(deadline.Add(-s.warningWindow).Sub(now), func() {
		s.fireWarning(id, gen, cause)
	})
	entry.expire = time.AfterFunc(deadline.Sub(now), func() {
		s.fireExpiry(id, gen)
	})
}

// Cancel stops all timers for the session. Signals already in flight for a
// cancelled id are discarded.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[id]; ok {
		stopTimers(entry)
		delete(s.entries, id)
	}
}

// Tracked reports whether the session currently has timers armed.
func (s *Scheduler) Tracked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// Shutdown cancels every timer set.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.entries {
		stopTimers(entry)
		delete(s.entries, id)
	}
}

func (s *Scheduler) fireWarning(id string, gen uint64, cause WarningCause) {
	s.mu.Lock()
	entry, ok := s.entries[id]
	if !ok || entry.gen != gen || entry.warned {
		s.mu.Unlock()
		return
	}
	entry.warned = true
	s.mu.Unlock()
	s.signals.HandleWarning(id, cause)
}

func (s *Scheduler) fireExpiry(id string, gen uint64) {
	s.mu.Lock()
	entry, ok := s.entries[id]
	if !ok || entry.gen != gen {
		s.mu.Unlock()
		return
	}
	stopTimers(entry)
	delete(s.entries, id)
	s.mu.Unlock()
	s.signals.HandleExpired(id)
}

func stopTimers(entry *timerSet) {
	if entry.warn != nil {
		entry.warn.Stop()
	}
	if entry.expire != nil {
		entry.expire.Stop()
	}
}
