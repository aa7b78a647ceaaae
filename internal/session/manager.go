package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fraudlens/fraudlens/internal/audit"
	"github.com/fraudlens/fraudlens/internal/authz"
	"github.com/fraudlens/fraudlens/internal/notify"
	"github.com/fraudlens/fraudlens/internal/observability"
)

// Verifier validates credentials and returns the authenticated principal.
// The engine never implements credential checking itself; implementations
// must return ErrInvalidCredentials, *AccountLockedError or a wrapped
// ErrStoreUnavailable.
type Verifier interface {
	Verify(ctx context.Context, identifier, secret string) (authz.Principal, error)
}

// Config carries the timing and policy knobs of the lifecycle manager.
type Config struct {
	// TTL is the absolute expiry window for regular sessions.
	TTL time.Duration
	// RememberTTL is the absolute window when the remember flag is set.
	RememberTTL time.Duration
	// IdleTimeout is the inactivity window, reset by recorded activity.
	IdleTimeout time.Duration
	// WarningWindow is how long before a deadline the warning fires.
	WarningWindow time.Duration
	// RenewalWindow is how far an explicit extend pushes absolute expiry.
	RenewalWindow time.Duration
	// ConflictPolicy resolves logins that find existing live sessions.
	ConflictPolicy ConflictPolicy
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 8 * time.Hour
	}
	if c.RememberTTL <= 0 {
		c.RememberTTL = 720 * time.Hour
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.WarningWindow <= 0 {
		c.WarningWindow = 5 * time.Minute
	}
	if c.RenewalWindow <= 0 {
		c.RenewalWindow = c.TTL
	}
	if c.ConflictPolicy == "" {
		c.ConflictPolicy = PolicyTerminateExisting
	}
	return c
}

// ManagerParams groups the manager's dependencies.
type ManagerParams struct {
	Logger   *slog.Logger
	Store    Store
	Verifier Verifier
	Audit    audit.Sink
	Notify   notify.Sink
	Messages *notify.Factory
	Metrics  *observability.Metrics
	Config   Config
}

// Manager owns the session state machine. All mutating operations on a
// session id are serialized through a keyed lock, so an extend and an
// expiry signal can never both apply.
type Manager struct {
	logger    *slog.Logger
	store     Store
	verifier  Verifier
	auditSink audit.Sink
	notifier  notify.Sink
	messages  *notify.Factory
	metrics   *observability.Metrics
	cfg       Config
	locks     *keyedLocks
	scheduler *Scheduler
	now       func() time.Time

	listenerMu sync.RWMutex
	listeners  []Listener
}

// NewManager constructs a Manager and its scheduler.
func NewManager(p ManagerParams) (*Manager, error) {
	if p.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if p.Verifier == nil {
		return nil, errors.New("session: verifier is required")
	}
	cfg := p.Config.withDefaults()
	if !cfg.ConflictPolicy.Valid() {
		return nil, &authz.ConfigurationError{Reason: "unknown conflict policy " + string(cfg.ConflictPolicy)}
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Messages == nil {
		p.Messages = notify.NewFactory("en")
	}
	m := &Manager{
		logger:    p.Logger,
		store:     p.Store,
		verifier:  p.Verifier,
		auditSink: p.Audit,
		notifier:  p.Notify,
		messages:  p.Messages,
		metrics:   p.Metrics,
		cfg:       cfg,
		locks:     newKeyedLocks(),
		now:       time.Now,
	}
	m.scheduler = NewScheduler(cfg.IdleTimeout, cfg.WarningWindow, m)
	return m, nil
}

// Scheduler exposes the manager's scheduler, mainly for shutdown.
func (m *Manager) Scheduler() *Scheduler {
	return m.scheduler
}

// OnSessionChange registers a listener for session state transitions.
func (m *Manager) OnSessionChange(l Listener) {
	if l == nil {
		return
	}
	m.listenerMu.Lock()
	m.listeners = append(m.listeners, l)
	m.listenerMu.Unlock()
}

// LoginResult is the successful outcome of Login.
type LoginResult struct {
	Session *Session
	// Conflict is set when the terminate-existing policy removed prior
	// sessions. It is informational, not an error.
	Conflict *Conflict
}

// Login authenticates the credentials and creates a new session. Under
// reject-new, a live session for the same user fails the login with
// *ConflictError; under terminate-existing the prior sessions are removed
// and reported in the result.
func (m *Manager) Login(ctx context.Context, identifier, secret string, rememberMe bool) (*LoginResult, error) {
	principal, err := m.verifier.Verify(ctx, identifier, secret)
	if err != nil {
		m.recordLoginFailure(ctx, identifier, err)
		return nil, err
	}

	// Conflict detection locks only this user's session set.
	release := m.locks.acquire("user:" + principal.ID)
	defer release()

	existing, err := m.store.GetByUser(ctx, principal.ID)
	if err != nil {
		m.metrics.RecordLogin("store_error")
		return nil, err
	}

	var conflict *Conflict
	if len(existing) > 0 {
		ids := make([]string, 0, len(existing))
		for _, old := range existing {
			ids = append(ids, old.ID)
		}
		if m.cfg.ConflictPolicy == PolicyRejectNew {
			m.metrics.RecordLogin("conflict")
			m.recordAudit(ctx, audit.Event{
				Actor:  principal.ID,
				Action: "session.login.rejected",
				Meta:   map[string]any{"existing_sessions": len(ids)},
			})
			return nil, &ConflictError{ExistingSessions: ids}
		}
		for _, old := range existing {
			m.terminate(ctx, old, ReasonConflict)
		}
		conflict = &Conflict{UserID: principal.ID, TerminatedSessions: ids}
	}

	now := m.now()
	ttl := m.cfg.TTL
	if rememberMe {
		ttl = m.cfg.RememberTTL
	}
	sess := &Session{
		ID:             uuid.NewString(),
		Principal:      principal,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(ttl),
		RememberMe:     rememberMe,
		State:          StateActive,
	}
	// A failed write fails the login visibly: no session may exist only
	// in memory.
	if err := m.store.Put(ctx, sess); err != nil {
		m.metrics.RecordLogin("store_error")
		return nil, err
	}
	m.scheduler.Track(sess)
	m.metrics.RecordLogin("success")
	m.metrics.SessionOpened()
	m.emit(Change{SessionID: sess.ID, UserID: principal.ID, From: StateUnauthenticated, To: StateActive, Reason: ReasonLogin, At: now})
	m.recordAudit(ctx, audit.Event{
		Actor:     principal.ID,
		Action:    "session.login",
		SessionID: sess.ID,
		Meta:      map[string]any{"remember_me": rememberMe, "role": string(principal.Role)},
	})
	if conflict != nil {
		m.sendNotify(ctx, principal.ID, m.messages.SessionConflict(len(conflict.TerminatedSessions)))
	}
	return &LoginResult{Session: sess, Conflict: conflict}, nil
}

// Logout destroys the session. It is idempotent and always succeeds from
// the caller's point of view: a store failure after timers are cancelled
// is reported to the audit sink, never to the caller.
func (m *Manager) Logout(ctx context.Context, id string) {
	release := m.locks.acquire(id)
	defer release()

	wasTracked := m.scheduler.Tracked(id)
	m.scheduler.Cancel(id)

	sess, err := m.store.Get(ctx, id)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		m.logger.Warn("logout: read session", slog.String("session_id", id), slog.Any("error", err))
	}

	if err := m.store.Remove(ctx, id); err != nil {
		m.recordAudit(ctx, audit.Event{
			Action:    "session.logout.store_error",
			SessionID: id,
			Meta:      map[string]any{"error": err.Error()},
		})
	}

	if sess == nil {
		return
	}
	if wasTracked {
		m.metrics.SessionClosed()
	}
	m.metrics.RecordTransition(string(StateTerminated), ReasonLogout)
	m.emit(Change{SessionID: id, UserID: sess.UserID(), From: sess.State, To: StateTerminated, Reason: ReasonLogout, At: m.now()})
	m.recordAudit(ctx, audit.Event{Actor: sess.UserID(), Action: "session.logout", SessionID: id})
}

// Terminate forcibly ends every session of a user, e.g. by an admin. Same
// cleanup path as expiry, distinguished by reason code.
func (m *Manager) Terminate(ctx context.Context, userID, actor string) error {
	release := m.locks.acquire("user:" + userID)
	defer release()

	existing, err := m.store.GetByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, sess := range existing {
		m.terminate(ctx, sess, ReasonForced)
	}
	if len(existing) > 0 {
		m.sendNotify(ctx, userID, m.messages.SessionTerminated())
		m.recordAudit(ctx, audit.Event{
			Actor:  actor,
			Action: "session.terminate.forced",
			Meta:   map[string]any{"user_id": userID, "sessions": len(existing)},
		})
	}
	return nil
}

// Validate reports whether the session exists, is active or warning, and
// is before both deadlines. Read-only: polling Validate never keeps a
// session alive. A store failure is an error, never "invalid".
func (m *Manager) Validate(ctx context.Context, id string, now time.Time) (bool, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	return sess.Live(now, m.cfg.IdleTimeout), nil
}

// Get returns the live session record, or ErrSessionNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.Live(m.now(), m.cfg.IdleTimeout) {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// RecordActivity advances last-activity and rearms the inactivity timer.
// A session in warning for inactivity is demoted back to active. Activity
// on a missing or terminal session is a no-op: it cannot resurrect.
func (m *Manager) RecordActivity(ctx context.Context, id string, now time.Time) error {
	release := m.locks.acquire(id)
	defer release()

	sess, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if !sess.Live(now, m.cfg.IdleTimeout) {
		return nil
	}

	from := sess.State
	sess.LastActivityAt = now
	if sess.State == StateWarning && sess.WarningCause == WarningInactivity {
		sess.State = StateActive
		sess.WarningCause = WarningNone
	}
	if err := m.store.Put(ctx, sess); err != nil {
		return err
	}
	m.scheduler.Rearm(sess.ID, sess.LastActivityAt, sess.ExpiresAt)
	if from == StateWarning && sess.State == StateActive {
		m.metrics.RecordTransition(string(StateActive), ReasonActivity)
		m.emit(Change{SessionID: id, UserID: sess.UserID(), From: from, To: StateActive, Reason: ReasonActivity, At: now})
	}
	return nil
}

// Extend is the explicit user-initiated renewal: absolute expiry advances
// by the renewal window and a warning session returns to active. It fails
// with ErrSessionNotFound once the session is gone or past its deadline.
func (m *Manager) Extend(ctx context.Context, id string) error {
	release := m.locks.acquire(id)
	defer release()

	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	now := m.now()
	if !sess.Live(now, m.cfg.IdleTimeout) {
		return ErrSessionNotFound
	}

	from := sess.State
	sess.LastActivityAt = now
	sess.ExpiresAt = sess.ExpiresAt.Add(m.cfg.RenewalWindow)
	sess.State = StateActive
	sess.WarningCause = WarningNone
	if err := m.store.Put(ctx, sess); err != nil {
		return err
	}
	m.scheduler.Rearm(sess.ID, sess.LastActivityAt, sess.ExpiresAt)
	m.metrics.RecordTransition(string(StateActive), ReasonExtended)
	m.emit(Change{SessionID: id, UserID: sess.UserID(), From: from, To: StateActive, Reason: ReasonExtended, At: now})
	m.recordAudit(ctx, audit.Event{Actor: sess.UserID(), Action: "session.extend", SessionID: id})
	return nil
}

// HandleWarning is the scheduler's warning signal.
func (m *Manager) HandleWarning(id string, cause WarningCause) {
	ctx := context.Background()
	release := m.locks.acquire(id)
	defer release()

	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return
	}
	if sess.State != StateActive {
		return
	}
	now := m.now()
	// Activity may have raced the timer; if the deadline moved back out
	// of the warning window the signal is stale.
	if sess.Deadline(m.cfg.IdleTimeout).Sub(now) > m.cfg.WarningWindow {
		m.scheduler.Rearm(sess.ID, sess.LastActivityAt, sess.ExpiresAt)
		return
	}

	sess.State = StateWarning
	sess.WarningCause = cause
	if err := m.store.Put(ctx, sess); err != nil {
		m.logger.Warn("warning transition not persisted", slog.String("session_id", id), slog.Any("error", err))
	}
	m.metrics.RecordTransition(string(StateWarning), ReasonWarning)
	m.emit(Change{SessionID: id, UserID: sess.UserID(), From: StateActive, To: StateWarning, Reason: ReasonWarning, At: now})
	m.sendNotify(ctx, sess.UserID(), m.messages.SessionExpiring(sess.Deadline(m.cfg.IdleTimeout).Sub(now)))
}

// HandleExpired is the scheduler's expiry signal. It re-checks deadlines
// under the session lock: if an extend won the race the stale timer is
// rearmed instead of expiring the session.
func (m *Manager) HandleExpired(id string) {
	ctx := context.Background()
	release := m.locks.acquire(id)
	defer release()

	sess, err := m.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			// The redis TTL still reaps the record; the sweep job picks
			// up the index entry.
			m.logger.Warn("expiry: read session", slog.String("session_id", id), slog.Any("error", err))
		}
		m.metrics.SessionClosed()
		return
	}
	now := m.now()
	if sess.Live(now, m.cfg.IdleTimeout) {
		m.scheduler.Rearm(sess.ID, sess.LastActivityAt, sess.ExpiresAt)
		return
	}

	if err := m.store.Remove(ctx, id); err != nil {
		m.logger.Warn("expiry: remove session", slog.String("session_id", id), slog.Any("error", err))
	}
	m.metrics.SessionClosed()
	m.metrics.RecordTransition(string(StateExpired), ReasonExpired)
	m.emit(Change{SessionID: id, UserID: sess.UserID(), From: sess.State, To: StateExpired, Reason: ReasonExpired, At: now})
	m.sendNotify(ctx, sess.UserID(), m.messages.SessionExpired())
	m.recordAudit(ctx, audit.Event{Actor: sess.UserID(), Action: "session.expired", SessionID: id})
}

// terminate removes one session under its own lock. Callers hold the
// owning user's lock.
func (m *Manager) terminate(ctx context.Context, sess *Session, reason string) {
	release := m.locks.acquire(sess.ID)
	defer release()

	if m.scheduler.Tracked(sess.ID) {
		m.metrics.SessionClosed()
	}
	m.scheduler.Cancel(sess.ID)
	if err := m.store.Remove(ctx, sess.ID); err != nil {
		m.recordAudit(ctx, audit.Event{
			Action:    "session.terminate.store_error",
			SessionID: sess.ID,
			Meta:      map[string]any{"error": err.Error()},
		})
	}
	m.metrics.RecordTransition(string(StateTerminated), reason)
	m.emit(Change{SessionID: sess.ID, UserID: sess.UserID(), From: sess.State, To: StateTerminated, Reason: reason, At: m.now()})
	m.recordAudit(ctx, audit.Event{
		Actor:     sess.UserID(),
		Action:    "session.terminated",
		SessionID: sess.ID,
		Meta:      map[string]any{"reason": reason},
	})
}

func (m *Manager) recordLoginFailure(ctx context.Context, identifier string, err error) {
	var locked *AccountLockedError
	switch {
	case errors.As(err, &locked):
		m.metrics.RecordLogin("locked")
		m.recordAudit(ctx, audit.Event{
			Action: "session.login.locked",
			Meta:   map[string]any{"identifier": identifier, "remaining": locked.Remaining.String()},
		})
	case errors.Is(err, ErrStoreUnavailable):
		m.metrics.RecordLogin("store_error")
	default:
		m.metrics.RecordLogin("invalid")
		m.recordAudit(ctx, audit.Event{
			Action: "session.login.failed",
			Meta:   map[string]any{"identifier": identifier},
		})
	}
}

func (m *Manager) recordAudit(ctx context.Context, event audit.Event) {
	if m.auditSink == nil {
		return
	}
	if event.At.IsZero() {
		event.At = m.now()
	}
	if err := m.auditSink.Record(ctx, event); err != nil {
		m.logger.Warn("audit record", slog.String("action", event.Action), slog.Any("error", err))
	}
}

func (m *Manager) sendNotify(ctx context.Context, userID string, msg notify.Message) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(ctx, userID, msg)
}

func (m *Manager) emit(change Change) {
	m.listenerMu.RLock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenerMu.RUnlock()
	for _, l := range listeners {
		l(change)
	}
}
