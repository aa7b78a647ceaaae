package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/fraudlens/fraudlens/internal/authz"
)

// State is the lifecycle state of a session.
type State string

// Session states. Unauthenticated and authenticating are transient and
// never persisted; only active and warning sessions live in the store.
const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateActive          State = "active"
	StateWarning         State = "warning"
	StateExpired         State = "expired"
	StateTerminated      State = "terminated"
)

// WarningCause records which deadline drove a warning transition, so that
// activity can demote an inactivity warning but not an absolute one.
type WarningCause string

const (
	WarningNone       WarningCause = ""
	WarningInactivity WarningCause = "inactivity"
	WarningAbsolute   WarningCause = "absolute"
)

// Session is the persisted session record.
type Session struct {
	ID             string          `json:"session_id"`
	Principal      authz.Principal `json:"principal"`
	CreatedAt      time.Time       `json:"created_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	RememberMe     bool            `json:"remember_me"`
	State          State           `json:"state"`
	WarningCause   WarningCause    `json:"warning_cause,omitempty"`
}

// UserID returns the owning principal id.
func (s *Session) UserID() string {
	return s.Principal.ID
}

// InactivityDeadline is the instant the session expires without activity.
func (s *Session) InactivityDeadline(idleTimeout time.Duration) time.Time {
	return s.LastActivityAt.Add(idleTimeout)
}

// Deadline is the sooner of the inactivity and absolute deadlines.
func (s *Session) Deadline(idleTimeout time.Duration) time.Time {
	idle := s.InactivityDeadline(idleTimeout)
	if idle.Before(s.ExpiresAt) {
		return idle
	}
	return s.ExpiresAt
}

// Live reports whether the session is usable at now: active or warning and
// before both deadlines.
func (s *Session) Live(now time.Time, idleTimeout time.Duration) bool {
	if s.State != StateActive && s.State != StateWarning {
		return false
	}
	return now.Before(s.Deadline(idleTimeout))
}

// ConflictPolicy decides what happens when a login finds live sessions
// already owned by the same user.
type ConflictPolicy string

const (
	// PolicyTerminateExisting removes all prior sessions and lets the new
	// login become sole owner. This is the default.
	PolicyTerminateExisting ConflictPolicy = "terminate-existing"
	// PolicyRejectNew fails the login and leaves the prior sessions alone.
	PolicyRejectNew ConflictPolicy = "reject-new"
)

// Valid reports whether the policy is one of the supported values.
func (p ConflictPolicy) Valid() bool {
	return p == PolicyTerminateExisting || p == PolicyRejectNew
}

// Conflict is the informational notice returned when terminate-existing
// resolved a concurrent-session conflict during login.
type Conflict struct {
	UserID             string   `json:"user_id"`
	TerminatedSessions []string `json:"terminated_sessions"`
}

// Reason codes distinguishing why a session left the active set.
const (
	ReasonLogin    = "login"
	ReasonLogout   = "logout"
	ReasonExpired  = "expired"
	ReasonConflict = "conflict"
	ReasonForced   = "forced"
	ReasonExtended = "extended"
	ReasonWarning  = "warning"
	ReasonActivity = "activity"
)

// Change describes one session state transition delivered to listeners.
type Change struct {
	SessionID string
	UserID    string
	From      State
	To        State
	Reason    string
	At        time.Time
}

// Listener receives session state transitions. Callbacks run synchronously
// on the transitioning goroutine and must not block.
type Listener func(Change)

// Sentinel errors of the engine.
var (
	// ErrInvalidCredentials is deliberately generic to avoid user
	// enumeration.
	ErrInvalidCredentials = errors.New("session: invalid credentials")
	// ErrStoreUnavailable wraps persistence failures and timeouts.
	ErrStoreUnavailable = errors.New("session: store unavailable")
	// ErrSessionNotFound indicates the session id resolves to nothing.
	ErrSessionNotFound = errors.New("session: not found")
)

// AccountLockedError reports a locked account with the remaining lockout
// duration so the caller can render a user-safe message.
type AccountLockedError struct {
	Remaining time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("session: account locked for another %s", e.Remaining.Round(time.Second))
}

// ConflictError is returned by Login under the reject-new policy.
type ConflictError struct {
	ExistingSessions []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("session: user already owns %d live session(s)", len(e.ExistingSessions))
}
