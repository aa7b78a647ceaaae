package session

import (
	"context"
	"errors"
	"time"

	"github.com/fraudlens/fraudlens/internal/authz"
)

// Facade is the single entry point for protected-operation guards. It
// composes the lifecycle manager with the authorization evaluator so call
// sites resolve a session id straight to a permission decision.
type Facade struct {
	manager   *Manager
	evaluator *authz.Evaluator
}

// NewFacade wires the facade.
func NewFacade(manager *Manager, evaluator *authz.Evaluator) *Facade {
	return &Facade{manager: manager, evaluator: evaluator}
}

// Login delegates to the lifecycle manager.
func (f *Facade) Login(ctx context.Context, identifier, secret string, rememberMe bool) (*LoginResult, error) {
	return f.manager.Login(ctx, identifier, secret, rememberMe)
}

// Logout delegates to the lifecycle manager.
func (f *Facade) Logout(ctx context.Context, id string) {
	f.manager.Logout(ctx, id)
}

// Extend delegates to the lifecycle manager.
func (f *Facade) Extend(ctx context.Context, id string) error {
	return f.manager.Extend(ctx, id)
}

// RecordActivity delegates to the lifecycle manager.
func (f *Facade) RecordActivity(ctx context.Context, id string) error {
	return f.manager.RecordActivity(ctx, id, time.Now())
}

// Validate delegates to the lifecycle manager.
func (f *Facade) Validate(ctx context.Context, id string) (bool, error) {
	return f.manager.Validate(ctx, id, time.Now())
}

// Session returns the live session record for id.
func (f *Facade) Session(ctx context.Context, id string) (*Session, error) {
	return f.manager.Get(ctx, id)
}

// OnSessionChange registers a state-transition listener.
func (f *Facade) OnSessionChange(l Listener) {
	f.manager.OnSessionChange(l)
}

// Terminate forcibly ends every session of a user.
func (f *Facade) Terminate(ctx context.Context, userID, actor string) error {
	return f.manager.Terminate(ctx, userID, actor)
}

// principal resolves a live session to its principal. Any failure means
// "no access": guards get a zero principal that holds nothing.
func (f *Facade) principal(ctx context.Context, id string) (authz.Principal, bool) {
	sess, err := f.manager.Get(ctx, id)
	if err != nil || sess == nil {
		return authz.Principal{}, false
	}
	return sess.Principal, true
}

// HasPermission reports whether the session's principal holds permission.
func (f *Facade) HasPermission(ctx context.Context, id, permission string) bool {
	p, ok := f.principal(ctx, id)
	if !ok {
		return false
	}
	return f.evaluator.HasPermission(p, permission, time.Now())
}

// HasAnyPermission reports whether the principal holds any of permissions.
func (f *Facade) HasAnyPermission(ctx context.Context, id string, permissions []string) bool {
	p, ok := f.principal(ctx, id)
	if !ok {
		return false
	}
	return f.evaluator.HasAnyPermission(p, permissions, time.Now())
}

// HasAllPermissions reports whether the principal holds all permissions.
func (f *Facade) HasAllPermissions(ctx context.Context, id string, permissions []string) bool {
	p, ok := f.principal(ctx, id)
	if !ok {
		return false
	}
	return f.evaluator.HasAllPermissions(p, permissions, time.Now())
}

// HasAnyRole reports access-list membership for the session's principal.
func (f *Facade) HasAnyRole(ctx context.Context, id string, roles []authz.Role) bool {
	p, ok := f.principal(ctx, id)
	if !ok {
		return false
	}
	return f.evaluator.HasAnyRole(p, roles)
}

// MeetsMinimumRole reports hierarchy gating for the session's principal.
func (f *Facade) MeetsMinimumRole(ctx context.Context, id string, role authz.Role) bool {
	p, ok := f.principal(ctx, id)
	if !ok {
		return false
	}
	return f.evaluator.MeetsMinimumRole(p, role)
}

// IsStoreUnavailable reports whether err is a persistence failure the
// caller may retry, as opposed to a definitive auth outcome.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
