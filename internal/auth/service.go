package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/fraudlens/fraudlens/internal/authz"
	"github.com/fraudlens/fraudlens/internal/session"
)

// Config tunes the lockout behaviour of the verifier.
type Config struct {
	// MaxAttempts is the number of consecutive failures before lockout.
	MaxAttempts int
	// LockoutWindow is how long a locked account stays locked.
	LockoutWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.LockoutWindow <= 0 {
		c.LockoutWindow = 15 * time.Minute
	}
	return c
}

// Service is the reference credential verifier: bcrypt comparison against
// postgres accounts with failed-attempt lockout. The session engine only
// knows it through the session.Verifier interface.
type Service struct {
	repo Repository
	cfg  Config
	now  func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, cfg Config) *Service {
	return &Service{repo: repo, cfg: cfg.withDefaults(), now: time.Now}
}

// Verify validates email/password credentials and returns the principal.
// Failures are generic session.ErrInvalidCredentials except for lockout,
// which surfaces the remaining duration.
func (s *Service) Verify(ctx context.Context, identifier, secret string) (authz.Principal, error) {
	account, err := s.repo.FindByEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Burn a comparison anyway so the absent-account path does
			// not return measurably faster.
			_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000000000000000000000000000000000"), []byte(secret))
			return authz.Principal{}, session.ErrInvalidCredentials
		}
		return authz.Principal{}, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	if !account.IsActive {
		return authz.Principal{}, session.ErrInvalidCredentials
	}

	now := s.now()
	if account.LockedUntil.After(now) {
		return authz.Principal{}, &session.AccountLockedError{Remaining: account.LockedUntil.Sub(now)}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(secret)); err != nil {
		var lockedUntil time.Time
		if account.FailedAttempts+1 >= s.cfg.MaxAttempts {
			lockedUntil = now.Add(s.cfg.LockoutWindow)
		}
		if recordErr := s.repo.RecordFailure(ctx, account.ID, lockedUntil); recordErr != nil {
			return authz.Principal{}, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, recordErr)
		}
		if !lockedUntil.IsZero() {
			return authz.Principal{}, &session.AccountLockedError{Remaining: s.cfg.LockoutWindow}
		}
		return authz.Principal{}, session.ErrInvalidCredentials
	}

	if err := s.repo.ResetFailures(ctx, account.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return authz.Principal{}, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}

	grants, err := s.repo.ActiveGrants(ctx, account.ID, now)
	if err != nil {
		return authz.Principal{}, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	temporary := make([]authz.TemporaryGrant, 0, len(grants))
	for _, grant := range grants {
		temporary = append(temporary, authz.TemporaryGrant{
			Permissions: grant.Permissions,
			ExpiresAt:   grant.ExpiresAt,
			GrantedBy:   grant.GrantedBy,
			Reason:      grant.Reason,
		})
	}

	return authz.Principal{
		ID:                strconv.FormatInt(account.ID, 10),
		Role:              authz.Role(account.Role),
		CustomPermissions: account.CustomPermissions,
		TemporaryGrants:   temporary,
	}, nil
}

var _ session.Verifier = (*Service)(nil)
