package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// MemoryRepository keeps accounts in process memory. It backs development
// and test deployments that run without postgres.
type MemoryRepository struct {
	mu       sync.Mutex
	accounts map[string]*Account
	grants   map[int64][]Grant
}

// NewMemoryRepository constructs a repository seeded with the given accounts.
func NewMemoryRepository(accounts ...Account) *MemoryRepository {
	repo := &MemoryRepository{
		accounts: make(map[string]*Account, len(accounts)),
		grants:   make(map[int64][]Grant),
	}
	for i := range accounts {
		account := accounts[i]
		repo.accounts[strings.ToLower(account.Email)] = &account
	}
	return repo
}

// NewDevRepository seeds one account per role, all sharing devPassword.
func NewDevRepository(devPassword string) (*MemoryRepository, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(devPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	seed := []Account{
		{ID: 1, Email: "citizen@fraudlens.local", Role: "citizen"},
		{ID: 2, Email: "officer@fraudlens.local", Role: "officer"},
		{ID: 3, Email: "admin@fraudlens.local", Role: "admin"},
		{ID: 4, Email: "root@fraudlens.local", Role: "superadmin"},
	}
	for i := range seed {
		seed[i].PasswordHash = string(hash)
		seed[i].IsActive = true
		seed[i].CreatedAt = now
		seed[i].UpdatedAt = now
	}
	return NewMemoryRepository(seed...), nil
}

// AddGrant attaches a temporary grant to an account.
func (r *MemoryRepository) AddGrant(accountID int64, grant Grant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[accountID] = append(r.grants[accountID], grant)
}

// FindByEmail fetches an account by email.
func (r *MemoryRepository) FindByEmail(_ context.Context, email string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *account
	return &copied, nil
}

// ActiveGrants lists the account's temporary grants that expire after now.
func (r *MemoryRepository) ActiveGrants(_ context.Context, accountID int64, now time.Time) ([]Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var active []Grant
	for _, grant := range r.grants[accountID] {
		if grant.ExpiresAt.After(now) {
			active = append(active, grant)
		}
	}
	return active, nil
}

// RecordFailure bumps the failed-attempt counter; a non-zero lockedUntil
// also locks the account.
func (r *MemoryRepository) RecordFailure(_ context.Context, accountID int64, lockedUntil time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if account.ID == accountID {
			account.FailedAttempts++
			if !lockedUntil.IsZero() {
				account.LockedUntil = lockedUntil
			}
			account.UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

// ResetFailures clears the counter and any lockout after a success.
func (r *MemoryRepository) ResetFailures(_ context.Context, accountID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if account.ID == accountID {
			account.FailedAttempts = 0
			account.LockedUntil = time.Time{}
			account.UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

var _ Repository = (*MemoryRepository)(nil)
