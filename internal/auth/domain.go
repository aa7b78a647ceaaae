package auth

import "time"

// Account is a portal user account as stored in postgres.
type Account struct {
	ID                int64
	Email             string
	PasswordHash      string
	Role              string
	CustomPermissions []string
	IsActive          bool
	FailedAttempts    int
	LockedUntil       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Grant is a stored temporary permission grant for an account.
type Grant struct {
	Permissions []string
	ExpiresAt   time.Time
	GrantedBy   string
	Reason      string
}
