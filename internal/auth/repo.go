package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates no account matches the identifier.
var ErrNotFound = errors.New("auth: account not found")

// Repository defines persistence operations for credential verification.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	ActiveGrants(ctx context.Context, accountID int64, now time.Time) ([]Grant, error)
	RecordFailure(ctx context.Context, accountID int64, lockedUntil time.Time) error
	ResetFailures(ctx context.Context, accountID int64) error
}

// DBTX is the subset of pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{db: pool}
}

// FindByEmail fetches an account by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	const query = `
		SELECT id, email, password_hash, role, custom_permissions, is_active,
		       failed_attempts, COALESCE(locked_until, 'epoch'::timestamptz),
		       created_at, updated_at
		FROM accounts
		WHERE lower(email) = lower($1)`
	var account Account
	err := r.db.QueryRow(ctx, query, email).Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.Role,
		&account.CustomPermissions,
		&account.IsActive,
		&account.FailedAttempts,
		&account.LockedUntil,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

// ActiveGrants lists the account's temporary grants that expire after now.
func (r *PGRepository) ActiveGrants(ctx context.Context, accountID int64, now time.Time) ([]Grant, error) {
	const query = `
		SELECT permissions, expires_at, granted_by, reason
		FROM account_grants
		WHERE account_id = $1 AND expires_at > $2
		ORDER BY expires_at`
	rows, err := r.db.Query(ctx, query, accountID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var grant Grant
		if err := rows.Scan(&grant.Permissions, &grant.ExpiresAt, &grant.GrantedBy, &grant.Reason); err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

// RecordFailure bumps the failed-attempt counter; a non-zero lockedUntil
// also locks the account.
func (r *PGRepository) RecordFailure(ctx context.Context, accountID int64, lockedUntil time.Time) error {
	if lockedUntil.IsZero() {
		_, err := r.db.Exec(ctx,
			`UPDATE accounts SET failed_attempts = failed_attempts + 1, updated_at = NOW() WHERE id = $1`,
			accountID)
		return err
	}
	_, err := r.db.Exec(ctx,
		`UPDATE accounts SET failed_attempts = failed_attempts + 1, locked_until = $2, updated_at = NOW() WHERE id = $1`,
		accountID, lockedUntil)
	return err
}

// ResetFailures clears the counter and any lockout after a success.
func (r *PGRepository) ResetFailures(ctx context.Context, accountID int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET failed_attempts = 0, locked_until = NULL, updated_at = NOW() WHERE id = $1`,
		accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
