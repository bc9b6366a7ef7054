package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/keylet/keylet/internal/identity/domain"
)

type accountsRepo struct {
	q querier
}

const accountColumns = `id, full_name, email, phone, password_hash, role, status,
	login_attempts, lock_until, last_login_at, password_changed_at,
	reset_token_hash, reset_expires_at, twofactor_secret, twofactor_enabled_at,
	created_at, updated_at`

func (r *accountsRepo) scanAccount(row *sql.Row) (domain.Account, error) {
	var (
		a                 domain.Account
		status            string
		lockUntil         sql.NullTime
		lastLoginAt       sql.NullTime
		passwordChangedAt sql.NullTime
		resetTokenHash    sql.NullString
		resetExpiresAt    sql.NullTime
		tfSecret          sql.NullString
		tfEnabledAt       sql.NullTime
	)

	err := row.Scan(
		&a.ID, &a.FullName, &a.Email, &a.Phone, &a.PasswordHash, &a.Role, &status,
		&a.LoginAttempts, &lockUntil, &lastLoginAt, &passwordChangedAt,
		&resetTokenHash, &resetExpiresAt, &tfSecret, &tfEnabledAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}

	a.Status = domain.Status(status)
	a.LockUntil = mapNullTimePtr(lockUntil)
	a.LastLoginAt = mapNullTimePtr(lastLoginAt)
	a.PasswordChangedAt = mapNullTimePtr(passwordChangedAt)
	a.ResetTokenHash = mapNullStringPtr(resetTokenHash)
	a.ResetExpiresAt = mapNullTimePtr(resetExpiresAt)
	a.TwoFactorSecret = mapNullStringPtr(tfSecret)
	a.TwoFactorEnabledAt = mapNullTimePtr(tfEnabledAt)
	return a, nil
}

func (r *accountsRepo) CreateAccount(ctx context.Context, a domain.Account) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO accounts (id, full_name, email, phone, password_hash, role, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.FullName, a.Email, a.Phone, a.PasswordHash, a.Role, string(a.Status),
	)
	return mapConflict(err)
}

func (r *accountsRepo) GetAccountByID(ctx context.Context, id string) (domain.Account, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return r.scanAccount(row)
}

func (r *accountsRepo) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)
	return r.scanAccount(row)
}

func (r *accountsRepo) GetAccountByIdentifier(ctx context.Context, identifier string) (domain.Account, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ? OR phone = ?`,
		identifier, identifier,
	)
	return r.scanAccount(row)
}

func (r *accountsRepo) UpdateStatus(ctx context.Context, accountID string, status domain.Status) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE accounts SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(status), accountID,
	)
	return err
}

func (r *accountsRepo) UpdatePasswordHash(ctx context.Context, accountID, newHash string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE accounts
		SET password_hash = ?, password_changed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		newHash, accountID,
	)
	return err
}

// RecordFailedLogin runs the increment-and-check-threshold as one conditional
// UPDATE so two racing failed logins cannot both observe a pre-threshold
// count.
func (r *accountsRepo) RecordFailedLogin(
	ctx context.Context,
	accountID string,
	threshold int,
	lockUntil time.Time,
) (int, *time.Time, error) {
	row := r.q.QueryRowContext(ctx, `
		UPDATE accounts
		SET login_attempts = login_attempts + 1,
		    lock_until = CASE WHEN login_attempts + 1 >= ? THEN ? ELSE lock_until END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
		RETURNING login_attempts, lock_until`,
		threshold, lockUntil, accountID,
	)

	var attempts int
	var lock sql.NullTime
	if err := row.Scan(&attempts, &lock); err != nil {
		return 0, nil, mapNotFound(err)
	}
	return attempts, mapNullTimePtr(lock), nil
}

func (r *accountsRepo) RecordSuccessfulLogin(ctx context.Context, accountID string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE accounts
		SET login_attempts = 0, lock_until = NULL, last_login_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		at, accountID,
	)
	return err
}

func (r *accountsRepo) SetResetToken(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE accounts
		SET reset_token_hash = ?, reset_expires_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		tokenHash, expiresAt, accountID,
	)
	return err
}

func (r *accountsRepo) ClearResetToken(ctx context.Context, accountID string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE accounts
		SET reset_token_hash = NULL, reset_expires_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		accountID,
	)
	return err
}

func (r *accountsRepo) GetAccountByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (domain.Account, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE reset_token_hash = ? AND reset_expires_at > ?`,
		tokenHash, now,
	)
	return r.scanAccount(row)
}

func (r *accountsRepo) ClearExpiredResetTokens(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE accounts
		SET reset_token_hash = NULL, reset_expires_at = NULL
		WHERE reset_token_hash IS NOT NULL AND reset_expires_at <= ?`,
		now,
	)
	return err
}

func (r *accountsRepo) SetTwoFactorSecret(ctx context.Context, accountID, secret string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE accounts SET twofactor_secret = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		secret, accountID,
	)
	return err
}

func (r *accountsRepo) EnableTwoFactor(ctx context.Context, accountID string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE accounts SET twofactor_enabled_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		at, accountID,
	)
	return err
}

func (r *accountsRepo) DisableTwoFactor(ctx context.Context, accountID string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE accounts
		SET twofactor_secret = NULL, twofactor_enabled_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		accountID,
	)
	return err
}

func (r *accountsRepo) DeleteAccount(ctx context.Context, accountID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, accountID)
	return err
}
