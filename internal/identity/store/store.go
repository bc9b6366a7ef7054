package store

import (
	"context"
	"errors"
	"time"

	"github.com/keylet/keylet/internal/identity/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable.
type Store interface {
	Accounts() Accounts
	Verifications() Verifications
	Sessions() Sessions
	BackupCodes() BackupCodes
	Challenges() Challenges

	ApplyMigrations() error

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. Multi-step
	// mutations (refresh rotation, password reset, 2FA enable) go through
	// here.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped Store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Accounts interface {
	// CreateAccount inserts a new account (id is provided by the app via ULID).
	CreateAccount(ctx context.Context, a domain.Account) error

	// GetAccountByID returns an account by id.
	GetAccountByID(ctx context.Context, id string) (domain.Account, error)

	// GetAccountByEmail returns an account by its unique email.
	GetAccountByEmail(ctx context.Context, email string) (domain.Account, error)

	// GetAccountByIdentifier resolves either an email or a phone number.
	GetAccountByIdentifier(ctx context.Context, identifier string) (domain.Account, error)

	// UpdateStatus sets the account status.
	UpdateStatus(ctx context.Context, accountID string, status domain.Status) error

	// UpdatePasswordHash replaces the password hash and stamps
	// password_changed_at.
	UpdatePasswordHash(ctx context.Context, accountID, newHash string) error

	// RecordFailedLogin atomically increments login_attempts and, when the
	// new count reaches threshold, sets lock_until. It returns the new
	// attempt count and the (possibly unchanged) lock. The
	// increment-and-check runs as a single conditional UPDATE so two racing
	// failures cannot both dodge the threshold.
	RecordFailedLogin(ctx context.Context, accountID string, threshold int, lockUntil time.Time) (attempts int, locked *time.Time, err error)

	// RecordSuccessfulLogin resets login_attempts, clears lock_until, and
	// stamps last_login_at.
	RecordSuccessfulLogin(ctx context.Context, accountID string, at time.Time) error

	// SetResetToken stores the reset token fingerprint and expiry.
	SetResetToken(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error

	// ClearResetToken removes any pending reset token fields.
	ClearResetToken(ctx context.Context, accountID string) error

	// GetAccountByResetTokenHash returns the account holding a matching,
	// not-yet-expired reset token.
	GetAccountByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (domain.Account, error)

	// ClearExpiredResetTokens removes reset tokens whose window lapsed
	// without being redeemed (housekeeping).
	ClearExpiredResetTokens(ctx context.Context, now time.Time) error

	// SetTwoFactorSecret stores a TOTP secret without enabling 2FA.
	SetTwoFactorSecret(ctx context.Context, accountID, secret string) error

	// EnableTwoFactor stamps twofactor_enabled_at.
	EnableTwoFactor(ctx context.Context, accountID string, at time.Time) error

	// DisableTwoFactor clears the secret and the enabled timestamp.
	DisableTwoFactor(ctx context.Context, accountID string) error

	// DeleteAccount cascades to sessions, verifications, backup codes and
	// challenges (per schema).
	DeleteAccount(ctx context.Context, accountID string) error
}

type Verifications interface {
	// UpsertCode sets the live one-time code for a channel, overwriting any
	// previous code and resetting the attempt counter.
	UpsertCode(ctx context.Context, accountID string, ch domain.Channel, codeHash string, expiresAt time.Time) error

	// GetVerification returns the verification row for a channel.
	GetVerification(ctx context.Context, accountID string, ch domain.Channel) (domain.Verification, error)

	// IncrementAttempts atomically bumps the failed-attempt counter and
	// returns the new value.
	IncrementAttempts(ctx context.Context, accountID string, ch domain.Channel) (int, error)

	// MarkVerified stamps verified_at and clears the code and expiry.
	MarkVerified(ctx context.Context, accountID string, ch domain.Channel, at time.Time) error

	// DeleteExpiredUnverified removes rows whose codes expired without being
	// redeemed (housekeeping; the account keeps its pending status).
	DeleteExpiredUnverified(ctx context.Context, now time.Time) error
}

type Sessions interface {
	// CreateSession stores a new session row.
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSessionByTokenHash returns the session matching a refresh token
	// fingerprint.
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (domain.Session, error)

	// GetSessionByPrevTokenHash returns the session whose last rotation
	// replaced the given fingerprint. A hit means the old token was
	// presented again after rotation.
	GetSessionByPrevTokenHash(ctx context.Context, tokenHash string) (domain.Session, error)

	// DeleteSessionByTokenHash removes exactly the matching row (logout,
	// rotation). Returns ErrNotFound if no row matched, which refresh
	// rotation uses to detect token reuse.
	DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error

	// DeleteAllAccountSessions clears every session for an account
	// (password reset, account deletion, reuse detection).
	DeleteAllAccountSessions(ctx context.Context, accountID string) error

	// CountAccountSessions returns the number of live sessions.
	CountAccountSessions(ctx context.Context, accountID string) (int, error)

	// DeleteExpiredSessions is housekeeping.
	DeleteExpiredSessions(ctx context.Context, now time.Time) error
}

type BackupCodes interface {
	// CreateBackupCode stores a backup code fingerprint for an account.
	CreateBackupCode(ctx context.Context, accountID, codeHash string) error

	// ConsumeBackupCode deletes the matching code row, returning whether a
	// row was consumed. Delete-on-use makes double-spending a code
	// impossible even under concurrent submission.
	ConsumeBackupCode(ctx context.Context, accountID, codeHash string) (bool, error)

	// DeleteAllBackupCodes removes all codes for an account.
	DeleteAllBackupCodes(ctx context.Context, accountID string) error

	// CountBackupCodes returns how many unused codes remain.
	CountBackupCodes(ctx context.Context, accountID string) (int, error)
}

type Challenges interface {
	// CreateChallenge stores a pending two-factor login challenge.
	CreateChallenge(ctx context.Context, c domain.TwoFactorChallenge) error

	// GetChallengeByTokenHash returns a not-yet-expired challenge.
	GetChallengeByTokenHash(ctx context.Context, tokenHash string, now time.Time) (domain.TwoFactorChallenge, error)

	// IncrementChallengeAttempts atomically bumps the attempt counter and
	// returns the new value.
	IncrementChallengeAttempts(ctx context.Context, tokenHash string) (int, error)

	// DeleteChallenge removes a challenge (on success or exhaustion).
	DeleteChallenge(ctx context.Context, tokenHash string) error

	// DeleteExpiredChallenges is housekeeping.
	DeleteExpiredChallenges(ctx context.Context, now time.Time) error
}
