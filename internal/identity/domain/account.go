package domain

import "time"

// Status is the account-standing axis. Only "pending" and "active" transition
// inside this service; suspension and bans are administrative and merely
// consumed as login gates.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusBanned    Status = "banned"
)

// Account is the durable per-identity record.
type Account struct {
	ID           string
	FullName     string
	Email        string // unique
	Phone        string // unique
	PasswordHash string // argon2id PHC encoded
	Role         string
	Status       Status

	LoginAttempts int
	LockUntil     *time.Time
	LastLoginAt   *time.Time

	PasswordChangedAt *time.Time
	ResetTokenHash    *string // SHA-256 fingerprint; the raw token is never persisted
	ResetExpiresAt    *time.Time

	TwoFactorSecret    *string // base32 TOTP secret, set at enrollment
	TwoFactorEnabledAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TwoFactorEnabled reports whether the second login step is required.
func (a Account) TwoFactorEnabled() bool {
	return a.TwoFactorEnabledAt != nil
}

// Locked reports whether the lockout window is still open at the given time.
func (a Account) Locked(now time.Time) bool {
	return a.LockUntil != nil && now.Before(*a.LockUntil)
}
