package domain

import "time"

// TwoFactorChallenge is a pending second login step. It is created when a
// password check succeeds on a 2FA-enabled account and deleted once the
// second factor is presented (or the attempt budget is exhausted).
type TwoFactorChallenge struct {
	TokenHash string // SHA-256 fingerprint of the opaque challenge token
	AccountID string
	Attempts  int
	ExpiresAt time.Time
	CreatedAt time.Time
}

// TwoFactorEnrollment is returned by 2FA setup: the shared secret plus a
// QR-encodable otpauth:// URI.
type TwoFactorEnrollment struct {
	Secret string `json:"secret"`
	QRCode string `json:"qrCode"`
}

// TwoFactorStatus summarizes an account's second-factor state.
type TwoFactorStatus struct {
	Enabled              bool `json:"enabled"`
	BackupCodesRemaining int  `json:"backupCodesRemaining"`
}
