package domain

import "time"

// Channel identifies an out-of-band verification channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelPhone
}

// Verification is the live one-time code for one channel of one account.
// Exactly one row exists per (account, channel); regenerating a code
// overwrites the row, so a previous code can never race a fresh one.
type Verification struct {
	AccountID  string
	Channel    Channel
	CodeHash   string // SHA-256 fingerprint of the numeric code
	ExpiresAt  time.Time
	Attempts   int // failed submissions; only enforced for the phone channel
	VerifiedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Verified reports whether the channel has been proven.
func (v Verification) Verified() bool { return v.VerifiedAt != nil }

// Expired reports whether the code can no longer be redeemed.
func (v Verification) Expired(now time.Time) bool { return now.After(v.ExpiresAt) }
