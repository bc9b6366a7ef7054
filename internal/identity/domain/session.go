package domain

import "time"

// Session is one active device/session of an account, keyed by the
// fingerprint of its opaque refresh token. Logout deletes the row; password
// reset deletes all rows for the account.
type Session struct {
	ID        string
	AccountID string
	TokenHash string // SHA-256 fingerprint of the opaque refresh token

	// PrevTokenHash is the fingerprint this session's token replaced in its
	// last rotation. A refresh presenting a fingerprint found only here is a
	// replayed token, which revokes the whole account's sessions.
	PrevTokenHash *string

	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair is what authenticated flows hand back: a signed access token and
// the opaque refresh token whose fingerprint is persisted in sessions.
type TokenPair struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	ExpiresIn    time.Duration `json:"expiresIn"` // access token lifetime
}
