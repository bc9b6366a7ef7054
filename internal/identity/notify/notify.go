// Package notify delivers out-of-band messages (email, SMS) for account
// verification and recovery flows.
package notify

import "context"

// EmailSender delivers a plain-text email to a single recipient.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers a short text message to a phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Notifier combines both delivery channels. Services depend on this rather
// than on concrete transports so tests can substitute fakes.
type Notifier interface {
	EmailSender
	SMSSender
}

// Split joins independently configured email and SMS transports into a
// single Notifier.
type Split struct {
	EmailSender
	SMSSender
}
