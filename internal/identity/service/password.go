package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/keylet/keylet/internal/identity/notify"
	"github.com/keylet/keylet/internal/identity/store"
	"github.com/keylet/keylet/pkg/cryptox"
	"github.com/keylet/keylet/pkg/slogx"
)

// DefaultResetTTL is how long a password reset token stays redeemable.
const DefaultResetTTL = 10 * time.Minute

var (
	ErrResetInvalid = errors.New("reset_invalid")
	ErrNotifyFailed = errors.New("notify_failed")
)

// PasswordService runs the forgotten-password flow and in-session password
// changes.
type PasswordService struct {
	Store store.Store

	// Mail delivers reset tokens synchronously: a token the user never
	// received must not exist.
	Mail notify.EmailSender

	ResetTTL time.Duration // zero means DefaultResetTTL

	Now func() time.Time
}

func (s *PasswordService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *PasswordService) resetTTL() time.Duration {
	if s.ResetTTL > 0 {
		return s.ResetTTL
	}
	return DefaultResetTTL
}

// RequestReset persists a reset token fingerprint and mails the raw token.
// Unknown emails succeed silently so the endpoint can't be used to probe for
// accounts. The store write and the send share a transaction: a failed send
// rolls the token back.
func (s *PasswordService) RequestReset(ctx context.Context, email string) error {
	now := s.now()
	l := slogx.FromContext(ctx)

	account, err := s.Store.Accounts().GetAccountByEmail(ctx, strings.ToLower(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Debug("password reset requested for unknown email")
			return nil
		}
		return err
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return err
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().SetResetToken(ctx, account.ID,
			cryptox.FingerprintToken(token), now.Add(s.resetTTL())); err != nil {
			return err
		}

		minutes := int(s.resetTTL().Minutes())
		body := fmt.Sprintf(
			"Hi %s,\n\nUse this token to reset your Keylet password: %s\n\nIt expires in %d minutes. If you did not request this, ignore this email.\n",
			account.FullName, token, minutes)

		if err := s.Mail.SendEmail(ctx, account.Email, "Reset your Keylet password", body); err != nil {
			l.Error("reset token delivery failed",
				slog.String("account_id", account.ID),
				slog.Any("error", err),
			)
			return ErrNotifyFailed
		}
		return nil
	})
}

// CompleteReset redeems a reset token: new password in, token cleared, every
// session revoked, all in one transaction.
func (s *PasswordService) CompleteReset(ctx context.Context, token, newPassword string) error {
	now := s.now()
	fp := cryptox.FingerprintToken(token)

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		account, err := tx.Accounts().GetAccountByResetTokenHash(ctx, fp, now)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrResetInvalid
			}
			return err
		}

		if err := tx.Accounts().UpdatePasswordHash(ctx, account.ID, hash); err != nil {
			return err
		}
		if err := tx.Accounts().ClearResetToken(ctx, account.ID); err != nil {
			return err
		}
		return tx.Sessions().DeleteAllAccountSessions(ctx, account.ID)
	})
}

// ChangePassword swaps the password after verifying the current one.
// Existing sessions stay valid; their refresh tokens were never exposed by
// the old password.
func (s *PasswordService) ChangePassword(ctx context.Context, accountID, current, newPassword string) error {
	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAccountNotFound
		}
		return err
	}

	if err := cryptox.VerifyPassword(current, account.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return ErrInvalidCredentials
		}
		return err
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.Store.Accounts().UpdatePasswordHash(ctx, accountID, hash)
}
