package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/keylet/keylet/internal/identity/domain"
	"github.com/keylet/keylet/internal/identity/store"
	"github.com/keylet/keylet/pkg/cryptox"
	"github.com/keylet/keylet/pkg/idx"
	"github.com/keylet/keylet/pkg/jwtx"
	"github.com/keylet/keylet/pkg/slogx"
)

var (
	ErrInvalidRefresh   = errors.New("invalid_refresh_token")
	ErrAccountSuspended = errors.New("account_suspended")
	ErrAccountBanned    = errors.New("account_banned")
)

// SessionService issues and rotates token pairs. The access token is a signed
// EdDSA JWT; the refresh token is an opaque 256-bit value whose fingerprint
// is the session row's key.
type SessionService struct {
	Store      store.Store
	Signer     *jwtx.Signer
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Now is the clock; nil means time.Now in UTC. Tests override it.
	Now func() time.Time
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Issue creates a fresh session for an authenticated account.
func (s *SessionService) Issue(ctx context.Context, account domain.Account) (*domain.TokenPair, error) {
	now := s.now()
	sid := idx.New().String()

	accessToken, err := s.signAccess(account, sid, now)
	if err != nil {
		return nil, err
	}

	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	session := domain.Session{
		ID:        sid,
		AccountID: account.ID,
		TokenHash: cryptox.FingerprintToken(refreshOpaque),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.RefreshTTL),
	}
	if err := s.Store.Sessions().CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshOpaque,
		ExpiresIn:    s.AccessTTL,
	}, nil
}

// Refresh rotates a refresh token: the presented row is deleted and replaced
// in one transaction, so every opaque token is single-use. Presenting a
// fingerprint that only matches a session's previous token means the old
// token was replayed after rotation; the whole account's sessions are
// revoked.
func (s *SessionService) Refresh(ctx context.Context, refreshOpaque string) (*domain.TokenPair, error) {
	now := s.now()
	l := slogx.FromContext(ctx)
	fp := cryptox.FingerprintToken(refreshOpaque)

	var result *domain.TokenPair

	// Rejections that also write (replay revocation, expired-row cleanup)
	// report through refreshErr so the transaction still commits; returning
	// the error from the closure would roll those writes back.
	var refreshErr error

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		session, err := tx.Sessions().GetSessionByTokenHash(ctx, fp)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}

			// Replay check: a rotated-out fingerprint identifies its family.
			if stale, perr := tx.Sessions().GetSessionByPrevTokenHash(ctx, fp); perr == nil {
				l.Warn("refresh token replay detected, revoking all sessions",
					slog.String("account_id", stale.AccountID),
				)
				if derr := tx.Sessions().DeleteAllAccountSessions(ctx, stale.AccountID); derr != nil {
					return derr
				}
			}
			refreshErr = ErrInvalidRefresh
			return nil
		}

		if now.After(session.ExpiresAt) {
			if err := tx.Sessions().DeleteSessionByTokenHash(ctx, fp); err != nil {
				return err
			}
			refreshErr = ErrInvalidRefresh
			return nil
		}

		account, err := tx.Accounts().GetAccountByID(ctx, session.AccountID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidRefresh
			}
			return err
		}
		if err := checkStanding(account); err != nil {
			return err
		}

		accessToken, err := s.signAccess(account, session.ID, now)
		if err != nil {
			return err
		}

		newOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return err
		}

		if err := tx.Sessions().DeleteSessionByTokenHash(ctx, fp); err != nil {
			return err
		}

		rotated := domain.Session{
			ID:            session.ID,
			AccountID:     session.AccountID,
			TokenHash:     cryptox.FingerprintToken(newOpaque),
			PrevTokenHash: &fp,
			IssuedAt:      now,
			ExpiresAt:     now.Add(s.RefreshTTL),
		}
		if err := tx.Sessions().CreateSession(ctx, rotated); err != nil {
			return err
		}

		result = &domain.TokenPair{
			AccessToken:  accessToken,
			RefreshToken: newOpaque,
			ExpiresIn:    s.AccessTTL,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if refreshErr != nil {
		return nil, refreshErr
	}

	return result, nil
}

// Revoke deletes the session matching a refresh token. Revoking an unknown
// token is a no-op so logout stays idempotent.
func (s *SessionService) Revoke(ctx context.Context, refreshOpaque string) error {
	err := s.Store.Sessions().DeleteSessionByTokenHash(ctx, cryptox.FingerprintToken(refreshOpaque))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// RevokeAll deletes every session for an account.
func (s *SessionService) RevokeAll(ctx context.Context, accountID string) error {
	return s.Store.Sessions().DeleteAllAccountSessions(ctx, accountID)
}

func (s *SessionService) signAccess(account domain.Account, sid string, now time.Time) (string, error) {
	claims := jwtx.NewAccessClaims(account.ID, sid, account.Role, s.AccessTTL, s.Issuer, now)
	return s.Signer.Sign(claims)
}

// checkStanding gates credential flows on administrative account states.
func checkStanding(a domain.Account) error {
	switch a.Status {
	case domain.StatusSuspended:
		return ErrAccountSuspended
	case domain.StatusBanned:
		return ErrAccountBanned
	}
	return nil
}
