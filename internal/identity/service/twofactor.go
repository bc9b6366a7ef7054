package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/keylet/keylet/internal/identity/domain"
	"github.com/keylet/keylet/internal/identity/store"
	"github.com/keylet/keylet/pkg/cryptox"
)

const (
	backupCodeCount = 10
	backupCodeBytes = cryptox.TokenSize128

	totpPeriod = 30
	// totpSkew widens acceptance to ±1 minute around the current step to
	// absorb device clock drift.
	totpSkew = 2
)

var (
	ErrTwoFactorEnabled    = errors.New("twofactor_already_enabled")
	ErrTwoFactorNotSetup   = errors.New("twofactor_not_setup")
	ErrTwoFactorNotEnabled = errors.New("twofactor_not_enabled")
	ErrCodeRequired        = errors.New("twofactor_code_required")
)

// TwoFactorService manages TOTP enrollment, backup codes, and teardown.
type TwoFactorService struct {
	Store  store.Store
	Issuer string // label shown in authenticator apps

	// DisableRequiresCode, when set, refuses to tear down 2FA on password
	// alone; a TOTP or backup code must accompany the request.
	DisableRequiresCode bool

	Now func() time.Time
}

func (s *TwoFactorService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Setup generates a TOTP secret for the account and returns it with the
// otpauth:// URI. 2FA is not enabled until the first code is confirmed.
func (s *TwoFactorService) Setup(ctx context.Context, accountID string) (domain.TwoFactorEnrollment, error) {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return domain.TwoFactorEnrollment{}, err
	}
	if account.TwoFactorEnabled() {
		return domain.TwoFactorEnrollment{}, ErrTwoFactorEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: account.Email,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.TwoFactorEnrollment{}, fmt.Errorf("generate totp key: %w", err)
	}

	if err := s.Store.Accounts().SetTwoFactorSecret(ctx, accountID, key.Secret()); err != nil {
		return domain.TwoFactorEnrollment{}, err
	}

	return domain.TwoFactorEnrollment{Secret: key.Secret(), QRCode: key.URL()}, nil
}

// ConfirmEnable verifies the first TOTP code against the enrolled secret,
// turns 2FA on, and mints the backup code batch. The raw codes are returned
// exactly once.
func (s *TwoFactorService) ConfirmEnable(ctx context.Context, accountID, code string) ([]string, error) {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.TwoFactorEnabled() {
		return nil, ErrTwoFactorEnabled
	}
	if account.TwoFactorSecret == nil || *account.TwoFactorSecret == "" {
		return nil, ErrTwoFactorNotSetup
	}

	if !validTOTP(code, *account.TwoFactorSecret, s.now()) {
		return nil, ErrInvalidSecondFactor
	}

	codes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, accountID); err != nil {
			return err
		}
		for _, c := range codes {
			if err := tx.BackupCodes().CreateBackupCode(ctx, accountID, cryptox.FingerprintToken(c)); err != nil {
				return err
			}
		}
		return tx.Accounts().EnableTwoFactor(ctx, accountID, s.now())
	})
	if err != nil {
		return nil, err
	}

	return codes, nil
}

// Disable tears down 2FA. The password is always required; whether a second
// factor must accompany it is a deployment policy.
func (s *TwoFactorService) Disable(ctx context.Context, accountID, password, code string) error {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.TwoFactorEnabled() {
		return ErrTwoFactorNotEnabled
	}

	if err := cryptox.VerifyPassword(password, account.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return ErrInvalidCredentials
		}
		return err
	}

	if code != "" {
		if err := verifySecondFactor(ctx, s.Store, account, code, s.now()); err != nil {
			return err
		}
	} else if s.DisableRequiresCode {
		return ErrCodeRequired
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, accountID); err != nil {
			return err
		}
		return tx.Accounts().DisableTwoFactor(ctx, accountID)
	})
}

// RegenerateBackupCodes replaces the whole batch after a password check.
func (s *TwoFactorService) RegenerateBackupCodes(ctx context.Context, accountID, password string) ([]string, error) {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.TwoFactorEnabled() {
		return nil, ErrTwoFactorNotEnabled
	}

	if err := cryptox.VerifyPassword(password, account.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	codes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, accountID); err != nil {
			return err
		}
		for _, c := range codes {
			if err := tx.BackupCodes().CreateBackupCode(ctx, accountID, cryptox.FingerprintToken(c)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return codes, nil
}

// Status reports whether 2FA is on and how many backup codes remain.
func (s *TwoFactorService) Status(ctx context.Context, accountID string) (domain.TwoFactorStatus, error) {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return domain.TwoFactorStatus{}, err
	}

	remaining, err := s.Store.BackupCodes().CountBackupCodes(ctx, accountID)
	if err != nil {
		return domain.TwoFactorStatus{}, err
	}

	return domain.TwoFactorStatus{
		Enabled:              account.TwoFactorEnabled(),
		BackupCodesRemaining: remaining,
	}, nil
}

func (s *TwoFactorService) getAccount(ctx context.Context, accountID string) (domain.Account, error) {
	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Account{}, ErrAccountNotFound
		}
		return domain.Account{}, err
	}
	return account, nil
}

func generateBackupCodes() ([]string, error) {
	codes := make([]string, backupCodeCount)
	for i := range codes {
		c, err := cryptox.GenerateToken(backupCodeBytes)
		if err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		codes[i] = c
	}
	return codes, nil
}

func validTOTP(code, secret string, now time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, now, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// verifySecondFactor accepts either a current TOTP code or an unused backup
// code. Consuming a backup code deletes its row, so it can never be spent
// twice.
func verifySecondFactor(ctx context.Context, st store.Store, account domain.Account, code string, now time.Time) error {
	if account.TwoFactorSecret != nil && validTOTP(code, *account.TwoFactorSecret, now) {
		return nil
	}

	ok, err := st.BackupCodes().ConsumeBackupCode(ctx, account.ID, cryptox.FingerprintToken(code))
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidSecondFactor
	}
	return nil
}
