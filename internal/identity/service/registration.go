package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/keylet/keylet/internal/identity/domain"
	"github.com/keylet/keylet/internal/identity/notify"
	"github.com/keylet/keylet/internal/identity/store"
	"github.com/keylet/keylet/pkg/cryptox"
	"github.com/keylet/keylet/pkg/idx"
)

const (
	// DefaultCodeTTL is how long a verification code stays redeemable.
	DefaultCodeTTL = 10 * time.Minute

	// DefaultMaxCodeAttempts bounds failed submissions per phone code.
	DefaultMaxCodeAttempts = 5
)

var (
	ErrEmailTaken          = errors.New("email_taken")
	ErrPhoneTaken          = errors.New("phone_taken")
	ErrAccountNotFound     = errors.New("account_not_found")
	ErrAlreadyVerified     = errors.New("already_verified")
	ErrCodeExpired         = errors.New("code_expired")
	ErrCodeInvalid         = errors.New("code_invalid")
	ErrTooManyCodeAttempts = errors.New("too_many_code_attempts")
)

// RegistrationService creates accounts and walks them through dual-channel
// (email + phone) verification. Codes are delivered best-effort; a dead SMTP
// hop must not make registration fail.
type RegistrationService struct {
	Store    store.Store
	Sessions *SessionService
	Notify   *notify.Dispatcher

	CodeTTL         time.Duration // zero means DefaultCodeTTL
	MaxCodeAttempts int           // zero means DefaultMaxCodeAttempts

	Now func() time.Time
}

func (s *RegistrationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *RegistrationService) codeTTL() time.Duration {
	if s.CodeTTL > 0 {
		return s.CodeTTL
	}
	return DefaultCodeTTL
}

func (s *RegistrationService) maxAttempts() int {
	if s.MaxCodeAttempts > 0 {
		return s.MaxCodeAttempts
	}
	return DefaultMaxCodeAttempts
}

// Register creates a pending account and issues one verification code per
// channel. Codes are persisted as fingerprints only; the raw values go out
// via the async dispatcher after the transaction commits.
func (s *RegistrationService) Register(
	ctx context.Context,
	fullName, email, phone, password, role string,
) (domain.Account, error) {
	now := s.now()

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash password: %w", err)
	}

	// Stored lowercase so lookups never depend on the caller's casing.
	email = strings.ToLower(email)

	account := domain.Account{
		ID:           idx.New().String(),
		FullName:     fullName,
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		Role:         role,
		Status:       domain.StatusPending,
	}

	emailCode, err := cryptox.GenerateOTP()
	if err != nil {
		return domain.Account{}, err
	}
	phoneCode, err := cryptox.GenerateOTP()
	if err != nil {
		return domain.Account{}, err
	}
	expiresAt := now.Add(s.codeTTL())

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().CreateAccount(ctx, account); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return conflictError(ctx, tx.Accounts(), email)
			}
			return err
		}

		if err := tx.Verifications().UpsertCode(ctx, account.ID, domain.ChannelEmail,
			cryptox.FingerprintToken(emailCode), expiresAt); err != nil {
			return err
		}
		return tx.Verifications().UpsertCode(ctx, account.ID, domain.ChannelPhone,
			cryptox.FingerprintToken(phoneCode), expiresAt)
	})
	if err != nil {
		return domain.Account{}, err
	}

	s.dispatchCode(account, domain.ChannelEmail, emailCode)
	s.dispatchCode(account, domain.ChannelPhone, phoneCode)

	return account, nil
}

// conflictError distinguishes which unique column collided so the handler
// can point at the right field.
func conflictError(ctx context.Context, accounts store.Accounts, email string) error {
	if _, err := accounts.GetAccountByEmail(ctx, email); err == nil {
		return ErrEmailTaken
	}
	return ErrPhoneTaken
}

// VerifyResult reports the outcome of a successful code submission.
type VerifyResult struct {
	Account       domain.Account
	FullyVerified bool

	// Tokens is set only when the email channel just verified: proving the
	// email activates the account and doubles as its first login.
	Tokens *domain.TokenPair
}

// VerifyCode redeems a verification code for one channel.
func (s *RegistrationService) VerifyCode(
	ctx context.Context,
	accountID, code string,
	ch domain.Channel,
) (VerifyResult, error) {
	now := s.now()

	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return VerifyResult{}, ErrAccountNotFound
		}
		return VerifyResult{}, err
	}

	v, err := s.Store.Verifications().GetVerification(ctx, accountID, ch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Housekeeping removes expired unverified codes, so a missing
			// row means the code lapsed, not that the input was wrong.
			return VerifyResult{}, ErrCodeExpired
		}
		return VerifyResult{}, err
	}

	if v.Verified() {
		return VerifyResult{}, ErrAlreadyVerified
	}
	if v.Expired(now) {
		return VerifyResult{}, ErrCodeExpired
	}
	if ch == domain.ChannelPhone && v.Attempts >= s.maxAttempts() {
		return VerifyResult{}, ErrTooManyCodeAttempts
	}

	fp := cryptox.FingerprintToken(code)
	if subtle.ConstantTimeCompare([]byte(fp), []byte(v.CodeHash)) != 1 {
		attempts, err := s.Store.Verifications().IncrementAttempts(ctx, accountID, ch)
		if err != nil {
			return VerifyResult{}, err
		}
		if ch == domain.ChannelPhone && attempts >= s.maxAttempts() {
			return VerifyResult{}, ErrTooManyCodeAttempts
		}
		return VerifyResult{}, ErrCodeInvalid
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Verifications().MarkVerified(ctx, accountID, ch, now); err != nil {
			return err
		}
		if ch == domain.ChannelEmail && account.Status == domain.StatusPending {
			return tx.Accounts().UpdateStatus(ctx, accountID, domain.StatusActive)
		}
		return nil
	})
	if err != nil {
		return VerifyResult{}, err
	}

	result := VerifyResult{Account: account, FullyVerified: s.fullyVerified(ctx, accountID)}

	if ch == domain.ChannelEmail {
		if account.Status == domain.StatusPending {
			result.Account.Status = domain.StatusActive
		}
		// Suspended or banned accounts still verify, but get no session.
		if result.Account.Status == domain.StatusActive {
			pair, err := s.Sessions.Issue(ctx, result.Account)
			if err != nil {
				return VerifyResult{}, err
			}
			result.Tokens = pair
		}
	}

	return result, nil
}

// fullyVerified reports whether both channels have been proven.
func (s *RegistrationService) fullyVerified(ctx context.Context, accountID string) bool {
	for _, ch := range []domain.Channel{domain.ChannelEmail, domain.ChannelPhone} {
		v, err := s.Store.Verifications().GetVerification(ctx, accountID, ch)
		if err != nil || !v.Verified() {
			return false
		}
	}
	return true
}

// ResendCode regenerates the code for a channel, resetting its attempt
// counter, and dispatches it. Returns how long the fresh code lives.
func (s *RegistrationService) ResendCode(
	ctx context.Context,
	accountID string,
	ch domain.Channel,
) (time.Duration, error) {
	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}

	v, err := s.Store.Verifications().GetVerification(ctx, accountID, ch)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}
	if err == nil && v.Verified() {
		return 0, ErrAlreadyVerified
	}

	code, err := cryptox.GenerateOTP()
	if err != nil {
		return 0, err
	}

	ttl := s.codeTTL()
	if err := s.Store.Verifications().UpsertCode(ctx, accountID, ch,
		cryptox.FingerprintToken(code), s.now().Add(ttl)); err != nil {
		return 0, err
	}

	s.dispatchCode(account, ch, code)
	return ttl, nil
}

func (s *RegistrationService) dispatchCode(account domain.Account, ch domain.Channel, code string) {
	if s.Notify == nil {
		return
	}

	minutes := int(s.codeTTL().Minutes())
	switch ch {
	case domain.ChannelEmail:
		s.Notify.EmailAsync(account.Email, "Verify your Keylet email",
			fmt.Sprintf("Hi %s,\n\nYour Keylet verification code is %s. It expires in %d minutes.\n",
				account.FullName, code, minutes))
	case domain.ChannelPhone:
		s.Notify.SMSAsync(account.Phone,
			fmt.Sprintf("Your Keylet verification code is %s. It expires in %d minutes.", code, minutes))
	}
}
