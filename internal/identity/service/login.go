package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/keylet/keylet/internal/identity/domain"
	"github.com/keylet/keylet/internal/identity/store"
	"github.com/keylet/keylet/pkg/cryptox"
	"github.com/keylet/keylet/pkg/slogx"
)

const (
	// DefaultLockThreshold is how many consecutive failures lock an account.
	DefaultLockThreshold = 5

	// DefaultLockCooldown is how long a lockout lasts.
	DefaultLockCooldown = 30 * time.Minute

	// ChallengeTTL bounds the window for completing the second login step.
	ChallengeTTL = 5 * time.Minute

	// MaxChallengeAttempts bounds failed second-factor submissions per
	// challenge.
	MaxChallengeAttempts = 5
)

var (
	ErrInvalidCredentials  = errors.New("invalid_credentials")
	ErrAccountLocked       = errors.New("account_locked")
	ErrChallengeInvalid    = errors.New("challenge_invalid")
	ErrTooManyTwoFactor    = errors.New("too_many_twofactor_attempts")
	ErrInvalidSecondFactor = errors.New("invalid_second_factor")
)

// LoginService authenticates credentials, enforces brute-force lockout, and
// runs the optional second (TOTP / backup code) step.
type LoginService struct {
	Store    store.Store
	Sessions *SessionService

	LockThreshold int           // zero means DefaultLockThreshold
	LockCooldown  time.Duration // zero means DefaultLockCooldown

	Now func() time.Time
}

func (s *LoginService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *LoginService) threshold() int {
	if s.LockThreshold > 0 {
		return s.LockThreshold
	}
	return DefaultLockThreshold
}

func (s *LoginService) cooldown() time.Duration {
	if s.LockCooldown > 0 {
		return s.LockCooldown
	}
	return DefaultLockCooldown
}

// LoginResult is what a password check hands back: either a token pair, or a
// pending two-factor challenge.
type LoginResult struct {
	Account domain.Account
	Tokens  *domain.TokenPair

	TwoFactorRequired bool
	ChallengeToken    string
	Methods           []string
}

// Authenticate checks an email-or-phone identifier and password. Unknown
// identifiers and wrong passwords are indistinguishable to the caller.
func (s *LoginService) Authenticate(ctx context.Context, identifier, password string) (LoginResult, error) {
	now := s.now()
	l := slogx.FromContext(ctx)

	// Emails are stored lowercase; phone identifiers have no letters to fold.
	account, err := s.Store.Accounts().GetAccountByIdentifier(ctx, strings.ToLower(identifier))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if account.Locked(now) {
		return LoginResult{}, ErrAccountLocked
	}
	if err := checkStanding(account); err != nil {
		return LoginResult{}, err
	}

	if err := cryptox.VerifyPassword(password, account.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			return LoginResult{}, err
		}

		attempts, locked, rerr := s.Store.Accounts().RecordFailedLogin(
			ctx, account.ID, s.threshold(), now.Add(s.cooldown()))
		if rerr != nil {
			return LoginResult{}, rerr
		}
		if locked != nil && now.Before(*locked) {
			l.Warn("account locked after repeated login failures",
				slog.String("account_id", account.ID),
				slog.Int("attempts", attempts),
			)
			return LoginResult{}, ErrAccountLocked
		}
		return LoginResult{}, ErrInvalidCredentials
	}

	if err := s.Store.Accounts().RecordSuccessfulLogin(ctx, account.ID, now); err != nil {
		return LoginResult{}, err
	}

	if account.TwoFactorEnabled() {
		return s.beginChallenge(ctx, account, now)
	}

	pair, err := s.Sessions.Issue(ctx, account)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Account: account, Tokens: pair}, nil
}

func (s *LoginService) beginChallenge(ctx context.Context, account domain.Account, now time.Time) (LoginResult, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return LoginResult{}, err
	}

	challenge := domain.TwoFactorChallenge{
		TokenHash: cryptox.FingerprintToken(token),
		AccountID: account.ID,
		ExpiresAt: now.Add(ChallengeTTL),
	}
	if err := s.Store.Challenges().CreateChallenge(ctx, challenge); err != nil {
		return LoginResult{}, err
	}

	methods := []string{"totp"}
	if n, err := s.Store.BackupCodes().CountBackupCodes(ctx, account.ID); err == nil && n > 0 {
		methods = append(methods, "backup_code")
	}

	return LoginResult{
		Account:           account,
		TwoFactorRequired: true,
		ChallengeToken:    token,
		Methods:           methods,
	}, nil
}

// CompleteTwoFactor redeems a challenge token plus a TOTP or backup code and
// issues the session the password step withheld.
func (s *LoginService) CompleteTwoFactor(ctx context.Context, challengeToken, code string) (LoginResult, error) {
	now := s.now()
	fp := cryptox.FingerprintToken(challengeToken)

	challenge, err := s.Store.Challenges().GetChallengeByTokenHash(ctx, fp, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, ErrChallengeInvalid
		}
		return LoginResult{}, err
	}

	if challenge.Attempts >= MaxChallengeAttempts {
		_ = s.Store.Challenges().DeleteChallenge(ctx, fp)
		return LoginResult{}, ErrTooManyTwoFactor
	}

	account, err := s.Store.Accounts().GetAccountByID(ctx, challenge.AccountID)
	if err != nil {
		return LoginResult{}, err
	}

	// Standing can change during the challenge window; re-check before
	// handing out a session.
	if err := checkStanding(account); err != nil {
		_ = s.Store.Challenges().DeleteChallenge(ctx, fp)
		return LoginResult{}, err
	}

	if err := verifySecondFactor(ctx, s.Store, account, code, now); err != nil {
		attempts, ierr := s.Store.Challenges().IncrementChallengeAttempts(ctx, fp)
		if ierr != nil {
			return LoginResult{}, ierr
		}
		if attempts >= MaxChallengeAttempts {
			_ = s.Store.Challenges().DeleteChallenge(ctx, fp)
			return LoginResult{}, ErrTooManyTwoFactor
		}
		return LoginResult{}, err
	}

	if err := s.Store.Challenges().DeleteChallenge(ctx, fp); err != nil {
		return LoginResult{}, err
	}

	pair, err := s.Sessions.Issue(ctx, account)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Account: account, Tokens: pair}, nil
}
