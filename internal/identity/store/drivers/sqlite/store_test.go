package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keylet/keylet/internal/identity/domain"
	"github.com/keylet/keylet/internal/identity/store"
	"github.com/keylet/keylet/pkg/idx"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

// phoneTail takes the entropy tail of a fresh ULID. The leading characters
// are a millisecond timestamp and collide across calls in the same instant.
func phoneTail() string {
	s := idx.New().String()
	return s[len(s)-8:]
}

func seedAccount(t *testing.T, s store.Store) domain.Account {
	t.Helper()

	a := domain.Account{
		ID:           idx.New().String(),
		FullName:     "Avery Tenant",
		Email:        idx.New().String() + "@example.com",
		Phone:        "+614" + phoneTail(),
		PasswordHash: "argon2id:test",
		Role:         "tenant",
		Status:       domain.StatusPending,
	}
	require.NoError(t, s.Accounts().CreateAccount(context.Background(), a))
	return a
}

func TestAccountsUniqueEmail(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s)

	dup := a
	dup.ID = idx.New().String()
	dup.Phone = "+61400000099"
	err := s.Accounts().CreateAccount(ctx, dup)
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestRecordFailedLoginLocksAtThreshold(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s)

	lockUntil := time.Now().UTC().Add(30 * time.Minute).Truncate(time.Second)

	for i := 1; i < 5; i++ {
		attempts, locked, err := s.Accounts().RecordFailedLogin(ctx, a.ID, 5, lockUntil)
		require.NoError(t, err)
		require.Equal(t, i, attempts)
		require.Nil(t, locked)
	}

	attempts, locked, err := s.Accounts().RecordFailedLogin(ctx, a.ID, 5, lockUntil)
	require.NoError(t, err)
	require.Equal(t, 5, attempts)
	require.NotNil(t, locked)
	require.WithinDuration(t, lockUntil, *locked, time.Second)

	// Success resets the counter and the lock.
	require.NoError(t, s.Accounts().RecordSuccessfulLogin(ctx, a.ID, time.Now().UTC()))
	got, err := s.Accounts().GetAccountByID(ctx, a.ID)
	require.NoError(t, err)
	require.Zero(t, got.LoginAttempts)
	require.Nil(t, got.LockUntil)
	require.NotNil(t, got.LastLoginAt)
}

func TestGetAccountByIdentifier(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s)

	byEmail, err := s.Accounts().GetAccountByIdentifier(ctx, a.Email)
	require.NoError(t, err)
	require.Equal(t, a.ID, byEmail.ID)

	byPhone, err := s.Accounts().GetAccountByIdentifier(ctx, a.Phone)
	require.NoError(t, err)
	require.Equal(t, a.ID, byPhone.ID)

	_, err = s.Accounts().GetAccountByIdentifier(ctx, "nobody@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestResetTokenLookupHonoursExpiry(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s)

	now := time.Now().UTC()
	require.NoError(t, s.Accounts().SetResetToken(ctx, a.ID, "fingerprint", now.Add(10*time.Minute)))

	got, err := s.Accounts().GetAccountByResetTokenHash(ctx, "fingerprint", now)
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)

	_, err = s.Accounts().GetAccountByResetTokenHash(ctx, "fingerprint", now.Add(11*time.Minute))
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Accounts().ClearResetToken(ctx, a.ID))
	_, err = s.Accounts().GetAccountByResetTokenHash(ctx, "fingerprint", now)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpsertCodeResetsAttempts(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s)

	expires := time.Now().UTC().Add(10 * time.Minute)
	require.NoError(t, s.Verifications().UpsertCode(ctx, a.ID, domain.ChannelPhone, "hash-1", expires))

	for i := 1; i <= 3; i++ {
		attempts, err := s.Verifications().IncrementAttempts(ctx, a.ID, domain.ChannelPhone)
		require.NoError(t, err)
		require.Equal(t, i, attempts)
	}

	// A regenerated code replaces the old one and zeroes the counter.
	require.NoError(t, s.Verifications().UpsertCode(ctx, a.ID, domain.ChannelPhone, "hash-2", expires))
	v, err := s.Verifications().GetVerification(ctx, a.ID, domain.ChannelPhone)
	require.NoError(t, err)
	require.Equal(t, "hash-2", v.CodeHash)
	require.Zero(t, v.Attempts)
}

func TestMarkVerifiedClearsCode(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s)

	expires := time.Now().UTC().Add(10 * time.Minute)
	require.NoError(t, s.Verifications().UpsertCode(ctx, a.ID, domain.ChannelEmail, "hash", expires))
	require.NoError(t, s.Verifications().MarkVerified(ctx, a.ID, domain.ChannelEmail, time.Now().UTC()))

	v, err := s.Verifications().GetVerification(ctx, a.ID, domain.ChannelEmail)
	require.NoError(t, err)
	require.True(t, v.Verified())
	require.Empty(t, v.CodeHash)
}

func TestDeleteSessionByTokenHashSignalsReuse(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s)

	now := time.Now().UTC()
	sess := domain.Session{
		ID:        idx.New().String(),
		AccountID: a.ID,
		TokenHash: "refresh-fingerprint",
		IssuedAt:  now,
		ExpiresAt: now.Add(30 * 24 * time.Hour),
	}
	require.NoError(t, s.Sessions().CreateSession(ctx, sess))

	require.NoError(t, s.Sessions().DeleteSessionByTokenHash(ctx, sess.TokenHash))

	// Second delete of the same fingerprint is the reuse signal.
	err := s.Sessions().DeleteSessionByTokenHash(ctx, sess.TokenHash)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestConsumeBackupCodeIsSingleUse(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s)

	require.NoError(t, s.BackupCodes().CreateBackupCode(ctx, a.ID, "code-fingerprint"))

	ok, err := s.BackupCodes().ConsumeBackupCode(ctx, a.ID, "code-fingerprint")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.BackupCodes().ConsumeBackupCode(ctx, a.ID, "code-fingerprint")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestChallengeAttemptsAndExpiry(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s)

	now := time.Now().UTC()
	c := domain.TwoFactorChallenge{
		TokenHash: "challenge-fingerprint",
		AccountID: a.ID,
		ExpiresAt: now.Add(5 * time.Minute),
	}
	require.NoError(t, s.Challenges().CreateChallenge(ctx, c))

	attempts, err := s.Challenges().IncrementChallengeAttempts(ctx, c.TokenHash)
	require.NoError(t, err)
	require.Equal(t, 1, attempts)

	_, err = s.Challenges().GetChallengeByTokenHash(ctx, c.TokenHash, now.Add(6*time.Minute))
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Challenges().DeleteChallenge(ctx, c.TokenHash))
	_, err = s.Challenges().GetChallengeByTokenHash(ctx, c.TokenHash, now)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteAccountCascades(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s)

	now := time.Now().UTC()
	require.NoError(t, s.Sessions().CreateSession(ctx, domain.Session{
		ID:        idx.New().String(),
		AccountID: a.ID,
		TokenHash: "fp",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, s.BackupCodes().CreateBackupCode(ctx, a.ID, "bc"))

	require.NoError(t, s.Accounts().DeleteAccount(ctx, a.ID))

	n, err := s.Sessions().CountAccountSessions(ctx, a.ID)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = s.BackupCodes().CountBackupCodes(ctx, a.ID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s)

	sentinel := store.ErrAlreadyExists
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().UpdateStatus(ctx, a.ID, domain.StatusActive); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	got, err := s.Accounts().GetAccountByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, got.Status)
}
