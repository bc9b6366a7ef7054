package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keylet/keylet/pkg/cryptox"
)

var resetTokenPattern = regexp.MustCompile(`password: (\S+)`)

func extractResetToken(t *testing.T, body string) string {
	t.Helper()
	m := resetTokenPattern.FindStringSubmatch(body)
	require.NotNil(t, m, "no reset token in message: %q", body)
	return m[1]
}

func TestRequestResetUnknownEmailIsSilent(t *testing.T) {
	t.Parallel()

	st := newStore(t)
	fake := &fakeNotifier{}
	svc := &PasswordService{Store: st, Mail: fake}

	require.NoError(t, svc.RequestReset(context.Background(), "nobody@example.com"))
	require.Empty(t, fake.emails)
}

func TestResetFlowEndToEnd(t *testing.T) {
	t.Parallel()

	st := newStore(t)
	account := seedActiveAccount(t, st)
	fake := &fakeNotifier{}
	svc := &PasswordService{Store: st, Mail: fake}
	login := newLogin(t, st)
	ctx := context.Background()

	// A live session that the reset must kill.
	_, err := login.Authenticate(ctx, account.Email, testPassword)
	require.NoError(t, err)

	require.NoError(t, svc.RequestReset(ctx, account.Email))
	token := extractResetToken(t, fake.lastEmail(t).Body)

	const newPassword = "brand-new-password"
	require.NoError(t, svc.CompleteReset(ctx, token, newPassword))

	// Old password is out, new one is in.
	_, err = login.Authenticate(ctx, account.Email, testPassword)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	result, err := login.Authenticate(ctx, account.Email, newPassword)
	require.NoError(t, err)
	require.NotNil(t, result.Tokens)

	// All pre-reset sessions were revoked (only the fresh login remains).
	n, err := st.Sessions().CountAccountSessions(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// The token is single-use.
	err = svc.CompleteReset(ctx, token, "another-password!")
	require.ErrorIs(t, err, ErrResetInvalid)
}

func TestResetTokenExpires(t *testing.T) {
	t.Parallel()

	st := newStore(t)
	account := seedActiveAccount(t, st)
	fake := &fakeNotifier{}
	svc := &PasswordService{Store: st, Mail: fake}
	ctx := context.Background()

	require.NoError(t, svc.RequestReset(ctx, account.Email))
	token := extractResetToken(t, fake.lastEmail(t).Body)

	svc.Now = func() time.Time { return time.Now().UTC().Add(11 * time.Minute) }
	err := svc.CompleteReset(ctx, token, "whatever-password")
	require.ErrorIs(t, err, ErrResetInvalid)
}

func TestRequestResetRollsBackOnSendFailure(t *testing.T) {
	t.Parallel()

	st := newStore(t)
	account := seedActiveAccount(t, st)
	fake := &fakeNotifier{emailErr: errors.New("smtp down")}
	svc := &PasswordService{Store: st, Mail: fake}
	ctx := context.Background()

	err := svc.RequestReset(ctx, account.Email)
	require.ErrorIs(t, err, ErrNotifyFailed)

	// No token survived the rollback.
	got, err := st.Accounts().GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	require.Nil(t, got.ResetTokenHash)
	require.Nil(t, got.ResetExpiresAt)
}

func TestChangePassword(t *testing.T) {
	t.Parallel()

	st := newStore(t)
	account := seedActiveAccount(t, st)
	svc := &PasswordService{Store: st, Mail: &fakeNotifier{}}
	login := newLogin(t, st)
	ctx := context.Background()

	err := svc.ChangePassword(ctx, account.ID, "wrong-current", "new-password-1")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	// Sessions survive an in-session password change.
	_, err = login.Authenticate(ctx, account.Email, testPassword)
	require.NoError(t, err)

	require.NoError(t, svc.ChangePassword(ctx, account.ID, testPassword, "new-password-1"))

	n, err := st.Sessions().CountAccountSessions(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	result, err := login.Authenticate(ctx, account.Email, "new-password-1")
	require.NoError(t, err)
	require.NotNil(t, result.Tokens)

	got, err := st.Accounts().GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PasswordChangedAt)
	require.NoError(t, cryptox.VerifyPassword("new-password-1", got.PasswordHash))
}
