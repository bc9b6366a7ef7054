package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keylet/keylet/internal/identity/domain"
	"github.com/keylet/keylet/internal/identity/store"
	"github.com/keylet/keylet/pkg/idx"
)

func TestHousekeepingSweepsExpiredRecords(t *testing.T) {
	t.Parallel()

	st := newStore(t)
	account := seedActiveAccount(t, st)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, st.Sessions().CreateSession(ctx, domain.Session{
		ID:        idx.New().String(),
		AccountID: account.ID,
		TokenHash: "expired-session",
		IssuedAt:  past.Add(-time.Hour),
		ExpiresAt: past,
	}))
	require.NoError(t, st.Verifications().UpsertCode(ctx, account.ID, domain.ChannelPhone, "stale", past))
	require.NoError(t, st.Challenges().CreateChallenge(ctx, domain.TwoFactorChallenge{
		TokenHash: "expired-challenge",
		AccountID: account.ID,
		ExpiresAt: past,
	}))
	require.NoError(t, st.Accounts().SetResetToken(ctx, account.ID, "stale-reset", past))

	svc := NewHousekeepingService(st, discardLogger(), time.Hour)
	svc.cleanup()

	n, err := st.Sessions().CountAccountSessions(ctx, account.ID)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = st.Verifications().GetVerification(ctx, account.ID, domain.ChannelPhone)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = st.Challenges().GetChallengeByTokenHash(ctx, "expired-challenge", past.Add(-time.Minute))
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := st.Accounts().GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	require.Nil(t, got.ResetTokenHash)
}

func TestHousekeepingStartStop(t *testing.T) {
	t.Parallel()

	st := newStore(t)
	svc := NewHousekeepingService(st, discardLogger(), time.Hour)
	svc.Start()
	svc.Stop()
}
