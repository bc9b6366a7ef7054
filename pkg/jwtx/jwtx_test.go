package jwtx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T, kid string) (*Signer, *Verifier) {
	t.Helper()

	signer, err := GenerateSigner(kid)
	require.NoError(t, err)

	keys := NewKeySet()
	keys.Add(kid, signer.Public())

	return signer, &Verifier{Keys: keys, Issuer: "keylet-identity"}
}

func TestSignAndVerify(t *testing.T) {
	signer, verifier := newTestSigner(t, "k1")

	claims := NewAccessClaims("acct-1", "sess-1", "tenant", time.Hour, "keylet-identity", time.Now().UTC())
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	got, err := verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "acct-1", got.Subject)
	require.Equal(t, "sess-1", got.SID)
	require.Equal(t, "tenant", got.Role)
	require.NotEmpty(t, got.ID, "jti should be set")
}

func TestVerifyRejectsExpired(t *testing.T) {
	signer, verifier := newTestSigner(t, "k1")

	issued := time.Now().UTC().Add(-2 * time.Hour)
	claims := NewAccessClaims("acct-1", "sess-1", "tenant", time.Hour, "keylet-identity", issued)
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	signer, err := GenerateSigner("k1")
	require.NoError(t, err)

	keys := NewKeySet()
	keys.Add("k1", signer.Public())
	verifier := &Verifier{Keys: keys, Issuer: "someone-else"}

	claims := NewAccessClaims("acct-1", "sess-1", "tenant", time.Hour, "keylet-identity", time.Now().UTC())
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, ErrIssuer)
}

func TestVerifyRejectsUnknownKID(t *testing.T) {
	signer, err := GenerateSigner("rotated-away")
	require.NoError(t, err)

	_, verifier := newTestSigner(t, "current")

	claims := NewAccessClaims("acct-1", "sess-1", "tenant", time.Hour, "keylet-identity", time.Now().UTC())
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.Error(t, err)
}

func TestRotationKeepsOldTokensValid(t *testing.T) {
	old, err := GenerateSigner("k1")
	require.NoError(t, err)
	current, err := GenerateSigner("k2")
	require.NoError(t, err)

	keys := NewKeySet()
	keys.Add("k1", old.Public())
	keys.Add("k2", current.Public())
	verifier := &Verifier{Keys: keys, Issuer: "keylet-identity"}

	now := time.Now().UTC()
	oldToken, err := old.Sign(NewAccessClaims("a", "s", "tenant", time.Hour, "keylet-identity", now))
	require.NoError(t, err)
	newToken, err := current.Sign(NewAccessClaims("a", "s", "tenant", time.Hour, "keylet-identity", now))
	require.NoError(t, err)

	_, err = verifier.Verify(oldToken)
	require.NoError(t, err)
	_, err = verifier.Verify(newToken)
	require.NoError(t, err)
}

func TestPEMRoundTrip(t *testing.T) {
	signer, err := GenerateSigner("k1")
	require.NoError(t, err)

	pemBytes, err := signer.EncodePEM()
	require.NoError(t, err)

	loaded, err := NewSigner("k1", pemBytes)
	require.NoError(t, err)
	require.Equal(t, signer.Public(), loaded.Public())
}
