package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known throwaway key, never funded anywhere.
const testKeyHex = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestVoucherSignRecover(t *testing.T) {
	signer, err := NewVoucherSigner(testKeyHex, 137)
	require.NoError(t, err)

	sig, err := signer.SignVoucher("escrow-m1", "0x1111111111111111111111111111111111111111", 9_700_000, 4)
	require.NoError(t, err)
	assert.Len(t, sig, 2+65*2)

	recovered, err := RecoverVoucherSigner("escrow-m1", "0x1111111111111111111111111111111111111111", 9_700_000, 4, sig, 137)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestVoucherRecoverRejectsTamperedTuple(t *testing.T) {
	signer, err := NewVoucherSigner(testKeyHex, 137)
	require.NoError(t, err)

	sig, err := signer.SignVoucher("escrow-m1", "0x1111111111111111111111111111111111111111", 9_700_000, 4)
	require.NoError(t, err)

	// A different payout recovers to some other address, never the signer.
	recovered, err := RecoverVoucherSigner("escrow-m1", "0x1111111111111111111111111111111111111111", 9_800_000, 4, sig, 137)
	require.NoError(t, err)
	assert.NotEqual(t, signer.Address(), recovered)
}

func TestVoucherDigestVariesByChain(t *testing.T) {
	signer, err := NewVoucherSigner(testKeyHex, 137)
	require.NoError(t, err)

	sig, err := signer.SignVoucher("escrow-m1", "0x1111111111111111111111111111111111111111", 1, 1)
	require.NoError(t, err)

	recovered, err := RecoverVoucherSigner("escrow-m1", "0x1111111111111111111111111111111111111111", 1, 1, sig, 80002)
	require.NoError(t, err)
	assert.NotEqual(t, signer.Address(), recovered)
}

func TestSessionTokenRoundTrip(t *testing.T) {
	auth, err := NewSessionAuth("test-secret", time.Hour)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	token := auth.IssueAt("0xabc123", now)

	addr, err := auth.VerifyAt(token, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "0xabc123", addr)
}

func TestSessionTokenExpiry(t *testing.T) {
	auth, err := NewSessionAuth("test-secret", time.Hour)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	token := auth.IssueAt("0xabc123", now)

	_, err = auth.VerifyAt(token, now.Add(time.Hour+time.Second))
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestSessionTokenTamperRejected(t *testing.T) {
	auth, err := NewSessionAuth("test-secret", time.Hour)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	token := auth.IssueAt("0xabc123", now)

	forged := "0xdef456" + token[len("0xabc123"):]
	_, err = auth.VerifyAt(forged, now)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = auth.VerifyAt("garbage", now)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestSessionTokenWrongSecret(t *testing.T) {
	a1, err := NewSessionAuth("secret-one", time.Hour)
	require.NoError(t, err)
	a2, err := NewSessionAuth("secret-two", time.Hour)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	token := a1.IssueAt("0xabc123", now)

	_, err = a2.VerifyAt(token, now)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestEncryptDecryptKey(t *testing.T) {
	const keyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	blob, err := EncryptKey(keyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, keyHex, got)

	_, err = DecryptKey(blob, "wrong-password")
	assert.Error(t, err)
}

func TestLoadKeyPrefersRaw(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: testKeyHex})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex[2:], got)

	_, err = LoadKey(KeyConfig{})
	assert.Error(t, err)
}
