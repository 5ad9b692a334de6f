package gateway

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestDelegatedAuthPayloadDeterministic(t *testing.T) {
	a := DelegatedAuthPayload(1, 7, []byte("body"), "nonce-123", 4102444800)
	b := DelegatedAuthPayload(1, 7, []byte("body"), "nonce-123", 4102444800)
	require.Equal(t, a, b)

	c := DelegatedAuthPayload(1, 7, []byte("different"), "nonce-123", 4102444800)
	require.NotEqual(t, a, c)
}

func TestVerifyDelegatedSignatureRoundTrip(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	caller := crypto.PubkeyToAddress(priv.PublicKey)

	body := []byte("job-input")
	nonce := "nonce-1"
	expiry := time.Now().Add(time.Hour).Unix()

	payload := DelegatedAuthPayload(1, 0, body, nonce, expiry)
	hash := textHash([]byte(payload))
	sig, err := crypto.Sign(hash, priv)
	require.NoError(t, err)

	err = VerifyDelegatedSignature(1, 0, body, nonce, expiry, caller, sig, time.Now())
	require.NoError(t, err)
}

func TestVerifyDelegatedSignatureRejectsExpired(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	caller := crypto.PubkeyToAddress(priv.PublicKey)

	body := []byte("job-input")
	expiry := time.Now().Add(-time.Hour).Unix()
	payload := DelegatedAuthPayload(1, 0, body, "nonce-1", expiry)
	hash := textHash([]byte(payload))
	sig, err := crypto.Sign(hash, priv)
	require.NoError(t, err)

	err = VerifyDelegatedSignature(1, 0, body, "nonce-1", expiry, caller, sig, time.Now())
	require.Error(t, err)
}

func TestVerifyDelegatedSignatureRejectsWrongSigner(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	wrongCaller := crypto.PubkeyToAddress(other.PublicKey)

	body := []byte("job-input")
	expiry := time.Now().Add(time.Hour).Unix()
	payload := DelegatedAuthPayload(1, 0, body, "nonce-1", expiry)
	hash := textHash([]byte(payload))
	sig, err := crypto.Sign(hash, priv)
	require.NoError(t, err)

	err = VerifyDelegatedSignature(1, 0, body, "nonce-1", expiry, wrongCaller, sig, time.Now())
	require.Error(t, err)
}
