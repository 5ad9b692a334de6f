package bls

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	sk, pub, err := GenerateKey()
	require.NoError(t, err)

	msg := SigningMessage(1, 7, []byte("result-body"))
	sig, err := Sign(sk, msg)
	require.NoError(t, err)

	ok, err := Verify(pub, msg, sig)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyRejectsWrongMessage(t *testing.T) {
	sk, pub, err := GenerateKey()
	require.NoError(t, err)

	sig, err := Sign(sk, SigningMessage(1, 7, []byte("result-body")))
	require.NoError(t, err)

	ok, err := Verify(pub, SigningMessage(1, 8, []byte("result-body")), sig)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAggregateVerify(t *testing.T) {
	msg := SigningMessage(42, 99, []byte("aggregate me"))

	var sigs []Signature
	var pubs []PublicKey
	for i := 0; i < 5; i++ {
		sk, pub, err := GenerateKey()
		require.NoError(t, err)
		sig, err := Sign(sk, msg)
		require.NoError(t, err)
		sigs = append(sigs, sig)
		pubs = append(pubs, pub)
	}

	aggSig, err := AggregateSignatures(sigs)
	require.NoError(t, err)
	aggPub, err := AggregatePublicKeys(pubs)
	require.NoError(t, err)

	ok, err := AggregateVerify(aggPub, msg, aggSig)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSigningMessageDeterministic(t *testing.T) {
	a := SigningMessage(1, 2, []byte("x"))
	b := SigningMessage(1, 2, []byte("x"))
	require.Equal(t, a, b)

	c := SigningMessage(1, 3, []byte("x"))
	require.NotEqual(t, a, c)
}
