package gateway

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestServer(r Resolver) *Server {
	return NewServer(Config{Resolver: r}, zerolog.Nop())
}

func restrictedPolicy(auth AuthMode) Policy {
	return Policy{
		ServiceID:      1,
		JobIndex:       0,
		Mode:           RestrictedPaid,
		Auth:           auth,
		TangleRPCURL:   "https://rpc.example",
		TangleContract: "0x00000000000000000000000000000000000001",
	}
}

func TestAuthorizeRestrictedJobRejectsPaymentOnly(t *testing.T) {
	r := &fakeResolver{}
	s := newTestServer(r)

	policy := restrictedPolicy(PaymentOnly)
	_, err := s.authorizeRestrictedJob(context.Background(), policy, 1, 0, nil, http.Header{}, true)
	require.Error(t, err)
	require.Equal(t, "invalid_policy", err.(Rejection).Code)
}

func TestAuthorizeRestrictedJobPayerIsCallerRequiresSettledPayer(t *testing.T) {
	r := &fakeResolver{permitted: map[common.Address]bool{}}
	s := newTestServer(r)
	policy := restrictedPolicy(PayerIsCaller)

	// No X-Payment-Response header at all.
	_, err := s.authorizeRestrictedJob(context.Background(), policy, 1, 0, nil, http.Header{}, true)
	require.Error(t, err)

	payer := common.HexToAddress("0x00000000000000000000000000000000000002")
	r.permitted[payer] = true

	header := http.Header{}
	header.Set(HeaderSettlement, encodeSettlementHeader(SettlementDetails{
		Network:     "test",
		Transaction: "0xabc",
		Payer:       payer.Hex(),
	}))

	caller, err := s.authorizeRestrictedJob(context.Background(), policy, 1, 0, nil, header, true)
	require.NoError(t, err)
	require.Equal(t, payer, caller)
}

func TestAuthorizeRestrictedJobDelegatedSignatureHappyPath(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	caller := crypto.PubkeyToAddress(priv.PublicKey)

	r := &fakeResolver{permitted: map[common.Address]bool{caller: true}}
	s := newTestServer(r)
	policy := restrictedPolicy(DelegatedCallerSignature)

	body := []byte("job-input")
	nonce := "nonce-1"
	expiry := time.Now().Add(time.Hour).Unix()
	payload := DelegatedAuthPayload(1, 0, body, nonce, expiry)
	sig, err := crypto.Sign(textHash([]byte(payload)), priv)
	require.NoError(t, err)

	header := http.Header{}
	header.Set(HeaderCaller, caller.Hex())
	header.Set(HeaderCallerNonce, nonce)
	header.Set(HeaderCallerSig, "0x"+common.Bytes2Hex(sig))
	header.Set(HeaderCallerExpiry, strconv.FormatInt(expiry, 10))

	got, err := s.authorizeRestrictedJob(context.Background(), policy, 1, 0, body, header, true)
	require.NoError(t, err)
	require.Equal(t, caller, got)

	// A second use of the same nonce in the same scope must be denied
	// as a replay.
	_, err = s.authorizeRestrictedJob(context.Background(), policy, 1, 0, body, header, true)
	require.Error(t, err)
	require.Equal(t, "signature_replay", err.(Rejection).Code)
}

func TestAuthorizeRestrictedJobDryRunDoesNotConsumeNonce(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	caller := crypto.PubkeyToAddress(priv.PublicKey)

	r := &fakeResolver{permitted: map[common.Address]bool{caller: true}}
	s := newTestServer(r)
	policy := restrictedPolicy(DelegatedCallerSignature)

	body := []byte("job-input")
	nonce := "nonce-1"
	expiry := time.Now().Add(time.Hour).Unix()
	payload := DelegatedAuthPayload(1, 0, body, nonce, expiry)
	sig, err := crypto.Sign(textHash([]byte(payload)), priv)
	require.NoError(t, err)

	header := http.Header{}
	header.Set(HeaderCaller, caller.Hex())
	header.Set(HeaderCallerNonce, nonce)
	header.Set(HeaderCallerSig, "0x"+common.Bytes2Hex(sig))
	header.Set(HeaderCallerExpiry, strconv.FormatInt(expiry, 10))

	_, err = s.authorizeRestrictedJob(context.Background(), policy, 1, 0, body, header, false)
	require.NoError(t, err)
	_, err = s.authorizeRestrictedJob(context.Background(), policy, 1, 0, body, header, false)
	require.NoError(t, err)
}

func TestAuthorizeRestrictedJobRejectsUnpermittedCaller(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	caller := crypto.PubkeyToAddress(priv.PublicKey)

	r := &fakeResolver{permitted: map[common.Address]bool{}}
	s := newTestServer(r)
	policy := restrictedPolicy(DelegatedCallerSignature)

	body := []byte("job-input")
	nonce := "nonce-1"
	expiry := time.Now().Add(time.Hour).Unix()
	payload := DelegatedAuthPayload(1, 0, body, nonce, expiry)
	sig, err := crypto.Sign(textHash([]byte(payload)), priv)
	require.NoError(t, err)

	header := http.Header{}
	header.Set(HeaderCaller, caller.Hex())
	header.Set(HeaderCallerNonce, nonce)
	header.Set(HeaderCallerSig, "0x"+common.Bytes2Hex(sig))
	header.Set(HeaderCallerExpiry, strconv.FormatInt(expiry, 10))

	_, err = s.authorizeRestrictedJob(context.Background(), policy, 1, 0, body, header, true)
	require.Error(t, err)
	require.Equal(t, "caller_not_permitted", err.(Rejection).Code)
}

func TestAuthorizeRestrictedJobRequiresContractConfig(t *testing.T) {
	r := &fakeResolver{}
	s := newTestServer(r)
	policy := restrictedPolicy(PayerIsCaller)
	policy.TangleContract = ""

	header := http.Header{}
	header.Set(HeaderSettlement, encodeSettlementHeader(SettlementDetails{
		Network: "test", Transaction: "0xabc", Payer: "0x00000000000000000000000000000000000002",
	}))

	_, err := s.authorizeRestrictedJob(context.Background(), policy, 1, 0, nil, header, true)
	require.Error(t, err)
	require.Equal(t, "invalid_policy", err.(Rejection).Code)
}
