package gateway

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Request header names, verbatim from gateway.rs's HEADER_* constants.
const (
	HeaderCaller       = "X-TANGLE-CALLER"
	HeaderCallerSig    = "X-TANGLE-CALLER-SIG"
	HeaderCallerNonce  = "X-TANGLE-CALLER-NONCE"
	HeaderCallerExpiry = "X-TANGLE-CALLER-EXPIRY"

	// HeaderSettlement carries the facilitator's base64-encoded
	// settlement response once a payment has settled.
	HeaderSettlement = "X-Payment-Response"
	// HeaderPaymentV1 and HeaderPaymentV2 carry the client's payment
	// proof; either may be present.
	HeaderPaymentV1 = "X-PAYMENT"
	HeaderPaymentV2 = "Payment-Signature"
)

// maxNonceLen bounds X-TANGLE-CALLER-NONCE so a client can't grow the
// replay guard's key space unboundedly with a single request.
const maxNonceLen = 128

// DelegatedAssertion is a verified delegated-caller signature: who
// authorized the call, the nonce that must not be replayed, and the
// expiry the signature was bound to.
type DelegatedAssertion struct {
	Caller common.Address
	Nonce  string
	Expiry int64
}

// DelegatedAuthPayload builds the exact string a delegated caller signs
// over: "x402-authorize:{service_id}:{job_index}:{hex(keccak256(body))}:{nonce}:{expiry}".
// Every field is decimal/hex text, not binary, so the same payload can
// be reconstructed by a browser wallet without an ABI encoder.
func DelegatedAuthPayload(serviceID uint64, jobIndex uint8, body []byte, nonce string, expiry int64) string {
	digest := crypto.Keccak256(body)
	return fmt.Sprintf("x402-authorize:%d:%d:%s:%s:%d",
		serviceID, jobIndex, hex.EncodeToString(digest), nonce, expiry)
}

// VerifyDelegatedSignature checks that sig is a valid EIP-191
// personal-message signature over the canonical delegated-auth payload,
// recovered to caller, and that expiry has not already passed.
func VerifyDelegatedSignature(serviceID uint64, jobIndex uint8, body []byte, nonce string, expiry int64, caller common.Address, sig []byte, now time.Time) error {
	if now.Unix() > expiry {
		return denied("signature_expired", "delegated authorization has expired")
	}
	if len(sig) != 65 {
		return badRequest("invalid_signature", "invalid X-TANGLE-CALLER-SIG; expected 65-byte hex signature")
	}

	payload := DelegatedAuthPayload(serviceID, jobIndex, body, nonce, expiry)
	hash := textHash([]byte(payload))

	sigCopy := make([]byte, 65)
	copy(sigCopy, sig)
	if sigCopy[64] >= 27 {
		sigCopy[64] -= 27
	}

	pub, err := crypto.SigToPub(hash, sigCopy)
	if err != nil {
		return badRequest("invalid_signature_recovery", "failed to recover signer from delegated signature")
	}
	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != caller {
		return denied("signature_mismatch", "delegated signature does not match X-TANGLE-CALLER")
	}
	return nil
}

// textHash reproduces go-ethereum's accounts.TextHash without
// importing the accounts package's keystore dependency closure: it
// hashes the EIP-191 "\x19Ethereum Signed Message:\n" + len(data) +
// data preimage.
func textHash(data []byte) []byte {
	msg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(data), data)
	return crypto.Keccak256([]byte(msg))
}

// parseExpiry parses the X-TANGLE-CALLER-EXPIRY header value (unix
// seconds).
func parseExpiry(raw string) (int64, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, badRequest("invalid_signature_expiry", "X-TANGLE-CALLER-EXPIRY must be a unix timestamp")
	}
	return v, nil
}

// extractDelegatedAssertion reads and verifies the delegated-signature
// headers against body, returning the caller/nonce/expiry a successful
// verification yields.
func extractDelegatedAssertion(serviceID uint64, jobIndex uint8, body []byte, header headerGetter, now time.Time) (DelegatedAssertion, error) {
	callerRaw := header.Get(HeaderCaller)
	if callerRaw == "" {
		return DelegatedAssertion{}, badRequest("missing_caller", "X-TANGLE-CALLER header is required for delegated signature auth")
	}
	if !common.IsHexAddress(callerRaw) {
		return DelegatedAssertion{}, badRequest("invalid_caller", "invalid X-TANGLE-CALLER")
	}
	caller := common.HexToAddress(callerRaw)

	nonce := header.Get(HeaderCallerNonce)
	if nonce == "" {
		return DelegatedAssertion{}, badRequest("missing_signature_nonce", "X-TANGLE-CALLER-NONCE header is required for delegated signature auth")
	}
	if len(nonce) > maxNonceLen {
		return DelegatedAssertion{}, badRequest("invalid_signature_nonce", "X-TANGLE-CALLER-NONCE must be non-empty and <= 128 chars")
	}

	sigRaw := header.Get(HeaderCallerSig)
	if sigRaw == "" {
		return DelegatedAssertion{}, badRequest("missing_signature", "X-TANGLE-CALLER-SIG header is required for delegated signature auth")
	}
	sig, err := decodeHexSignature(sigRaw)
	if err != nil {
		return DelegatedAssertion{}, err
	}

	expiryRaw := header.Get(HeaderCallerExpiry)
	if expiryRaw == "" {
		return DelegatedAssertion{}, badRequest("missing_signature_expiry", "X-TANGLE-CALLER-EXPIRY header is required for delegated signature auth")
	}
	expiry, err := parseExpiry(expiryRaw)
	if err != nil {
		return DelegatedAssertion{}, err
	}

	if err := VerifyDelegatedSignature(serviceID, jobIndex, body, nonce, expiry, caller, sig, now); err != nil {
		return DelegatedAssertion{}, err
	}

	return DelegatedAssertion{Caller: caller, Nonce: nonce, Expiry: expiry}, nil
}

// headerGetter is the subset of http.Header this package needs,
// narrowed so auth.go doesn't import net/http directly.
type headerGetter interface {
	Get(key string) string
}
