// Package bls implements the BN254 threshold-signature primitives the
// aggregation and consumer packages build on: keypairs live on G1/G2,
// signing hashes the canonical job-result message onto G1, and
// verification is a single pairing check. There is no Rust crate in
// the retrieved pack for this; the scheme below follows the BN254
// aggregate-signature convention used by EigenLayer-style AVS stacks
// (signatures on G1, public keys on G2) and is built directly on
// gnark-crypto, the curve library go-ethereum itself depends on.
package bls

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/consensys/gnark-crypto/ecc/bn254"
)

// domainSeparationTag scopes hash-to-curve to this protocol, as RFC
// 9380 requires, so a signature here can never be replayed as valid
// input to an unrelated BLS scheme over the same curve.
var domainSeparationTag = []byte("TANGLE-AVS-BLS-BN254-V1")

// PrivateKey is a BN254 scalar secret key.
type PrivateKey struct {
	scalar *big.Int
}

// PublicKey is the G2 point corresponding to a PrivateKey.
type PublicKey struct {
	point bn254.G2Affine
}

// Signature is a G1 point.
type Signature struct {
	point bn254.G1Affine
}

// GenerateKey returns a fresh random keypair.
func GenerateKey() (PrivateKey, PublicKey, error) {
	_, _, _, g2Gen := bn254.Generators()

	scalar, err := rand.Int(rand.Reader, bn254.ID.ScalarField())
	if err != nil {
		return PrivateKey{}, PublicKey{}, fmt.Errorf("bls: generate scalar: %w", err)
	}

	var pub bn254.G2Affine
	pub.ScalarMultiplication(&g2Gen, scalar)

	return PrivateKey{scalar: scalar}, PublicKey{point: pub}, nil
}

// Public derives the public key for sk.
func (sk PrivateKey) Public() PublicKey {
	_, _, _, g2Gen := bn254.Generators()
	var pub bn254.G2Affine
	pub.ScalarMultiplication(&g2Gen, sk.scalar)
	return PublicKey{point: pub}
}

// SigningMessage builds the canonical 48-byte message a job result is
// signed over: big-endian service id, big-endian call id, then the
// keccak256 digest of the result body. Every signer over the same
// (service, call) must hash identical bytes for aggregation to
// verify.
func SigningMessage(serviceID, callID uint64, output []byte) []byte {
	msg := make([]byte, 8+8+32)
	binary.BigEndian.PutUint64(msg[0:8], serviceID)
	binary.BigEndian.PutUint64(msg[8:16], callID)
	digest := crypto.Keccak256(output)
	copy(msg[16:48], digest)
	return msg
}

func hashToG1(msg []byte) (bn254.G1Affine, error) {
	return bn254.HashToG1(msg, domainSeparationTag)
}

// Sign signs msg (normally the output of SigningMessage) with sk.
func Sign(sk PrivateKey, msg []byte) (Signature, error) {
	h, err := hashToG1(msg)
	if err != nil {
		return Signature{}, fmt.Errorf("bls: hash to curve: %w", err)
	}
	var sig bn254.G1Affine
	sig.ScalarMultiplication(&h, sk.scalar)
	return Signature{point: sig}, nil
}

// Verify checks a single signature against a single public key.
func Verify(pub PublicKey, msg []byte, sig Signature) (bool, error) {
	h, err := hashToG1(msg)
	if err != nil {
		return false, fmt.Errorf("bls: hash to curve: %w", err)
	}
	_, _, _, g2Gen := bn254.Generators()

	var negSig bn254.G1Affine
	negSig.Neg(&sig.point)

	return bn254.PairingCheck(
		[]bn254.G1Affine{negSig, h},
		[]bn254.G2Affine{g2Gen, pub.point},
	)
}

// AggregateSignatures sums a set of G1 signatures into one aggregate.
// All inputs must have signed the same message for the aggregate to be
// meaningful.
func AggregateSignatures(sigs []Signature) (Signature, error) {
	if len(sigs) == 0 {
		return Signature{}, fmt.Errorf("bls: cannot aggregate zero signatures")
	}
	acc := new(bn254.G1Jac).FromAffine(&sigs[0].point)
	for _, s := range sigs[1:] {
		var p bn254.G1Jac
		p.FromAffine(&s.point)
		acc.AddAssign(&p)
	}
	var out bn254.G1Affine
	out.FromJacobian(acc)
	return Signature{point: out}, nil
}

// AggregatePublicKeys sums a set of G2 public keys into one aggregate.
func AggregatePublicKeys(pubs []PublicKey) (PublicKey, error) {
	if len(pubs) == 0 {
		return PublicKey{}, fmt.Errorf("bls: cannot aggregate zero public keys")
	}
	acc := new(bn254.G2Jac).FromAffine(&pubs[0].point)
	for _, p := range pubs[1:] {
		var j bn254.G2Jac
		j.FromAffine(&p.point)
		acc.AddAssign(&j)
	}
	var out bn254.G2Affine
	out.FromJacobian(acc)
	return PublicKey{point: out}, nil
}

// AggregateVerify checks an aggregate signature against the
// corresponding aggregate public key over a shared message — the fast
// path the aggregating consumer uses once a threshold of signers has
// been collected for one call.
func AggregateVerify(aggPub PublicKey, msg []byte, aggSig Signature) (bool, error) {
	return Verify(aggPub, msg, aggSig)
}

// MarshalG1 returns the uncompressed byte encoding of a signature,
// suitable for the on-chain submission payload.
func (s Signature) MarshalG1() []byte {
	b := s.point.RawBytes()
	return b[:]
}

// MarshalG2 returns the uncompressed byte encoding of a public key.
func (p PublicKey) MarshalG2() []byte {
	b := p.point.RawBytes()
	return b[:]
}

// UnmarshalG1 parses a signature from its uncompressed byte encoding.
func UnmarshalG1(raw []byte) (Signature, error) {
	var p bn254.G1Affine
	if _, err := p.SetBytes(raw); err != nil {
		return Signature{}, fmt.Errorf("bls: unmarshal g1: %w", err)
	}
	return Signature{point: p}, nil
}

// UnmarshalG2 parses a public key from its uncompressed byte encoding.
func UnmarshalG2(raw []byte) (PublicKey, error) {
	var p bn254.G2Affine
	if _, err := p.SetBytes(raw); err != nil {
		return PublicKey{}, fmt.Errorf("bls: unmarshal g2: %w", err)
	}
	return PublicKey{point: p}, nil
}

// Coordinates returns the affine (x, y) pair of a public key as
// big.Ints, in the [x.A0, x.A1, y.A0, y.A1] order the service manager
// contract's submitAggregatedResult expects for an uint256[4] G2 point.
func (p PublicKey) Coordinates() [4]*big.Int {
	return [4]*big.Int{
		p.point.X.A0.BigInt(new(big.Int)),
		p.point.X.A1.BigInt(new(big.Int)),
		p.point.Y.A0.BigInt(new(big.Int)),
		p.point.Y.A1.BigInt(new(big.Int)),
	}
}

// Coordinates returns the affine (x, y) pair of a signature as
// big.Ints, the uint256[2] layout submitAggregatedResult expects.
func (s Signature) Coordinates() [2]*big.Int {
	return [2]*big.Int{
		s.point.X.BigInt(new(big.Int)),
		s.point.Y.BigInt(new(big.Int)),
	}
}
