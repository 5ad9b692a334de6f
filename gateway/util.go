package gateway

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/ethereum/go-ethereum/crypto"
)

func hexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// gatewayCallID derives a stable 63-bit value from a quote id, with the
// top bit (jobcall.GatewayCallIDBit) cleared. handleJobRequest does not
// use it: paid invocations take their call id from Server.callIDCounter.
func gatewayCallID(quoteID string) uint64 {
	digest := crypto.Keccak256([]byte(quoteID))
	return binary.BigEndian.Uint64(digest[:8]) &^ (uint64(1) << 63)
}
