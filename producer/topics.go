package producer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func newBigInt(v uint64) *big.Int { return new(big.Int).SetUint64(v) }

// serviceTopic encodes a service id as the indexed topic value the EVM
// would produce for a uint64 event parameter: right-aligned within the
// 32-byte word.
func serviceTopic(serviceID uint64) common.Hash {
	var h common.Hash
	big.NewInt(0).SetUint64(serviceID).FillBytes(h[:])
	return h
}
