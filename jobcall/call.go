package jobcall

import "github.com/ethereum/go-ethereum/common"

// Call is a single job invocation, produced either by the chain
// producer (C3) or the x402 gateway (C6). ServiceID/CallID together
// must be unique across the lifetime of a service; chain-originated and
// gateway-originated CallIDs live in disjoint namespaces (the gateway
// sets GatewayCallIDBit on every CallID it mints).
type Call struct {
	ServiceID uint64
	CallID    uint64
	JobIndex  uint8

	// Provenance of chain-originated calls. Zero-valued for
	// gateway-originated (paid) calls.
	BlockNumber uint64
	BlockHash   common.Hash
	Timestamp   uint64

	Caller common.Address
	Body   []byte

	Metadata *MetadataMap
}

// NewCall builds a Call and populates its MetadataMap with the standard
// extractor keys, mirroring the metadata the Rust producer writes in
// job_submitted_to_call.
func NewCall(serviceID, callID uint64, jobIndex uint8, blockNumber uint64, blockHash common.Hash, timestamp uint64, caller common.Address, body []byte) Call {
	md := NewMetadataMap()
	md.Insert(MetaCallID, callID)
	md.Insert(MetaServiceID, serviceID)
	md.Insert(MetaJobIndex, jobIndex)
	md.Insert(MetaBlockNumber, blockNumber)
	md.Insert(MetaBlockHash, blockHash)
	md.Insert(MetaTimestamp, timestamp)
	md.Insert(MetaCaller, caller)

	return Call{
		ServiceID:   serviceID,
		CallID:      callID,
		JobIndex:    jobIndex,
		BlockNumber: blockNumber,
		BlockHash:   blockHash,
		Timestamp:   timestamp,
		Caller:      caller,
		Body:        body,
		Metadata:    md,
	}
}

// GatewayCallIDBit marks a call_id as gateway-originated (x402), keeping
// it disjoint from contract-assigned chain call ids (see spec.md §9(c)).
const GatewayCallIDBit = uint64(1) << 63

// IsGatewayCallID reports whether id was minted by the x402 gateway.
func IsGatewayCallID(id uint64) bool {
	return id&GatewayCallIDBit != 0
}
