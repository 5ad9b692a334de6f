package chain

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tangle-network/avs-operator/chain/bindings"
)

// JobSubmittedSignature re-exports the JobSubmitted topic0 so producer
// and client code share one constant.
var JobSubmittedSignature = bindings.JobSubmittedSignature

// JobSubmittedEvent is the decoded form of a JobSubmitted log: indexed
// serviceId and callId topics (plus an optional jobIndex topic) and a
// (jobIndex, caller address, inputs bytes) ABI-encoded data tail.
type JobSubmittedEvent struct {
	ServiceID   uint64
	CallID      uint64
	JobIndex    uint8
	Caller      common.Address
	Inputs      []byte
	BlockNumber uint64
	BlockHash   common.Hash
	LogIndex    uint
}

// readUint64Topic reads the low 8 bytes of a 32-byte indexed topic,
// matching read_u64_topic: Solidity right-aligns uint64 topics within
// the 32-byte word.
func readUint64Topic(topic common.Hash) uint64 {
	return binary.BigEndian.Uint64(topic[24:32])
}

// DecodeJobSubmitted decodes a raw log into a JobSubmittedEvent. It
// requires at least 3 topics (signature, serviceId, callId); the job
// index normally comes from the data head, but when a 4th topic is
// present it overrides the data-head value — a later router revision
// started indexing job_index directly, and both log shapes must decode.
func DecodeJobSubmitted(l types.Log) (JobSubmittedEvent, error) {
	if len(l.Topics) < 3 {
		return JobSubmittedEvent{}, fmt.Errorf("chain: JobSubmitted log has %d topics, want >= 3", len(l.Topics))
	}
	if l.Topics[0] != JobSubmittedSignature {
		return JobSubmittedEvent{}, fmt.Errorf("chain: log topic0 %s does not match JobSubmitted signature", l.Topics[0])
	}

	data, err := decodeJobSubmittedData(l.Data)
	if err != nil {
		return JobSubmittedEvent{}, err
	}

	jobIndex := data.jobIndex
	if len(l.Topics) > 3 {
		jobIndex = uint8(readUint64Topic(l.Topics[3]))
	}

	return JobSubmittedEvent{
		ServiceID:   readUint64Topic(l.Topics[1]),
		CallID:      readUint64Topic(l.Topics[2]),
		JobIndex:    jobIndex,
		Caller:      data.caller,
		Inputs:      data.inputs,
		BlockNumber: l.BlockNumber,
		BlockHash:   l.BlockHash,
		LogIndex:    l.Index,
	}, nil
}

type jobSubmittedData struct {
	jobIndex uint8
	caller   common.Address
	inputs   []byte
}

// decodeJobSubmittedData decodes the non-indexed tail of a JobSubmitted
// log. The fixed head is three 32-byte words, in order: job index (as a
// uint256), the caller address (right-aligned, in the word's low 20
// bytes), and the byte-offset of the
// dynamic inputs payload (measured from the start of data); the payload
// itself is a standard ABI length-prefixed, 32-byte-aligned byte
// string.
func decodeJobSubmittedData(data []byte) (jobSubmittedData, error) {
	const wordSize = 32
	const fixedSize = 3 * wordSize
	if len(data) < fixedSize {
		return jobSubmittedData{}, fmt.Errorf("chain: JobSubmitted data too short for fixed fields: %d bytes", len(data))
	}

	jobIndexInt := new(big.Int).SetBytes(data[0:32]).Uint64()
	if jobIndexInt > 0xff {
		return jobSubmittedData{}, fmt.Errorf("chain: JobSubmitted job index %d out of range", jobIndexInt)
	}

	var caller common.Address
	copy(caller[:], data[44:64])

	offsetInt := new(big.Int).SetBytes(data[64:96]).Uint64()
	if offsetInt+wordSize > uint64(len(data)) {
		return jobSubmittedData{}, fmt.Errorf("chain: JobSubmitted inputs offset %d out of range (len %d)", offsetInt, len(data))
	}

	lengthInt := new(big.Int).SetBytes(data[offsetInt : offsetInt+wordSize]).Uint64()
	start := offsetInt + wordSize
	end := start + lengthInt
	if end > uint64(len(data)) {
		return jobSubmittedData{}, fmt.Errorf("chain: JobSubmitted inputs length %d out of range (len %d)", lengthInt, len(data))
	}

	inputs := make([]byte, lengthInt)
	copy(inputs, data[start:end])

	return jobSubmittedData{jobIndex: uint8(jobIndexInt), caller: caller, inputs: inputs}, nil
}
