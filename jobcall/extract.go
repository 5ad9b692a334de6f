package jobcall

import "github.com/ethereum/go-ethereum/common"

// Extractor reads one named metadata slot from a Call or Result. Each
// extractor sees exactly the metadata the producer or gateway wrote —
// no extractor performs its own chain or cache lookups.
type Extractor[T any] interface {
	Extract(md *MetadataMap) (T, bool)
}

type keyExtractor[T any] struct{ key string }

func (k keyExtractor[T]) Extract(md *MetadataMap) (T, bool) {
	var zero T
	v, ok := md.Get(k.key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

var (
	// CallID extracts the metadata call_id slot.
	CallID = keyExtractor[uint64]{key: MetaCallID}
	// ServiceID extracts the metadata service_id slot.
	ServiceID = keyExtractor[uint64]{key: MetaServiceID}
	// JobIndex extracts the metadata job_index slot.
	JobIndex = keyExtractor[uint8]{key: MetaJobIndex}
	// BlockNumber extracts the metadata block_number slot.
	BlockNumber = keyExtractor[uint64]{key: MetaBlockNumber}
	// BlockHash extracts the metadata block_hash slot.
	BlockHash = keyExtractor[common.Hash]{key: MetaBlockHash}
	// Timestamp extracts the metadata timestamp slot.
	Timestamp = keyExtractor[uint64]{key: MetaTimestamp}
	// Caller extracts the metadata caller slot.
	Caller = keyExtractor[common.Address]{key: MetaCaller}
)
