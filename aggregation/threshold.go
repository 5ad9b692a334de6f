// Package aggregation implements the operator-polling and threshold
// arithmetic the aggregating consumer uses to decide when enough
// signers have responded to a job result to submit it on-chain,
// ported from the Rust AggregationServiceConfig in original_source.
package aggregation

import (
	"sort"
)

// ThresholdKind selects how a bps threshold is interpreted.
type ThresholdKind uint8

const (
	// CountBased admits once enough distinct operators have signed,
	// regardless of their stake.
	CountBased ThresholdKind = iota
	// StakeWeighted admits once the signed operators' cumulative stake
	// reaches the bps fraction of total stake.
	StakeWeighted
)

// bpsDenominator is the basis-points scale (10000 = 100.00%).
const bpsDenominator = 10000

// RequiredSigners returns how many operators (out of operatorCount)
// must sign before a count-based threshold is met. It is always at
// least 1 even when bps rounds down to 0, since a zero-signer
// threshold can never be satisfied by a result that exists at all.
//
// Ported bit-exact from calculate_required_signers's count-based
// branch: floor(operatorCount * bps / 10000), floored up to 1.
func RequiredSigners(operatorCount int, bps uint16) int {
	required := (operatorCount * int(bps)) / bpsDenominator
	if required < 1 {
		required = 1
	}
	return required
}

// OperatorExposure pairs an operator identity with its restaked
// exposure, for the stake-weighted admission path.
type OperatorExposure struct {
	Operator string
	Stake    uint64
}

// StakeThresholdMet reports whether the cumulative stake of signed
// (present in signers) admits under a stake-weighted bps threshold
// against the full operator set all.
//
// Ported from calculate_required_signers's stake-weighted branch:
// operators are ordered by descending exposure and admitted
// greedily, so the admission point is the smallest prefix whose
// cumulative stake clears total*bps/10000 — but since admission here
// is evaluated against a fixed, already-collected signer set rather
// than incrementally, the check reduces to comparing the signed
// operators' total stake against that same threshold.
func StakeThresholdMet(all []OperatorExposure, signers map[string]bool, bps uint16) bool {
	var total, signed uint64
	for _, o := range all {
		total += o.Stake
		if signers[o.Operator] {
			signed += o.Stake
		}
	}
	if total == 0 {
		return false
	}
	// signed*10000 >= total*bps, rearranged to avoid truncating division.
	return signed*bpsDenominator >= total*uint64(bps)
}

// sortByExposureDesc returns a copy of all sorted by descending stake,
// the order in which calculate_required_signers's stake-weighted branch
// admits operators; StakeThresholdMet does not need it, since it sums
// an already-collected signer set.
func sortByExposureDesc(all []OperatorExposure) []OperatorExposure {
	out := make([]OperatorExposure, len(all))
	copy(out, all)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Stake > out[j].Stake })
	return out
}
