// Package bindings holds the thin, hand-written ABI layer the chain
// client depends on. In the original Rust codebase this is generated
// from contract definitions by an ABI-binding codegen tool (out of
// scope per spec.md §1); here it is the dedicated sub-layer spec.md §9
// calls for, built directly on go-ethereum's abi.ABI + bind.BoundContract
// so that only chain.Client imports it.
package bindings

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// tangleRouterABIJSON covers the service-lifecycle surface of the
// Tangle router contract: registration, service requests, and job
// submission. Event and method selectors here must stay bit-exact with
// spec.md §6.
const tangleRouterABIJSON = `[
 {"type":"function","name":"registerOperator","inputs":[{"name":"preferences","type":"bytes"}],"outputs":[]},
 {"type":"function","name":"unregisterOperator","inputs":[],"outputs":[]},
 {"type":"function","name":"joinService","inputs":[{"name":"serviceId","type":"uint64"}],"outputs":[]},
 {"type":"function","name":"leaveService","inputs":[{"name":"serviceId","type":"uint64"}],"outputs":[]},
 {"type":"function","name":"requestService","inputs":[{"name":"blueprintId","type":"uint64"},{"name":"args","type":"bytes"}],"outputs":[]},
 {"type":"function","name":"approveService","inputs":[{"name":"requestId","type":"uint64"}],"outputs":[]},
 {"type":"function","name":"rejectService","inputs":[{"name":"requestId","type":"uint64"}],"outputs":[]},
 {"type":"function","name":"submitJob","inputs":[{"name":"serviceId","type":"uint64"},{"name":"jobIndex","type":"uint8"},{"name":"inputs","type":"bytes"}],"outputs":[]},
 {"type":"function","name":"getBlueprint","inputs":[{"name":"blueprintId","type":"uint64"}],"outputs":[{"name":"","type":"bytes"}],"stateMutability":"view"},
 {"type":"function","name":"getService","inputs":[{"name":"serviceId","type":"uint64"}],"outputs":[{"name":"","type":"bytes"}],"stateMutability":"view"},
 {"type":"function","name":"getServiceOperators","inputs":[{"name":"serviceId","type":"uint64"}],"outputs":[{"name":"","type":"address[]"}],"stateMutability":"view"},
 {"type":"function","name":"getServiceOperator","inputs":[{"name":"serviceId","type":"uint64"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bytes"}],"stateMutability":"view"},
 {"type":"function","name":"getOperatorPreferences","inputs":[{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bytes"}],"stateMutability":"view"},
 {"type":"function","name":"serviceRequestCount","inputs":[],"outputs":[{"name":"","type":"uint64"}],"stateMutability":"view"},
 {"type":"function","name":"isPermittedCaller","inputs":[{"name":"serviceId","type":"uint64"},{"name":"caller","type":"address"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
 {"type":"event","name":"BlueprintCreated","inputs":[{"name":"blueprintId","type":"uint64","indexed":true},{"name":"owner","type":"address","indexed":true}],"anonymous":false},
 {"type":"event","name":"ServiceRequested","inputs":[{"name":"requestId","type":"uint64","indexed":true},{"name":"blueprintId","type":"uint64","indexed":true},{"name":"requester","type":"address","indexed":true}],"anonymous":false},
 {"type":"event","name":"ServiceRequestedWithSecurity","inputs":[{"name":"requestId","type":"uint64","indexed":true},{"name":"blueprintId","type":"uint64","indexed":true},{"name":"requester","type":"address","indexed":true},{"name":"security","type":"bytes"}],"anonymous":false},
 {"type":"event","name":"JobSubmitted","inputs":[{"name":"serviceId","type":"uint64","indexed":true},{"name":"callId","type":"uint64","indexed":true},{"name":"jobIndex","type":"uint8","indexed":true},{"name":"caller","type":"address"},{"name":"inputs","type":"bytes"}],"anonymous":false},
 {"type":"event","name":"OperatorRpcAddressUpdated","inputs":[{"name":"blueprintId","type":"uint64","indexed":true},{"name":"operator","type":"address","indexed":true},{"name":"rpcAddress","type":"string"}],"anonymous":false},
 {"type":"event","name":"ServiceOperatorStateChanged","inputs":[{"name":"serviceId","type":"uint64","indexed":true},{"name":"operator","type":"address","indexed":true}],"anonymous":false}
]`

// blueprintServiceManagerABIJSON covers per-service job result
// submission and aggregation policy reads.
const blueprintServiceManagerABIJSON = `[
 {"type":"function","name":"submitResult","inputs":[{"name":"serviceId","type":"uint64"},{"name":"callId","type":"uint64"},{"name":"result","type":"bytes"}],"outputs":[]},
 {"type":"function","name":"submitAggregatedResult","inputs":[{"name":"serviceId","type":"uint64"},{"name":"callId","type":"uint64"},{"name":"result","type":"bytes"},{"name":"signerBitmap","type":"uint256"},{"name":"aggSignature","type":"uint256[2]"},{"name":"aggPubkey","type":"uint256[4]"}],"outputs":[]},
 {"type":"function","name":"requiresAggregation","inputs":[{"name":"serviceId","type":"uint64"},{"name":"jobIndex","type":"uint8"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
 {"type":"function","name":"getAggregationThreshold","inputs":[{"name":"serviceId","type":"uint64"},{"name":"jobIndex","type":"uint8"}],"outputs":[{"name":"bps","type":"uint16"},{"name":"thresholdType","type":"uint8"}],"stateMutability":"view"}
]`

// multiAssetDelegationABIJSON covers operator stake/exposure reads used
// by the stake-weighted threshold path.
const multiAssetDelegationABIJSON = `[
 {"type":"function","name":"getOperatorStake","inputs":[{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}
]`

// operatorStatusRegistryABIJSON covers operator-status predicates.
const operatorStatusRegistryABIJSON = `[
 {"type":"function","name":"isOperator","inputs":[{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
 {"type":"function","name":"isOperatorActive","inputs":[{"name":"serviceId","type":"uint64"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"}
]`

// mustParse parses an ABI JSON fragment, panicking on failure — used
// only at package-init time for the fixed fragments above.
func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("bindings: invalid embedded ABI: " + err.Error())
	}
	return parsed
}

var (
	// TangleRouterABI is the parsed ABI for the Tangle router contract.
	TangleRouterABI = mustParse(tangleRouterABIJSON)
	// BlueprintServiceManagerABI is the parsed ABI for a blueprint's
	// service-manager contract.
	BlueprintServiceManagerABI = mustParse(blueprintServiceManagerABIJSON)
	// MultiAssetDelegationABI is the parsed ABI for the restaking
	// delegation contract.
	MultiAssetDelegationABI = mustParse(multiAssetDelegationABIJSON)
	// OperatorStatusRegistryABI is the parsed ABI for the operator
	// status registry contract.
	OperatorStatusRegistryABI = mustParse(operatorStatusRegistryABIJSON)
)

// JobSubmittedSignature is keccak256("JobSubmitted(uint64,uint64,uint8,address,bytes)"),
// the topic[0] every JobSubmitted log must carry. It is bit-exact with
// spec.md §6 and original_source's JOB_SUBMITTED_SIG constant.
var JobSubmittedSignature = TangleRouterABI.Events["JobSubmitted"].ID
