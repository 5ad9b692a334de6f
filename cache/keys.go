package cache

import "fmt"

// ServiceKeyPrefix is the common prefix of every cache key scoped to a
// single service, shared by InvalidateService and the key builders
// below so invalidation stays exact.
func ServiceKeyPrefix(serviceID uint64) string {
	return fmt.Sprintf("svc:%d:", serviceID)
}

// OperatorsKey is the cache key for a service's bonded operator set.
func OperatorsKey(serviceID uint64) string {
	return ServiceKeyPrefix(serviceID) + "operators"
}

// AggregationPolicyKey is the cache key for a (service, jobIndex)
// aggregation threshold policy.
func AggregationPolicyKey(serviceID uint64, jobIndex uint8) string {
	return fmt.Sprintf("%saggpolicy:%d", ServiceKeyPrefix(serviceID), jobIndex)
}

// RequiresAggregationKey is the cache key for whether a (service,
// jobIndex) pair needs aggregated submission.
func RequiresAggregationKey(serviceID uint64, jobIndex uint8) string {
	return fmt.Sprintf("%srequiresagg:%d", ServiceKeyPrefix(serviceID), jobIndex)
}

// OperatorStakeKey is the cache key for a single operator's restaked
// exposure; not service-scoped since stake is a cross-service fact.
func OperatorStakeKey(operator string) string {
	return "stake:" + operator
}
