package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tangle-network/avs-operator/aggregation"
	"github.com/tangle-network/avs-operator/cache"
	"github.com/tangle-network/avs-operator/chain"
	"github.com/tangle-network/avs-operator/config"
	"github.com/tangle-network/avs-operator/gateway"
	"github.com/tangle-network/avs-operator/quote"
)

func hexAddr(s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}

func orDefaultDir(dir string) string {
	if dir == "" {
		return "./operator-data/checkpoints"
	}
	return dir
}

func tokenTableFrom(entries []config.TokenEntry) gateway.TokenTable {
	table := make(gateway.TokenTable)
	for _, e := range entries {
		if table[e.Network] == nil {
			table[e.Network] = make(map[string]string)
		}
		table[e.Network][e.Label] = e.Address
	}
	return table
}

// noopSettler is a placeholder Settler that treats any non-empty
// X-Payment header as settled; wiring a real x402 facilitator client
// is left to deployment-specific configuration since facilitator
// endpoints are operator-chosen infrastructure, not part of this
// runtime.
type noopSettler struct{}

func (noopSettler) Settle(q quote.Quote, paymentHeader string) (gateway.SettlementDetails, error) {
	if paymentHeader == "" {
		return gateway.SettlementDetails{}, fmt.Errorf("no payment header presented")
	}
	return gateway.SettlementDetails{
		Network:     "configured-network",
		Transaction: "0x0",
		Payer:       "0x0",
		AmountWei:   q.AmountWei,
		Asset:       q.Token,
	}, nil
}

type jobPolicyKey struct {
	serviceID uint64
	jobIndex  uint8
}

// jobPoliciesFrom converts the operator's configured [[gateway.job_policies]]
// entries into the lookup table chainRoster.ResolvePolicy consults,
// parsing each entry's string mode/auth fields into the gateway
// package's enums once at startup rather than on every request.
func jobPoliciesFrom(entries []config.JobPolicy) map[jobPolicyKey]gateway.Policy {
	out := make(map[jobPolicyKey]gateway.Policy, len(entries))
	for _, jp := range entries {
		out[jobPolicyKey{jp.ServiceID, jp.JobIndex}] = gateway.Policy{
			ServiceID:      jp.ServiceID,
			JobIndex:       jp.JobIndex,
			PriceWei:       jp.PriceWei,
			Mode:           parseInvocationMode(jp.InvocationMode),
			Auth:           parseAuthMode(jp.AuthMode),
			TangleRPCURL:   jp.TangleRPCURL,
			TangleContract: jp.TangleContract,
		}
	}
	return out
}

func parseInvocationMode(s string) gateway.InvocationMode {
	switch s {
	case "public_paid":
		return gateway.PublicPaid
	case "restricted_paid":
		return gateway.RestrictedPaid
	default:
		return gateway.Disabled
	}
}

func parseAuthMode(s string) gateway.AuthMode {
	switch s {
	case "payer_is_caller":
		return gateway.PayerIsCaller
	case "delegated_caller_signature":
		return gateway.DelegatedCallerSignature
	default:
		return gateway.PaymentOnly
	}
}

// chainRoster adapts a chain.Client + cache.Cache into the interfaces
// the consumer and gateway need to resolve operator rosters, job
// policy, and on-chain caller permission. The roster and aggregation
// lookups are cached, each under its own TTL key; job price, policy and
// caller-permission lookups are not.
type chainRoster struct {
	client *chain.Client
	cache  *cache.Cache

	// jobPolicies holds the operator's configured per-(service,job)
	// x402 policy; a miss falls back to defaultMode with PaymentOnly
	// auth, mirroring resolve_job_policy's unwrap_or default.
	jobPolicies map[jobPolicyKey]gateway.Policy
	defaultMode string
}

func (r *chainRoster) Endpoints(ctx context.Context, serviceID uint64) ([]aggregation.Endpoint, error) {
	v, err := r.cache.GetOrLoad(ctx, cache.OperatorsKey(serviceID), func(ctx context.Context) (any, error) {
		operators, err := r.client.GetServiceOperators(ctx, serviceID)
		if err != nil {
			return nil, err
		}
		endpoints := make([]aggregation.Endpoint, 0, len(operators))
		for _, op := range operators {
			stake, err := r.client.GetOperatorStake(ctx, op)
			if err != nil {
				return nil, err
			}
			endpoints = append(endpoints, aggregation.Endpoint{
				Operator: op.Hex(),
				Stake:    stake.Uint64(),
			})
		}
		return endpoints, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]aggregation.Endpoint), nil
}

func (r *chainRoster) RequiresAggregation(ctx context.Context, serviceID uint64, jobIndex uint8) (bool, error) {
	v, err := r.cache.GetOrLoad(ctx, cache.RequiresAggregationKey(serviceID, jobIndex), func(ctx context.Context) (any, error) {
		return r.client.RequiresAggregation(ctx, serviceID, jobIndex)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

type aggregationPolicy struct {
	bps  uint16
	kind uint8
}

func (r *chainRoster) AggregationThreshold(ctx context.Context, serviceID uint64, jobIndex uint8) (uint16, uint8, error) {
	v, err := r.cache.GetOrLoad(ctx, cache.AggregationPolicyKey(serviceID, jobIndex), func(ctx context.Context) (any, error) {
		bps, kind, err := r.client.AggregationThreshold(ctx, serviceID, jobIndex)
		if err != nil {
			return nil, err
		}
		return aggregationPolicy{bps: bps, kind: kind}, nil
	})
	if err != nil {
		return 0, 0, err
	}
	p := v.(aggregationPolicy)
	return p.bps, p.kind, nil
}

// JobPriceWei, ResolvePolicy and IsPermittedCaller satisfy
// gateway.Resolver.

// JobPriceWei reports the configured price for a job, read from its
// job policy entry; a job with no configured policy has no x402 price
// at all (404 job_not_found), regardless of the operator's default
// invocation mode.
func (r *chainRoster) JobPriceWei(serviceID uint64, jobIndex uint8) (string, bool) {
	jp, ok := r.jobPolicies[jobPolicyKey{serviceID, jobIndex}]
	if !ok || jp.PriceWei == "" {
		return "", false
	}
	return jp.PriceWei, true
}

// ResolvePolicy returns the configured Policy for (serviceID,
// jobIndex), falling back to the operator's default invocation mode
// with PaymentOnly auth when no specific policy entry matches.
func (r *chainRoster) ResolvePolicy(serviceID uint64, jobIndex uint8) (gateway.Policy, error) {
	if p, ok := r.jobPolicies[jobPolicyKey{serviceID, jobIndex}]; ok {
		return p, nil
	}
	return gateway.Policy{
		ServiceID: serviceID,
		JobIndex:  jobIndex,
		Mode:      parseInvocationMode(r.defaultMode),
		Auth:      gateway.PaymentOnly,
	}, nil
}

// IsPermittedCaller runs the isPermittedCaller eth_call against the
// policy's configured contract. The policy's TangleRPCURL is expected
// to match this operator's own configured RPC endpoint; a policy
// pointing at a different chain would need its own dialed client,
// which this runtime does not provision (see DESIGN.md).
func (r *chainRoster) IsPermittedCaller(ctx context.Context, policy gateway.Policy, caller common.Address) (bool, error) {
	return r.client.IsPermittedCallerAt(ctx, common.HexToAddress(policy.TangleContract), policy.ServiceID, caller)
}
