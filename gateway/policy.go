// Package gateway implements the x402 HTTP gateway: paid job
// invocation over plain HTTP, with a pluggable invocation/auth policy,
// delegated-signature authorization, quote-based settlement and a
// replay guard, ported from x402/src/gateway.rs.
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// InvocationMode controls whether and how a service accepts paid HTTP
// job calls.
type InvocationMode uint8

const (
	// Disabled rejects every x402 invocation for the service.
	Disabled InvocationMode = iota
	// PublicPaid accepts any payer; the only requirement is a settled
	// payment covering the quoted price.
	PublicPaid
	// RestrictedPaid additionally requires the caller to be on the
	// service's permitted-caller allowlist, verified on-chain.
	RestrictedPaid
)

// AuthMode controls how a request proves who the logical caller is.
// It is only consulted under RestrictedPaid; PublicPaid jobs never
// resolve a distinct caller identity.
type AuthMode uint8

const (
	// PaymentOnly is invalid under RestrictedPaid: a restricted job
	// always needs a caller identity distinct from "whoever paid".
	PaymentOnly AuthMode = iota
	// PayerIsCaller requires the on-chain payer address (from the
	// settlement response) to stand in as the caller.
	PayerIsCaller
	// DelegatedCallerSignature allows a third party to pay while a
	// distinct caller authorizes the call via an EIP-191 personal
	// signature over the canonical delegated-auth payload.
	DelegatedCallerSignature
)

// Policy is the resolved invocation/auth configuration for one
// (service, job_index) pair.
type Policy struct {
	ServiceID uint64
	JobIndex  uint8
	PriceWei  string
	Mode      InvocationMode
	Auth      AuthMode

	// TangleRPCURL and TangleContract locate the eth_call used to check
	// isPermittedCaller under RestrictedPaid; both are required whenever
	// Mode == RestrictedPaid, whatever the Auth mode.
	TangleRPCURL   string
	TangleContract string
}

// Rejection is a policy or validation failure returned to the caller.
// Code values are stable strings clients branch on without parsing
// prose; they match the taxonomy gateway.rs's PolicyRejection emits.
type Rejection struct {
	Status int
	Code   string
	Detail string
}

func (r Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Detail)
}

func denied(code, detail string) Rejection {
	return Rejection{Status: http.StatusForbidden, Code: code, Detail: detail}
}

func badRequest(code, detail string) Rejection {
	return Rejection{Status: http.StatusBadRequest, Code: code, Detail: detail}
}

func serviceUnavailable(code, detail string) Rejection {
	return Rejection{Status: http.StatusServiceUnavailable, Code: code, Detail: detail}
}

func conflict(code, detail string) Rejection {
	return Rejection{Status: http.StatusConflict, Code: code, Detail: detail}
}

func notFound(code, detail string) Rejection {
	return Rejection{Status: http.StatusNotFound, Code: code, Detail: detail}
}

// Resolver looks up a job's price and x402 invocation policy, and
// checks the on-chain permitted-caller allowlist for RestrictedPaid
// jobs.
type Resolver interface {
	// JobPriceWei returns the configured price, in wei, for a job. ok is
	// false when the job is not configured for x402 at all (404).
	JobPriceWei(serviceID uint64, jobIndex uint8) (priceWei string, ok bool)
	// ResolvePolicy returns the configured Policy for (serviceID,
	// jobIndex), falling back to the operator's default invocation mode
	// when no specific policy is configured.
	ResolvePolicy(serviceID uint64, jobIndex uint8) (Policy, error)
	// IsPermittedCaller runs the on-chain isPermittedCaller eth_call
	// against the policy's configured contract.
	IsPermittedCaller(ctx context.Context, policy Policy, caller common.Address) (bool, error)
}
