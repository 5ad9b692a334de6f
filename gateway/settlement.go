package gateway

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
)

// PriceTag is a single accepted payment option for a job, in the shape
// the x402 HTTP 402 response body advertises under "accepts".
type PriceTag struct {
	Scheme       string `json:"scheme"`
	Network      string `json:"network"`
	MaxAmountWei string `json:"maxAmountRequired"`
	Asset        string `json:"asset"`
	PayTo        string `json:"payTo"`
	Resource     string `json:"resource"`
}

// TokenTable maps a network to the (label -> asset address) pairs this
// operator is configured to accept payment in. It ships empty and is
// filled from config.
type TokenTable map[string]map[string]string

// ResolveTokenLabel looks up the asset address for a human label
// ("USDC") on a given network, failing closed if the operator hasn't
// configured that pair.
func ResolveTokenLabel(table TokenTable, network, label string) (string, error) {
	byLabel, ok := table[network]
	if !ok {
		return "", badRequest("invalid_policy", fmt.Sprintf("network %q is not configured", network))
	}
	addr, ok := byLabel[label]
	if !ok {
		return "", badRequest("invalid_policy", fmt.Sprintf("token %q is not accepted on network %q", label, network))
	}
	return addr, nil
}

// BuildEVMPriceTags constructs the price tags for a job's quote across
// every (network, token) pair the operator accepts, all pointing at the
// same payTo address and resource path.
func BuildEVMPriceTags(table TokenTable, payTo, resource, amountWei string) []PriceTag {
	var tags []PriceTag
	for network, tokens := range table {
		for _, asset := range tokens {
			tags = append(tags, PriceTag{
				Scheme:       "exact",
				Network:      network,
				MaxAmountWei: amountWei,
				Asset:        asset,
				PayTo:        payTo,
				Resource:     resource,
			})
		}
	}
	return tags
}

// ParseWeiAmount parses a decimal wei string into a 256-bit integer,
// the native word size of the EVM amounts this gateway quotes and
// settles in.
func ParseWeiAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, badRequest("missing_settlement_context", fmt.Sprintf("invalid amount %q: %v", s, err))
	}
	return v, nil
}

// ValidatePriceTagAmountBounds rejects a settlement whose paid amount
// falls outside [minWei, maxWei] — catching both underpayment and a
// payer over-settling a now-stale quote whose minimum has since risen.
// maxWei is optional; a nil value means no upper bound is enforced.
// This is a defense-in-depth check on top of the facilitator's own
// settlement verification, not a replacement for it.
func ValidatePriceTagAmountBounds(paidWei, minWei, maxWei *uint256.Int) error {
	if paidWei == nil {
		return badRequest("missing_settlement_context", "missing settlement amount")
	}
	if paidWei.Lt(minWei) {
		return badRequest("missing_settlement_context", fmt.Sprintf("payment %s below required minimum %s", paidWei, minWei))
	}
	if maxWei != nil && paidWei.Gt(maxWei) {
		return badRequest("missing_settlement_context", fmt.Sprintf("payment %s exceeds quoted maximum %s", paidWei, maxWei))
	}
	return nil
}

// SettlementDetails is the decoded X-Payment-Response payload a
// facilitator returns once a payment has settled on-chain.
type SettlementDetails struct {
	Network     string `json:"network"`
	Transaction string `json:"transaction"`
	Payer       string `json:"payer"`
	AmountWei   string `json:"amount"`
	Asset       string `json:"asset"`
}

// ParseSettlementResponseHeader decodes the base64-encoded JSON value
// of the X-Payment-Response header into SettlementDetails.
func ParseSettlementResponseHeader(raw string) (SettlementDetails, error) {
	if raw == "" {
		return SettlementDetails{}, badRequest("missing_settlement_context", "missing X-Payment-Response header")
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return SettlementDetails{}, badRequest("missing_settlement_context", "X-Payment-Response is not valid base64")
	}
	return parseSettlementDetails(decoded)
}

func parseSettlementDetails(raw []byte) (SettlementDetails, error) {
	var d SettlementDetails
	if err := json.Unmarshal(raw, &d); err != nil {
		return SettlementDetails{}, badRequest("missing_settlement_context", "malformed settlement response: "+err.Error())
	}
	if d.Payer == "" || d.Transaction == "" {
		return SettlementDetails{}, badRequest("missing_settled_payer", "settlement response missing payer or transaction")
	}
	return d, nil
}

// PaymentAttribution is the pure bookkeeping extracted from a settled
// payment: which network/token it settled in and who the facilitator
// reports as the settled payer. It is independent of job-call
// authorization — RestrictedPaid's caller resolution is a separate
// concern, handled by authorizeRestrictedJob.
type PaymentAttribution struct {
	Network      string
	Token        string
	SettledPayer string
}

// ExtractPaymentAttribution builds the observability-facing attribution
// record from a settlement's details; it never fails on auth grounds,
// since attribution is recorded regardless of which AuthMode governs
// the job.
func ExtractPaymentAttribution(settlement SettlementDetails) PaymentAttribution {
	return PaymentAttribution{
		Network:      settlement.Network,
		Token:        settlement.Asset,
		SettledPayer: settlement.Payer,
	}
}
