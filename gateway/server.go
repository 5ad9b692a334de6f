package gateway

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tangle-network/avs-operator/jobcall"
	"github.com/tangle-network/avs-operator/quote"
)

// Settler verifies and settles an x402 payment against the facilitator,
// returning the resolved SettlementDetails. It is a seam so the
// gateway's HTTP logic can be tested without a real facilitator.
type Settler interface {
	Settle(q quote.Quote, paymentHeader string) (SettlementDetails, error)
}

// Server is the x402 gateway's HTTP surface. It never executes a job
// itself: a settled request is enqueued onto Calls and answered 202
// without waiting for the job to run. Calls is a plain channel, so when
// it is full the handler waits for room until the request's context
// ends (then 503 enqueue_failed).
type Server struct {
	router     *mux.Router
	resolver   Resolver
	quotes     *quote.Registry
	replay     *DelegatedReplayGuard
	counters   *Counters
	calls      chan<- jobcall.Call
	settler    Settler
	tokenTable TokenTable
	payToAddr  string
	log        zerolog.Logger
	now        func() time.Time

	callIDCounter atomic.Uint64
}

// Config controls Server construction.
type Config struct {
	Resolver   Resolver
	Quotes     *quote.Registry
	Calls      chan<- jobcall.Call
	Settler    Settler
	TokenTable TokenTable
	PayToAddr  string
	Counters   *Counters
}

// NewServer wires a gateway Server and registers its routes.
func NewServer(cfg Config, log zerolog.Logger) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		resolver:   cfg.Resolver,
		quotes:     cfg.Quotes,
		replay:     NewDelegatedReplayGuard(),
		counters:   cfg.Counters,
		calls:      cfg.Calls,
		settler:    cfg.Settler,
		tokenTable: cfg.TokenTable,
		payToAddr:  cfg.PayToAddr,
		log:        log.With().Str("component", "gateway").Logger(),
		now:        time.Now,
	}
	s.callIDCounter.Store(1)
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) routes() {
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/x402/health", s.healthCheck).Methods(http.MethodGet)
	s.router.HandleFunc("/x402/stats", s.getStats).Methods(http.MethodGet)
	s.router.HandleFunc("/x402/jobs/{service}/{job}/price", s.getJobPrice).Methods(http.MethodGet)
	s.router.HandleFunc("/x402/jobs/{service}/{job}/auth-dry-run", s.postAuthDryRun).Methods(http.MethodPost)
	s.router.HandleFunc("/x402/jobs/{service}/{job}", s.handleJobRequest).Methods(http.MethodPost)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "counters": s.counters.Snapshot()})
}

func pathUint64(vars map[string]string, key string) (uint64, error) {
	v, err := strconv.ParseUint(vars[key], 10, 64)
	if err != nil {
		return 0, badRequest("invalid_caller", fmt.Sprintf("invalid %s path parameter", key))
	}
	return v, nil
}

func pathUint8(vars map[string]string, key string) (uint8, error) {
	v, err := strconv.ParseUint(vars[key], 10, 8)
	if err != nil {
		return 0, badRequest("invalid_caller", fmt.Sprintf("invalid %s path parameter", key))
	}
	return uint8(v), nil
}

// jobNotFound looks up a job's configured price, converting a miss into
// the job_not_found rejection and counter every endpoint shares.
func (s *Server) jobNotFound(serviceID uint64, jobIndex uint8) (string, error) {
	priceWei, ok := s.resolver.JobPriceWei(serviceID, jobIndex)
	if !ok {
		s.counters.incJobNotFound()
		return "", notFound("job_not_found", fmt.Sprintf("no x402 job at service_id=%d job_index=%d", serviceID, jobIndex))
	}
	return priceWei, nil
}

func (s *Server) priceTags(serviceID uint64, jobIndex uint8, priceWei string) []PriceTag {
	resource := fmt.Sprintf("/x402/jobs/%d/%d", serviceID, jobIndex)
	return BuildEVMPriceTags(s.tokenTable, s.payToAddr, resource, priceWei)
}

// getJobPrice is the unauthenticated discovery endpoint: it reports what
// a job costs and how to pay, without requiring or checking payment.
func (s *Server) getJobPrice(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	serviceID, err := pathUint64(vars, "service")
	if err != nil {
		s.reject(w, err)
		return
	}
	jobIndex, err := pathUint8(vars, "job")
	if err != nil {
		s.reject(w, err)
		return
	}

	priceWei, err := s.jobNotFound(serviceID, jobIndex)
	if err != nil {
		s.reject(w, err)
		return
	}

	policy, err := s.resolver.ResolvePolicy(serviceID, jobIndex)
	if err != nil {
		s.reject(w, serviceUnavailable("policy_error", err.Error()))
		return
	}
	if policy.Mode == Disabled {
		s.reject(w, denied("x402_disabled", "job is not enabled for x402 invocation"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service_id":        serviceID,
		"job_index":         jobIndex,
		"price_wei":         priceWei,
		"settlement_options": s.priceTags(serviceID, jobIndex, priceWei),
	})
}

// postAuthDryRun runs the same restricted-auth + on-chain permission
// check as paid invocation, without consuming a nonce or enqueuing a
// call, so a client can validate its signing flow before paying.
func (s *Server) postAuthDryRun(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	serviceID, err := pathUint64(vars, "service")
	if err != nil {
		s.reject(w, err)
		return
	}
	jobIndex, err := pathUint8(vars, "job")
	if err != nil {
		s.reject(w, err)
		return
	}

	if _, err := s.jobNotFound(serviceID, jobIndex); err != nil {
		s.reject(w, err)
		return
	}

	policy, err := s.resolver.ResolvePolicy(serviceID, jobIndex)
	if err != nil {
		s.counters.incAuthDryRunError()
		s.reject(w, serviceUnavailable("policy_error", err.Error()))
		return
	}

	switch policy.Mode {
	case Disabled:
		s.counters.incAuthDryRunDenied()
		s.reject(w, denied("x402_disabled", "job is not enabled for x402 invocation"))
	case PublicPaid:
		s.counters.incAuthDryRunAllowed()
		writeJSON(w, http.StatusOK, map[string]any{
			"allowed": true, "mode": "public_paid",
			"service_id": serviceID, "job_index": jobIndex,
		})
	case RestrictedPaid:
		body := readBody(r)
		caller, err := s.authorizeRestrictedJob(r.Context(), policy, serviceID, jobIndex, body, r.Header, false)
		if err != nil {
			if rej, ok := err.(Rejection); ok && (rej.Status == http.StatusForbidden || rej.Status == http.StatusConflict) {
				s.counters.incAuthDryRunDenied()
			} else {
				s.counters.incAuthDryRunError()
			}
			s.reject(w, err)
			return
		}
		s.counters.incAuthDryRunAllowed()
		writeJSON(w, http.StatusOK, map[string]any{
			"allowed": true, "mode": "restricted_paid", "caller": caller.Hex(),
			"service_id": serviceID, "job_index": jobIndex,
		})
	}
}

// handleJobRequest implements the full x402 invocation sequence: it
// plays the role gateway.rs splits across the X402Middleware (challenge
// unpaid requests, settle paid ones) and handle_job_request (authorize
// the caller and enqueue), since this package owns both halves directly
// rather than layering a third-party x402 middleware crate.
func (s *Server) handleJobRequest(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	serviceID, err := pathUint64(vars, "service")
	if err != nil {
		s.reject(w, err)
		return
	}
	jobIndex, err := pathUint8(vars, "job")
	if err != nil {
		s.reject(w, err)
		return
	}

	priceWei, err := s.jobNotFound(serviceID, jobIndex)
	if err != nil {
		s.reject(w, err)
		return
	}

	policy, err := s.resolver.ResolvePolicy(serviceID, jobIndex)
	if err != nil {
		s.counters.incPolicyError()
		s.reject(w, serviceUnavailable("policy_error", err.Error()))
		return
	}
	if policy.Mode == Disabled {
		s.counters.incPolicyDenied()
		s.log.Warn().Uint64("service_id", serviceID).Uint8("job_index", jobIndex).Str("code", "x402_disabled").Msg("x402 policy denied")
		s.reject(w, denied("x402_disabled", "job is not enabled for x402 invocation"))
		return
	}

	body := readBody(r)

	paymentHeader := r.Header.Get(HeaderPaymentV1)
	if paymentHeader == "" {
		paymentHeader = r.Header.Get(HeaderPaymentV2)
	}
	if paymentHeader == "" {
		// Step 1 of the middleware pattern: no payment presented yet,
		// challenge the client with what it would cost to proceed.
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"x402Version": 1,
			"error":       "X-PAYMENT is required",
			"accepts":     s.priceTags(serviceID, jobIndex, priceWei),
		})
		return
	}

	// Step 2: verify and settle the presented payment before this
	// handler runs any authorization or enqueue logic.
	q := s.quotes.Mint(serviceID, jobIndex, priceWei, "")
	settlement, err := s.settler.Settle(q, paymentHeader)
	if err != nil {
		s.counters.incPolicyError()
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"x402Version": 1,
			"error":       "payment settlement failed: " + err.Error(),
			"accepts":     s.priceTags(serviceID, jobIndex, priceWei),
		})
		return
	}
	if err := s.validateSettledAmount(settlement, priceWei); err != nil {
		s.counters.incPolicyError()
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"x402Version": 1,
			"error":       err.Error(),
			"accepts":     s.priceTags(serviceID, jobIndex, priceWei),
		})
		return
	}

	attribution := ExtractPaymentAttribution(settlement)
	s.log.Info().Uint64("service_id", serviceID).Uint8("job_index", jobIndex).
		Str("network", attribution.Network).Str("token", attribution.Token).
		Str("settled_payer", attribution.SettledPayer).Msg("x402 payment settled")

	var caller common.Address
	switch policy.Mode {
	case PublicPaid:
		// No distinct caller identity is resolved for public jobs.
	case RestrictedPaid:
		r.Header.Set(HeaderSettlement, encodeSettlementHeader(settlement))
		caller, err = s.authorizeRestrictedJob(r.Context(), policy, serviceID, jobIndex, body, r.Header, true)
		if err != nil {
			if rej, ok := err.(Rejection); ok && (rej.Status == http.StatusForbidden || rej.Status == http.StatusConflict) {
				s.counters.incPolicyDenied()
				if rej.Code == "signature_replay" {
					s.counters.incReplayDenied()
				}
			} else {
				s.counters.incPolicyError()
			}
			s.log.Warn().Uint64("service_id", serviceID).Uint8("job_index", jobIndex).Str("reason", "policy_rejected").Msg("x402 restricted policy failed")
			s.reject(w, err)
			return
		}
	}

	if _, err := s.quotes.Consume(q.ID); err != nil {
		s.counters.incQuoteConflict()
		s.reject(w, conflict("quote_conflict", "quote already consumed or expired"))
		return
	}

	callID := s.callIDCounter.Add(1) | jobcall.GatewayCallIDBit
	call := jobcall.NewCall(serviceID, callID, jobIndex, 0, common.Hash{}, uint64(s.now().Unix()), caller, body)

	select {
	case s.calls <- call:
	case <-r.Context().Done():
		s.counters.incEnqueueFailed()
		s.log.Error().Uint64("service_id", serviceID).Uint8("job_index", jobIndex).Str("reason", "enqueue_failed").Msg("x402 enqueue failed")
		s.reject(w, serviceUnavailable("enqueue_failed", "service shutting down"))
		return
	}

	s.counters.incAccepted()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":     "accepted",
		"receipt":    q.ID,
		"service_id": serviceID,
		"job_index":  jobIndex,
		"call_id":    callID,
	})
}

// validateSettledAmount is a defense-in-depth check on top of the
// facilitator's own settlement verification: it confirms the settled
// amount actually meets the job's quoted price.
func (s *Server) validateSettledAmount(settlement SettlementDetails, priceWei string) error {
	quotedWei, err := ParseWeiAmount(priceWei)
	if err != nil {
		return err
	}
	paidWei, err := ParseWeiAmount(settlement.AmountWei)
	if err != nil {
		return err
	}
	return ValidatePriceTagAmountBounds(paidWei, quotedWei, nil)
}

// authorizeRestrictedJob resolves the logical caller for a
// RestrictedPaid job under its configured AuthMode, then checks the
// on-chain permitted-caller allowlist. enforceReplay gates whether a
// successful delegated-signature check consumes its nonce — the
// auth-dry-run endpoint checks without consuming.
func (s *Server) authorizeRestrictedJob(ctx context.Context, policy Policy, serviceID uint64, jobIndex uint8, body []byte, header headerGetter, enforceReplay bool) (common.Address, error) {
	var caller common.Address

	switch policy.Auth {
	case PayerIsCaller:
		settlement, err := ParseSettlementResponseHeader(header.Get(HeaderSettlement))
		if err != nil {
			return common.Address{}, err
		}
		if settlement.Payer == "" {
			return common.Address{}, badRequest("missing_settled_payer", "settled payer is required for auth_mode=payer_is_caller")
		}
		caller = common.HexToAddress(settlement.Payer)
	case DelegatedCallerSignature:
		assertion, err := extractDelegatedAssertion(serviceID, jobIndex, body, header, s.now())
		if err != nil {
			return common.Address{}, err
		}
		if enforceReplay {
			if !s.replay.Reserve(assertion.Caller.Hex(), serviceID, jobIndex, assertion.Nonce, assertion.Expiry, s.now().Unix()) {
				return common.Address{}, conflict("signature_replay", "delegated signature nonce already used for this job scope")
			}
		}
		caller = assertion.Caller
	case PaymentOnly:
		return common.Address{}, serviceUnavailable("invalid_policy", "restricted_paid cannot use auth_mode=payment_only")
	}

	if policy.TangleRPCURL == "" || policy.TangleContract == "" {
		return common.Address{}, serviceUnavailable("invalid_policy", "restricted_paid policy missing tangle_rpc_url or tangle_contract")
	}

	permitted, err := s.resolver.IsPermittedCaller(ctx, policy, caller)
	if err != nil {
		return common.Address{}, serviceUnavailable("permission_check_failed", err.Error())
	}
	if !permitted {
		return common.Address{}, denied("caller_not_permitted", fmt.Sprintf("caller %s is not permitted for service_id=%d via on-chain policy", caller.Hex(), serviceID))
	}
	return caller, nil
}

func readBody(r *http.Request) []byte {
	if r.ContentLength <= 0 {
		return nil
	}
	body := make([]byte, r.ContentLength)
	_, _ = r.Body.Read(body)
	return body
}

// encodeSettlementHeader re-serializes a SettlementDetails the way a
// facilitator would have, so the downstream PayerIsCaller/attribution
// path can read it back uniformly through HeaderSettlement regardless
// of whether the original response came from a real facilitator or
// this server's own settlement step.
func encodeSettlementHeader(d SettlementDetails) string {
	raw, _ := json.Marshal(d)
	return base64.StdEncoding.EncodeToString(raw)
}

func (s *Server) reject(w http.ResponseWriter, err error) {
	if rej, ok := err.(Rejection); ok {
		writeJSON(w, rej.Status, map[string]string{"error": rej.Detail, "code": rej.Code})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"code": "internal", "error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeHexSignature(hexStr string) ([]byte, error) {
	if len(hexStr) >= 2 && hexStr[0:2] == "0x" {
		hexStr = hexStr[2:]
	}
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, badRequest("invalid_signature", "invalid signature hex encoding")
	}
	return b, nil
}
