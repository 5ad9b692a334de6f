package aggregation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tangle-network/avs-operator/bls"
)

// PartialSignatureRequest is the body this service POSTs to each
// operator's discovered aggregation endpoint.
type PartialSignatureRequest struct {
	ServiceID uint64 `json:"service_id"`
	CallID    uint64 `json:"call_id"`
	Message   []byte `json:"message"`
}

// PartialSignatureResponse is an operator's signed partial, keyed by
// its address so the caller can dedup and weigh it.
type PartialSignatureResponse struct {
	Operator  string `json:"operator"`
	PublicKey []byte `json:"public_key"` // uncompressed G2 point
	Signature []byte `json:"signature"`  // uncompressed G1 point
}

// Config controls one aggregation round.
type Config struct {
	ServiceID        uint64
	AdditionalServices []uint64 // not read by Collect: only the endpoints passed to it are polled
	ThresholdKind    ThresholdKind
	ThresholdBps     uint16
	WaitForThreshold bool
	ThresholdTimeout time.Duration
	SubmitToChain    bool
}

// Result is a completed aggregation round.
type Result struct {
	ServiceID    uint64
	CallID       uint64
	Message      []byte
	Signers      []string
	AggSignature bls.Signature
	AggPublicKey bls.PublicKey
}

// Service polls known operator endpoints for BLS partial signatures
// over a job result and aggregates them once a threshold is reached.
type Service struct {
	httpClient *http.Client
	log        zerolog.Logger
}

// New builds an aggregation Service.
func New(log zerolog.Logger) *Service {
	return &Service{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.With().Str("component", "aggregation").Logger(),
	}
}

// Endpoint pairs an operator's identity with its discovered
// aggregation URL.
type Endpoint struct {
	Operator string
	URL      string
	Stake    uint64
}

// Collect polls every endpoint concurrently for a partial signature
// over msg, returning as soon as the configured threshold is met (when
// WaitForThreshold is true) or once every endpoint has responded or
// timed out (when false, the caller decides what to do with a partial
// set).
func (s *Service) Collect(ctx context.Context, cfg Config, endpoints []Endpoint, callID uint64, msg []byte) (Result, error) {
	if cfg.ThresholdTimeout <= 0 {
		cfg.ThresholdTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.ThresholdTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		sigs    []bls.Signature
		pubs    []bls.PublicKey
		signers []string
		signed  = make(map[string]bool)
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, ep := range endpoints {
		ep := ep
		g.Go(func() error {
			resp, err := s.poll(gctx, ep, cfg.ServiceID, callID, msg)
			if err != nil {
				s.log.Debug().Err(err).Str("operator", ep.Operator).Msg("partial signature poll failed")
				return nil // a single operator failing does not abort the round
			}

			mu.Lock()
			defer mu.Unlock()
			sigs = append(sigs, resp.sig)
			pubs = append(pubs, resp.pub)
			signers = append(signers, ep.Operator)
			signed[ep.Operator] = true
			if cfg.WaitForThreshold && thresholdMet(cfg, len(endpoints), endpoints, signed) {
				cancel() // threshold reached: stop waiting on the remaining operators
			}
			return nil
		})
	}
	_ = g.Wait() // errors are already swallowed per-operator above

	if len(sigs) == 0 {
		return Result{}, fmt.Errorf("aggregation: no operator responded for call %d", callID)
	}

	if cfg.WaitForThreshold {
		met := thresholdMet(cfg, len(endpoints), endpoints, signed)
		if !met {
			return Result{}, fmt.Errorf("aggregation: threshold not met for call %d: %d/%d signers", callID, len(signers), len(endpoints))
		}
	}

	aggSig, err := bls.AggregateSignatures(sigs)
	if err != nil {
		return Result{}, fmt.Errorf("aggregation: aggregate signatures: %w", err)
	}
	aggPub, err := bls.AggregatePublicKeys(pubs)
	if err != nil {
		return Result{}, fmt.Errorf("aggregation: aggregate public keys: %w", err)
	}

	ok, err := bls.AggregateVerify(aggPub, msg, aggSig)
	if err != nil || !ok {
		return Result{}, fmt.Errorf("aggregation: aggregate signature failed verification for call %d", callID)
	}

	return Result{
		ServiceID:    cfg.ServiceID,
		CallID:       callID,
		Message:      msg,
		Signers:      signers,
		AggSignature: aggSig,
		AggPublicKey: aggPub,
	}, nil
}

func thresholdMet(cfg Config, operatorCount int, endpoints []Endpoint, signed map[string]bool) bool {
	switch cfg.ThresholdKind {
	case StakeWeighted:
		all := make([]OperatorExposure, 0, len(endpoints))
		for _, ep := range endpoints {
			all = append(all, OperatorExposure{Operator: ep.Operator, Stake: ep.Stake})
		}
		return StakeThresholdMet(all, signed, cfg.ThresholdBps)
	default:
		return len(signed) >= RequiredSigners(operatorCount, cfg.ThresholdBps)
	}
}

type polledSignature struct {
	sig bls.Signature
	pub bls.PublicKey
}

func (s *Service) poll(ctx context.Context, ep Endpoint, serviceID, callID uint64, msg []byte) (polledSignature, error) {
	body, err := json.Marshal(PartialSignatureRequest{ServiceID: serviceID, CallID: callID, Message: msg})
	if err != nil {
		return polledSignature{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return polledSignature{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return polledSignature{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return polledSignature{}, fmt.Errorf("operator %s returned status %d", ep.Operator, resp.StatusCode)
	}

	var parsed PartialSignatureResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return polledSignature{}, err
	}

	sig, err := bls.UnmarshalG1(parsed.Signature)
	if err != nil {
		return polledSignature{}, fmt.Errorf("operator %s: %w", ep.Operator, err)
	}
	pub, err := bls.UnmarshalG2(parsed.PublicKey)
	if err != nil {
		return polledSignature{}, fmt.Errorf("operator %s: %w", ep.Operator, err)
	}

	ok, err := bls.Verify(pub, msg, sig)
	if err != nil || !ok {
		return polledSignature{}, fmt.Errorf("operator %s: partial signature failed verification", ep.Operator)
	}

	return polledSignature{sig: sig, pub: pub}, nil
}

// SignerBitmap encodes which entries of the full operator roster
// signed, in roster order, as the low bits of a big.Int — the format
// submitAggregatedResult expects.
func SignerBitmap(roster []string, signers []string) *big.Int {
	signed := make(map[string]bool, len(signers))
	for _, s := range signers {
		signed[s] = true
	}
	bitmap := new(big.Int)
	for i, operator := range roster {
		if signed[operator] {
			bitmap.SetBit(bitmap, i, 1)
		}
	}
	return bitmap
}
