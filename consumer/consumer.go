// Package consumer implements the aggregating consumer: the sink at
// the end of the job pipeline that decides, per result, whether to
// submit it directly or hold it for BLS aggregation, and that owns the
// per-call state machine while an aggregation round is in flight.
// Ported from aggregating_consumer.rs's Sink<JobResult> implementation.
package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/tangle-network/avs-operator/aggregation"
	"github.com/tangle-network/avs-operator/bls"
	"github.com/tangle-network/avs-operator/chain"
	"github.com/tangle-network/avs-operator/jobcall"
)

// state is a call's position in the aggregating consumer's per-call
// state machine. A call starts in waitingForResult and moves to
// processingSubmission exactly once, when its result is ready to be
// sent on-chain (directly or as an aggregate); it is then dropped from
// the map rather than transitioning further.
type state uint8

const (
	stateWaitingForResult state = iota
	stateProcessingSubmission
)

// RosterSource resolves the bonded operator set and aggregation
// endpoints for a service, so the consumer can hand the aggregation
// service a fresh roster per call without owning chain-facade details
// itself.
type RosterSource interface {
	Endpoints(ctx context.Context, serviceID uint64) ([]aggregation.Endpoint, error)
	RequiresAggregation(ctx context.Context, serviceID uint64, jobIndex uint8) (bool, error)
	AggregationThreshold(ctx context.Context, serviceID uint64, jobIndex uint8) (bps uint16, kind uint8, err error)
}

// ChainSubmitter is the slice of *chain.Client the consumer needs to
// land a result on-chain, kept as a narrow interface so tests can swap
// in a fake rather than dial a real RPC endpoint.
type ChainSubmitter interface {
	SubmitResult(ctx context.Context, serviceID, callID uint64, result []byte) (TxHandle, error)
	SubmitAggregatedResult(ctx context.Context, s chain.AggregatedSubmission) (TxHandle, error)
}

// TxHandle is the minimal surface a submitted transaction exposes,
// satisfied by *types.Transaction.
type TxHandle interface {
	Hash() common.Hash
}

// Consumer is the aggregating consumer. It is safe for concurrent use
// by multiple dispatcher workers feeding results into Submit.
type Consumer struct {
	chainClient ChainSubmitter
	roster      RosterSource
	aggregator  *aggregation.Service
	log         zerolog.Logger

	mu     sync.Mutex
	states map[callKey]state
}

type callKey struct {
	serviceID uint64
	callID    uint64
}

// New builds a Consumer around any ChainSubmitter, typically the
// adapter returned by WrapChainClient.
func New(chainClient ChainSubmitter, roster RosterSource, aggregator *aggregation.Service, log zerolog.Logger) *Consumer {
	return &Consumer{
		chainClient: chainClient,
		roster:      roster,
		aggregator:  aggregator,
		log:         log.With().Str("component", "consumer").Logger(),
		states:      make(map[callKey]state),
	}
}

// chainClientAdapter narrows *chain.Client down to ChainSubmitter.
type chainClientAdapter struct{ client *chain.Client }

// WrapChainClient adapts a live chain.Client for use as a Consumer's
// ChainSubmitter.
func WrapChainClient(client *chain.Client) ChainSubmitter {
	return chainClientAdapter{client: client}
}

func (a chainClientAdapter) SubmitResult(ctx context.Context, serviceID, callID uint64, result []byte) (TxHandle, error) {
	return a.client.SubmitResult(ctx, serviceID, callID, result)
}

func (a chainClientAdapter) SubmitAggregatedResult(ctx context.Context, s chain.AggregatedSubmission) (TxHandle, error) {
	return a.client.SubmitAggregatedResult(ctx, s)
}

// Submit consumes one jobcall.Result, submitting it to chain directly
// or via BLS aggregation depending on the job's configured policy.
// Errored results are dropped (logged, never submitted) exactly as the
// Rust sink does: a handler failure is not evidence the job should be
// resubmitted, only that this attempt produced nothing usable.
func (c *Consumer) Submit(ctx context.Context, result jobcall.Result) error {
	key := callKey{result.ServiceID, result.CallID}

	if !c.enter(key) {
		return fmt.Errorf("consumer: call %d/%d is already being processed", result.ServiceID, result.CallID)
	}
	defer c.leave(key)

	if !result.OK() {
		c.log.Warn().Err(result.Err).Uint64("service_id", result.ServiceID).Uint64("call_id", result.CallID).Msg("dropping errored result")
		return nil
	}

	needsAgg, err := c.roster.RequiresAggregation(ctx, result.ServiceID, result.JobIndex)
	if err != nil {
		return fmt.Errorf("consumer: check aggregation requirement: %w", err)
	}

	if !needsAgg {
		return c.submitDirect(ctx, result)
	}
	return c.submitAggregated(ctx, result)
}

// enter transitions a call from absent to waitingForResult, refusing
// re-entry for a call already in flight — the cancellation-safety
// property the Rust Sink's poll_ready/start_send split guarantees via
// its own state field.
func (c *Consumer) enter(key callKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, inFlight := c.states[key]; inFlight {
		return false
	}
	c.states[key] = stateWaitingForResult
	return true
}

func (c *Consumer) leave(key callKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, key)
}

func (c *Consumer) markProcessing(key callKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[key] = stateProcessingSubmission
}

func (c *Consumer) submitDirect(ctx context.Context, result jobcall.Result) error {
	c.markProcessing(callKey{result.ServiceID, result.CallID})

	tx, err := c.chainClient.SubmitResult(ctx, result.ServiceID, result.CallID, result.Body)
	if err != nil {
		return fmt.Errorf("consumer: submit direct result: %w", err)
	}
	c.log.Info().Uint64("service_id", result.ServiceID).Uint64("call_id", result.CallID).Str("tx", tx.Hash().Hex()).Msg("submitted direct result")
	return nil
}

func (c *Consumer) submitAggregated(ctx context.Context, result jobcall.Result) error {
	c.markProcessing(callKey{result.ServiceID, result.CallID})

	bps, kind, err := c.roster.AggregationThreshold(ctx, result.ServiceID, result.JobIndex)
	if err != nil {
		return fmt.Errorf("consumer: fetch aggregation threshold: %w", err)
	}
	endpoints, err := c.roster.Endpoints(ctx, result.ServiceID)
	if err != nil {
		return fmt.Errorf("consumer: resolve operator endpoints: %w", err)
	}

	msg := bls.SigningMessage(result.ServiceID, result.CallID, result.Body)
	cfg := aggregation.Config{
		ServiceID:        result.ServiceID,
		ThresholdKind:    aggregation.ThresholdKind(kind),
		ThresholdBps:     bps,
		WaitForThreshold: true,
		ThresholdTimeout: 10 * time.Second,
		SubmitToChain:    true,
	}

	agg, err := c.aggregator.Collect(ctx, cfg, endpoints, result.CallID, msg)
	if err != nil {
		return fmt.Errorf("consumer: aggregate signatures: %w", err)
	}

	roster := make([]string, len(endpoints))
	for i, ep := range endpoints {
		roster[i] = ep.Operator
	}

	submission := chain.AggregatedSubmission{
		ServiceID:    result.ServiceID,
		CallID:       result.CallID,
		Result:       result.Body,
		SignerBitmap: aggregation.SignerBitmap(roster, agg.Signers),
	}
	sigCoords := agg.AggSignature.Coordinates()
	submission.AggSignature = sigCoords
	submission.AggPubkey = agg.AggPublicKey.Coordinates()

	tx, err := c.chainClient.SubmitAggregatedResult(ctx, submission)
	if err != nil {
		return fmt.Errorf("consumer: submit aggregated result: %w", err)
	}
	c.log.Info().Uint64("service_id", result.ServiceID).Uint64("call_id", result.CallID).Int("signers", len(agg.Signers)).Str("tx", tx.Hash().Hex()).Msg("submitted aggregated result")
	return nil
}

// Run drains results from in until it's closed or ctx is cancelled,
// submitting each one. Submission errors are logged, not returned,
// since one bad call should never halt the pipeline for every other
// service sharing this consumer.
func (c *Consumer) Run(ctx context.Context, in <-chan jobcall.Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-in:
			if !ok {
				return
			}
			if err := c.Submit(ctx, result); err != nil {
				c.log.Error().Err(err).Uint64("service_id", result.ServiceID).Uint64("call_id", result.CallID).Msg("submission failed")
			}
		}
	}
}
