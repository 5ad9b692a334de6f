// Package producer polls the chain for JobSubmitted events scoped to a
// single service and turns each one into a jobcall.Call, in monotonic
// (block_number, log_index) order with no duplicates across restarts.
package producer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"github.com/tangle-network/avs-operator/chain"
	"github.com/tangle-network/avs-operator/jobcall"
)

// defaultPollInterval matches the operator's default RPC polling
// cadence; it is intentionally coarser than a typical block time since
// polling faster just burns RPC quota for no earlier job visibility.
const defaultPollInterval = 3 * time.Second

// defaultMaxBlockRange bounds a single eth_getLogs call; wide gaps
// (after a long outage) are walked in chunks of this size rather than
// requested in one shot, since most RPC providers reject oversized
// ranges outright.
const defaultMaxBlockRange = 2000

// blockTimestampCacheSize bounds the LRU used to avoid re-fetching a
// block header just to read its timestamp when many jobs land in the
// same block.
const blockTimestampCacheSize = 1024

// Config controls a Producer's behavior.
type Config struct {
	ServiceID       uint64
	PollInterval    time.Duration
	MaxBlockRange   uint64
	StartBlock      uint64 // first block to scan if no cursor is supplied
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.MaxBlockRange == 0 {
		c.MaxBlockRange = defaultMaxBlockRange
	}
	return c
}

// Producer polls one service's JobSubmitted log stream and pushes
// decoded calls onto its output channel.
type Producer struct {
	client *chain.Client
	cfg    Config
	log    zerolog.Logger

	cursor      Cursor
	blockTimeCache *lru.Cache
}

// New builds a Producer for a single service. cursor is the resume
// point (zero-value Cursor to start from cfg.StartBlock).
func New(client *chain.Client, cfg Config, cursor Cursor, log zerolog.Logger) (*Producer, error) {
	cache, err := lru.New(blockTimestampCacheSize)
	if err != nil {
		return nil, fmt.Errorf("producer: build block-timestamp cache: %w", err)
	}
	return &Producer{
		client:         client,
		cfg:            cfg.withDefaults(),
		log:            log.With().Uint64("service_id", cfg.ServiceID).Logger(),
		cursor:         cursor,
		blockTimeCache: cache,
	}, nil
}

// Cursor returns the producer's current resume point, for checkpointing.
func (p *Producer) Cursor() Cursor { return p.cursor }

// Run polls until ctx is cancelled, sending each newly observed call on
// out. Run owns out and never closes it on the caller's behalf other
// than via a deferred close when it returns, so the consumer side of
// out should range over it and treat channel closure as "producer
// stopped".
func (p *Producer) Run(ctx context.Context, out chan<- jobcall.Call) error {
	defer close(out)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := p.pollOnce(ctx, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Warn().Err(err).Msg("poll iteration failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// pollOnce scans from the cursor's block through the current chain
// head, in chunks no larger than cfg.MaxBlockRange, emitting every
// JobSubmitted log it hasn't already emitted.
func (p *Producer) pollOnce(ctx context.Context, out chan<- jobcall.Call) error {
	head, err := p.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("producer: fetch head: %w", err)
	}

	from := p.cfg.StartBlock
	if p.cursor.IsSet() {
		from = p.cursor.BlockNumber
	}
	if from > head {
		return nil
	}

	for from <= head {
		to := from + p.cfg.MaxBlockRange - 1
		if to > head {
			to = head
		}

		if err := p.scanRange(ctx, from, to, out); err != nil {
			return err
		}
		from = to + 1
	}
	return nil
}

func (p *Producer) scanRange(ctx context.Context, from, to uint64, out chan<- jobcall.Call) error {
	q := ethereum.FilterQuery{
		FromBlock: newBigInt(from),
		ToBlock:   newBigInt(to),
		Topics: [][]common.Hash{
			{chain.JobSubmittedSignature},
			{serviceTopic(p.cfg.ServiceID)},
		},
	}

	logs, err := p.client.FilterLogs(ctx, q)
	if err != nil {
		return fmt.Errorf("producer: filter logs [%d,%d]: %w", from, to, err)
	}

	for _, l := range logs {
		if l.Removed {
			continue
		}
		ev, err := chain.DecodeJobSubmitted(l)
		if err != nil {
			p.log.Error().Err(err).Uint64("block", l.BlockNumber).Msg("skipping undecodable JobSubmitted log")
			continue
		}
		if !p.cursor.Before(ev.BlockNumber, ev.LogIndex) {
			continue
		}

		ts, err := p.blockTimestamp(ctx, ev.BlockNumber, ev.BlockHash)
		if err != nil {
			return fmt.Errorf("producer: fetch block timestamp: %w", err)
		}

		call := jobcall.NewCall(ev.ServiceID, ev.CallID, ev.JobIndex, ev.BlockNumber, ev.BlockHash, ts, ev.Caller, ev.Inputs)

		select {
		case out <- call:
		case <-ctx.Done():
			return ctx.Err()
		}
		p.cursor.Advance(ev.BlockNumber, ev.LogIndex)
	}
	return nil
}

func (p *Producer) blockTimestamp(ctx context.Context, number uint64, hash common.Hash) (uint64, error) {
	if v, ok := p.blockTimeCache.Get(hash); ok {
		return v.(uint64), nil
	}
	header, err := p.client.HeaderByNumber(ctx, newBigInt(number))
	if err != nil {
		return 0, err
	}
	p.blockTimeCache.Add(hash, header.Time)
	return header.Time, nil
}
