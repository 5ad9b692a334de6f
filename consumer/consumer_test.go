package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tangle-network/avs-operator/aggregation"
	"github.com/tangle-network/avs-operator/chain"
	"github.com/tangle-network/avs-operator/jobcall"
)

type fakeTx struct{ hash common.Hash }

func (f fakeTx) Hash() common.Hash { return f.hash }

type fakeSubmitter struct {
	direct     int
	aggregated int
	failDirect error
}

func (f *fakeSubmitter) SubmitResult(ctx context.Context, serviceID, callID uint64, result []byte) (TxHandle, error) {
	if f.failDirect != nil {
		return nil, f.failDirect
	}
	f.direct++
	return fakeTx{hash: common.HexToHash("0x01")}, nil
}

func (f *fakeSubmitter) SubmitAggregatedResult(ctx context.Context, s chain.AggregatedSubmission) (TxHandle, error) {
	f.aggregated++
	return fakeTx{hash: common.HexToHash("0x02")}, nil
}

type fakeRoster struct {
	requiresAgg bool
	endpoints   []aggregation.Endpoint
}

func (f fakeRoster) Endpoints(ctx context.Context, serviceID uint64) ([]aggregation.Endpoint, error) {
	return f.endpoints, nil
}

func (f fakeRoster) RequiresAggregation(ctx context.Context, serviceID uint64, jobIndex uint8) (bool, error) {
	return f.requiresAgg, nil
}

func (f fakeRoster) AggregationThreshold(ctx context.Context, serviceID uint64, jobIndex uint8) (uint16, uint8, error) {
	return 6700, uint8(aggregation.CountBased), nil
}

func testResult(ok bool) jobcall.Result {
	call := jobcall.NewCall(1, 42, 0, 100, common.Hash{}, 1700000000, common.Address{}, []byte("in"))
	if ok {
		return jobcall.NewOKResult(call, []byte("out"))
	}
	return jobcall.NewErrResult(call, errors.New("handler failed"))
}

func TestConsumerDropsErroredResults(t *testing.T) {
	submitter := &fakeSubmitter{}
	c := New(submitter, fakeRoster{}, aggregation.New(zerolog.Nop()), zerolog.Nop())

	err := c.Submit(context.Background(), testResult(false))
	require.NoError(t, err)
	require.Equal(t, 0, submitter.direct)
	require.Equal(t, 0, submitter.aggregated)
}

func TestConsumerSubmitsDirectWhenNoAggregationNeeded(t *testing.T) {
	submitter := &fakeSubmitter{}
	c := New(submitter, fakeRoster{requiresAgg: false}, aggregation.New(zerolog.Nop()), zerolog.Nop())

	err := c.Submit(context.Background(), testResult(true))
	require.NoError(t, err)
	require.Equal(t, 1, submitter.direct)
	require.Equal(t, 0, submitter.aggregated)
}

func TestConsumerRejectsConcurrentSubmissionForSameCall(t *testing.T) {
	submitter := &fakeSubmitter{}
	c := New(submitter, fakeRoster{}, aggregation.New(zerolog.Nop()), zerolog.Nop())

	key := callKey{serviceID: 1, callID: 42}
	require.True(t, c.enter(key))
	defer c.leave(key)

	err := c.Submit(context.Background(), testResult(true))
	require.Error(t, err)
}
