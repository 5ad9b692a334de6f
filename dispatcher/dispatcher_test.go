package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/tangle-network/avs-operator/jobcall"
)

func testCall(serviceID uint64, jobIndex uint8) jobcall.Call {
	return jobcall.NewCall(serviceID, 1, jobIndex, 100, common.Hash{}, 1700000000, common.Address{}, []byte("input"))
}

func TestDispatchRoutesByServiceAndJobIndex(t *testing.T) {
	d := New()
	d.Register(1, 0, func(ctx context.Context, call jobcall.Call) ([]byte, error) {
		return append([]byte("handled:"), call.Body...), nil
	})

	result := d.Dispatch(context.Background(), testCall(1, 0))
	require.True(t, result.OK())
	require.Equal(t, "handled:input", string(result.Body))
}

func TestDispatchMissingHandler(t *testing.T) {
	d := New()
	result := d.Dispatch(context.Background(), testCall(1, 0))
	require.False(t, result.OK())
	require.ErrorIs(t, result.Err, ErrNoHandler)
}

func TestDispatchHandlerError(t *testing.T) {
	d := New()
	wantErr := errors.New("boom")
	d.Register(1, 0, func(ctx context.Context, call jobcall.Call) ([]byte, error) {
		return nil, wantErr
	})

	result := d.Dispatch(context.Background(), testCall(1, 0))
	require.False(t, result.OK())
	require.ErrorIs(t, result.Err, wantErr)
}

func TestDispatchScopedByJobIndex(t *testing.T) {
	d := New()
	d.Register(1, 0, func(ctx context.Context, call jobcall.Call) ([]byte, error) { return []byte("job0"), nil })
	d.Register(1, 1, func(ctx context.Context, call jobcall.Call) ([]byte, error) { return []byte("job1"), nil })

	r0 := d.Dispatch(context.Background(), testCall(1, 0))
	r1 := d.Dispatch(context.Background(), testCall(1, 1))
	require.Equal(t, "job0", string(r0.Body))
	require.Equal(t, "job1", string(r1.Body))
}
