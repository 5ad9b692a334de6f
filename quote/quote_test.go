package quote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMintAndConsumeOnce(t *testing.T) {
	r := New(time.Minute)
	q := r.Mint(1, 0, "1000", "USDC")
	require.Equal(t, Open, q.Status)

	consumed, err := r.Consume(q.ID)
	require.NoError(t, err)
	require.Equal(t, Consumed, consumed.Status)

	_, err = r.Consume(q.ID)
	require.ErrorIs(t, err, ErrNotOpen)
}

func TestConsumeUnknownQuote(t *testing.T) {
	r := New(time.Minute)
	_, err := r.Consume("does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestExpiredQuoteCannotBeConsumed(t *testing.T) {
	r := New(time.Millisecond)
	q := r.Mint(1, 0, "1000", "USDC")
	time.Sleep(5 * time.Millisecond)

	_, err := r.Consume(q.ID)
	require.ErrorIs(t, err, ErrNotOpen)

	got, err := r.Get(q.ID)
	require.NoError(t, err)
	require.Equal(t, Expired, got.Status)
}

func TestSweepRemovesConsumedAndStaleExpired(t *testing.T) {
	r := New(time.Millisecond)
	q1 := r.Mint(1, 0, "1000", "USDC")
	_, err := r.Consume(q1.ID)
	require.NoError(t, err)

	q2 := r.Mint(1, 0, "1000", "USDC")
	time.Sleep(5 * time.Millisecond)

	removed := r.Sweep(0)
	require.Equal(t, 2, removed)
	require.Equal(t, 0, r.Len())
	_, err = r.Get(q2.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
