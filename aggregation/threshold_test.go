package aggregation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequiredSignersCountBased(t *testing.T) {
	// 3 operators at 67% -> floor(3*6700/10000) = 2
	require.Equal(t, 2, RequiredSigners(3, 6700))
	// 100 operators at 67% -> floor(100*6700/10000) = 67
	require.Equal(t, 67, RequiredSigners(100, 6700))
}

func TestRequiredSignersNeverZero(t *testing.T) {
	require.Equal(t, 1, RequiredSigners(1, 1))
	require.Equal(t, 1, RequiredSigners(10, 1))
}

func TestStakeThresholdMet(t *testing.T) {
	all := []OperatorExposure{
		{Operator: "a", Stake: 50},
		{Operator: "b", Stake: 30},
		{Operator: "c", Stake: 20},
	}

	require.True(t, StakeThresholdMet(all, map[string]bool{"a": true, "b": true}, 6700))
	require.False(t, StakeThresholdMet(all, map[string]bool{"c": true}, 6700))
	require.True(t, StakeThresholdMet(all, map[string]bool{"a": true, "b": true, "c": true}, 10000))
}

func TestStakeThresholdMetEmptyRoster(t *testing.T) {
	require.False(t, StakeThresholdMet(nil, map[string]bool{}, 5000))
}

func TestSignerBitmap(t *testing.T) {
	roster := []string{"a", "b", "c", "d"}
	bitmap := SignerBitmap(roster, []string{"b", "d"})
	require.True(t, bitmap.Bit(1) == 1)
	require.True(t, bitmap.Bit(3) == 1)
	require.True(t, bitmap.Bit(0) == 0)
	require.True(t, bitmap.Bit(2) == 0)
}
