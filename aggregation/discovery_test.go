package aggregation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConvertRPCToAggregationURLPortReplacement(t *testing.T) {
	got, err := ConvertRPCToAggregationURL("http://operator-1.example.com:8545")
	require.NoError(t, err)
	require.Equal(t, "http://operator-1.example.com:9090/aggregate", got)
}

func TestConvertRPCToAggregationURLPathAppend(t *testing.T) {
	got, err := ConvertRPCToAggregationURL("https://gateway.example.com/rpc/operator-1")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(got, "/rpc/operator-1/aggregate"))
}

func TestConvertRPCToAggregationURLBareHost(t *testing.T) {
	got, err := ConvertRPCToAggregationURL("operator-2.example.com:8545")
	require.NoError(t, err)
	require.Equal(t, "http://operator-2.example.com:9090/aggregate", got)
}
