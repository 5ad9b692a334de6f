package gateway

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// fakeResolver implements Resolver for tests, keyed by (serviceID,
// jobIndex) so a test can configure multiple jobs' policies at once.
type fakeResolver struct {
	prices    map[jobKey]string
	policies  map[jobKey]Policy
	policyErr error
	permitted map[common.Address]bool
	permitErr error
}

type jobKey struct {
	serviceID uint64
	jobIndex  uint8
}

func (f *fakeResolver) JobPriceWei(serviceID uint64, jobIndex uint8) (string, bool) {
	p, ok := f.prices[jobKey{serviceID, jobIndex}]
	return p, ok
}

func (f *fakeResolver) ResolvePolicy(serviceID uint64, jobIndex uint8) (Policy, error) {
	if f.policyErr != nil {
		return Policy{}, f.policyErr
	}
	p, ok := f.policies[jobKey{serviceID, jobIndex}]
	if !ok {
		return Policy{ServiceID: serviceID, JobIndex: jobIndex, Mode: Disabled}, nil
	}
	return p, nil
}

func (f *fakeResolver) IsPermittedCaller(ctx context.Context, policy Policy, caller common.Address) (bool, error) {
	if f.permitErr != nil {
		return false, f.permitErr
	}
	return f.permitted[caller], nil
}

func TestResolvePolicyFallsBackWhenUnconfigured(t *testing.T) {
	r := &fakeResolver{}
	p, err := r.ResolvePolicy(1, 0)
	require.NoError(t, err)
	require.Equal(t, Disabled, p.Mode)
}

func TestResolvePolicyReturnsConfiguredEntry(t *testing.T) {
	r := &fakeResolver{
		policies: map[jobKey]Policy{
			{1, 0}: {ServiceID: 1, JobIndex: 0, Mode: PublicPaid, Auth: PaymentOnly},
		},
	}
	p, err := r.ResolvePolicy(1, 0)
	require.NoError(t, err)
	require.Equal(t, PublicPaid, p.Mode)
}

func TestRejectionConstructorsSetStatus(t *testing.T) {
	require.Equal(t, 403, denied("x", "y").Status)
	require.Equal(t, 400, badRequest("x", "y").Status)
	require.Equal(t, 503, serviceUnavailable("x", "y").Status)
	require.Equal(t, 409, conflict("x", "y").Status)
	require.Equal(t, 404, notFound("x", "y").Status)
}
