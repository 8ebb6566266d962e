package job_test

import (
	"testing"
	"time"

	"github.com/rowmill/rowmill/internal/domain/job"
	"github.com/stretchr/testify/require"
)

func TestNewLeasePolicyRejectsNonPositiveDefault(t *testing.T) {
	_, err := job.NewLeasePolicy(0)
	require.ErrorIs(t, err, job.ErrInvalidDefaultLease)

	_, err = job.NewLeasePolicy(-time.Second)
	require.ErrorIs(t, err, job.ErrInvalidDefaultLease)
}

func TestLeasePolicyResolve(t *testing.T) {
	policy, err := job.NewLeasePolicy(30 * time.Second)
	require.NoError(t, err)

	tests := []struct {
		name    string
		request time.Duration
		seconds int
		source  job.LeaseSource
	}{
		{"explicit request", 45 * time.Second, 45, job.LeaseSourceExplicit},
		{"zero uses default", 0, 30, job.LeaseSourceDefault},
		{"sub-second clamps to one", 200 * time.Millisecond, 1, job.LeaseSourceClamped},
		{"negative clamps to one", -time.Minute, 1, job.LeaseSourceClamped},
		{"truncates to whole seconds", 2500 * time.Millisecond, 2, job.LeaseSourceExplicit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := policy.Resolve(tt.request)
			require.Equal(t, tt.seconds, decision.Seconds)
			require.Equal(t, tt.source, decision.Source)
			require.Equal(t, tt.request, decision.Requested)
		})
	}
}

func TestLeasePolicyNilReceiver(t *testing.T) {
	var policy *job.LeasePolicy
	require.Zero(t, policy.Default())
	decision := policy.Resolve(10 * time.Second)
	require.Equal(t, job.LeaseSourceDefault, decision.Source)
}

func TestHeartbeatInterval(t *testing.T) {
	require.Equal(t, 15*time.Second, job.HeartbeatInterval(30*time.Second))
	require.Equal(t, 15*time.Second, job.HeartbeatInterval(0), "zero lease falls back to the default cadence")
}
