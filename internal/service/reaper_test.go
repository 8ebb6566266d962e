package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rowmill/rowmill/config"
	"github.com/rowmill/rowmill/internal/service"
	"github.com/stretchr/testify/require"
)

type fakeReaperStore struct {
	requeued   int64
	stale      int64
	pruned     int64
	requeueErr error
	staleErr   error
	prunedErr  error

	staleMaxAge   time.Duration
	staleBatch    int
	terminalAge   time.Duration
	terminalBatch int
}

func (f *fakeReaperStore) RequeueExpired(ctx context.Context) (int64, error) {
	return f.requeued, f.requeueErr
}

func (f *fakeReaperStore) FailStaleQueued(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	f.staleMaxAge = maxAge
	f.staleBatch = batchSize
	return f.stale, f.staleErr
}

func (f *fakeReaperStore) PruneTerminalJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	f.terminalAge = maxAge
	f.terminalBatch = batchSize
	return f.pruned, f.prunedErr
}

func reaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:       30 * time.Second,
		QueuedMaxAge:   24 * time.Hour,
		TerminalMaxAge: 720 * time.Hour,
		BatchSize:      500,
	}
}

func TestNewReaperServiceRequiresStore(t *testing.T) {
	_, err := service.NewReaperService(service.ReaperServiceOptions{Config: reaperConfig()})
	require.Error(t, err)
}

func TestReaperRunOncePassesConfigThrough(t *testing.T) {
	store := &fakeReaperStore{requeued: 2, stale: 1, pruned: 40}
	svc, err := service.NewReaperService(service.ReaperServiceOptions{
		Store:  store,
		Config: reaperConfig(),
	})
	require.NoError(t, err)

	require.NoError(t, svc.RunOnce(context.Background()))
	require.Equal(t, 24*time.Hour, store.staleMaxAge)
	require.Equal(t, 500, store.staleBatch)
	require.Equal(t, 720*time.Hour, store.terminalAge)
	require.Equal(t, 500, store.terminalBatch)
}

func TestReaperRunOnceStepsAreIndependent(t *testing.T) {
	store := &fakeReaperStore{
		requeueErr: errors.New("lock contention"),
		pruned:     3,
	}
	svc, err := service.NewReaperService(service.ReaperServiceOptions{
		Store:  store,
		Config: reaperConfig(),
	})
	require.NoError(t, err)

	// The requeue failure is reported but the later steps still ran.
	err = svc.RunOnce(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "requeue expired leases")
	require.Equal(t, 500, store.staleBatch, "stale step should run despite requeue failure")
	require.Equal(t, 500, store.terminalBatch, "prune step should run despite requeue failure")
}

func TestReaperRunStopsOnCancel(t *testing.T) {
	store := &fakeReaperStore{}
	svc, err := service.NewReaperService(service.ReaperServiceOptions{
		Store:  store,
		Config: reaperConfig(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	cancel()
	select {
	case runErr := <-done:
		require.NoError(t, runErr, "graceful cancellation returns nil")
	case <-time.After(5 * time.Second):
		t.Fatal("reaper loop did not stop on cancel")
	}
}
