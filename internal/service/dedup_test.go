package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rowmill/rowmill/internal/service"
	"github.com/stretchr/testify/require"
)

func TestDedupCacheResolvesOncePerKey(t *testing.T) {
	cache := service.NewDedupCache()
	ctx := context.Background()

	var calls atomic.Int64
	compute := func(context.Context) (string, error) {
		calls.Add(1)
		return "positive", nil
	}

	// "Great product" twice, "Bad product" once: two provider calls total.
	for _, key := range []string{"key-great", "key-great", "key-bad"} {
		got, err := cache.Resolve(ctx, key, compute)
		require.NoError(t, err)
		require.Equal(t, "positive", got)
	}

	require.Equal(t, int64(2), calls.Load())
	summary := cache.Summary()
	require.Equal(t, int64(3), summary.Planned)
	require.Equal(t, int64(2), summary.Issued)
	require.Equal(t, int64(1), summary.Avoided)
	require.Equal(t, int64(2), summary.Unique)
}

func TestDedupCacheCoalescesConcurrentIdenticalCalls(t *testing.T) {
	cache := service.NewDedupCache()
	ctx := context.Background()

	release := make(chan struct{})
	var calls atomic.Int64
	compute := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	const waiters = 8
	var wg sync.WaitGroup
	results := make([]string, waiters)
	errs := make([]error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.Resolve(ctx, "same-key", compute)
		}(i)
	}

	close(release)
	wg.Wait()

	require.Equal(t, int64(1), calls.Load(), "concurrent identical requests must share one flight")
	for i := 0; i < waiters; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "shared", results[i])
	}
}

func TestDedupCacheDoesNotCacheFailures(t *testing.T) {
	cache := service.NewDedupCache()
	ctx := context.Background()

	boom := errors.New("provider exploded")
	_, err := cache.Resolve(ctx, "k", func(context.Context) (string, error) {
		return "", boom
	})
	require.ErrorIs(t, err, boom)

	// The same key retries and can now succeed.
	got, err := cache.Resolve(ctx, "k", func(context.Context) (string, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	require.Equal(t, "recovered", got)

	summary := cache.Summary()
	require.Equal(t, int64(2), summary.Issued, "failed flights count as issued calls")
	require.Equal(t, int64(1), summary.Unique)
}
