package job_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rowmill/rowmill/internal/domain/job"
	"github.com/stretchr/testify/require"
)

// funcWaiter adapts a function to the Waiter interface.
type funcWaiter func(ctx context.Context) error

func (f funcWaiter) WaitForNotification(ctx context.Context) error { return f(ctx) }

func TestNewNotifierRequiresWaiter(t *testing.T) {
	_, err := job.NewNotifier(job.NotifierOptions{})
	require.ErrorIs(t, err, job.ErrWaiterRequired)
}

func TestNotifierBroadcastsToAllSubscribers(t *testing.T) {
	notify := make(chan struct{})
	waiter := funcWaiter(func(ctx context.Context) error {
		select {
		case <-notify:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	n, err := job.NewNotifier(job.NotifierOptions{Waiter: waiter, WaitWindow: time.Minute})
	require.NoError(t, err)
	defer n.StopAll()

	unsub1, ch1 := n.Subscribe()
	defer unsub1()
	unsub2, ch2 := n.Subscribe()
	defer unsub2()

	notify <- struct{}{}

	for _, ch := range []<-chan struct{}{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("subscriber was not woken by the notification")
		}
	}
}

func TestNotifierWakesOnWaitWindowExpiry(t *testing.T) {
	waiter := funcWaiter(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	n, err := job.NewNotifier(job.NotifierOptions{Waiter: waiter, WaitWindow: 20 * time.Millisecond})
	require.NoError(t, err)
	defer n.StopAll()

	unsub, ch := n.Subscribe()
	defer unsub()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber was not woken when the wait window lapsed")
	}
}

func TestNotifierBacksOffAfterWaitError(t *testing.T) {
	var calls atomic.Int64
	waiter := funcWaiter(func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("listen failed")
	})

	n, err := job.NewNotifier(job.NotifierOptions{
		Waiter:     waiter,
		WaitWindow: time.Minute,
		Backoff:    5 * time.Millisecond,
	})
	require.NoError(t, err)

	unsub, ch := n.Subscribe()
	defer unsub()

	// Errors must not wake subscribers; the listener re-arms after backoff.
	select {
	case <-ch:
		t.Fatal("wait errors must not signal subscribers")
	case <-time.After(30 * time.Millisecond):
	}
	require.Greater(t, calls.Load(), int64(1), "listener should keep re-arming after errors")

	n.StopAll()
}

func TestNotifierUnsubscribeStopsListenerWhenEmpty(t *testing.T) {
	var calls atomic.Int64
	waiter := funcWaiter(func(ctx context.Context) error {
		calls.Add(1)
		<-ctx.Done()
		return ctx.Err()
	})

	n, err := job.NewNotifier(job.NotifierOptions{Waiter: waiter, WaitWindow: time.Minute})
	require.NoError(t, err)

	unsub, _ := n.Subscribe()
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)

	unsub()
	settled := calls.Load()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, settled, calls.Load(), "listener should stop once the last subscriber leaves")
}
