package job

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWaiterRequired indicates a notifier cannot be constructed without a waiter.
var ErrWaiterRequired = errors.New("notifier waiter is required")

// Waiter blocks until the job store signals that a claimable job may exist.
type Waiter interface {
	WaitForNotification(ctx context.Context) error
}

// Notifier fans a single claimable-jobs signal out to subscribed worker loops.
type Notifier interface {
	Subscribe() (func(), <-chan struct{})
	StopAll()
}

// NotifierOptions configure the default notifier implementation.
type NotifierOptions struct {
	Waiter Waiter
	// WaitWindow bounds one blocking wait; the listener re-arms after it so a
	// missed NOTIFY never stalls workers forever.
	WaitWindow time.Duration
	// Backoff is the pause after a wait error before re-arming.
	Backoff time.Duration
}

// DefaultNotifier runs one background listener against the Waiter and signals
// every subscriber at most once per notification (channels hold one token).
type DefaultNotifier struct {
	waiter     Waiter
	waitWindow time.Duration
	backoff    time.Duration

	mu       sync.Mutex
	subs     map[chan struct{}]struct{}
	listener context.CancelFunc
}

// NewNotifier constructs the default notifier implementation.
func NewNotifier(opts NotifierOptions) (*DefaultNotifier, error) {
	if opts.Waiter == nil {
		return nil, ErrWaiterRequired
	}

	waitWindow := opts.WaitWindow
	if waitWindow <= 0 {
		waitWindow = time.Minute
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}

	return &DefaultNotifier{
		waiter:     opts.Waiter,
		waitWindow: waitWindow,
		backoff:    backoff,
		subs:       make(map[chan struct{}]struct{}),
	}, nil
}

// Subscribe registers a subscriber and lazily starts the shared listener.
// The returned function unsubscribes; the channel receives one token per
// notification (or wait-window expiry).
func (n *DefaultNotifier) Subscribe() (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.listener == nil {
		ctx, cancel := context.WithCancel(context.Background())
		n.listener = cancel
		go n.listenLoop(ctx)
	}

	ch := make(chan struct{}, 1)
	n.subs[ch] = struct{}{}

	unsub := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.subs[ch]; !ok {
			return
		}
		delete(n.subs, ch)
		if len(n.subs) == 0 && n.listener != nil {
			n.listener()
			n.listener = nil
		}
	}
	return unsub, ch
}

// StopAll cancels the listener and drops all subscriptions.
func (n *DefaultNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listener != nil {
		n.listener()
		n.listener = nil
	}
	n.subs = make(map[chan struct{}]struct{})
}

func (n *DefaultNotifier) listenLoop(ctx context.Context) {
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, n.waitWindow)
		err := n.waiter.WaitForNotification(waitCtx)
		cancel()

		switch {
		case ctx.Err() != nil:
			return
		case err == nil || errors.Is(err, context.DeadlineExceeded):
			// Either a real notification or the window lapsed; wake workers
			// in both cases so claims are retried at least once per window.
			n.broadcast()
		default:
			select {
			case <-time.After(n.backoff):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (n *DefaultNotifier) broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
