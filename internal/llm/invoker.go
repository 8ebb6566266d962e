package llm

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rowmill/rowmill/internal/core"
	"github.com/rowmill/rowmill/internal/domain/llm"
)

// RetryConfig tunes the retrying invoker.
type RetryConfig struct {
	// MaxAttempts is the total call budget per request, including the first try.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// ProviderRPS caps calls per second per provider; zero disables limiting.
	ProviderRPS float64
	// ProviderBurst is the limiter burst, defaulting to 1 when RPS is set.
	ProviderBurst int
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.ProviderRPS > 0 && c.ProviderBurst <= 0 {
		c.ProviderBurst = 1
	}
	return c
}

// Invoker wraps a wire-level client with per-provider rate limiting,
// profile-driven normalization, and classified retry. Only transient failure
// categories are retried; pause-worthy and unknown failures surface
// immediately so the caller's classifier sees the original error.
type Invoker struct {
	client core.Client
	cfg    RetryConfig
	logger *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewInvoker builds an Invoker around a wire client.
func NewInvoker(client core.Client, cfg RetryConfig, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		client:   client,
		cfg:      cfg.withDefaults(),
		logger:   logger.With("component", "llm_invoker"),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Invoke performs one provider call with capability checks, rate limiting, and
// retry on backoff-eligible failures.
func (iv *Invoker) Invoke(ctx context.Context, req llm.Request) (*llm.Response, error) {
	profile := ProfileFor(req.Provider)
	if err := profile.CheckRequest(req); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= iv.cfg.MaxAttempts; attempt++ {
		if lim := iv.limiterFor(req.Provider); lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := iv.client.Invoke(ctx, req)
		if err == nil {
			if normErr := profile.Normalize(resp); normErr != nil {
				return nil, normErr
			}
			return resp, nil
		}
		lastErr = err

		cls := llm.Classify(err)
		if !cls.Retryable || !cls.Category.BackoffEligible() || attempt == iv.cfg.MaxAttempts {
			return nil, err
		}

		delay := iv.backoffDelay(attempt, cls.RetryAfter)
		iv.logger.WarnContext(ctx, "retrying provider call",
			"provider", req.Provider,
			"model", req.Model,
			"category", string(cls.Category),
			"attempt", attempt,
			"delay", delay,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// backoffDelay doubles the base delay per attempt with up to 25% jitter,
// honoring a provider-declared Retry-After when it is longer.
func (iv *Invoker) backoffDelay(attempt int, retryAfter time.Duration) time.Duration {
	delay := iv.cfg.BaseDelay << (attempt - 1)
	if delay > iv.cfg.MaxDelay {
		delay = iv.cfg.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	delay += jitter
	if retryAfter > delay {
		delay = retryAfter
	}
	if delay > iv.cfg.MaxDelay {
		delay = iv.cfg.MaxDelay
	}
	return delay
}

func (iv *Invoker) limiterFor(provider string) *rate.Limiter {
	if iv.cfg.ProviderRPS <= 0 {
		return nil
	}
	iv.mu.Lock()
	defer iv.mu.Unlock()
	lim, ok := iv.limiters[provider]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(iv.cfg.ProviderRPS), iv.cfg.ProviderBurst)
		iv.limiters[provider] = lim
	}
	return lim
}
