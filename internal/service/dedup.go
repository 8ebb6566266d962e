package service

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/rowmill/rowmill/internal/observability/metrics"
)

// DedupCache memoizes resolved prompt responses within one orchestration pass.
// Identical in-flight requests coalesce onto a single provider call via
// singleflight; failures are never cached so a later occurrence of the same
// key gets a fresh attempt. The cache dies with the pass: dedup never spans a
// pause/resume cycle.
type DedupCache struct {
	mu       sync.Mutex
	resolved map[string]string
	seen     map[string]struct{}
	planned  int
	issued   int

	group singleflight.Group
}

// NewDedupCache creates an empty per-run cache.
func NewDedupCache() *DedupCache {
	return &DedupCache{
		resolved: make(map[string]string),
		seen:     make(map[string]struct{}),
	}
}

// Resolve returns the response for key, invoking compute at most once per key
// across all concurrent callers. compute errors are returned to every waiter
// of that flight and not cached.
func (c *DedupCache) Resolve(ctx context.Context, key string, compute func(context.Context) (string, error)) (string, error) {
	c.mu.Lock()
	c.planned++
	c.seen[key] = struct{}{}
	if content, ok := c.resolved[key]; ok {
		c.mu.Unlock()
		return content, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.Lock()
		// A flight that resolved between the check above and Do entering here
		// is served from the map without a second provider call.
		if content, ok := c.resolved[key]; ok {
			c.mu.Unlock()
			return content, nil
		}
		c.issued++
		c.mu.Unlock()

		content, err := compute(ctx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.resolved[key] = content
		c.mu.Unlock()
		return content, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Summary reports the pass's call accounting for end-of-job telemetry.
func (c *DedupCache) Summary() metrics.DedupSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return metrics.DedupSummary{
		Planned: int64(c.planned),
		Issued:  int64(c.issued),
		Avoided: int64(c.planned - c.issued),
		Unique:  int64(len(c.seen)),
	}
}
