package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rowmill/rowmill/config"
	"github.com/rowmill/rowmill/internal/observability/statsd"
)

// ReaperStore is the narrow repository surface the reaper needs.
type ReaperStore interface {
	// RequeueExpired returns crashed workers' jobs to the claimable pool.
	RequeueExpired(ctx context.Context) (int64, error)
	// FailStaleQueued fails queued jobs nothing ever claimed.
	FailStaleQueued(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
	// PruneTerminalJobs deletes old completed/stopped/failed jobs.
	PruneTerminalJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Store   ReaperStore
	Config  config.ReaperConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// ReaperService runs the periodic housekeeping pass:
// - requeueing processing jobs whose lease expired (crash recovery),
// - failing stale queued jobs that were never claimed,
// - pruning terminal jobs past the retention window.
type ReaperService struct {
	store   ReaperStore
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewReaperService constructs a ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Store == nil {
		return nil, errors.New("ReaperStore is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReaperService{
		store:   opts.Store,
		config:  opts.Config,
		logger:  logger.With("component", "reaper_service"),
		metrics: opts.Metrics,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)

	// Jitter prevents a thundering herd when multiple workers restart together.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil && !isContextCancellation(err) {
		s.logger.ErrorContext(ctx, "initial cleanup failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil && !isContextCancellation(err) {
				s.logger.ErrorContext(ctx, "cleanup failed", "err", err)
			}
		}
	}
}

// RunOnce performs one full housekeeping pass. Steps run independently: a
// failing step never blocks the others.
func (s *ReaperService) RunOnce(ctx context.Context) error {
	start := time.Now()
	var errs []error

	steps := []struct {
		label  string
		metric string
		fn     func(context.Context) (int64, error)
	}{
		{"requeue expired leases", "reaper.requeued", s.store.RequeueExpired},
		{"fail stale queued jobs", "reaper.stale_failed", func(ctx context.Context) (int64, error) {
			return s.store.FailStaleQueued(ctx, s.config.QueuedMaxAge, s.config.BatchSize)
		}},
		{"prune terminal jobs", "reaper.pruned", func(ctx context.Context) (int64, error) {
			return s.store.PruneTerminalJobs(ctx, s.config.TerminalMaxAge, s.config.BatchSize)
		}},
	}

	for _, step := range steps {
		count, err := step.fn(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.label, err))
			continue
		}
		if count > 0 {
			s.logger.InfoContext(ctx, step.label, "count", count)
		}
		if s.metrics != nil {
			s.metrics.Count(step.metric, count, nil)
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
	}

	if s.metrics != nil {
		s.metrics.Timing("reaper.elapsed", time.Since(start), nil)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// waitWithJitter sleeps up to 10% of the interval before the first pass.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "err", err)
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
