package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rowmill/rowmill/internal/core"
	"github.com/rowmill/rowmill/internal/domain/model"
)

const progressSnapshotTTL = 5 * time.Minute

func progressCacheKey(jobID string) string {
	return fmt.Sprintf("job:progress:%s", jobID)
}

// ProgressTracker caches a cheap progress view in redis so pollers do not
// hammer the job store. Every write is best-effort: a cache failure is logged
// and never affects the job.
type ProgressTracker struct {
	cache  core.CacheRepository
	clock  core.Clock
	logger *slog.Logger
}

// NewProgressTracker builds a tracker; cache may be nil, which disables it.
func NewProgressTracker(cache core.CacheRepository, clock core.Clock, logger *slog.Logger) *ProgressTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressTracker{
		cache:  cache,
		clock:  clock,
		logger: logger.With("component", "progress_tracker"),
	}
}

// Publish stores a snapshot for the job.
func (t *ProgressTracker) Publish(ctx context.Context, snap model.ProgressSnapshot) {
	if t.cache == nil {
		return
	}
	if snap.UpdatedAt.IsZero() && t.clock != nil {
		snap.UpdatedAt = t.clock.Now().UTC()
	}
	data, err := json.Marshal(snap)
	if err != nil {
		t.logger.WarnContext(ctx, "marshal progress snapshot", "job_id", snap.JobID, "err", err)
		return
	}
	if err := t.cache.Set(ctx, progressCacheKey(snap.JobID), data, progressSnapshotTTL); err != nil {
		t.logger.WarnContext(ctx, "cache progress snapshot", "job_id", snap.JobID, "err", err)
	}
}

// Clear drops the cached snapshot, typically when the job reaches a terminal
// state.
func (t *ProgressTracker) Clear(ctx context.Context, jobID string) {
	if t.cache == nil {
		return
	}
	if _, err := t.cache.Delete(ctx, progressCacheKey(jobID)); err != nil {
		t.logger.WarnContext(ctx, "clear progress snapshot", "job_id", jobID, "err", err)
	}
}

// Get returns the cached snapshot, or nil when absent or the cache is down.
func (t *ProgressTracker) Get(ctx context.Context, jobID string) *model.ProgressSnapshot {
	if t.cache == nil {
		return nil
	}
	data, err := t.cache.Get(ctx, progressCacheKey(jobID))
	if err != nil || len(data) == 0 {
		return nil
	}
	var snap model.ProgressSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil
	}
	return &snap
}
