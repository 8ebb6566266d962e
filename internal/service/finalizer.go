package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rowmill/rowmill/internal/core"
	"github.com/rowmill/rowmill/internal/data"
	"github.com/rowmill/rowmill/internal/domain/model"
	"github.com/rowmill/rowmill/internal/observability/metrics"
)

const csvContentType = "text/csv"

// finalize commits the terminal transition after every row resolved: it
// uploads the final artifact first, then applies the compound completed write
// (status, rows_processed, current_row, error detail, output key in one
// statement). If the upload fails the job stays processing; the lease will
// lapse and a re-claim replays the (now empty) row range and retries the
// upload.
func (o *Orchestrator) finalize(ctx context.Context, job *model.Job, ws *WorkingSet, cache *DedupCache, started time.Time, skippedCells int) error {
	logger := o.logger.With("job_id", job.ID)

	outKey := OutputKey(job.TenantID, job.ID)
	rendered, err := ws.RenderCSV()
	if err != nil {
		return fmt.Errorf("render final artifact: %w", err)
	}
	if err := o.blobs.Put(ctx, outKey, bytes.NewReader(rendered), csvContentType); err != nil {
		o.appendLog(ctx, job.ID, "error", fmt.Sprintf("final artifact upload failed: %v", err))
		return fmt.Errorf("upload final artifact: %w", err)
	}

	applied, err := o.jobs.Complete(ctx, core.CompleteParams{JobID: job.ID, OutputKey: outKey})
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if !applied {
		// A stop landed during the last in-flight work; the stop write wins,
		// but the pass still ends the job, so the log artifact is rendered.
		logger.WarnContext(ctx, "completion skipped, job no longer processing")
		o.uploadLogArtifact(ctx, job)
		o.emitLifecycle("completed", metrics.ResultNoop, started, nil)
		return nil
	}

	summary := cache.Summary()
	o.appendLog(ctx, job.ID, "info", fmt.Sprintf(
		"completed: %d rows, %d calls planned, %d issued, %d avoided, %d cells skipped (%d unique prompts)",
		len(ws.Rows), summary.Planned, summary.Issued, summary.Avoided, skippedCells, summary.Unique))
	o.uploadLogArtifact(ctx, job)

	metrics.EmitDedupSummary(o.sink, job.ID, summary)
	o.emitLifecycle("completed", metrics.ResultSuccess, started, nil)
	if o.progress != nil {
		o.progress.Clear(ctx, job.ID)
	}
	logger.InfoContext(ctx, "job completed",
		"rows", len(ws.Rows),
		"calls_issued", summary.Issued,
		"calls_avoided", summary.Avoided,
	)
	return nil
}

// halt ends a pass whose job was taken away between rows (stop, user pause, or
// lease reclaim). Partial output is persisted best-effort in every case; the
// log artifact is rendered only for stop, which is a job end.
func (o *Orchestrator) halt(ctx context.Context, job *model.Job, ws *WorkingSet, cache *DedupCache, status model.JobStatus, started time.Time) error {
	logger := o.logger.With("job_id", job.ID)
	o.persistPartial(ctx, job, ws)
	metrics.EmitDedupSummary(o.sink, job.ID, cache.Summary())

	switch status {
	case model.JobStatusStopped:
		o.appendLog(ctx, job.ID, "info", "stopped by user")
		o.uploadLogArtifact(ctx, job)
		o.emitLifecycle("stopped", metrics.ResultNoop, started, nil)
		if o.progress != nil {
			o.progress.Clear(ctx, job.ID)
		}
		logger.InfoContext(ctx, "job stopped")
	case model.JobStatusPaused:
		o.emitLifecycle("paused", metrics.ResultNoop, started, nil)
		logger.InfoContext(ctx, "job paused")
	default:
		// Queued again means the reaper reclaimed our lease; another worker
		// owns the replay.
		logger.WarnContext(ctx, "lease lost mid-run", "status", string(status))
	}
	return nil
}

// persistPartial uploads the current working set as the partial artifact.
// Best-effort: failures are logged and never change job status.
func (o *Orchestrator) persistPartial(ctx context.Context, job *model.Job, ws *WorkingSet) {
	rendered, err := ws.RenderCSV()
	if err != nil {
		o.logger.WarnContext(ctx, "render partial artifact", "job_id", job.ID, "err", err)
		return
	}
	key := PartialKey(job.TenantID, job.ID)
	if err := o.blobs.Put(ctx, key, bytes.NewReader(rendered), csvContentType); err != nil {
		o.logger.WarnContext(ctx, "upload partial artifact", "job_id", job.ID, "err", err)
	}
}

// uploadLogArtifact renders the job's log rows into the plain-text artifact.
func (o *Orchestrator) uploadLogArtifact(ctx context.Context, job *model.Job) {
	if o.logs == nil {
		return
	}
	entries, err := o.logs.ListByJob(ctx, job.ID)
	if err != nil {
		o.logger.WarnContext(ctx, "list job logs", "job_id", job.ID, "err", err)
		return
	}
	rendered := data.RenderLog(entries)
	key := LogKey(job.TenantID, job.ID)
	if err := o.blobs.Put(ctx, key, bytes.NewReader([]byte(rendered)), "text/plain"); err != nil {
		o.logger.WarnContext(ctx, "upload log artifact", "job_id", job.ID, "err", err)
	}
}
