// Package core defines the ports between the enrichment engine's service layer
// and its adapters, plus small services that compose them.
package core

import (
	"context"
	"io"
	"time"

	"github.com/rowmill/rowmill/internal/domain/llm"
	"github.com/rowmill/rowmill/internal/domain/model"
)

// This file contains the repository and adapter interface definitions (ports in
// hexagonal architecture). Services depend on these, never on concrete types.

// JobRepository defines job store operations. Every mutating call is a single
// guarded UPDATE keyed on the job's current status, so a concurrent control
// command and a worker write can never interleave into an inconsistent state.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)

	// ClaimNext atomically transitions one queued job to processing and stamps
	// its lease. Returns model.ErrNoJobsAvailable when nothing is claimable.
	ClaimNext(ctx context.Context, leaseSeconds int) (*model.Job, error)
	// Heartbeat extends the lease of a processing job; false means the job is
	// no longer processing (stopped, paused, or reclaimed).
	Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error)
	// RequeueExpired returns processing jobs with expired leases to the
	// claimable pool. Safe to run from any worker.
	RequeueExpired(ctx context.Context) (int64, error)
	WaitForNotification(ctx context.Context) error

	// SetCurrentRow publishes the 1-based "now processing" row pointer.
	SetCurrentRow(ctx context.Context, jobID string, rowNumber int) (bool, error)
	// AdvanceRow increments rows_processed and clears current_row in one statement.
	AdvanceRow(ctx context.Context, jobID string) (bool, error)

	// PauseForError applies the guarded auto-pause transition. It succeeds only
	// while the job is still processing or queued; a false return means the
	// caller lost the race and must fall back to the cell-sentinel path.
	PauseForError(ctx context.Context, jobID string, detail *model.ErrorDetail) (bool, error)
	// RequestPause is the user-initiated pause; existing error detail is preserved.
	RequestPause(ctx context.Context, jobID string) (bool, error)
	// Resume returns a paused job to the claimable pool, clearing error detail
	// in the same write.
	Resume(ctx context.Context, jobID string) (bool, error)
	// RequestStop terminates the job, clearing error detail in the same write.
	RequestStop(ctx context.Context, jobID string) (bool, error)
	// Complete performs the compound terminal write: status, rows_processed,
	// current_row, error detail and output key all change in one statement.
	Complete(ctx context.Context, params CompleteParams) (bool, error)
	// MarkFailed is reserved for unrecoverable job-level failures (working set
	// could not be loaded); never used for per-row or per-cell failures.
	MarkFailed(ctx context.Context, jobID, techMessage string) (bool, error)

	Stats(ctx context.Context, tenantID string) (*model.JobStats, error)
}

// CompleteParams groups parameters for JobRepository.Complete.
type CompleteParams struct {
	JobID     string
	OutputKey string
}

// JobLogRepository appends and reads per-job textual events.
type JobLogRepository interface {
	Append(ctx context.Context, entry LogEntry) error
	ListByJob(ctx context.Context, jobID string) ([]LogEntry, error)
}

// LogEntry is one per-job log line.
type LogEntry struct {
	JobID     string
	Level     string
	Message   string
	CreatedAt time.Time
}

// BlobStore abstracts artifact storage: the uploaded input, partial and final
// outputs, the rendered log, and the per-job options document.
type BlobStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// CacheRepository defines the interface for caching operations.
type CacheRepository interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) (bool, error)
	Health(ctx context.Context) error
}

// Client invokes one LLM provider call. Wire-level transports implement this;
// the internal/llm package layers retry, rate limiting, and content
// normalization on top. Any returned error feeds the classifier.
type Client interface {
	Invoke(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Clock narrows time access so services can be tested against a fixed clock.
type Clock interface {
	Now() time.Time
}
