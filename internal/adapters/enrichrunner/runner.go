// Package enrichrunner wires the enrichment worker: it claims queued jobs,
// keeps their leases alive, and hands each claim to the orchestrator.
package enrichrunner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rowmill/rowmill/internal/core"
	"github.com/rowmill/rowmill/internal/data"
	domainjob "github.com/rowmill/rowmill/internal/domain/job"
	"github.com/rowmill/rowmill/internal/domain/model"
	llmadapter "github.com/rowmill/rowmill/internal/llm"
	"github.com/rowmill/rowmill/internal/observability/statsd"
	"github.com/rowmill/rowmill/internal/service"
)

// RunnerOptions configures the enrichment job runner.
type RunnerOptions struct {
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Blobs       core.BlobStore
	// Client is the wire-level provider transport; the runner wraps it with
	// the retrying, rate-limited invoker.
	Client core.Client
	Logger *slog.Logger

	Lease       time.Duration // per-job lease; defaults to 30s
	Concurrency int           // worker goroutines; defaults to 1

	DedupSecret          string
	TenantAdmissionLimit int
	Retry                llmadapter.RetryConfig
	Metrics              statsd.Sink

	// Optional injections, used by tests.
	JobsRepo  core.JobRepository
	LogsRepo  core.JobLogRepository
	CacheRepo core.CacheRepository
}

// Runner claims and processes enrichment jobs until its context ends.
type Runner struct {
	jobs         core.JobRepository
	orchestrator *service.Orchestrator
	notifier     domainjob.Notifier
	logger       *slog.Logger
	lease        time.Duration
	workers      int
}

// NewRunner creates an enrichment runner from the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lease := opts.Lease
	if lease <= 0 {
		lease = 30 * time.Second
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}

	jobsRepo := opts.JobsRepo
	if jobsRepo == nil {
		if opts.DB == nil {
			return nil, errors.New("enrich runner requires a DB handle or an explicit JobRepository")
		}
		jobsRepo = data.NewJobRepo(opts.DB, data.RepoConfig{
			TenantAdmissionLimit: opts.TenantAdmissionLimit,
			Logger:               logger,
		})
	}
	logsRepo := opts.LogsRepo
	if logsRepo == nil && opts.DB != nil {
		logsRepo = data.NewJobLogRepo(opts.DB, nil, logger)
	}
	if opts.Blobs == nil {
		return nil, errors.New("enrich runner requires a BlobStore")
	}
	if opts.Client == nil {
		return nil, errors.New("enrich runner requires a provider Client")
	}

	cacheRepo := opts.CacheRepo
	if cacheRepo == nil && opts.RedisClient != nil {
		cacheRepo = data.NewRedisCacheRepo(opts.RedisClient)
	}

	optionsService := core.NewJobOptionsService(core.JobOptionsServiceOptions{
		Blobs: opts.Blobs,
		Cache: cacheRepo,
	})

	invoker := llmadapter.NewInvoker(opts.Client, opts.Retry, logger)

	orchestrator := service.NewOrchestrator(service.OrchestratorOptions{
		Jobs:        jobsRepo,
		Logs:        logsRepo,
		Blobs:       opts.Blobs,
		Options:     optionsService,
		Client:      invoker,
		Sink:        opts.Metrics,
		Progress:    service.NewProgressTracker(cacheRepo, nil, logger),
		Logger:      logger,
		DedupSecret: opts.DedupSecret,
	})

	notifier, err := domainjob.NewNotifier(domainjob.NotifierOptions{Waiter: jobsRepo})
	if err != nil {
		return nil, fmt.Errorf("create notifier: %w", err)
	}

	return &Runner{
		jobs:         jobsRepo,
		orchestrator: orchestrator,
		notifier:     notifier,
		logger:       logger.With("component", "enrich_runner"),
		lease:        lease,
		workers:      workers,
	}, nil
}

// Run starts the worker pool and processes jobs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting enrich runner", "workers", r.workers, "lease", r.lease)
	defer r.notifier.StopAll()

	// Reclaim leases left over from a crashed previous instance before the
	// workers start claiming.
	if n, err := r.jobs.RequeueExpired(ctx); err != nil {
		r.logger.WarnContext(ctx, "startup lease reclaim failed", "err", err)
	} else if n > 0 {
		r.logger.InfoContext(ctx, "reclaimed expired leases", "count", n)
	}

	group, gctx := errgroup.WithContext(ctx)
	for range r.workers {
		group.Go(func() error { return r.runWorkerLoop(gctx) })
	}
	return group.Wait()
}

// runWorkerLoop claims jobs one at a time, sleeping on the notifier between
// empty claims.
func (r *Runner) runWorkerLoop(ctx context.Context) error {
	unsub, ch := r.notifier.Subscribe()
	defer unsub()

	leaseSeconds := int(r.lease / time.Second)
	for ctx.Err() == nil {
		job, err := r.jobs.ClaimNext(ctx, leaseSeconds)
		switch {
		case err == nil:
			r.processJob(ctx, job)
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.waitForNotify(ctx, ch) {
				return nil
			}
		default:
			r.logger.ErrorContext(ctx, "failed to claim next job", "err", err)
			return err
		}
	}
	return ctx.Err()
}

// processJob runs one claimed job under a heartbeat.
func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	r.logger.InfoContext(ctx, "processing job",
		"job_id", job.ID, "tenant_id", job.TenantID, "rows_processed", job.RowsProcessed, "total_rows", job.TotalRows)

	stopHB := r.startHeartbeat(ctx, job.ID)
	defer stopHB()

	if err := r.orchestrator.Run(ctx, job); err != nil {
		// Infrastructure failure; the job record is untouched and the lease
		// will lapse so another claim can retry.
		r.logger.ErrorContext(ctx, "job run aborted", "job_id", job.ID, "err", err)
	}
}

// startHeartbeat extends the job lease periodically until the returned stop
// function is called.
func (r *Runner) startHeartbeat(ctx context.Context, jobID string) func() {
	interval := domainjob.HeartbeatInterval(r.lease)
	leaseSeconds := int(r.lease / time.Second)
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if ok, err := r.jobs.Heartbeat(ctx, jobID, leaseSeconds); err != nil {
					r.logger.ErrorContext(ctx, "heartbeat failed", "job_id", jobID, "err", err)
				} else if !ok {
					// The job was paused, stopped, or reclaimed; the
					// orchestrator notices on its next control check.
					r.logger.WarnContext(ctx, "heartbeat not applied", "job_id", jobID)
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(done) }
}

func (r *Runner) waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	}
}
