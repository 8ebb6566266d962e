package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rowmill/rowmill/internal/core"
	"github.com/rowmill/rowmill/internal/data"
	"github.com/rowmill/rowmill/internal/domain/job"
	"github.com/rowmill/rowmill/internal/domain/model"
	apperrors "github.com/rowmill/rowmill/internal/errors"
)

// JobService is the control surface for jobs: enqueue, claim/heartbeat for
// workers, and the user-issued pause/resume/stop commands. Every command maps
// onto one guarded repository write; a false guard result surfaces as a
// conflict so the API layer can report "job is not in a pausable state".
type JobService struct {
	jobs    core.JobRepository
	options *core.JobOptionsService
	lease   *job.LeasePolicy
	logger  *slog.Logger
}

// JobServiceOptions configures JobService.
type JobServiceOptions struct {
	Jobs    core.JobRepository
	Options *core.JobOptionsService
	Lease   *job.LeasePolicy
	Logger  *slog.Logger
}

// NewJobService creates a JobService.
func NewJobService(opts JobServiceOptions) *JobService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		jobs:    opts.Jobs,
		options: opts.Options,
		lease:   opts.Lease,
		logger:  logger.With("component", "job_service"),
	}
}

// Enqueue validates and persists a new job in the queued state.
func (s *JobService) Enqueue(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	created, err := s.jobs.Create(ctx, req)
	if err != nil {
		if errors.Is(err, data.ErrJobExists) {
			return nil, apperrors.Conflict("job already exists")
		}
		return nil, err
	}
	s.logger.InfoContext(ctx, "job enqueued",
		"job_id", created.ID, "tenant_id", created.TenantID, "total_rows", created.TotalRows)
	return created, nil
}

// Get fetches one job.
func (s *JobService) Get(ctx context.Context, id string) (*model.Job, error) {
	found, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			return nil, apperrors.NotFound("job not found")
		}
		return nil, err
	}
	return found, nil
}

// Claim claims the next queued job under a lease resolved by the lease policy.
func (s *JobService) Claim(ctx context.Context, requested time.Duration) (*model.Job, job.LeaseDecision, error) {
	decision := s.lease.Resolve(requested)
	claimed, err := s.jobs.ClaimNext(ctx, decision.Seconds)
	if err != nil {
		return nil, decision, err
	}
	return claimed, decision, nil
}

// Heartbeat extends a processing job's lease with the policy default.
func (s *JobService) Heartbeat(ctx context.Context, jobID string) (bool, error) {
	decision := s.lease.Resolve(0)
	return s.jobs.Heartbeat(ctx, jobID, decision.Seconds)
}

// Pause applies the user-initiated pause. Existing error detail is preserved
// so an auto-pause reason is not lost under a later manual pause.
func (s *JobService) Pause(ctx context.Context, jobID string) error {
	applied, err := s.jobs.RequestPause(ctx, jobID)
	if err != nil {
		return err
	}
	if !applied {
		return apperrors.Conflict("job is not processing")
	}
	s.logger.InfoContext(ctx, "job paused", "job_id", jobID)
	return nil
}

// Resume returns a paused job to the claimable pool, clearing stored error
// detail in the same write.
func (s *JobService) Resume(ctx context.Context, jobID string) error {
	applied, err := s.jobs.Resume(ctx, jobID)
	if err != nil {
		return err
	}
	if !applied {
		return apperrors.Conflict("job is not paused")
	}
	s.logger.InfoContext(ctx, "job resumed", "job_id", jobID)
	return nil
}

// Stop terminates a queued, processing, or paused job. The stop is cooperative
// for processing jobs: the worker notices between rows.
func (s *JobService) Stop(ctx context.Context, jobID string) error {
	applied, err := s.jobs.RequestStop(ctx, jobID)
	if err != nil {
		return err
	}
	if !applied {
		return apperrors.Conflict("job is already terminal")
	}
	s.logger.InfoContext(ctx, "job stopped", "job_id", jobID)
	return nil
}

// UpdateOptions patches the per-job options document and invalidates its
// cache entry so the next between-rows check sees the change.
func (s *JobService) UpdateOptions(ctx context.Context, tenantID, jobID string, doc model.JobOptions) error {
	if s.options == nil {
		return apperrors.Internal("options service not configured")
	}
	return s.options.Put(ctx, tenantID, jobID, doc)
}

// Stats returns per-status job counts for a tenant.
func (s *JobService) Stats(ctx context.Context, tenantID string) (*model.JobStats, error) {
	return s.jobs.Stats(ctx, tenantID)
}
