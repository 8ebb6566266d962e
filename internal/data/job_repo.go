// Package data provides the PostgreSQL, Redis and S3 adapters behind the core ports.
package data

import (
	"database/sql"
	"errors"
	"log/slog"
)

var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists is returned when enqueueing collides with an existing job id.
	ErrJobExists = errors.New("job already exists")
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	// TenantAdmissionLimit caps the number of concurrently processing jobs per
	// tenant; zero disables the cap.
	TenantAdmissionLimit int
	Logger               *slog.Logger
	TimeProvider         TimeProvider
}

// JobRepo provides database operations for enrichment job management.
type JobRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &JobRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  tenant_id,
  name,
  status,
  total_rows,
  rows_processed,
  current_row,
  prompts,
  error_detail,
  lease_expires_at,
  input_key,
  output_key,
  created_at,
  updated_at
`
