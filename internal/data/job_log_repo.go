package data

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rowmill/rowmill/internal/core"
)

// JobLogRepo persists per-job log lines. Rows cascade away with their job.
type JobLogRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobLogRepo creates a JobLogRepo with optional time provider and logger.
func NewJobLogRepo(db *sql.DB, tp TimeProvider, logger *slog.Logger) *JobLogRepo {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobLogRepo{DB: db, timeProvider: tp, logger: logger.With("component", "job_log_repo")}
}

// Append writes one log line for a job.
func (r *JobLogRepo) Append(ctx context.Context, entry core.LogEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.timeProvider.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO job_logs (job_id, level, message, created_at)
		VALUES ($1, $2, $3, $4)
	`, entry.JobID, entry.Level, entry.Message, createdAt)
	if err != nil {
		return fmt.Errorf("append job log: %w", err)
	}
	return nil
}

// ListByJob returns all log lines for a job in insertion order.
func (r *JobLogRepo) ListByJob(ctx context.Context, jobID string) ([]core.LogEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT job_id, level, message, created_at
		FROM job_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []core.LogEntry
	for rows.Next() {
		var e core.LogEntry
		if err := rows.Scan(&e.JobID, &e.Level, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan job log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job logs: %w", err)
	}
	return entries, nil
}

// RenderLog formats log entries into the plain-text artifact uploaded next to
// a job's output.
func RenderLog(entries []core.LogEntry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"))
		b.WriteString(" [")
		b.WriteString(strings.ToUpper(e.Level))
		b.WriteString("] ")
		b.WriteString(e.Message)
		b.WriteByte('\n')
	}
	return b.String()
}
