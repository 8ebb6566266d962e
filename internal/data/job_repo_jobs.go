package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rowmill/rowmill/internal/core"
	"github.com/rowmill/rowmill/internal/data/pgxutil"
	"github.com/rowmill/rowmill/internal/domain/model"
)

const jobNotifyChannel = "rowmill_job_enqueued"

// SQL used by ClaimNext to atomically claim the next queued job. The admission
// subquery keeps a tenant from occupying more than the configured number of
// worker slots at once; FOR UPDATE SKIP LOCKED ensures at most one claimant
// wins each job under concurrency.
const claimNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM jobs j
    WHERE j.status = 'queued'
      AND ($2::int <= 0 OR (
        SELECT count(*) FROM jobs a
        WHERE a.tenant_id = j.tenant_id AND a.status = 'processing'
      ) < $2)
    ORDER BY j.created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE jobs j
  SET
    status = 'processing',
    lease_expires_at = $1,
    updated_at = now()
  FROM cte
  WHERE j.id = cte.id
  RETURNING ` + jobColumns

// Create enqueues a new enrichment job and notifies waiting workers.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	prompts, err := model.MarshalPrompts(req.Prompts)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	var job *model.Job
	txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, qerr := tx.Query(ctx, `
        INSERT INTO jobs (id, tenant_id, name, status, total_rows, rows_processed, prompts, input_key)
        VALUES ($1, $2, $3, 'queued', $4, 0, $5, $6)
        RETURNING `+jobColumns,
				id, req.TenantID, req.Name, req.TotalRows, prompts, req.InputKey,
			)
			if qerr != nil {
				return fmt.Errorf("insert job: %w", mapPgError(qerr))
			}
			j, cerr := collectJobFromRows(rows)
			rows.Close()
			if cerr != nil {
				return fmt.Errorf("collect job: %w", mapPgError(cerr))
			}
			job = j

			if _, nerr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, jobNotifyChannel, job.ID); nerr != nil {
				return fmt.Errorf("send job notification: %w", nerr)
			}
			return nil
		},
	})
	if txErr != nil {
		return nil, txErr
	}
	return job, nil
}

// ClaimNext claims the next queued job for processing, stamping its lease.
func (r *JobRepo) ClaimNext(ctx context.Context, leaseSeconds int) (*model.Job, error) {
	if leaseSeconds <= 0 {
		return nil, errors.New("leaseSeconds must be positive")
	}

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			leaseExpiresAt := r.timeProvider.Now().Add(time.Duration(leaseSeconds) * time.Second)
			rows, qerr := tx.Query(ctx, claimNextUpdateSQL, leaseExpiresAt.UTC(), r.cfg.TenantAdmissionLimit)
			if qerr != nil {
				return fmt.Errorf("claim job: %w", qerr)
			}
			defer rows.Close()

			j, cerr := collectJobFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("claim job: %w", cerr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, err
	}
	return job, nil
}

// Heartbeat refreshes the lease on a processing job. A false return without
// error means the job left the processing state; the orchestrator discovers why
// on its next control check.
func (r *JobRepo) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}

	now := r.timeProvider.Now().UTC()
	leaseExpiresAt := now.Add(time.Duration(leaseSeconds) * time.Second)

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET lease_expires_at = $2, updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`, jobID, leaseExpiresAt, now)
	if err != nil {
		return false, fmt.Errorf("heartbeat job: %w", err)
	}
	return rowsAffected(res)
}

// SetCurrentRow publishes the 1-based row the worker is starting, guarded on
// processing so a racing pause/stop never resurrects the pointer.
func (r *JobRepo) SetCurrentRow(ctx context.Context, jobID string, rowNumber int) (bool, error) {
	if rowNumber < 1 {
		return false, fmt.Errorf("row number must be 1-based, got %d", rowNumber)
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET current_row = $2, updated_at = $3
		WHERE id = $1 AND status = 'processing' AND $2 > rows_processed
	`, jobID, rowNumber, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("set current row: %w", err)
	}
	return rowsAffected(res)
}

// AdvanceRow marks the current row fully resolved: rows_processed increments and
// current_row clears in one statement, capped at total_rows.
func (r *JobRepo) AdvanceRow(ctx context.Context, jobID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET rows_processed = rows_processed + 1,
		    current_row = NULL,
		    updated_at = $2
		WHERE id = $1 AND status = 'processing' AND rows_processed < total_rows
	`, jobID, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("advance row: %w", err)
	}
	return rowsAffected(res)
}

// PauseForError applies the guarded auto-pause transition. The guard covers
// queued as well as processing to close the race between claim and a first-row
// failure observed by a competing writer.
func (r *JobRepo) PauseForError(ctx context.Context, jobID string, detail *model.ErrorDetail) (bool, error) {
	if detail == nil {
		return false, errors.New("error detail is required")
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return false, fmt.Errorf("marshal error detail: %w", err)
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'paused',
		    error_detail = $2,
		    current_row = NULL,
		    lease_expires_at = NULL,
		    updated_at = $3
		WHERE id = $1 AND status IN ('processing', 'queued')
	`, jobID, raw, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("pause for error: %w", err)
	}
	return rowsAffected(res)
}

// RequestPause is the user-initiated pause. Any stored error detail survives so
// an earlier auto-pause reason is not silently discarded.
func (r *JobRepo) RequestPause(ctx context.Context, jobID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'paused',
		    current_row = NULL,
		    lease_expires_at = NULL,
		    updated_at = $2
		WHERE id = $1 AND status = 'processing'
	`, jobID, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("request pause: %w", err)
	}
	return rowsAffected(res)
}

// Resume returns a paused job to the claimable pool. Error detail clears in the
// same write; workers re-claim and restart from rows_processed.
func (r *JobRepo) Resume(ctx context.Context, jobID string) (bool, error) {
	applied, err := func() (bool, error) {
		res, execErr := r.DB.ExecContext(ctx, `
			UPDATE jobs
			SET status = 'queued',
			    error_detail = NULL,
			    updated_at = $2
			WHERE id = $1 AND status = 'paused'
		`, jobID, r.timeProvider.Now().UTC())
		if execErr != nil {
			return false, fmt.Errorf("resume job: %w", execErr)
		}
		return rowsAffected(res)
	}()
	if err != nil || !applied {
		return applied, err
	}

	if _, nerr := r.DB.ExecContext(ctx, `SELECT pg_notify($1::text, $2::text)`, jobNotifyChannel, jobID); nerr != nil && r.logger != nil {
		r.logger.WarnContext(ctx, "resume notification failed", "job_id", jobID, "error", nerr)
	}
	return true, nil
}

// RequestStop terminates the job. Error detail clears atomically with the
// status change.
func (r *JobRepo) RequestStop(ctx context.Context, jobID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'stopped',
		    error_detail = NULL,
		    current_row = NULL,
		    lease_expires_at = NULL,
		    updated_at = $2
		WHERE id = $1 AND status IN ('queued', 'processing', 'paused')
	`, jobID, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("request stop: %w", err)
	}
	return rowsAffected(res)
}

// Complete performs the compound terminal write. Everything an observer can see
// (status, rows_processed, current_row, error detail, output key) changes in a
// single statement so "completed but rows short of total" is never visible.
func (r *JobRepo) Complete(ctx context.Context, params core.CompleteParams) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'completed',
		    rows_processed = total_rows,
		    current_row = NULL,
		    error_detail = NULL,
		    lease_expires_at = NULL,
		    output_key = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`, params.JobID, params.OutputKey, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}
	return rowsAffected(res)
}

// MarkFailed records an unrecoverable job-level failure. Reserved for working
// set load errors; per-cell failures never reach this.
func (r *JobRepo) MarkFailed(ctx context.Context, jobID, techMessage string) (bool, error) {
	detail := model.ErrorDetail{
		Category:   "UNRECOVERABLE",
		Message:    "The job could not be processed. Check the input artifact and re-upload if necessary.",
		TechDetail: techMessage,
		OccurredAt: r.timeProvider.Now().UTC(),
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return false, fmt.Errorf("marshal error detail: %w", err)
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'failed',
		    error_detail = $2,
		    current_row = NULL,
		    lease_expires_at = NULL,
		    updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`, jobID, raw, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	return rowsAffected(res)
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		j, cerr := collectJobFromRows(rows)
		if cerr != nil {
			return cerr
		}
		job = j
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Stats returns per-status job counts for a tenant.
func (r *JobRepo) Stats(ctx context.Context, tenantID string) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
	  SELECT
	    count(*) FILTER (WHERE status = 'queued')     AS queued,
	    count(*) FILTER (WHERE status = 'processing') AS processing,
	    count(*) FILTER (WHERE status = 'paused')     AS paused,
	    count(*) FILTER (WHERE status = 'stopped')    AS stopped,
	    count(*) FILTER (WHERE status = 'completed')  AS completed,
	    count(*) FILTER (WHERE status = 'failed')     AS failed
	  FROM jobs
	  WHERE tenant_id = $1
	`, tenantID).Scan(&s.Queued, &s.Processing, &s.Paused, &s.Stopped, &s.Completed, &s.Failed)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return &s, nil
}

// WaitForNotification blocks until a worker wakeup NOTIFY arrives or ctx ends.
func (r *JobRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	quoted := pgx.Identifier{jobNotifyChannel}.Sanitize()
	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", jobNotifyChannel, execErr)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "UNLISTEN "+quoted)
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// collectJobFromRows collects a single job from pgx rows.
func collectJobFromRows(rows pgx.Rows) (*model.Job, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}
	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return job, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	var (
		job            model.Job
		prompts        []byte
		errorDetail    []byte
		currentRow     sql.NullInt64
		leaseExpiresAt sql.NullTime
		outputKey      sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.TenantID,
		&job.Name,
		&job.Status,
		&job.TotalRows,
		&job.RowsProcessed,
		&currentRow,
		&prompts,
		&errorDetail,
		&leaseExpiresAt,
		&job.InputKey,
		&outputKey,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(prompts) > 0 {
		if err := json.Unmarshal(prompts, &job.Prompts); err != nil {
			return nil, fmt.Errorf("decode prompts: %w", err)
		}
	}
	if len(errorDetail) > 0 {
		var detail model.ErrorDetail
		if err := json.Unmarshal(errorDetail, &detail); err != nil {
			return nil, fmt.Errorf("decode error detail: %w", err)
		}
		job.ErrorDetail = &detail
	}
	if currentRow.Valid {
		v := int(currentRow.Int64)
		job.CurrentRow = &v
	}
	if leaseExpiresAt.Valid {
		t := leaseExpiresAt.Time.UTC()
		job.LeaseExpiresAt = &t
	}
	if outputKey.Valid {
		s := outputKey.String
		job.OutputKey = &s
	}
	return &job, nil
}

func rowsAffected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// mapPgError translates PostgreSQL constraint violations to repo sentinels.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return ErrJobExists
	}
	return err
}
