package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rowmill/rowmill/internal/data/pgxutil"
)

// Advisory lock keys for reaper operations, so a fleet of workers never
// requeues or prunes concurrently.
const (
	advisoryLockRequeueMajor int64 = 2101
	advisoryLockRequeueMinor int64 = 1

	advisoryLockPruneMajor int64 = 2101
	advisoryLockPruneMinor int64 = 2

	advisoryLockStaleMajor int64 = 2101
	advisoryLockStaleMinor int64 = 3
)

// RequeueExpired returns processing jobs whose lease has lapsed to the queued
// state, on the reasoning that the prior owner died mid-row. Progress counters
// are untouched: the next claimant restarts from rows_processed.
func (r *JobRepo) RequeueExpired(ctx context.Context) (int64, error) {
	var requeued int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx,
				"SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)",
				advisoryLockRequeueMajor, advisoryLockRequeueMinor,
			).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				return nil
			}

			res, err := tx.ExecContext(ctx, `
				UPDATE jobs
				SET status = 'queued',
				    current_row = NULL,
				    lease_expires_at = NULL,
				    updated_at = $1
				WHERE status = 'processing'
				  AND lease_expires_at IS NOT NULL
				  AND lease_expires_at < $1
			`, r.timeProvider.Now().UTC())
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			requeued = n
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return requeued, nil
}

// FailStaleQueued marks queued jobs older than maxAge as failed: nothing ever
// claimed them, so leaving them queued forever hides a capacity or admission
// problem. The failure detail carries a fixed category so operators can spot
// these in one query.
func (r *JobRepo) FailStaleQueued(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	now := r.timeProvider.Now().UTC()
	cutoff := now.Add(-maxAge)

	var failed int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx,
				"SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)",
				advisoryLockStaleMajor, advisoryLockStaleMinor,
			).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				return nil
			}

			res, err := tx.ExecContext(ctx, `
				UPDATE jobs
				SET status = 'failed',
				    error_detail = jsonb_build_object(
				        'category', 'UNRECOVERABLE',
				        'message', 'job was never claimed and exceeded the queue age limit',
				        'occurred_at', to_jsonb($1::timestamptz)
				    ),
				    updated_at = $1
				WHERE id IN (
					SELECT id FROM jobs
					WHERE status = 'queued'
					  AND created_at < $2
					LIMIT $3
				)
			`, now, cutoff, batchSize)
			if err != nil {
				return fmt.Errorf("fail stale queued: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			failed = n
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return failed, nil
}

// PruneTerminalJobs deletes terminal jobs (and their logs, via cascade) older
// than maxAge, in batches.
func (r *JobRepo) PruneTerminalJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	cutoff := r.timeProvider.Now().Add(-maxAge).UTC()

	var pruned int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx,
				"SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)",
				advisoryLockPruneMajor, advisoryLockPruneMinor,
			).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				return nil
			}

			res, err := tx.ExecContext(ctx, `
				DELETE FROM jobs
				WHERE id IN (
					SELECT id FROM jobs
					WHERE status IN ('completed', 'stopped', 'failed')
					  AND updated_at < $1
					LIMIT $2
				)
			`, cutoff, batchSize)
			if err != nil {
				return fmt.Errorf("prune terminal jobs: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			pruned = n
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return pruned, nil
}
