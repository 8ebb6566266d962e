package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rowmill/rowmill/internal/core"
	"github.com/rowmill/rowmill/internal/domain/enrich"
	"github.com/rowmill/rowmill/internal/domain/llm"
	"github.com/rowmill/rowmill/internal/domain/model"
	"github.com/rowmill/rowmill/internal/observability/metrics"
	"github.com/rowmill/rowmill/internal/observability/statsd"
)

// Orchestrator runs one claimed job to its end: it materializes the working
// set, iterates rows and prompts sequentially, resolves calls through a
// per-run dedup cache, classifies provider failures, honors pause/stop
// commands between rows, and commits the terminal transition.
//
// One Orchestrator instance is shared across jobs; all per-run state (working
// set, dedup cache, key deriver) lives on the stack of Run.
type Orchestrator struct {
	jobs     core.JobRepository
	logs     core.JobLogRepository
	blobs    core.BlobStore
	options  *core.JobOptionsService
	client   core.Client
	clock    core.Clock
	sink     statsd.Sink
	progress *ProgressTracker
	logger   *slog.Logger

	dedupSecret string
}

// OrchestratorOptions configures the orchestrator.
type OrchestratorOptions struct {
	Jobs    core.JobRepository
	Logs    core.JobLogRepository
	Blobs   core.BlobStore
	Options *core.JobOptionsService
	Client  core.Client
	Clock   core.Clock
	Sink    statsd.Sink
	// Progress is optional; nil disables the cached progress snapshot.
	Progress *ProgressTracker
	Logger   *slog.Logger

	// DedupSecret keys the per-tenant dedup key derivation.
	DedupSecret string
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}
	return &Orchestrator{
		jobs:        opts.Jobs,
		logs:        opts.Logs,
		blobs:       opts.Blobs,
		options:     opts.Options,
		client:      opts.Client,
		clock:       clock,
		sink:        opts.Sink,
		progress:    opts.Progress,
		logger:      logger.With("component", "orchestrator"),
		dedupSecret: opts.DedupSecret,
	}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// rowRun carries the per-pass state through row processing.
type rowRun struct {
	job     *model.Job
	ws      *WorkingSet
	cache   *DedupCache
	deriver *enrich.KeyDeriver
	opts    model.JobOptions
	rowIdx  int
	// skipped counts cells left untouched by the skip-on-existing rule.
	skipped int
}

// Run processes a claimed job until completion, pause, stop, or lease loss.
// The returned error is reserved for infrastructure failures the caller may
// want to retry after re-claim (e.g. artifact upload); all job-semantic
// outcomes are persisted on the job record and return nil.
func (o *Orchestrator) Run(ctx context.Context, job *model.Job) error {
	logger := o.logger.With("job_id", job.ID, "tenant_id", job.TenantID)
	started := o.clock.Now()

	ws, err := LoadWorkingSet(ctx, o.blobs, job)
	if err != nil {
		// Working-set load failures are the one path that terminates the job
		// as failed; nothing row-level can recover from an unreadable input.
		logger.ErrorContext(ctx, "working set load failed", "err", err)
		o.appendLog(ctx, job.ID, "error", fmt.Sprintf("failed to load working set: %v", err))
		if _, mfErr := o.jobs.MarkFailed(ctx, job.ID, err.Error()); mfErr != nil {
			logger.ErrorContext(ctx, "mark failed", "err", mfErr)
		}
		o.emitLifecycle("failed", metrics.ResultError, started, err)
		return nil
	}

	cache := NewDedupCache()
	deriver := enrich.NewKeyDeriver(o.dedupSecret, job.TenantID)

	opts, optErr := o.options.Get(ctx, job.TenantID, job.ID)
	if optErr != nil {
		logger.WarnContext(ctx, "read job options", "err", optErr)
	}

	skippedCells := 0
	for rowIdx := job.RowsProcessed; rowIdx < len(ws.Rows); rowIdx++ {
		halted, status, ctlErr := o.controlCheck(ctx, job)
		if ctlErr != nil {
			logger.WarnContext(ctx, "control check", "err", ctlErr)
		}
		if halted {
			return o.halt(ctx, job, ws, cache, status, started)
		}
		// Options may change while the job is paused; the cached read keeps
		// this cheap between rows.
		if refreshed, rErr := o.options.Get(ctx, job.TenantID, job.ID); rErr == nil {
			opts = refreshed
		}

		applied, srErr := o.jobs.SetCurrentRow(ctx, job.ID, rowIdx+1)
		if srErr != nil {
			logger.WarnContext(ctx, "set current row", "row", rowIdx+1, "err", srErr)
		}
		if !applied && srErr == nil {
			// The guard failed: the job is no longer processing.
			halted, status, _ = o.controlCheck(ctx, job)
			if halted {
				return o.halt(ctx, job, ws, cache, status, started)
			}
		}

		rc := &rowRun{job: job, ws: ws, cache: cache, deriver: deriver, opts: opts, rowIdx: rowIdx}
		paused, rowErr := o.processRow(ctx, rc)
		skippedCells += rc.skipped
		if paused {
			o.persistPartial(ctx, job, ws)
			o.emitLifecycle("paused", metrics.ResultError, started, nil)
			o.publishProgress(ctx, job, model.JobStatusPaused, rowIdx, nil)
			metrics.EmitDedupSummary(o.sink, job.ID, cache.Summary())
			return nil
		}
		if rowErr != nil {
			// Unexpected failure contained at row granularity: the row's
			// output cells get the row-error sentinel and the job moves on.
			logger.ErrorContext(ctx, "row processing failed", "row", rowIdx+1, "err", rowErr)
			o.markRowError(rc)
			o.appendLog(ctx, job.ID, "error",
				fmt.Sprintf("row %d: unexpected error, row marked and skipped: %v", rowIdx+1, rowErr))
		}

		advanced, advErr := o.jobs.AdvanceRow(ctx, job.ID)
		if advErr != nil {
			logger.WarnContext(ctx, "advance row", "row", rowIdx+1, "err", advErr)
		}
		if !advanced && advErr == nil {
			halted, status, _ = o.controlCheck(ctx, job)
			if halted {
				return o.halt(ctx, job, ws, cache, status, started)
			}
		}

		o.persistPartial(ctx, job, ws)
		o.publishProgress(ctx, job, model.JobStatusProcessing, rowIdx+1, nil)
	}

	return o.finalize(ctx, job, ws, cache, started, skippedCells)
}

// controlCheck reads the persisted job status between rows. A status other
// than processing means an external actor (or the reaper) took the job away.
func (o *Orchestrator) controlCheck(ctx context.Context, job *model.Job) (bool, model.JobStatus, error) {
	current, err := o.jobs.GetByID(ctx, job.ID)
	if err != nil {
		return false, "", err
	}
	if current.Status != model.JobStatusProcessing {
		return true, current.Status, nil
	}
	return false, current.Status, nil
}

// processRow runs every prompt of one row. A true return means the job was
// auto-paused and the pass must stop. Panics and non-provider errors surface
// as the returned error; the caller degrades them to a row-error sentinel.
func (o *Orchestrator) processRow(ctx context.Context, rc *rowRun) (paused bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("row %d: panic: %v", rc.rowIdx+1, r)
		}
	}()

	row := rc.ws.Rows[rc.rowIdx]
	for pi := range rc.job.Prompts {
		prompt := &rc.job.Prompts[pi]

		if rc.opts.SkipFilled && enrich.IsFilled(row[prompt.OutputColumn]) {
			rc.skipped++
			o.appendLog(ctx, rc.job.ID, "debug", fmt.Sprintf(
				"row %d (%s): existing value kept, call skipped", rc.rowIdx+1, prompt.OutputColumn))
			continue
		}

		// Earlier prompts in the same row feed later ones: substitution reads
		// the row's current values, including freshly written output cells.
		systemText := enrich.FillTemplate(prompt.SystemTemplate, row)
		userText := enrich.FillTemplate(prompt.UserTemplate, row)
		key := rc.deriver.Derive(prompt, systemText, userText)

		content, callErr := rc.cache.Resolve(ctx, key, func(ctx context.Context) (string, error) {
			resp, invokeErr := o.client.Invoke(ctx, llm.Request{
				Provider:    prompt.Provider,
				Model:       prompt.Model,
				SystemText:  systemText,
				UserText:    userText,
				Temperature: prompt.Options.Temperature,
				MaxTokens:   prompt.Options.MaxTokens,
				TopP:        prompt.Options.TopP,
			})
			if invokeErr != nil {
				return "", invokeErr
			}
			return resp.Content, nil
		})
		if callErr == nil {
			rc.ws.SetValue(rc.rowIdx, prompt.OutputColumn, content)
			continue
		}

		cls := llm.Classify(callErr)
		if cls.Category.PausesJob() {
			detail := &model.ErrorDetail{
				Category:   string(cls.Category),
				Message:    cls.UserMessage,
				TechDetail: cls.TechMessage,
				RowNumber:  rc.rowIdx + 1,
				PromptIdx:  pi,
				Column:     prompt.OutputColumn,
				Provider:   prompt.Provider,
				Model:      prompt.Model,
				OccurredAt: o.clock.Now().UTC(),
			}
			applied, pErr := o.jobs.PauseForError(ctx, rc.job.ID, detail)
			if pErr != nil {
				o.logger.ErrorContext(ctx, "pause for error",
					"job_id", rc.job.ID, "category", string(cls.Category), "err", pErr)
			}
			if applied {
				o.appendLog(ctx, rc.job.ID, "error", fmt.Sprintf(
					"row %d prompt %d (%s): %s; job paused for intervention",
					rc.rowIdx+1, pi, prompt.OutputColumn, cls.UserMessage))
				return true, nil
			}
			// Lost the race against a concurrent control command; degrade to
			// the cell sentinel rather than losing the error.
		}

		rc.ws.SetValue(rc.rowIdx, prompt.OutputColumn, enrich.CellErrorSentinel)
		o.appendLog(ctx, rc.job.ID, "error", fmt.Sprintf(
			"row %d (%s): %s", rc.rowIdx+1, prompt.OutputColumn, cls.UserMessage))
	}
	return false, nil
}

// markRowError writes the row-error sentinel into every output cell of the row
// that is not already filled, preserving cells produced before the failure.
func (o *Orchestrator) markRowError(rc *rowRun) {
	for i := range rc.job.Prompts {
		col := rc.job.Prompts[i].OutputColumn
		if !enrich.IsFilled(rc.ws.Value(rc.rowIdx, col)) {
			rc.ws.SetValue(rc.rowIdx, col, enrich.RowErrorSentinel)
		}
	}
}

func (o *Orchestrator) appendLog(ctx context.Context, jobID, level, msg string) {
	if o.logs == nil {
		return
	}
	entry := core.LogEntry{JobID: jobID, Level: level, Message: msg, CreatedAt: o.clock.Now().UTC()}
	if err := o.logs.Append(ctx, entry); err != nil {
		o.logger.WarnContext(ctx, "append job log", "job_id", jobID, "err", err)
	}
}

func (o *Orchestrator) publishProgress(ctx context.Context, job *model.Job, status model.JobStatus, rowsProcessed int, currentRow *int) {
	if o.progress == nil {
		return
	}
	o.progress.Publish(ctx, model.ProgressSnapshot{
		JobID:         job.ID,
		Status:        status,
		RowsProcessed: rowsProcessed,
		TotalRows:     job.TotalRows,
		CurrentRow:    currentRow,
	})
}

func (o *Orchestrator) emitLifecycle(transition, result string, started time.Time, err error) {
	metrics.EmitJobLifecycle(o.sink, metrics.JobMetric{
		Transition: transition,
		Result:     result,
		Duration:   o.clock.Now().Sub(started),
		Err:        err,
	})
}
