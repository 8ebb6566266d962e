// Package model defines the core data types and structures used throughout the rowmill enrichment engine.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// JobStatus represents the current status of an enrichment job.
type JobStatus string

const (
	// JobStatusQueued indicates a job is waiting to be claimed by a worker.
	JobStatusQueued JobStatus = "queued"
	// JobStatusProcessing indicates a job is currently being processed under an active lease.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusPaused indicates a job was paused, either by the user or automatically on a
	// pause-worthy provider failure.
	JobStatusPaused JobStatus = "paused"
	// JobStatusStopped indicates the user terminated the job before completion.
	JobStatusStopped JobStatus = "stopped"
	// JobStatusCompleted indicates every row was processed and the final artifact uploaded.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates an unrecoverable job-level failure (e.g. the input
	// artifact could not be loaded). Per-cell failures never produce this status.
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusPaused,
		JobStatusStopped, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusStopped || s == JobStatusCompleted || s == JobStatusFailed
}

// UnmarshalText implements encoding.TextUnmarshaler for JobStatus to allow env parsing.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobStatus: %q", v)
	}
	*s = v
	return nil
}

// ErrNoJobsAvailable is returned when no claimable jobs exist.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Job represents an enrichment job: one uploaded dataset plus an ordered list of
// prompts that each produce an output column.
type Job struct {
	ID       string    `json:"id"        db:"id"`
	TenantID string    `json:"tenant_id" db:"tenant_id"`
	Name     string    `json:"name"      db:"name"`
	Status   JobStatus `json:"status"    db:"status"`

	// TotalRows is fixed at enqueue time; RowsProcessed is monotonic and never
	// exceeds it. CurrentRow is the 1-based row a worker is actively working on
	// and is null whenever the job is not processing.
	TotalRows     int  `json:"total_rows"            db:"total_rows"`
	RowsProcessed int  `json:"rows_processed"        db:"rows_processed"`
	CurrentRow    *int `json:"current_row,omitempty" db:"current_row"`

	Prompts     []PromptConfig `json:"prompts"                db:"prompts"`
	ErrorDetail *ErrorDetail   `json:"error_detail,omitempty" db:"error_detail"`

	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty" db:"lease_expires_at"`

	InputKey  string  `json:"input_key"            db:"input_key"`
	OutputKey *string `json:"output_key,omitempty" db:"output_key"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PromptConfig describes one prompt in a job. Immutable once the job is enqueued.
type PromptConfig struct {
	SystemTemplate string         `json:"system_template,omitempty"`
	UserTemplate   string         `json:"user_template"`
	OutputColumn   string         `json:"output_column"`
	Provider       string         `json:"provider"`
	Model          string         `json:"model"`
	Options        RuntimeOptions `json:"options"`
}

// RuntimeOptions are the effective per-call runtime options for a prompt.
// Nil pointer fields mean "not set"; providers that do not support a set
// parameter surface an unsupported-parameter failure from the adapter.
type RuntimeOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

// CanonicalJSON renders options in a stable form for dedup key derivation.
func (o RuntimeOptions) CanonicalJSON() string {
	parts := make([]string, 0, 3)
	if o.Temperature != nil {
		parts = append(parts, fmt.Sprintf(`"temperature":%g`, *o.Temperature))
	}
	if o.MaxTokens != nil {
		parts = append(parts, fmt.Sprintf(`"max_tokens":%d`, *o.MaxTokens))
	}
	if o.TopP != nil {
		parts = append(parts, fmt.Sprintf(`"top_p":%g`, *o.TopP))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// ErrorDetail captures why a job auto-paused, with enough context for a human to
// fix credentials/billing/content and resume.
type ErrorDetail struct {
	Category   string            `json:"category"`
	Message    string            `json:"message"`
	TechDetail string            `json:"tech_detail,omitempty"`
	RowNumber  int               `json:"row_number"`
	PromptIdx  int               `json:"prompt_index"`
	Column     string            `json:"column,omitempty"`
	Provider   string            `json:"provider,omitempty"`
	Model      string            `json:"model,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// JobOptions is the small externally mutable options document stored alongside a
// job in the blob store. It may be edited while the job is paused, so the engine
// re-reads it between rows and after every resume.
type JobOptions struct {
	// SkipFilled skips prompts whose output cell already holds a non-sentinel value.
	SkipFilled bool `json:"skip_filled"`
}

// CreateJobRequest represents a request to enqueue a new enrichment job.
type CreateJobRequest struct {
	TenantID  string         `json:"tenant_id"`
	Name      string         `json:"name"`
	TotalRows int            `json:"total_rows"`
	Prompts   []PromptConfig `json:"prompts"`
	InputKey  string         `json:"input_key"`
}

// Validate validates the CreateJobRequest fields, including the per-job prompt
// invariants: unique output columns and no self-referencing templates.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.TenantID) == "" {
		return errors.New("tenant id is required")
	}
	if r.TotalRows <= 0 {
		return errors.New("total rows must be positive")
	}
	if strings.TrimSpace(r.InputKey) == "" {
		return errors.New("input key is required")
	}
	if len(r.Prompts) == 0 {
		return errors.New("at least one prompt is required")
	}
	seen := make(map[string]struct{}, len(r.Prompts))
	for i := range r.Prompts {
		if err := r.Prompts[i].Validate(); err != nil {
			return fmt.Errorf("prompt %d: %w", i, err)
		}
		col := r.Prompts[i].OutputColumn
		if _, dup := seen[col]; dup {
			return fmt.Errorf("prompt %d: duplicate output column %q", i, col)
		}
		seen[col] = struct{}{}
	}
	return nil
}

// Validate validates a single prompt configuration.
func (p *PromptConfig) Validate() error {
	if strings.TrimSpace(p.UserTemplate) == "" {
		return errors.New("user template is required")
	}
	if strings.TrimSpace(p.OutputColumn) == "" {
		return errors.New("output column is required")
	}
	if strings.TrimSpace(p.Provider) == "" {
		return errors.New("provider is required")
	}
	if strings.TrimSpace(p.Model) == "" {
		return errors.New("model is required")
	}
	if templateReferences(p.UserTemplate, p.OutputColumn) || templateReferences(p.SystemTemplate, p.OutputColumn) {
		return fmt.Errorf("output column %q must not be referenced by its own templates", p.OutputColumn)
	}
	return nil
}

// templateReferences reports whether tmpl contains a {{column}} token for the
// given column, tolerating whitespace inside the braces the same way template
// substitution does.
func templateReferences(tmpl, column string) bool {
	if tmpl == "" {
		return false
	}
	pattern := regexp.MustCompile(`\{\{\s*` + regexp.QuoteMeta(column) + `\s*\}\}`)
	return pattern.MatchString(tmpl)
}

// MarshalPrompts renders the prompt list for jsonb storage.
func MarshalPrompts(prompts []PromptConfig) ([]byte, error) {
	raw, err := json.Marshal(prompts)
	if err != nil {
		return nil, fmt.Errorf("marshal prompts: %w", err)
	}
	return raw, nil
}

// JobStats represents counts of jobs per status for a tenant.
type JobStats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Paused     int `json:"paused"`
	Stopped    int `json:"stopped"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// ProgressSnapshot is the cheap progress view cached for pollers.
type ProgressSnapshot struct {
	JobID         string    `json:"job_id"`
	Status        JobStatus `json:"status"`
	RowsProcessed int       `json:"rows_processed"`
	TotalRows     int       `json:"total_rows"`
	CurrentRow    *int      `json:"current_row,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}
