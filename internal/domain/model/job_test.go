package model_test

import (
	"testing"

	"github.com/rowmill/rowmill/internal/domain/model"
	"github.com/stretchr/testify/require"
)

func validRequest() *model.CreateJobRequest {
	return &model.CreateJobRequest{
		TenantID:  "tenant-1",
		Name:      "reviews",
		TotalRows: 10,
		InputKey:  "tenants/tenant-1/jobs/x/input.csv",
		Prompts: []model.PromptConfig{
			{
				UserTemplate: "Summarize: {{review}}",
				OutputColumn: "summary",
				Provider:     "openai",
				Model:        "gpt-4o-mini",
			},
		},
	}
}

func TestCreateJobRequestValidate(t *testing.T) {
	require.NoError(t, validRequest().Validate())

	tests := []struct {
		name    string
		mutate  func(*model.CreateJobRequest)
		wantErr string
	}{
		{
			name:    "missing tenant",
			mutate:  func(r *model.CreateJobRequest) { r.TenantID = "  " },
			wantErr: "tenant id is required",
		},
		{
			name:    "zero rows",
			mutate:  func(r *model.CreateJobRequest) { r.TotalRows = 0 },
			wantErr: "total rows must be positive",
		},
		{
			name:    "missing input key",
			mutate:  func(r *model.CreateJobRequest) { r.InputKey = "" },
			wantErr: "input key is required",
		},
		{
			name:    "no prompts",
			mutate:  func(r *model.CreateJobRequest) { r.Prompts = nil },
			wantErr: "at least one prompt is required",
		},
		{
			name: "duplicate output column",
			mutate: func(r *model.CreateJobRequest) {
				dup := r.Prompts[0]
				dup.UserTemplate = "Another take on {{review}}"
				r.Prompts = append(r.Prompts, dup)
			},
			wantErr: "duplicate output column",
		},
		{
			name: "prompt missing model",
			mutate: func(r *model.CreateJobRequest) {
				r.Prompts[0].Model = ""
			},
			wantErr: "model is required",
		},
		{
			name: "template references its own output column",
			mutate: func(r *model.CreateJobRequest) {
				r.Prompts[0].UserTemplate = "Refine {{summary}} of {{review}}"
			},
			wantErr: "must not be referenced by its own templates",
		},
		{
			name: "self-reference with whitespace inside braces",
			mutate: func(r *model.CreateJobRequest) {
				r.Prompts[0].UserTemplate = "Refine {{ summary }} of {{review}}"
			},
			wantErr: "must not be referenced by its own templates",
		},
		{
			name: "self-reference in system template",
			mutate: func(r *model.CreateJobRequest) {
				r.Prompts[0].SystemTemplate = "You previously wrote {{\tsummary }}"
			},
			wantErr: "must not be referenced by its own templates",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			err := req.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPromptMayReferenceEarlierOutputColumn(t *testing.T) {
	req := validRequest()
	req.Prompts = append(req.Prompts, model.PromptConfig{
		UserTemplate: "Explain why {{review}} reads {{summary}}",
		OutputColumn: "explanation",
		Provider:     "openai",
		Model:        "gpt-4o-mini",
	})
	require.NoError(t, req.Validate())
}

func TestJobStatus(t *testing.T) {
	require.True(t, model.JobStatusQueued.Valid())
	require.False(t, model.JobStatus("running").Valid())

	require.True(t, model.JobStatusCompleted.Terminal())
	require.True(t, model.JobStatusStopped.Terminal())
	require.True(t, model.JobStatusFailed.Terminal())
	require.False(t, model.JobStatusPaused.Terminal())
	require.False(t, model.JobStatusProcessing.Terminal())

	var s model.JobStatus
	require.NoError(t, s.UnmarshalText([]byte(" Paused ")))
	require.Equal(t, model.JobStatusPaused, s)
	require.Error(t, s.UnmarshalText([]byte("bogus")))
}
