package service_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/rowmill/rowmill/internal/domain/model"
	"github.com/rowmill/rowmill/internal/mocks"
	"github.com/rowmill/rowmill/internal/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func sampleJob() *model.Job {
	return &model.Job{
		ID:        "job-1",
		TenantID:  "tenant-1",
		TotalRows: 2,
		InputKey:  "tenants/tenant-1/jobs/job-1/input.csv",
		Prompts: []model.PromptConfig{
			{UserTemplate: "Summarize: {{review}}", OutputColumn: "summary", Provider: "openai", Model: "gpt-4o-mini"},
		},
	}
}

func blobBody(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}

func TestLoadWorkingSetFromInput(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	blobs := mocks.NewMockBlobStore(ctrl)

	job := sampleJob()
	blobs.EXPECT().Exists(gomock.Any(), service.PartialKey("tenant-1", "job-1")).Return(false, nil)
	blobs.EXPECT().Get(gomock.Any(), job.InputKey).
		Return(blobBody("product,review\nMug,leaks a bit\nLamp,too dim\n"), nil)

	ws, err := service.LoadWorkingSet(context.Background(), blobs, job)
	require.NoError(t, err)

	require.Equal(t, []string{"product", "review", "summary"}, ws.Columns)
	require.Len(t, ws.Rows, 2)
	require.Equal(t, "leaks a bit", ws.Value(0, "review"))
	require.Equal(t, "", ws.Value(0, "summary"), "output cells pre-initialize empty")
}

func TestLoadWorkingSetPrefersPartialArtifact(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	blobs := mocks.NewMockBlobStore(ctrl)

	job := sampleJob()
	partial := service.PartialKey("tenant-1", "job-1")
	blobs.EXPECT().Exists(gomock.Any(), partial).Return(true, nil)
	blobs.EXPECT().Get(gomock.Any(), partial).
		Return(blobBody("product,review,summary\nMug,leaks a bit,short-lived seal\nLamp,too dim,\n"), nil)

	ws, err := service.LoadWorkingSet(context.Background(), blobs, job)
	require.NoError(t, err)

	require.Equal(t, "short-lived seal", ws.Value(0, "summary"), "cells written before the pause survive")
	require.Equal(t, "", ws.Value(1, "summary"))
}

func TestLoadWorkingSetPropagatesReadFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	blobs := mocks.NewMockBlobStore(ctrl)

	job := sampleJob()
	blobs.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, nil)
	blobs.EXPECT().Get(gomock.Any(), job.InputKey).Return(nil, io.ErrUnexpectedEOF)

	_, err := service.LoadWorkingSet(context.Background(), blobs, job)
	require.Error(t, err)
	require.Contains(t, err.Error(), job.InputKey)
}

func TestWorkingSetHandlesRaggedRows(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	blobs := mocks.NewMockBlobStore(ctrl)

	job := sampleJob()
	blobs.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, nil)
	blobs.EXPECT().Get(gomock.Any(), job.InputKey).
		Return(blobBody("product,review\nMug\n"), nil)

	ws, err := service.LoadWorkingSet(context.Background(), blobs, job)
	require.NoError(t, err)
	require.Equal(t, "", ws.Value(0, "review"), "short records pad with empty cells")
}

func TestRenderCSVRoundTripsWithStableColumnOrder(t *testing.T) {
	ws := &service.WorkingSet{
		Columns: []string{"product", "review", "summary"},
		Rows: []map[string]string{
			{"product": "Mug", "review": "leaks, a bit", "summary": "positive"},
			{"product": "Lamp", "review": "too dim", "summary": ""},
		},
	}

	out, err := ws.RenderCSV()
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Equal(t, "product,review,summary", lines[0])
	require.Equal(t, `Mug,"leaks, a bit",positive`, lines[1])
	require.Equal(t, "Lamp,too dim,", lines[2])
}

func TestWorkingSetValueBounds(t *testing.T) {
	ws := &service.WorkingSet{Columns: []string{"a"}, Rows: []map[string]string{{"a": "x"}}}
	require.Equal(t, "", ws.Value(-1, "a"))
	require.Equal(t, "", ws.Value(5, "a"))
	ws.SetValue(5, "a", "ignored")
	require.Equal(t, "x", ws.Value(0, "a"))
}
