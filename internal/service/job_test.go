package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/rowmill/rowmill/internal/data"
	domainjob "github.com/rowmill/rowmill/internal/domain/job"
	"github.com/rowmill/rowmill/internal/domain/model"
	apperrors "github.com/rowmill/rowmill/internal/errors"
	"github.com/rowmill/rowmill/internal/mocks"
	"github.com/rowmill/rowmill/internal/service"
	"github.com/rowmill/rowmill/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newJobService(t *testing.T) (*service.JobService, *mocks.MockJobRepository) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	repo := mocks.NewMockJobRepository(ctrl)
	lease, err := domainjob.NewLeasePolicy(30 * time.Second)
	require.NoError(t, err)
	return service.NewJobService(service.JobServiceOptions{
		Jobs:  repo,
		Lease: lease,
	}), repo
}

func TestEnqueueValidatesRequest(t *testing.T) {
	svc, _ := newJobService(t)

	req := testutil.NewJobRequest().WithTotalRows(0).Build()
	_, err := svc.Enqueue(context.Background(), req)
	requireAppError(t, err, apperrors.ErrCodeValidation)
}

func TestEnqueuePersistsValidRequest(t *testing.T) {
	svc, repo := newJobService(t)

	req := testutil.NewJobRequest().Build()
	repo.EXPECT().Create(gomock.Any(), req).
		Return(&model.Job{ID: "job-1", TenantID: req.TenantID, Status: model.JobStatusQueued, TotalRows: req.TotalRows}, nil)

	created, err := svc.Enqueue(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "job-1", created.ID)
	require.Equal(t, model.JobStatusQueued, created.Status)
}

func TestEnqueueMapsDuplicateToConflict(t *testing.T) {
	svc, repo := newJobService(t)

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, data.ErrJobExists)
	_, err := svc.Enqueue(context.Background(), testutil.NewJobRequest().Build())
	requireAppError(t, err, apperrors.ErrCodeConflict)
}

func TestGetMapsMissingToNotFound(t *testing.T) {
	svc, repo := newJobService(t)

	repo.EXPECT().GetByID(gomock.Any(), "nope").Return(nil, data.ErrJobNotFound)
	_, err := svc.Get(context.Background(), "nope")
	requireAppError(t, err, apperrors.ErrCodeNotFound)
}

func TestClaimResolvesLease(t *testing.T) {
	svc, repo := newJobService(t)

	repo.EXPECT().ClaimNext(gomock.Any(), 45).
		Return(&model.Job{ID: "job-1", Status: model.JobStatusProcessing}, nil)

	claimed, decision, err := svc.Claim(context.Background(), 45*time.Second)
	require.NoError(t, err)
	require.Equal(t, "job-1", claimed.ID)
	require.Equal(t, 45, decision.Seconds)
	require.Equal(t, domainjob.LeaseSourceExplicit, decision.Source)
}

func TestClaimDefaultsLease(t *testing.T) {
	svc, repo := newJobService(t)

	repo.EXPECT().ClaimNext(gomock.Any(), 30).Return(nil, model.ErrNoJobsAvailable)
	_, decision, err := svc.Claim(context.Background(), 0)
	require.ErrorIs(t, err, model.ErrNoJobsAvailable)
	require.Equal(t, domainjob.LeaseSourceDefault, decision.Source)
}

func TestControlCommandsMapGuardFailureToConflict(t *testing.T) {
	tests := []struct {
		name   string
		expect func(repo *mocks.MockJobRepository)
		call   func(svc *service.JobService) error
	}{
		{
			name: "pause a job that is not processing",
			expect: func(repo *mocks.MockJobRepository) {
				repo.EXPECT().RequestPause(gomock.Any(), "job-1").Return(false, nil)
			},
			call: func(svc *service.JobService) error { return svc.Pause(context.Background(), "job-1") },
		},
		{
			name: "resume a job that is not paused",
			expect: func(repo *mocks.MockJobRepository) {
				repo.EXPECT().Resume(gomock.Any(), "job-1").Return(false, nil)
			},
			call: func(svc *service.JobService) error { return svc.Resume(context.Background(), "job-1") },
		},
		{
			name: "stop a job that is already terminal",
			expect: func(repo *mocks.MockJobRepository) {
				repo.EXPECT().RequestStop(gomock.Any(), "job-1").Return(false, nil)
			},
			call: func(svc *service.JobService) error { return svc.Stop(context.Background(), "job-1") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newJobService(t)
			tt.expect(repo)
			requireAppError(t, tt.call(svc), apperrors.ErrCodeConflict)
		})
	}
}

func TestControlCommandsSucceedWhenGuardApplies(t *testing.T) {
	svc, repo := newJobService(t)

	repo.EXPECT().RequestPause(gomock.Any(), "job-1").Return(true, nil)
	require.NoError(t, svc.Pause(context.Background(), "job-1"))

	repo.EXPECT().Resume(gomock.Any(), "job-1").Return(true, nil)
	require.NoError(t, svc.Resume(context.Background(), "job-1"))

	repo.EXPECT().RequestStop(gomock.Any(), "job-1").Return(true, nil)
	require.NoError(t, svc.Stop(context.Background(), "job-1"))
}

func TestHeartbeatUsesDefaultLease(t *testing.T) {
	svc, repo := newJobService(t)

	repo.EXPECT().Heartbeat(gomock.Any(), "job-1", 30).Return(true, nil)
	alive, err := svc.Heartbeat(context.Background(), "job-1")
	require.NoError(t, err)
	require.True(t, alive)
}

func requireAppError(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, code, appErr.Code)
}
