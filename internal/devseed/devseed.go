// Package devseed loads demo data into a development environment: a sample
// dataset artifact in the blob store plus an enqueued enrichment job pointing
// at it. Seeding is idempotent; re-runs leave existing demo jobs alone.
package devseed

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/rowmill/rowmill/internal/core"
	"github.com/rowmill/rowmill/internal/data"
	"github.com/rowmill/rowmill/internal/domain/job"
	"github.com/rowmill/rowmill/internal/domain/model"
	"github.com/rowmill/rowmill/internal/service"
)

const (
	demoTenant   = "demo"
	demoInputKey = "tenants/demo/jobs/seed/input.csv"
)

var demoCSV = strings.Join([]string{
	"product,review",
	`Thermal Mug,"Keeps coffee hot for six hours, lid leaks a little"`,
	`Desk Lamp,"Bright enough but the switch feels flimsy"`,
	`Trail Shoes,"Great grip on wet rock, sizing runs small"`,
	`Thermal Mug,"Keeps coffee hot for six hours, lid leaks a little"`,
}, "\n") + "\n"

// Services bundles the dependencies needed for development seeding.
type Services struct {
	blobs core.BlobStore
	jobs  *service.JobService
}

// NewServices constructs the seeding services from a DB handle and blob store.
func NewServices(db *sql.DB, blobs core.BlobStore) (Services, error) {
	lease, err := job.NewLeasePolicy(30 * time.Second)
	if err != nil {
		return Services{}, err
	}
	jobService := service.NewJobService(service.JobServiceOptions{
		Jobs:  data.NewJobRepo(db, data.RepoConfig{}),
		Lease: lease,
	})
	return Services{blobs: blobs, jobs: jobService}, nil
}

// Run uploads the demo dataset and enqueues the demo job.
func (s Services) Run(ctx context.Context, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	exists, err := s.blobs.Exists(ctx, demoInputKey)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.blobs.Put(ctx, demoInputKey, bytes.NewReader([]byte(demoCSV)), "text/csv"); err != nil {
			return err
		}
		logger.InfoContext(ctx, "seeded demo dataset", "key", demoInputKey)
	}

	stats, err := s.jobs.Stats(ctx, demoTenant)
	if err != nil {
		return err
	}
	if statsTotal(stats) > 0 {
		logger.InfoContext(ctx, "demo tenant already has jobs, skipping seed")
		return nil
	}

	req := &model.CreateJobRequest{
		TenantID:  demoTenant,
		Name:      "demo review enrichment",
		TotalRows: 4,
		InputKey:  demoInputKey,
		Prompts: []model.PromptConfig{
			{
				SystemTemplate: "You label customer reviews.",
				UserTemplate:   "Classify the sentiment of this review of {{product}}: {{review}}",
				OutputColumn:   "sentiment",
				Provider:       "openai",
				Model:          "gpt-4o-mini",
			},
		},
	}

	created, err := s.jobs.Enqueue(ctx, req)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "seeded demo job", "job_id", created.ID)
	return nil
}

func statsTotal(stats *model.JobStats) int {
	return stats.Queued + stats.Processing + stats.Paused +
		stats.Stopped + stats.Completed + stats.Failed
}
