package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rowmill/rowmill/config"
	"github.com/rowmill/rowmill/internal/adapters/enrichrunner"
	"github.com/rowmill/rowmill/internal/adapters/providerhttp"
	"github.com/rowmill/rowmill/internal/adapters/reaper"
	"github.com/rowmill/rowmill/internal/data"
	"github.com/rowmill/rowmill/internal/devseed"
	llmadapter "github.com/rowmill/rowmill/internal/llm"
	"github.com/rowmill/rowmill/internal/observability/statsd"
)

// ServiceDeps groups everything needed to build the service runners.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// Runnable is a long-running service loop.
type Runnable interface {
	Run(ctx context.Context) error
}

// Services holds the constructed runners plus shared resources to close on
// shutdown.
type Services struct {
	runners []namedRunnable
	sink    statsd.Sink
	closers []func() error
}

type namedRunnable struct {
	name string
	run  Runnable
}

// NewServices wires the enabled service runners.
func NewServices(ctx context.Context, deps *ServiceDeps) (*Services, error) {
	cfg := deps.Config
	logger := deps.Logger
	svcs := &Services{}

	sink, closeSink := buildMetricsSink(cfg.Observability.Metrics, logger)
	svcs.sink = sink
	if closeSink != nil {
		svcs.closers = append(svcs.closers, closeSink)
	}

	if cfg.IsWorkerEnabled() {
		blobs, err := data.NewS3BlobStore(ctx, data.S3Config{
			Bucket:          cfg.Blob.Bucket,
			Region:          cfg.Blob.Region,
			Endpoint:        cfg.Blob.Endpoint,
			AccessKeyID:     cfg.Blob.AccessKeyID,
			SecretAccessKey: cfg.Blob.SecretAccessKey,
			ForcePathStyle:  cfg.Blob.ForcePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("build blob store: %w", err)
		}

		client := providerhttp.New(providerhttp.Config{
			BaseURL: cfg.Engine.GatewayURL,
			APIKey:  cfg.Engine.GatewayAPIKey,
			Timeout: cfg.Engine.GatewayTimeout,
		})

		if cfg.IsDev {
			seeder, seedErr := devseed.NewServices(deps.DB, blobs)
			if seedErr == nil {
				seedErr = seeder.Run(ctx, logger)
			}
			if seedErr != nil {
				logger.WarnContext(ctx, "dev seed failed", "error", seedErr)
			}
		}

		runner, err := enrichrunner.NewRunner(enrichrunner.RunnerOptions{
			DB:                   deps.DB,
			RedisClient:          deps.RedisClient,
			Blobs:                blobs,
			Client:               client,
			Logger:               logger,
			Lease:                cfg.Engine.Lease,
			Concurrency:          cfg.Engine.Concurrency,
			DedupSecret:          cfg.Engine.DedupSecret,
			TenantAdmissionLimit: cfg.Engine.TenantAdmissionLimit,
			Retry: llmadapter.RetryConfig{
				MaxAttempts:   cfg.Engine.RetryMaxAttempts,
				BaseDelay:     cfg.Engine.RetryBaseDelay,
				MaxDelay:      cfg.Engine.RetryMaxDelay,
				ProviderRPS:   cfg.Engine.ProviderRPS,
				ProviderBurst: cfg.Engine.ProviderBurst,
			},
			Metrics: sink,
		})
		if err != nil {
			return nil, fmt.Errorf("build enrich runner: %w", err)
		}
		svcs.runners = append(svcs.runners, namedRunnable{name: "worker", run: runner})
	}

	if cfg.IsReaperEnabled() {
		runner, err := reaper.NewRunner(reaper.RunnerOptions{
			DB:      deps.DB,
			Config:  cfg.Reaper,
			Logger:  logger,
			Metrics: sink,
		})
		if err != nil {
			return nil, fmt.Errorf("build reaper runner: %w", err)
		}
		svcs.runners = append(svcs.runners, namedRunnable{name: "reaper", run: runner})
	}

	if len(svcs.runners) == 0 {
		return nil, errors.New("no services enabled")
	}
	return svcs, nil
}

// Run starts every enabled runner and blocks until the first failure or a
// shutdown signal.
func (s *Services) Run(ctx context.Context, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	for _, r := range s.runners {
		group.Go(func() error {
			logger.InfoContext(gctx, "service starting", "service", r.name)
			err := r.run.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", r.name, err)
			}
			logger.InfoContext(gctx, "service stopped", "service", r.name)
			return nil
		})
	}

	err := group.Wait()
	s.close(logger)
	return err
}

func (s *Services) close(logger *slog.Logger) {
	for _, fn := range s.closers {
		if err := fn(); err != nil {
			logger.Error("close resource", "err", err)
		}
	}
}

// buildMetricsSink returns a statsd sink when metrics are enabled, else nil.
func buildMetricsSink(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) (statsd.Sink, func() error) {
	if !cfg.IsEnabled() {
		return nil, nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  "rowmill",
		Logger:  logger,
	})
	if err != nil {
		logger.Warn("statsd disabled", "err", err)
		return nil, nil
	}
	return client, client.Close
}
