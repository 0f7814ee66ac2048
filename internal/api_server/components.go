package apiserver

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/cortap/cortap-rpt/internal/client"
	"github.com/cortap/cortap-rpt/internal/config"
	"github.com/cortap/cortap-rpt/internal/pipeline"
	"github.com/cortap/cortap-rpt/internal/review"
	"github.com/cortap/cortap-rpt/internal/service"
	"github.com/cortap/cortap-rpt/internal/service/report/types"
	"github.com/cortap/cortap-rpt/internal/storage"
	"github.com/cortap/cortap-rpt/internal/store"
	"github.com/cortap/cortap-rpt/internal/webhook"
)

// NewOrchestrator assembles the report pipeline from configuration. Every
// collaborator is built once here and shared by all workers.
func NewOrchestrator(ctx context.Context, cfg *config.Config, s store.Store) (*pipeline.Orchestrator, error) {
	blob, err := NewBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	renderer, err := service.NewReportService(types.ReportFormat(cfg.Report.Format))
	if err != nil {
		return nil, err
	}

	riskuity := client.NewRiskuityClient(cfg.Riskuity.BaseUrl, cfg.Riskuity.Timeout,
		client.WithPageSize(cfg.Riskuity.PageSize),
		client.WithMaxRetries(cfg.Riskuity.MaxRetries),
	)

	consolidator := review.NewConsolidator(review.DefaultMapper(), review.DefaultAreas(), review.Rules{
		Keywords:    cfg.Report.DeficiencyKeywords,
		StatusCodes: cfg.Report.DeficientStatusCodes,
		Negations:   cfg.Report.DeficiencyNegations,
	})

	if cfg.Webhook.Secret == "" {
		return nil, fmt.Errorf("refusing to sign callbacks with an empty webhook secret")
	}
	notifier := webhook.NewNotifier(webhook.NewSigner(cfg.Webhook.Secret), s.Job(),
		webhook.WithAttemptTimeout(cfg.Webhook.AttemptTimeout),
		webhook.WithMaxAttempts(cfg.Webhook.MaxAttempts),
		webhook.WithInitialBackoff(cfg.Webhook.InitialBackoff),
	)

	return pipeline.NewOrchestrator(s.Job(), riskuity, consolidator, renderer, blob, notifier, pipeline.Options{
		Timeout:         cfg.Report.Timeout,
		DownloadTTL:     cfg.Storage.DownloadTTL,
		FailOnUnmatched: cfg.Report.UnmatchedPolicy == config.UnmatchedPolicyFail,
	}), nil
}

func NewBlobStore(ctx context.Context, cfg *config.Config) (storage.Blob, error) {
	if cfg.Storage.Type == config.StorageMemory {
		zap.S().Named("api_server").Warn("using in-memory report storage")
		return storage.NewMemoryStore(cfg.Service.BaseUrl), nil
	}

	minioStore, err := storage.NewMinioStore(
		storage.WithEndpoint(cfg.Storage.Endpoint),
		storage.WithBucket(cfg.Storage.Bucket),
		storage.WithRegion(cfg.Storage.Region),
		storage.WithCredentials(cfg.Storage.AccessKey, cfg.Storage.SecretKey),
		storage.WithSSL(cfg.Storage.UseSSL),
	)
	if err != nil {
		return nil, err
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return minioStore, nil
}

func NewPgxPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(store.PostgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgx config: %w", err)
	}

	// river keeps one connection for LISTEN
	poolCfg.MaxConns = int32(cfg.Service.Workers) + 4
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// WebhookBudget is the longest a single delivery can take: every attempt
// timing out plus the exponential waits between them.
func WebhookBudget(cfg *config.Config) time.Duration {
	budget := time.Duration(cfg.Webhook.MaxAttempts) * cfg.Webhook.AttemptTimeout
	wait := cfg.Webhook.InitialBackoff
	for i := 1; i < cfg.Webhook.MaxAttempts; i++ {
		budget += wait
		wait *= 2
	}
	return budget
}
