package jobs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"go.uber.org/zap"
)

const (
	ReportQueue   = "reports"
	ReportJobKind = "report_generate"
	MaxJobRetries = 1

	// The row carries the caller credential in plaintext for the whole run;
	// finished rows are removed quickly.
	finishedJobRetention = time.Minute
)

type ReportArgs struct {
	JobID      string `json:"job_id"`
	Credential string `json:"credential"`
}

func (ReportArgs) Kind() string {
	return ReportJobKind
}

func (ReportArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       ReportQueue,
		MaxAttempts: MaxJobRetries,
	}
}

type ReportWorker struct {
	river.WorkerDefaults[ReportArgs]
	runner  Runner
	timeout time.Duration
}

// NewReportWorker returns a worker whose river timeout is the report budget
// plus the time allowed for webhook delivery.
func NewReportWorker(runner Runner, timeout time.Duration) *ReportWorker {
	return &ReportWorker{runner: runner, timeout: timeout}
}

func (w *ReportWorker) Timeout(job *river.Job[ReportArgs]) time.Duration {
	return w.timeout
}

func (w *ReportWorker) Work(ctx context.Context, job *river.Job[ReportArgs]) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.runner.Run(ctx, job.Args.JobID, job.Args.Credential)
}

// RiverDispatcher queues jobs in postgres so any API replica can run them.
type RiverDispatcher struct {
	client *river.Client[pgx.Tx]
}

func NewRiverDispatcher(pool *pgxpool.Pool, worker *ReportWorker, maxWorkers int) (*RiverDispatcher, error) {
	workers := river.NewWorkers()
	river.AddWorker(workers, worker)

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			ReportQueue: {MaxWorkers: maxWorkers},
		},
		Workers: workers,

		FetchCooldown:     50 * time.Millisecond,
		FetchPollInterval: 100 * time.Millisecond,

		CancelledJobRetentionPeriod: finishedJobRetention,
		CompletedJobRetentionPeriod: finishedJobRetention,
		DiscardedJobRetentionPeriod: finishedJobRetention,
	})
	if err != nil {
		return nil, err
	}
	return &RiverDispatcher{client: client}, nil
}

func (d *RiverDispatcher) Start(ctx context.Context) error {
	if err := d.client.Start(ctx); err != nil {
		return err
	}
	zap.S().Named("dispatcher").Info("river job queue started")
	return nil
}

func (d *RiverDispatcher) Stop(ctx context.Context) error {
	return d.client.Stop(ctx)
}

func (d *RiverDispatcher) Dispatch(ctx context.Context, jobID string, credential string) error {
	_, err := d.client.Insert(ctx, ReportArgs{JobID: jobID, Credential: credential}, nil)
	return err
}
