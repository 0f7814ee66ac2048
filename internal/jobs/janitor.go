package jobs

import (
	"context"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
)

type ExpiredJobDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

const defaultJanitorInterval = time.Hour

// Janitor periodically removes jobs past their expiry.
type Janitor struct {
	jobs     ExpiredJobDeleter
	interval time.Duration
	now      func() time.Time
}

// NewJanitor uses an hourly sweep when interval is not positive.
func NewJanitor(jobs ExpiredJobDeleter, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = defaultJanitorInterval
	}
	return &Janitor{
		jobs:     jobs,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := jitterbug.New(j.interval, &jitterbug.Norm{Stdev: j.interval / 20, Mean: 0})
	defer ticker.Stop()

	for {
		j.Sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (j *Janitor) Interval() time.Duration {
	return j.interval
}

func (j *Janitor) Sweep(ctx context.Context) int64 {
	deleted, err := j.jobs.DeleteExpired(ctx, j.now())
	if err != nil {
		zap.S().Named("janitor").Warnw("failed to delete expired report jobs", "error", err)
		return 0
	}
	if deleted > 0 {
		zap.S().Named("janitor").Infow("deleted expired report jobs", "count", deleted)
	}
	return deleted
}
