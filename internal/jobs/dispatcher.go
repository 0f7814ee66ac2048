package jobs

import (
	"context"
	"errors"
)

var (
	ErrQueueFull         = errors.New("report job queue is full")
	ErrDispatcherStopped = errors.New("report job dispatcher is stopped")
)

// Runner executes one report job to completion.
type Runner interface {
	Run(ctx context.Context, jobID string, credential string) error
}

// Dispatcher hands a created job to a worker. It returns once the job is
// queued and never waits for it to run.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string, credential string) error
}
