package jobs

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const defaultQueueFactor = 16

type task struct {
	jobID      string
	credential string
}

// LocalDispatcher runs jobs on a fixed pool of goroutines inside the API
// process. Queued jobs are lost on restart and expire through the janitor.
type LocalDispatcher struct {
	runner  Runner
	workers int
	queue   chan task

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

func NewLocalDispatcher(runner Runner, workers int) *LocalDispatcher {
	if workers < 1 {
		workers = 1
	}
	return &LocalDispatcher{
		runner:  runner,
		workers: workers,
		queue:   make(chan task, workers*defaultQueueFactor),
	}
}

// Start launches the worker pool. Workers exit when Stop is called; ctx is
// the parent of every job run.
func (d *LocalDispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(ctx)
	}
	zap.S().Named("dispatcher").Infow("local dispatcher started", "workers", d.workers)
}

func (d *LocalDispatcher) Dispatch(_ context.Context, jobID string, credential string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	select {
	case d.queue <- task{jobID: jobID, credential: credential}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new jobs and waits for queued and running ones to finish.
func (d *LocalDispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	zap.S().Named("dispatcher").Info("local dispatcher stopped")
}

func (d *LocalDispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for t := range d.queue {
		d.run(ctx, t)
	}
}

func (d *LocalDispatcher) run(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			zap.S().Named("dispatcher").Errorw("report job panicked", "job_id", t.jobID, "panic", r)
		}
	}()
	if err := d.runner.Run(context.WithoutCancel(ctx), t.jobID, t.credential); err != nil {
		zap.S().Named("dispatcher").Errorw("report job run failed", "job_id", t.jobID, "error", err)
	}
}
