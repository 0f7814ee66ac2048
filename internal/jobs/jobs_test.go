package jobs_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cortap/cortap-rpt/internal/jobs"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/riverqueue/river"
)

type fakeRunner struct {
	mu      sync.Mutex
	runs    map[string]string
	release chan struct{}
	panic   bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{runs: map[string]string{}}
}

func (r *fakeRunner) Run(_ context.Context, jobID string, credential string) error {
	if r.release != nil {
		<-r.release
	}
	if r.panic {
		panic("boom")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[jobID] = credential
	return nil
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

type fakeDeleter struct {
	calls int
	err   error
}

func (d *fakeDeleter) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	d.calls++
	if d.err != nil {
		return 0, d.err
	}
	return 3, nil
}

var _ = Describe("local dispatcher", func() {
	It("runs dispatched jobs with their credential", func() {
		runner := newFakeRunner()
		d := jobs.NewLocalDispatcher(runner, 2)
		d.Start(context.TODO())

		Expect(d.Dispatch(context.TODO(), "rpt-1", "token-1")).To(Succeed())
		Expect(d.Dispatch(context.TODO(), "rpt-2", "token-2")).To(Succeed())
		d.Stop()

		Expect(runner.runs).To(Equal(map[string]string{"rpt-1": "token-1", "rpt-2": "token-2"}))
	})

	It("rejects jobs when the queue is full", func() {
		runner := newFakeRunner()
		runner.release = make(chan struct{})
		d := jobs.NewLocalDispatcher(runner, 1)
		d.Start(context.TODO())

		var err error
		for i := 0; i < 100 && err == nil; i++ {
			err = d.Dispatch(context.TODO(), "rpt", "token")
		}
		Expect(err).To(MatchError(jobs.ErrQueueFull))

		close(runner.release)
		d.Stop()
	})

	It("rejects jobs after stop", func() {
		d := jobs.NewLocalDispatcher(newFakeRunner(), 1)
		d.Start(context.TODO())
		d.Stop()

		Expect(d.Dispatch(context.TODO(), "rpt-1", "token")).To(MatchError(jobs.ErrDispatcherStopped))
	})

	It("keeps working after a job panics", func() {
		runner := newFakeRunner()
		runner.panic = true
		d := jobs.NewLocalDispatcher(runner, 1)
		d.Start(context.TODO())

		Expect(d.Dispatch(context.TODO(), "rpt-1", "token")).To(Succeed())
		Expect(d.Dispatch(context.TODO(), "rpt-2", "token")).To(Succeed())
		d.Stop()

		Expect(runner.count()).To(BeZero())
	})
})

var _ = Describe("river worker", func() {
	It("queues report jobs once on the reports queue", func() {
		args := jobs.ReportArgs{JobID: "rpt-1", Credential: "token"}
		Expect(args.Kind()).To(Equal("report_generate"))
		Expect(args.InsertOpts().Queue).To(Equal(jobs.ReportQueue))
		Expect(args.InsertOpts().MaxAttempts).To(Equal(1))
	})

	It("runs the job with the queued arguments", func() {
		runner := newFakeRunner()
		w := jobs.NewReportWorker(runner, 6*time.Minute)

		job := &river.Job[jobs.ReportArgs]{Args: jobs.ReportArgs{JobID: "rpt-1", Credential: "token"}}
		Expect(w.Timeout(job)).To(Equal(6 * time.Minute))
		Expect(w.Work(context.TODO(), job)).To(Succeed())
		Expect(runner.runs).To(HaveKeyWithValue("rpt-1", "token"))
	})

	It("does not start a cancelled job", func() {
		runner := newFakeRunner()
		w := jobs.NewReportWorker(runner, time.Minute)

		ctx, cancel := context.WithCancel(context.TODO())
		cancel()
		job := &river.Job[jobs.ReportArgs]{Args: jobs.ReportArgs{JobID: "rpt-1"}}
		Expect(w.Work(ctx, job)).To(MatchError(context.Canceled))
		Expect(runner.count()).To(BeZero())
	})
})

var _ = Describe("janitor", func() {
	It("reports the number of deleted jobs", func() {
		deleter := &fakeDeleter{}
		Expect(jobs.NewJanitor(deleter, time.Hour).Sweep(context.TODO())).To(Equal(int64(3)))
	})

	It("falls back to an hourly sweep for a non-positive interval", func() {
		Expect(jobs.NewJanitor(&fakeDeleter{}, 0).Interval()).To(Equal(time.Hour))
		Expect(jobs.NewJanitor(&fakeDeleter{}, -time.Second).Interval()).To(Equal(time.Hour))
		Expect(jobs.NewJanitor(&fakeDeleter{}, time.Minute).Interval()).To(Equal(time.Minute))
	})

	It("swallows store errors", func() {
		deleter := &fakeDeleter{err: errors.New("db down")}
		Expect(jobs.NewJanitor(deleter, time.Hour).Sweep(context.TODO())).To(BeZero())
	})

	It("sweeps on start and stops with the context", func() {
		deleter := &fakeDeleter{}
		ctx, cancel := context.WithCancel(context.TODO())
		done := make(chan struct{})
		go func() {
			defer close(done)
			jobs.NewJanitor(deleter, time.Hour).Run(ctx)
		}()

		Eventually(func() bool {
			select {
			case <-done:
				return true
			default:
				cancel()
				return false
			}
		}).Should(BeTrue())
		Expect(deleter.calls).To(Equal(1))
	})
})
