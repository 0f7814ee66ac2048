package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cortap/cortap-rpt/internal/store/model"
	"github.com/cortap/cortap-rpt/pkg/metrics"
)

const (
	PhaseFetch       = "fetch"
	PhaseConsolidate = "consolidate"
	PhaseRender      = "render"
	PhaseStore       = "store"
	PhaseFinalize    = "finalize"
)

var phaseMessages = map[string]string{
	PhaseFetch:       "failed to fetch project assessment data",
	PhaseConsolidate: "failed to consolidate assessment data",
	PhaseRender:      "failed to render report document",
	PhaseStore:       "failed to store report document",
}

// phaseResult carries either the phase output or the job error it failed with.
type phaseResult[T any] struct {
	value T
	err   *model.JobError
}

func (r phaseResult[T]) ok() bool {
	return r.err == nil
}

func succeeded[T any](v T) phaseResult[T] {
	return phaseResult[T]{value: v}
}

func failed[T any](phase string, code model.ErrorCode, cause error) phaseResult[T] {
	return phaseResult[T]{err: &model.JobError{
		Code:    code,
		Message: fmt.Sprintf("%s: %v", phaseMessages[phase], cause),
		Details: map[string]any{"phase": phase},
	}}
}

func timedOut[T any](phase string, budget time.Duration) phaseResult[T] {
	return phaseResult[T]{err: &model.JobError{
		Code:    model.ErrorCodeTimeout,
		Message: fmt.Sprintf("report generation exceeded %s during %s", budget, phase),
		Details: map[string]any{"phase": phase},
	}}
}

// runPhase runs fn in its own goroutine and races it against ctx. When ctx
// expires first the phase is abandoned and a TIMEOUT result is returned; the
// goroutine observes the cancelled context and exits on its own. A panic in fn
// is reported with the phase error code.
func runPhase[T any](ctx context.Context, phase string, code model.ErrorCode, budget time.Duration, fn func(context.Context) (T, error)) phaseResult[T] {
	start := time.Now()
	defer func() {
		metrics.ObservePhaseDuration(phase, time.Since(start).Seconds())
	}()

	done := make(chan phaseResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- failed[T](phase, code, fmt.Errorf("panic: %v", r))
			}
		}()

		v, err := fn(ctx)
		if err != nil {
			done <- failed[T](phase, code, err)
			return
		}
		done <- succeeded(v)
	}()

	select {
	case r := <-done:
		if !r.ok() && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return timedOut[T](phase, budget)
		}
		return r
	case <-ctx.Done():
		return timedOut[T](phase, budget)
	}
}
