package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cortap/cortap-rpt/internal/client"
	"github.com/cortap/cortap-rpt/internal/review"
	"github.com/cortap/cortap-rpt/internal/service/report/types"
	"github.com/cortap/cortap-rpt/internal/storage"
	"github.com/cortap/cortap-rpt/internal/store"
	"github.com/cortap/cortap-rpt/internal/store/model"
	"github.com/cortap/cortap-rpt/internal/webhook"
	"github.com/cortap/cortap-rpt/pkg/log"
	"github.com/cortap/cortap-rpt/pkg/metrics"
	"github.com/cortap/cortap-rpt/pkg/requestid"
)

const (
	defaultTimeout         = 5 * time.Minute
	defaultDownloadTTL     = 24 * time.Hour
	defaultFinalizeTimeout = 10 * time.Second
)

type Fetcher interface {
	FetchProjectControls(ctx context.Context, projectID int64, credential string) (*client.ProjectControls, error)
}

type Consolidator interface {
	Consolidate(controls []review.Control) (*review.Consolidation, error)
}

type Renderer interface {
	Render(ctx context.Context, data *types.ReportData) (*types.Document, error)
}

type Notifier interface {
	Notify(ctx context.Context, job model.ReportJob) webhook.DeliveryOutcome
}

type Options struct {
	// Timeout bounds fetch, consolidate, render and store together.
	Timeout time.Duration
	// DownloadTTL is the lifetime of the signed document URL.
	DownloadTTL time.Duration
	// FailOnUnmatched turns any unmatched control into a TRANSFORM_ERROR.
	FailOnUnmatched bool
	// FinalizeTimeout bounds the terminal store write.
	FinalizeTimeout time.Duration
}

type Orchestrator struct {
	jobs         store.Job
	fetcher      Fetcher
	consolidator Consolidator
	renderer     Renderer
	blob         storage.Blob
	notifier     Notifier
	opts         Options
	now          func() time.Time
}

func NewOrchestrator(jobs store.Job, fetcher Fetcher, consolidator Consolidator, renderer Renderer, blob storage.Blob, notifier Notifier, opts Options) *Orchestrator {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.DownloadTTL <= 0 {
		opts.DownloadTTL = defaultDownloadTTL
	}
	if opts.FinalizeTimeout <= 0 {
		opts.FinalizeTimeout = defaultFinalizeTimeout
	}
	return &Orchestrator{
		jobs:         jobs,
		fetcher:      fetcher,
		consolidator: consolidator,
		renderer:     renderer,
		blob:         blob,
		notifier:     notifier,
		opts:         opts,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

type storedReport struct {
	downloadURL string
	expiresAt   time.Time
	documentKey string
	dataKey     string
	size        int64
}

// Run drives one job to a terminal state. Phase failures are recorded on the
// job and never returned; an error means the job record itself could not be
// read or written.
func (o *Orchestrator) Run(ctx context.Context, jobID string, credential string) error {
	if requestid.FromContext(ctx) == "" {
		ctx = requestid.ToContext(ctx, jobID)
	}
	tracer := log.NewInfoLogger("pipeline").
		WithContext(ctx).
		Operation("run_report_job").
		WithString("job_id", jobID).
		Build()

	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			tracer.Warn("job not found").Log()
			return nil
		}
		tracer.Error(err).Log()
		return err
	}
	if job.Status != model.JobStatusProcessing {
		tracer.Step("already_terminal").WithString("status", string(job.Status)).Log()
		return nil
	}

	started := o.now()
	deadline, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	o.progress(deadline, jobID, PhaseFetch)
	fetched := runPhase(deadline, PhaseFetch, model.ErrorCodeDataFetch, o.opts.Timeout, func(ctx context.Context) (*client.ProjectControls, error) {
		return o.fetcher.FetchProjectControls(ctx, job.ProjectID, credential)
	})
	if !fetched.ok() {
		return o.fail(ctx, job, fetched.err)
	}
	tracer.Step(PhaseFetch).WithInt("controls", len(fetched.value.Controls)).Log()

	o.progress(deadline, jobID, PhaseConsolidate)
	consolidated := runPhase(deadline, PhaseConsolidate, model.ErrorCodeTransform, o.opts.Timeout, func(ctx context.Context) (*review.Consolidation, error) {
		return o.consolidate(ctx, fetched.value.Controls)
	})
	if !consolidated.ok() {
		return o.fail(ctx, job, consolidated.err)
	}
	tracer.Step(PhaseConsolidate).
		WithInt("unmatched", consolidated.value.UnmatchedControls).
		WithInt("deficiencies", consolidated.value.Summary().DeficiencyCount).
		Log()

	data := &types.ReportData{
		JobID:         job.ID,
		Type:          job.ReportType,
		Project:       types.Project{ID: job.ProjectID, Name: fetched.value.Project.Name},
		Consolidation: consolidated.value,
		Timestamps:    types.NewReportTimestamps(started),
	}

	o.progress(deadline, jobID, PhaseRender)
	rendered := runPhase(deadline, PhaseRender, model.ErrorCodeRender, o.opts.Timeout, func(ctx context.Context) (*types.Document, error) {
		doc, err := o.renderer.Render(ctx, data)
		if err != nil {
			return nil, err
		}
		if doc == nil || len(doc.Content) == 0 {
			return nil, errors.New("renderer produced an empty document")
		}
		return doc, nil
	})
	if !rendered.ok() {
		return o.fail(ctx, job, rendered.err)
	}

	o.progress(deadline, jobID, PhaseStore)
	stored := runPhase(deadline, PhaseStore, model.ErrorCodeUpload, o.opts.Timeout, func(ctx context.Context) (*storedReport, error) {
		return o.store(ctx, job, data, rendered.value, started)
	})
	if !stored.ok() {
		return o.fail(ctx, job, stored.err)
	}

	summary := consolidated.value.Summary()
	result := model.JobResult{
		DownloadURL: stored.value.downloadURL,
		ExpiresAt:   stored.value.expiresAt,
		FileSize:    stored.value.size,
		DocumentKey: stored.value.documentKey,
		DataKey:     stored.value.dataKey,
		Metadata:    model.ResultMetadata{
			RecipientName:     data.Project.Name,
			ReviewAreas:       summary.ReviewAreaCount,
			DeficiencyCount:   summary.DeficiencyCount,
			DeficiencyAreas:   summary.DeficientAreas,
			TotalControls:     consolidated.value.TotalControls,
			UnmatchedControls: consolidated.value.UnmatchedControls,
			GenerationTimeMs:  o.now().Sub(started).Milliseconds(),
			Format:            string(rendered.value.Format),
		},
	}
	return o.finish(ctx, job, model.Completed(result, o.now()))
}

func (o *Orchestrator) consolidate(ctx context.Context, controls []review.Control) (*review.Consolidation, error) {
	c, err := o.consolidator.Consolidate(controls)
	if err != nil {
		return nil, err
	}
	metrics.AddUnmatchedControls(c.UnmatchedControls)
	if c.UnmatchedControls > 0 {
		log.NewDebugLogger("pipeline").
			WithContext(ctx).
			Operation("consolidate").
			Build().
			Warn("controls without a review area").
			WithInt("count", c.UnmatchedControls).
			WithParam("names", c.UnmatchedNames).
			Log()
		if o.opts.FailOnUnmatched {
			return nil, fmt.Errorf("%d controls could not be mapped to a review area", c.UnmatchedControls)
		}
	}
	return c, nil
}

func (o *Orchestrator) store(ctx context.Context, job *model.ReportJob, data *types.ReportData, doc *types.Document, at time.Time) (*storedReport, error) {
	docKey := storage.DocumentKey(job.ProjectID, job.ReportType, at, job.ID, doc.Format.Extension())
	if err := o.blob.Put(ctx, docKey, doc.Content, doc.ContentType); err != nil {
		return nil, err
	}

	artifact, err := json.Marshal(dataArtifact{
		JobID:       job.ID,
		ReportType:  job.ReportType,
		Project:     data.Project,
		GeneratedAt: at,
		Data:        data.Consolidation,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding data artifact: %w", err)
	}
	dataKey := storage.DataKey(job.ProjectID, at, job.ID)
	if err := o.blob.Put(ctx, dataKey, artifact, "application/json"); err != nil {
		return nil, err
	}

	url, err := o.blob.SignedReadURL(ctx, docKey, o.opts.DownloadTTL)
	if err != nil {
		return nil, err
	}

	return &storedReport{
		downloadURL: url,
		expiresAt:   o.now().Add(o.opts.DownloadTTL),
		documentKey: docKey,
		dataKey:     dataKey,
		size:        doc.Size(),
	}, nil
}

type dataArtifact struct {
	JobID       string                `json:"job_id"`
	ReportType  model.ReportType      `json:"report_type"`
	Project     types.Project         `json:"project"`
	GeneratedAt time.Time             `json:"generated_at"`
	Data        *review.Consolidation `json:"data"`
}

func (o *Orchestrator) fail(ctx context.Context, job *model.ReportJob, jobErr *model.JobError) error {
	return o.finish(ctx, job, model.Failed(jobErr, o.now()))
}

// finish performs the single conditional terminal write and, only when this
// call won it, sends the webhook. Both run detached from the job deadline.
func (o *Orchestrator) finish(ctx context.Context, job *model.ReportJob, state model.TerminalState) error {
	detached := context.WithoutCancel(ctx)
	tracer := log.NewInfoLogger("pipeline").
		WithContext(detached).
		Operation("finalize").
		WithString("job_id", job.ID).
		WithString("status", string(state.Status)).
		Build()

	writeCtx, cancel := context.WithTimeout(detached, o.opts.FinalizeTimeout)
	defer cancel()

	won, err := o.jobs.CompareAndSetTerminal(writeCtx, job.ID, model.JobStatusProcessing, state)
	if err != nil {
		tracer.Error(err).Log()
		return err
	}
	if !won {
		tracer.Step("terminal_state_already_written").Log()
		return nil
	}

	errorCode := ""
	if state.Error != nil {
		errorCode = string(state.Error.Code)
		tracer.Step("job_failed").WithString("error_code", errorCode).WithString("message", state.Error.Message).Log()
	}
	metrics.IncreaseReportJobsTotalMetric(string(state.Status), errorCode)

	final := *job
	final.Status = state.Status
	final.CompletedAt = &state.CompletedAt
	final.Result = nil
	final.Error = nil
	if state.Result != nil {
		final.Result = model.MakeJSONField(*state.Result)
	}
	if state.Error != nil {
		final.Error = model.MakeJSONField(*state.Error)
	}

	outcome := o.notifier.Notify(detached, final)
	tracer.Success().WithString("callback_status", outcome.Status).WithInt("callback_attempts", outcome.Attempts).Log()
	return nil
}

func (o *Orchestrator) progress(ctx context.Context, jobID, phase string) {
	if err := o.jobs.UpdateProgress(ctx, jobID, phase); err != nil {
		log.NewDebugLogger("pipeline").
			WithContext(ctx).
			Operation("progress").
			WithString("job_id", jobID).
			Build().
			Warn("failed to record progress").
			WithParam("error", err.Error()).
			Log()
	}
}
