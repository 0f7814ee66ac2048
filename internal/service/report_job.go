package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cortap/cortap-rpt/internal/jobs"
	"github.com/cortap/cortap-rpt/internal/store"
	"github.com/cortap/cortap-rpt/internal/store/model"
	"github.com/cortap/cortap-rpt/pkg/log"
	"github.com/cortap/cortap-rpt/pkg/metrics"
)

const defaultJobRetention = 7 * 24 * time.Hour

type CreateReportJobRequest struct {
	ProjectID   int64
	ReportType  model.ReportType
	CallbackURL string
	RequestedBy string
	Credential  string
}

type ReportJobService struct {
	store      store.Store
	dispatcher jobs.Dispatcher
	retention  time.Duration
	now        func() time.Time
	logger     *log.StructuredLogger
}

func NewReportJobService(store store.Store, dispatcher jobs.Dispatcher, retention time.Duration) *ReportJobService {
	if retention <= 0 {
		retention = defaultJobRetention
	}
	return &ReportJobService{
		store:      store,
		dispatcher: dispatcher,
		retention:  retention,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     log.NewDebugLogger("report_job_service"),
	}
}

// CreateReportJob records a processing job and hands it to the dispatcher.
// It returns as soon as the job is queued.
func (s *ReportJobService) CreateReportJob(ctx context.Context, req CreateReportJobRequest) (*model.ReportJob, error) {
	tracer := s.logger.WithContext(ctx).
		Operation("create_report_job").
		WithInt64("project_id", req.ProjectID).
		WithString("report_type", string(req.ReportType)).
		WithString("requested_by", req.RequestedBy).
		Build()

	if err := validateCreateRequest(req); err != nil {
		tracer.Error(err).Log()
		return nil, err
	}

	now := s.now()
	job, err := s.store.Job().Create(ctx, model.ReportJob{
		ID:          NewJobID(now),
		Status:      model.JobStatusProcessing,
		ProjectID:   req.ProjectID,
		ReportType:  req.ReportType,
		CallbackURL: req.CallbackURL,
		RequestedBy: req.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.retention),
	})
	if err != nil {
		tracer.Error(err).Log()
		return nil, err
	}
	tracer.Step("job_created").WithString("job_id", job.ID).Log()

	if err := s.dispatcher.Dispatch(ctx, job.ID, req.Credential); err != nil {
		tracer.Error(err).WithString("job_id", job.ID).Log()
		s.failDispatch(ctx, job.ID, err)
		return nil, NewErrDispatchFailed(job.ID, err)
	}

	tracer.Success().WithString("job_id", job.ID).Log()
	return job, nil
}

func (s *ReportJobService) failDispatch(ctx context.Context, jobID string, cause error) {
	jobErr := model.NewJobError(model.ErrorCodeDispatch, "failed to schedule report generation")
	jobErr.Details = map[string]any{"reason": cause.Error()}

	won, err := s.store.Job().CompareAndSetTerminal(context.WithoutCancel(ctx), jobID, model.JobStatusProcessing, model.Failed(jobErr, s.now()))
	if err != nil {
		s.logger.WithContext(ctx).Operation("fail_dispatch").WithString("job_id", jobID).Build().Error(err).Log()
		return
	}
	if won {
		metrics.IncreaseReportJobsTotalMetric(string(model.JobStatusFailed), string(model.ErrorCodeDispatch))
	}
}

// GetReportJob returns the job if requester created it.
func (s *ReportJobService) GetReportJob(ctx context.Context, id string, requester string) (*model.ReportJob, error) {
	tracer := s.logger.WithContext(ctx).
		Operation("get_report_job").
		WithString("job_id", id).
		Build()

	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			tracer.Step("job_not_found").Log()
			return nil, NewErrReportJobNotFound(id)
		}
		tracer.Error(err).Log()
		return nil, err
	}

	if job.RequestedBy != requester {
		tracer.Step("requester_mismatch").WithString("requester", requester).Log()
		return nil, NewErrReportJobForbidden(id)
	}

	tracer.Success().WithString("status", string(job.Status)).Log()
	return job, nil
}

// NewJobID returns an id of the form rpt-YYYYMMDD-HHMMSS-<12 hex>.
func NewJobID(at time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "rpt-" + at.UTC().Format("20060102-150405") + "-" + random[:12]
}

func validateCreateRequest(req CreateReportJobRequest) error {
	if req.ProjectID <= 0 {
		return NewErrInvalidRequest("project_id must be a positive integer")
	}
	if !req.ReportType.Valid() {
		return NewErrInvalidReportType(string(req.ReportType))
	}
	if req.RequestedBy == "" {
		return NewErrInvalidRequest("requester identity is missing")
	}
	if req.CallbackURL != "" {
		u, err := url.Parse(req.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return NewErrInvalidRequest("callback_url must be an absolute http or https URL")
		}
	}
	return nil
}
