package v1

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/cortap/cortap-rpt/internal/auth"
	"github.com/cortap/cortap-rpt/internal/handlers/validator"
	"github.com/cortap/cortap-rpt/internal/service"
	"github.com/cortap/cortap-rpt/internal/store/model"
	"github.com/cortap/cortap-rpt/pkg/log"
	"github.com/cortap/cortap-rpt/pkg/requestid"
)

const reportsPath = "/api/v1/reports"

type ServiceHandler struct {
	jobSrv    *service.ReportJobService
	validator *validator.Validator
	baseURL   string
}

func NewServiceHandler(jobSrv *service.ReportJobService, baseURL string) *ServiceHandler {
	v := validator.NewValidator()
	v.Register(validator.NewReportValidationRules()...)
	return &ServiceHandler{
		jobSrv:    jobSrv,
		validator: v,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
	}
}

// RegisterRoutes mounts the report API. Callers are expected to place an
// authenticator in front of router.
func (h *ServiceHandler) RegisterRoutes(router chi.Router) {
	router.Post(reportsPath, h.CreateReport)
	router.Get(reportsPath+"/{id}", h.GetReport)
}

func (h *ServiceHandler) Health(w http.ResponseWriter, r *http.Request) {
	_ = render.Render(w, r, HealthReply{Status: "healthy"})
}

func (h *ServiceHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.NewDebugLogger("report_handler").WithContext(ctx).Operation("create_report").Build()

	user := auth.MustHaveUser(ctx)

	var form CreateReportRequest
	if err := render.DecodeJSON(r.Body, &form); err != nil {
		logger.Error(err).Log()
		h.error(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		logger.Error(err).Log()
		h.error(w, r, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.jobSrv.CreateReportJob(ctx, service.CreateReportJobRequest{
		ProjectID:   form.ProjectID,
		ReportType:  model.ReportType(form.ReportType),
		CallbackURL: form.CallbackURL,
		RequestedBy: user.Username,
		Credential:  user.Credential,
	})
	if err != nil {
		logger.Error(err).Log()
		var (
			invalid    *service.ErrInvalidRequest
			dispatched *service.ErrDispatchFailed
		)
		switch {
		case errors.As(err, &invalid):
			h.error(w, r, http.StatusBadRequest, err.Error())
		case errors.As(err, &dispatched):
			h.error(w, r, http.StatusServiceUnavailable, err.Error())
		default:
			h.error(w, r, http.StatusInternalServerError, "failed to create report job")
		}
		return
	}

	logger.Success().WithString("job_id", job.ID).Log()
	_ = render.Render(w, r, CreateReportReply{
		JobID:     job.ID,
		Status:    string(job.Status),
		StatusURL: h.baseURL + reportsPath + "/" + job.ID,
		CreatedAt: job.CreatedAt,
	})
}

func (h *ServiceHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	logger := log.NewDebugLogger("report_handler").WithContext(ctx).Operation("get_report").WithString("job_id", id).Build()

	user := auth.MustHaveUser(ctx)

	job, err := h.jobSrv.GetReportJob(ctx, id, user.Username)
	if err != nil {
		logger.Error(err).Log()
		switch err.(type) {
		case *service.ErrResourceNotFound:
			h.error(w, r, http.StatusNotFound, err.Error())
		case *service.ErrReportJobForbidden:
			h.error(w, r, http.StatusForbidden, err.Error())
		default:
			h.error(w, r, http.StatusInternalServerError, "failed to get report job")
		}
		return
	}

	logger.Success().Log()
	_ = render.Render(w, r, ReportJobToApi(job))
}

func (h *ServiceHandler) error(w http.ResponseWriter, r *http.Request, code int, message string) {
	_ = render.Render(w, r, ErrorReply{Message: message, RequestID: requestid.FromContext(r.Context()), code: code})
}
