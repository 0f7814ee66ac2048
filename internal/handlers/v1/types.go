package v1

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/cortap/cortap-rpt/internal/store/model"
)

type CreateReportRequest struct {
	ProjectID   int64  `json:"project_id" validate:"required,gt=0"`
	ReportType  string `json:"report_type" validate:"required,report_type"`
	CallbackURL string `json:"callback_url" validate:"callback_url"`
}

type CreateReportReply struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	StatusURL string    `json:"status_url"`
	CreatedAt time.Time `json:"created_at"`
}

func (c CreateReportReply) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, http.StatusAccepted)
	return nil
}

type ReportResult struct {
	DownloadURL string               `json:"download_url"`
	ExpiresAt   time.Time            `json:"expires_at"`
	FileSize    int64                `json:"file_size"`
	Metadata    model.ResultMetadata `json:"metadata"`
}

type CallbackReply struct {
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

type ReportStatusReply struct {
	JobID       string          `json:"job_id"`
	Status      string          `json:"status"`
	ProjectID   int64           `json:"project_id"`
	ReportType  string          `json:"report_type"`
	Progress    string          `json:"progress,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Result      *ReportResult   `json:"result,omitempty"`
	Error       *model.JobError `json:"error,omitempty"`
	Callback    *CallbackReply  `json:"callback,omitempty"`
}

func (s ReportStatusReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type HealthReply struct {
	Status string `json:"status"`
}

func (h HealthReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type ErrorReply struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	code      int
}

func (e ErrorReply) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.code)
	return nil
}

func ReportJobToApi(job *model.ReportJob) ReportStatusReply {
	reply := ReportStatusReply{
		JobID:       job.ID,
		Status:      string(job.Status),
		ProjectID:   job.ProjectID,
		ReportType:  string(job.ReportType),
		Progress:    job.Progress,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.Result != nil && job.Status == model.JobStatusCompleted {
		reply.Result = &ReportResult{
			DownloadURL: job.Result.Data.DownloadURL,
			ExpiresAt:   job.Result.Data.ExpiresAt,
			FileSize:    job.Result.Data.FileSize,
			Metadata:    job.Result.Data.Metadata,
		}
	}
	if job.Error != nil && job.Status == model.JobStatusFailed {
		jobErr := job.Error.Data
		reply.Error = &jobErr
	}
	if job.CallbackStatus != "" {
		reply.Callback = &CallbackReply{
			Status:   job.CallbackStatus,
			Attempts: job.CallbackAttempts,
			Error:    job.CallbackError,
		}
	}
	return reply
}
