package webhook

import (
	"time"

	"github.com/cortap/cortap-rpt/internal/store/model"
)

// Payload is the body posted to the callback URL. Result fields are only set
// for completed jobs and the error block only for failed ones.
type Payload struct {
	JobID       string                `json:"job_id"`
	Status      model.JobStatus       `json:"status"`
	ProjectID   int64                 `json:"project_id"`
	ReportType  model.ReportType      `json:"report_type"`
	DownloadURL string                `json:"download_url,omitempty"`
	ExpiresAt   *time.Time            `json:"expires_at,omitempty"`
	FileSize    int64                 `json:"file_size,omitempty"`
	Metadata    *model.ResultMetadata `json:"metadata,omitempty"`
	Error       *PayloadError         `json:"error,omitempty"`
}

type PayloadError struct {
	Code    model.ErrorCode `json:"code"`
	Message string          `json:"message"`
}

func BuildPayload(job model.ReportJob) Payload {
	p := Payload{
		JobID:      job.ID,
		Status:     job.Status,
		ProjectID:  job.ProjectID,
		ReportType: job.ReportType,
	}

	switch job.Status {
	case model.JobStatusCompleted:
		if job.Result == nil {
			break
		}
		r := job.Result.Data
		expires := r.ExpiresAt.UTC()
		p.DownloadURL = r.DownloadURL
		p.ExpiresAt = &expires
		p.FileSize = r.FileSize
		p.Metadata = &r.Metadata
	case model.JobStatusFailed:
		if job.Error == nil {
			break
		}
		p.Error = &PayloadError{Code: job.Error.Data.Code, Message: job.Error.Data.Message}
	}
	return p
}
