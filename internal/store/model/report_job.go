package model

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

const (
	CallbackStatusPending   = "pending"
	CallbackStatusDelivered = "delivered"
	CallbackStatusFailed    = "callback_failed"
	CallbackStatusSkipped   = "skipped"
)

type ErrorCode string

const (
	ErrorCodeDataFetch         ErrorCode = "DATA_FETCH_ERROR"
	ErrorCodeTransform         ErrorCode = "TRANSFORM_ERROR"
	ErrorCodeRender            ErrorCode = "RENDER_ERROR"
	ErrorCodeUpload            ErrorCode = "UPLOAD_ERROR"
	ErrorCodeTimeout           ErrorCode = "TIMEOUT"
	ErrorCodeDispatch          ErrorCode = "DISPATCH_ERROR"
	ErrorCodeCallbackExhausted ErrorCode = "CALLBACK_EXHAUSTED"
)

type ReportType string

const (
	ReportTypeDraftAudit    ReportType = "draft_audit_report"
	ReportTypeRecipientInfo ReportType = "recipient_information_request"
)

func (t ReportType) Valid() bool {
	return t == ReportTypeDraftAudit || t == ReportTypeRecipientInfo
}

// JobError is the failure record exposed to callers. Details never carry
// credentials or stack traces.
type JobError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *JobError) Error() string {
	return string(e.Code) + ": " + e.Message
}

func NewJobError(code ErrorCode, message string) *JobError {
	return &JobError{Code: code, Message: message}
}

type ResultMetadata struct {
	RecipientName     string   `json:"recipient_name,omitempty"`
	ReviewAreas       int      `json:"review_areas"`
	DeficiencyCount   int      `json:"deficiency_count"`
	DeficiencyAreas   []string `json:"deficiency_areas"`
	TotalControls     int      `json:"total_controls"`
	UnmatchedControls int      `json:"unmatched_controls"`
	GenerationTimeMs  int64    `json:"generation_time_ms"`
	Format            string   `json:"format"`
}

type JobResult struct {
	DownloadURL string         `json:"download_url"`
	ExpiresAt   time.Time      `json:"expires_at"`
	FileSize    int64          `json:"file_size"`
	DocumentKey string         `json:"document_key"`
	DataKey     string         `json:"data_key,omitempty"`
	Metadata    ResultMetadata `json:"metadata"`
}

type ReportJob struct {
	ID               string                `gorm:"primaryKey;column:id;type:VARCHAR(64);"`
	Status           JobStatus             `gorm:"not null;type:VARCHAR(32);index:report_jobs_status_idx"`
	ProjectID        int64                 `gorm:"not null;index:report_jobs_project_id_idx"`
	ReportType       ReportType            `gorm:"not null;type:VARCHAR(64)"`
	CallbackURL      string                `gorm:"type:TEXT"`
	RequestedBy      string                `gorm:"not null;type:VARCHAR(255)"`
	Progress         string                `gorm:"type:VARCHAR(64)"`
	Result           *JSONField[JobResult] `gorm:"type:jsonb"`
	Error            *JSONField[JobError]  `gorm:"type:jsonb"`
	CallbackStatus   string                `gorm:"type:VARCHAR(32)"`
	CallbackAttempts int                   `gorm:"not null;default:0"`
	CallbackError    string                `gorm:"type:TEXT"`
	CreatedAt        time.Time             `gorm:"not null"`
	UpdatedAt        time.Time             `gorm:"not null"`
	CompletedAt      *time.Time            `gorm:"column:completed_at"`
	ExpiresAt        time.Time             `gorm:"not null;index:report_jobs_expires_at_idx"`
}

func (ReportJob) TableName() string {
	return "report_jobs"
}

func (j ReportJob) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}

// TerminalState is written once when a job leaves processing.
type TerminalState struct {
	Status      JobStatus
	Result      *JobResult
	Error       *JobError
	CompletedAt time.Time
}

func Completed(result JobResult, at time.Time) TerminalState {
	return TerminalState{Status: JobStatusCompleted, Result: &result, CompletedAt: at}
}

func Failed(jobErr *JobError, at time.Time) TerminalState {
	return TerminalState{Status: JobStatusFailed, Error: jobErr, CompletedAt: at}
}
