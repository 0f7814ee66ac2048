package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cortap/cortap-rpt/internal/store/model"
)

// Blob is the object store holding rendered documents and data artifacts.
type Blob interface {
	Put(ctx context.Context, key string, content []byte, contentType string) error
	SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

const dateLayout = "2006-01-02"

// DocumentKey is documents/{project_id}/{report_type}/{YYYY-MM-DD}/{job_id}.{ext}
func DocumentKey(projectID int64, reportType model.ReportType, at time.Time, jobID, ext string) string {
	return fmt.Sprintf("documents/%d/%s/%s/%s.%s", projectID, reportType, at.UTC().Format(dateLayout), jobID, ext)
}

// DataKey is data/{project_id}/{YYYY-MM-DD}/{job_id}_project-data.json
func DataKey(projectID int64, at time.Time, jobID string) string {
	return fmt.Sprintf("data/%d/%s/%s_project-data.json", projectID, at.UTC().Format(dateLayout), jobID)
}
