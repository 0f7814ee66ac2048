package types

import (
	"time"

	"github.com/cortap/cortap-rpt/internal/review"
	"github.com/cortap/cortap-rpt/internal/store/model"
)

type ReportRenderer interface {
	Render(data *ReportData) ([]byte, error)
	SupportedFormat() ReportFormat
}

type ReportFormat string

const (
	ReportFormatXLSX ReportFormat = "xlsx"
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatHTML ReportFormat = "html"
)

func (f ReportFormat) Extension() string {
	return string(f)
}

func (f ReportFormat) ContentType() string {
	switch f {
	case ReportFormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ReportFormatCSV:
		return "text/csv"
	case ReportFormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

type Project struct {
	ID   int64
	Name string
}

type ReportData struct {
	JobID         string
	Type          model.ReportType
	Project       Project
	Consolidation *review.Consolidation
	Timestamps    ReportTimestamps
}

type ReportTimestamps struct {
	Generated     string
	GeneratedTime string
	At            time.Time
}

func NewReportTimestamps(at time.Time) ReportTimestamps {
	return ReportTimestamps{
		Generated:     at.Format("January 2, 2006"),
		GeneratedTime: at.Format("15:04:05 MST"),
		At:            at,
	}
}

// Document is a rendered report ready for upload.
type Document struct {
	Format      ReportFormat
	ContentType string
	Content     []byte
}

func (d Document) Size() int64 {
	return int64(len(d.Content))
}

// Title returns the document heading for the report type.
func Title(t model.ReportType) string {
	switch t {
	case model.ReportTypeRecipientInfo:
		return "CORTAP RECIPIENT INFORMATION REQUEST"
	default:
		return "CORTAP DRAFT AUDIT REPORT"
	}
}
