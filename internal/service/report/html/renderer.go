package html

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/cortap/cortap-rpt/internal/review"
	"github.com/cortap/cortap-rpt/internal/service/report/types"
	"github.com/cortap/cortap-rpt/internal/store/model"
)

type Renderer struct {
	tmpl *template.Template
}

type templateData struct {
	Title         string
	GeneratedDate string
	GeneratedTime string
	JobID         string
	ProjectID     int64
	ProjectName   string
	DraftAudit    bool
	Summary       review.Summary
	Areas         []review.AreaResult
	TotalControls int
	Unmatched     int
}

func NewRenderer() *Renderer {
	return &Renderer{tmpl: template.Must(template.New("report").Parse(reportTemplate))}
}

func (r *Renderer) SupportedFormat() types.ReportFormat {
	return types.ReportFormatHTML
}

func (r *Renderer) Render(data *types.ReportData) ([]byte, error) {
	if data.Consolidation == nil {
		return nil, fmt.Errorf("no consolidated data to render")
	}

	td := templateData{
		Title:         types.Title(data.Type),
		GeneratedDate: data.Timestamps.Generated,
		GeneratedTime: data.Timestamps.GeneratedTime,
		JobID:         data.JobID,
		ProjectID:     data.Project.ID,
		ProjectName:   data.Project.Name,
		DraftAudit:    data.Type == model.ReportTypeDraftAudit,
		Summary:       data.Consolidation.Summary(),
		Areas:         data.Consolidation.Areas,
		TotalControls: data.Consolidation.TotalControls,
		Unmatched:     data.Consolidation.UnmatchedControls,
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, td); err != nil {
		return nil, fmt.Errorf("failed to execute HTML template: %w", err)
	}
	return buf.Bytes(), nil
}
