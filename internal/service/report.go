package service

import (
	"context"
	"fmt"

	"github.com/cortap/cortap-rpt/internal/service/report/csv"
	"github.com/cortap/cortap-rpt/internal/service/report/html"
	"github.com/cortap/cortap-rpt/internal/service/report/types"
	"github.com/cortap/cortap-rpt/internal/service/report/xlsx"
)

type ReportRenderer = types.ReportRenderer
type ReportFormat = types.ReportFormat
type ReportData = types.ReportData
type Document = types.Document

const (
	ReportFormatXLSX = types.ReportFormatXLSX
	ReportFormatCSV  = types.ReportFormatCSV
	ReportFormatHTML = types.ReportFormatHTML
)

// ReportService renders consolidated data with the renderer registered for the
// configured format.
type ReportService struct {
	format    types.ReportFormat
	renderers map[types.ReportFormat]types.ReportRenderer
}

func NewReportService(format types.ReportFormat, extra ...types.ReportRenderer) (*ReportService, error) {
	service := &ReportService{
		format:    format,
		renderers: make(map[types.ReportFormat]types.ReportRenderer),
	}

	for _, r := range append([]types.ReportRenderer{xlsx.NewRenderer(), csv.NewRenderer(), html.NewRenderer()}, extra...) {
		service.renderers[r.SupportedFormat()] = r
	}

	if _, exists := service.renderers[format]; !exists {
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
	return service, nil
}

func (r *ReportService) Render(ctx context.Context, data *types.ReportData) (*types.Document, error) {
	renderer, exists := r.renderers[r.format]
	if !exists {
		return nil, fmt.Errorf("unsupported report format: %s", r.format)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := renderer.Render(data)
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%s renderer produced an empty document", r.format)
	}

	return &types.Document{
		Format:      r.format,
		ContentType: r.format.ContentType(),
		Content:     content,
	}, nil
}
