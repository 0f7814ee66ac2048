package csv

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/cortap/cortap-rpt/internal/review"
	"github.com/cortap/cortap-rpt/internal/service/report/types"
	"github.com/cortap/cortap-rpt/internal/store/model"
)

type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (r *Renderer) SupportedFormat() types.ReportFormat {
	return types.ReportFormatCSV
}

func (r *Renderer) Render(data *types.ReportData) ([]byte, error) {
	if data.Consolidation == nil {
		return nil, fmt.Errorf("no consolidated data to render")
	}

	var csvRows [][]string

	csvRows = append(csvRows, []string{types.Title(data.Type)})
	csvRows = append(csvRows, []string{fmt.Sprintf("Generated: %s at %s",
		data.Timestamps.Generated, data.Timestamps.GeneratedTime)})
	csvRows = append(csvRows, []string{"Recipient", data.Project.Name})
	csvRows = append(csvRows, []string{"Project ID", strconv.FormatInt(data.Project.ID, 10)})
	csvRows = append(csvRows, []string{""})

	csvRows = r.addReviewAreas(csvRows, data.Consolidation)
	if data.Type == model.ReportTypeDraftAudit {
		csvRows = r.addDeficiencies(csvRows, data.Consolidation)
	}

	return r.convertRowsToCSV(csvRows)
}

func (r *Renderer) addReviewAreas(csvRows [][]string, c *review.Consolidation) [][]string {
	csvRows = append(csvRows, []string{"REVIEW AREAS"})
	csvRows = append(csvRows, []string{"Review Area", "Finding", "Code", "Controls", "Deficiencies"})
	for _, a := range c.Areas {
		csvRows = append(csvRows, []string{
			a.Area,
			string(a.Finding),
			a.Finding.Code(),
			strconv.Itoa(a.ControlCount),
			strconv.Itoa(len(a.Deficiencies)),
		})
	}
	csvRows = append(csvRows, []string{""})
	return csvRows
}

func (r *Renderer) addDeficiencies(csvRows [][]string, c *review.Consolidation) [][]string {
	csvRows = append(csvRows, []string{"DEFICIENCIES"})
	csvRows = append(csvRows, []string{"Review Area", "Control", "Comment"})
	for _, a := range c.Areas {
		for _, d := range a.Deficiencies {
			csvRows = append(csvRows, []string{a.Area, d.Control, d.Comment})
		}
	}
	return csvRows
}

func (r *Renderer) convertRowsToCSV(csvRows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	for _, row := range csvRows {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}
