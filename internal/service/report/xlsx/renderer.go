package xlsx

import (
	"fmt"

	"github.com/cortap/cortap-rpt/internal/review"
	"github.com/cortap/cortap-rpt/internal/service/report/types"
	"github.com/cortap/cortap-rpt/internal/store/model"
	"github.com/xuri/excelize/v2"
)

const (
	SheetSummary      = "Summary"
	SheetReviewAreas  = "Review Areas"
	SheetDeficiencies = "Deficiencies"
	SheetRequest      = "Information Request"

	defaultSheet = "Sheet1"
)

type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (r *Renderer) SupportedFormat() types.ReportFormat {
	return types.ReportFormatXLSX
}

type styles struct {
	header    int
	title     int
	deficient int
	wrap      int
}

func (r *Renderer) Render(data *types.ReportData) ([]byte, error) {
	if data.Consolidation == nil {
		return nil, fmt.Errorf("no consolidated data to render")
	}

	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	st, err := newStyles(f)
	if err != nil {
		return nil, err
	}

	if err := f.SetSheetName(defaultSheet, SheetSummary); err != nil {
		return nil, err
	}
	if err := r.writeSummary(f, st, data); err != nil {
		return nil, fmt.Errorf("failed to write summary sheet: %w", err)
	}

	switch data.Type {
	case model.ReportTypeRecipientInfo:
		if err := r.writeInformationRequest(f, st, data.Consolidation); err != nil {
			return nil, fmt.Errorf("failed to write request sheet: %w", err)
		}
	default:
		if err := r.writeReviewAreas(f, st, data.Consolidation); err != nil {
			return nil, fmt.Errorf("failed to write review areas sheet: %w", err)
		}
		if err := r.writeDeficiencies(f, st, data.Consolidation); err != nil {
			return nil, fmt.Errorf("failed to write deficiencies sheet: %w", err)
		}
	}

	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func newStyles(f *excelize.File) (*styles, error) {
	var (
		st  styles
		err error
	)
	if st.header, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#1F4E78"}, Pattern: 1},
	}); err != nil {
		return nil, err
	}
	if st.title, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}}); err != nil {
		return nil, err
	}
	if st.deficient, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#9C0006"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFC7CE"}, Pattern: 1},
	}); err != nil {
		return nil, err
	}
	if st.wrap, err = f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}}); err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *Renderer) writeSummary(f *excelize.File, st *styles, data *types.ReportData) error {
	summary := data.Consolidation.Summary()
	rows := [][]any{
		{types.Title(data.Type)},
		{},
		{"Recipient", data.Project.Name},
		{"Project ID", data.Project.ID},
		{"Report ID", data.JobID},
		{"Generated", fmt.Sprintf("%s at %s", data.Timestamps.Generated, data.Timestamps.GeneratedTime)},
		{},
		{"Review Areas", summary.ReviewAreaCount},
		{"Deficiencies", summary.DeficiencyCount},
		{"Deficient Areas", len(summary.DeficientAreas)},
		{"Controls Assessed", data.Consolidation.TotalControls},
		{"Unmatched Controls", data.Consolidation.UnmatchedControls},
	}
	if err := writeRows(f, SheetSummary, 1, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetSummary, "A1", "A1", st.title); err != nil {
		return err
	}
	return f.SetColWidth(SheetSummary, "A", "A", 24)
}

func (r *Renderer) writeReviewAreas(f *excelize.File, st *styles, c *review.Consolidation) error {
	if _, err := f.NewSheet(SheetReviewAreas); err != nil {
		return err
	}

	rows := [][]any{{"Review Area", "Finding", "Code", "Controls", "Deficiencies"}}
	for _, a := range c.Areas {
		rows = append(rows, []any{a.Area, string(a.Finding), a.Finding.Code(), a.ControlCount, len(a.Deficiencies)})
	}
	if err := writeRows(f, SheetReviewAreas, 1, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetReviewAreas, "A1", "E1", st.header); err != nil {
		return err
	}
	for i, a := range c.Areas {
		if a.Finding != review.FindingDeficient {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(2, i+2)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetReviewAreas, cell, cell, st.deficient); err != nil {
			return err
		}
	}
	return f.SetColWidth(SheetReviewAreas, "A", "A", 70)
}

func (r *Renderer) writeDeficiencies(f *excelize.File, st *styles, c *review.Consolidation) error {
	if _, err := f.NewSheet(SheetDeficiencies); err != nil {
		return err
	}

	rows := [][]any{{"Review Area", "Control", "Description"}}
	for _, a := range c.Areas {
		for _, d := range a.Deficiencies {
			rows = append(rows, []any{a.Area, d.Control, d.Comment})
		}
	}
	if len(rows) == 1 {
		rows = append(rows, []any{"No deficiencies found"})
	}
	if err := writeRows(f, SheetDeficiencies, 1, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetDeficiencies, "A1", "C1", st.header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(3, len(rows))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetDeficiencies, "C2", last, st.wrap); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetDeficiencies, "A", "B", 40); err != nil {
		return err
	}
	return f.SetColWidth(SheetDeficiencies, "C", "C", 90)
}

func (r *Renderer) writeInformationRequest(f *excelize.File, st *styles, c *review.Consolidation) error {
	if _, err := f.NewSheet(SheetRequest); err != nil {
		return err
	}

	rows := [][]any{{"Review Area", "Controls In Scope", "Information Requested"}}
	for _, a := range c.Areas {
		requested := "Yes"
		if a.ControlCount == 0 {
			requested = "Not applicable"
		}
		rows = append(rows, []any{a.Area, a.ControlCount, requested})
	}
	if err := writeRows(f, SheetRequest, 1, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetRequest, "A1", "C1", st.header); err != nil {
		return err
	}
	return f.SetColWidth(SheetRequest, "A", "A", 70)
}

func writeRows(f *excelize.File, sheet string, start int, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, start+i)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
