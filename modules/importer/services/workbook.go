package services

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/assetdesk/modules/importer/domain/record"
)

const (
	sheetErrors     = "Errors"
	sheetWarnings   = "Warnings"
	sheetReferences = "References"
	sheetSummary    = "Summary"
)

// WriteErrorWorkbook renders a report as an .xlsx workbook users can fix their file from.
func WriteErrorWorkbook(r record.Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetErrors); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	errorRows := make([][]any, 0, len(r.ErrorDetails)+1)
	if r.FileError != "" {
		errorRows = append(errorRows, []any{"file", r.FileError})
	}
	for _, d := range r.ErrorDetails {
		errorRows = append(errorRows, []any{d.Row, d.Message})
	}
	if err := writeSheet(f, sheetErrors, bold, []any{"Row", "Message"}, errorRows); err != nil {
		return nil, err
	}

	warningRows := make([][]any, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		warningRows = append(warningRows, []any{w.Row, w.Message})
	}
	if err := writeSheet(f, sheetWarnings, bold, []any{"Row", "Message"}, warningRows); err != nil {
		return nil, err
	}

	if len(r.ReferenceErrors) > 0 {
		refRows := make([][]any, 0, len(r.ReferenceErrors))
		for _, e := range r.ReferenceErrors {
			refRows = append(refRows, []any{e.Kind, e.Name, joinInts(e.Rows), e.Message})
		}
		if err := writeSheet(f, sheetReferences, bold, []any{"Kind", "Name", "Rows", "Message"}, refRows); err != nil {
			return nil, err
		}
	}

	summary := [][]any{
		{"Run", r.RunID.String()},
		{"Entity", r.Entity},
		{"Dry run", r.DryRun},
		{"Total", r.Total},
		{"Succeeded", r.Succeeded},
		{"Failed", r.Failed},
		{"Skipped", r.Skipped},
		{"Inserted", r.Inserted},
		{"Updated", r.Updated},
		{"Errors not shown", r.TruncatedErrors},
		{"Cancelled", r.Cancelled},
	}
	for kind, n := range r.MasterDataCreated {
		summary = append(summary, []any{"Created " + kind, n})
	}
	if err := writeSheet(f, sheetSummary, bold, []any{"Field", "Value"}, summary); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, headerStyle int, header []any, rows [][]any) error {
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(len(header))
	return f.SetColWidth(sheet, lastCol, lastCol, 80)
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ", ")
}
