// Package export renders report data into tabular byte streams.
package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"rollcall/internal/application/projections"
	"rollcall/internal/domain/attendance"
)

const (
	recordsSheet = "Records"
	summarySheet = "Summary"
)

// WriteXLSX renders report data as an .xlsx workbook: one row per
// record on the Records sheet, zero-filled status counts on Summary.
// PRE: data came from the report projection
// POST: Returns the workbook bytes
func WriteXLSX(data projections.GetReportDataResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// The default sheet becomes Records; Summary is added second.
	if err := f.SetSheetName(f.GetSheetName(0), recordsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}

	header := []any{"Date", "Session", "Person ID", "Name", "Status"}
	if err := f.SetSheetRow(recordsSheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, row := range data.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []any{row.Date, string(row.Session), row.PersonID, row.PersonName, string(row.Status)}
		if err := f.SetSheetRow(recordsSheet, cell, &values); err != nil {
			return nil, err
		}
	}

	if err := f.SetSheetRow(summarySheet, "A1", &[]any{"Status", "Count"}); err != nil {
		return nil, err
	}
	for i, st := range attendance.Statuses {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(summarySheet, cell, &[]any{string(st), data.Summary[st]}); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
