// Package export renders the teacher access-code list as a spreadsheet.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/smartschedule/schedulebot/bot/schedule"
)

const sheetName = "Teachers"

// TeachersXLSX builds a workbook with one row per teacher after a header.
func TeachersXLSX(teachers []schedule.Teacher) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("export: rename sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &[]interface{}{"Teacher", "Code"}); err != nil {
		return nil, fmt.Errorf("export: header: %w", err)
	}
	for i, t := range teachers {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheetName, cell, &[]interface{}{t.Name, t.Code}); err != nil {
			return nil, fmt.Errorf("export: row %d: %w", i+2, err)
		}
	}
	if err := f.SetColWidth(sheetName, "A", "A", 40); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheetName, "B", "B", 16); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("export: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
