package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"sheetmap/internal"
)

// ExportResultToXLSX flattens a parse result to a review workbook: one row
// per data cell with the full mapping audit alongside.
func ExportResultToXLSX(result internal.ParseResult, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{
		"row_index", "column_index", "original_header",
		"matched_parameter", "matched_asset", "method", "confidence",
		"original_value", "parsed_value", "parse_success", "parse_error",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	r := 1
	for _, row := range result.ParsedData {
		for _, cell := range row {
			r++
			set := func(col int, value any) {
				name, _ := excelize.CoordinatesToCellName(col, r)
				_ = f.SetCellValue(sheet, name, value)
			}

			m := cell.HeaderMapping
			set(1, cell.RowIndex)
			set(2, cell.ColumnIndex)
			set(3, m.OriginalHeader)
			set(4, derefString(m.MatchedParameter))
			set(5, derefString(m.MatchedAsset))
			set(6, string(m.Method))
			set(7, string(m.Confidence))
			set(8, renderValue(cell.OriginalValue))
			set(9, renderValue(cell.ParsedValue))
			set(10, cell.ParseSuccess)
			set(11, derefString(cell.ParseError))
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func renderValue(v any) any {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case float64, string, bool:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
