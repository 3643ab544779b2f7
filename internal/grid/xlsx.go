package grid

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"sheetmap/internal"
)

// FromXLSX decodes the first sheet of a workbook into a SliceGrid. Cell text
// that reads as a plain number or boolean becomes float64/bool so the
// structure detector can tell text cells from numeric ones. Merged ranges are
// collected best-effort: a failure there yields an empty list, not an error.
func FromXLSX(content []byte) (*SliceGrid, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	sheet := sheets[0]

	rawRows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}

	rows := make([][]any, 0, len(rawRows))
	for _, rawRow := range rawRows {
		row := make([]any, 0, len(rawRow))
		for _, cell := range rawRow {
			row = append(row, typedCell(cell))
		}
		rows = append(rows, row)
	}

	g := &SliceGrid{Rows: rows}
	if merged, err := f.GetMergeCells(sheet); err == nil {
		g.Merged = toMergedRegions(merged)
	}
	return g, nil
}

func typedCell(text string) any {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return n
	}
	switch trimmed {
	case "TRUE":
		return true
	case "FALSE":
		return false
	}
	return text
}

func toMergedRegions(cells []excelize.MergeCell) []internal.MergedRegion {
	out := make([]internal.MergedRegion, 0, len(cells))
	for _, mc := range cells {
		startCol, startRow, err1 := excelize.CellNameToCoordinates(mc.GetStartAxis())
		endCol, endRow, err2 := excelize.CellNameToCoordinates(mc.GetEndAxis())
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, internal.MergedRegion{
			MinRow: startRow,
			MaxRow: endRow,
			MinCol: startCol,
			MaxCol: endCol,
		})
	}
	return out
}
