// Package grid abstracts the rectangular cell structures the parsing
// pipeline consumes, decoupling it from how a workbook or HTML table was
// decoded. Cell values are nil, float64, string or bool.
package grid

import "sheetmap/internal"

// Grid is a rectangular structure of raw cell values. Rows are 1-indexed to
// match spreadsheet conventions.
type Grid interface {
	RowCount() int
	ColumnCount() int
	// Row returns the raw values of the given 1-indexed row, or nil when the
	// index is out of range.
	Row(index int) []any
	MergedRegions() []internal.MergedRegion
}

// SliceGrid is an in-memory Grid.
type SliceGrid struct {
	Rows   [][]any
	Merged []internal.MergedRegion
}

func (g *SliceGrid) RowCount() int { return len(g.Rows) }

func (g *SliceGrid) ColumnCount() int {
	max := 0
	for _, row := range g.Rows {
		if len(row) > max {
			max = len(row)
		}
	}
	return max
}

func (g *SliceGrid) Row(index int) []any {
	if index < 1 || index > len(g.Rows) {
		return nil
	}
	return g.Rows[index-1]
}

func (g *SliceGrid) MergedRegions() []internal.MergedRegion {
	return g.Merged
}
