package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"sheetmap/internal"
	"sheetmap/internal/grid"
)

// ErrInvalidGrid marks structural precondition failures (absent or empty
// grid). These surface to the caller as client errors; everything else the
// detector recovers from locally.
var ErrInvalidGrid = errors.New("invalid grid")

// SimpleQuerier is the single-value fallback used when no header candidate
// is found. Returns empty text on irrecoverable failure.
type SimpleQuerier interface {
	SimpleQuery(ctx context.Context, prompt string) string
}

const headerCandidateMinTextCells = 3

// DetectStructure locates the header row and data-start row of a grid.
//
// It scans rows 1..min(10, rowCount) counting non-blank text cells; a row
// with more than three is a header candidate. With several candidates the
// strictly largest count wins, earliest row on tie. With none, the semantic
// fallback is asked for a row index, defaulting to row 1 when it is absent,
// fails, or answers out of range. Data always starts one row below the
// header. Merged regions are best-effort and never abort detection.
func DetectStructure(ctx context.Context, g grid.Grid, fallback SimpleQuerier) (internal.TableStructure, error) {
	if g == nil {
		return internal.TableStructure{}, fmt.Errorf("%w: grid is nil", ErrInvalidGrid)
	}
	rowCount := g.RowCount()
	colCount := g.ColumnCount()
	if rowCount < 1 || colCount < 1 {
		return internal.TableStructure{}, fmt.Errorf("%w: %d rows, %d columns", ErrInvalidGrid, rowCount, colCount)
	}

	scanRows := rowCount
	if scanRows > 10 {
		scanRows = 10
	}

	headerRow := 0
	bestCount := 0
	for idx := 1; idx <= scanRows; idx++ {
		count := countTextCells(g.Row(idx))
		if count <= headerCandidateMinTextCells {
			continue
		}
		if count > bestCount {
			headerRow = idx
			bestCount = count
		}
	}

	if headerRow == 0 {
		headerRow = fallbackHeaderRow(ctx, g, fallback, scanRows)
	}

	structure := internal.TableStructure{
		HeaderRowIndex: headerRow,
		DataStartRow:   headerRow + 1,
		ColumnCount:    colCount,
		MergedCells:    collectMergedRegions(g),
	}
	return structure, nil
}

func countTextCells(row []any) int {
	count := 0
	for _, cell := range row {
		if s, ok := cell.(string); ok && strings.TrimSpace(s) != "" {
			count++
		}
	}
	return count
}

func fallbackHeaderRow(ctx context.Context, g grid.Grid, fallback SimpleQuerier, scanRows int) int {
	if fallback == nil {
		return 1
	}

	var sb strings.Builder
	sb.WriteString("Given these spreadsheet rows, which row number contains the column headers?\n\n")
	for idx := 1; idx <= scanRows; idx++ {
		fmt.Fprintf(&sb, "Row %d: %v\n", idx, g.Row(idx))
	}
	sb.WriteString("\nReturn only the row number as an integer.")

	response := fallback.SimpleQuery(ctx, sb.String())
	row, err := strconv.Atoi(strings.TrimSpace(response))
	if err != nil || row < 1 || row > scanRows {
		return 1
	}
	return row
}

func collectMergedRegions(g grid.Grid) []internal.MergedRegion {
	regions := g.MergedRegions()
	if regions == nil {
		return []internal.MergedRegion{}
	}
	return regions
}
