package grid

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

func mkXLSX(t *testing.T, rows [][]any, merges [][2]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	for _, m := range merges {
		_ = f.MergeCell(sheet, m[0], m[1])
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func TestFromXLSX(t *testing.T) {
	blob := mkXLSX(t, [][]any{
		{"Date", "Power Output", "Efficiency", "Online"},
		{"2024-01-01", 450.5, "85%", true},
		{"2024-01-02", nil, "N/A", false},
	}, nil)

	g, err := FromXLSX(blob)
	if err != nil {
		t.Fatal(err)
	}
	if g.RowCount() != 3 {
		t.Fatalf("rows=%d", g.RowCount())
	}
	if g.ColumnCount() != 4 {
		t.Fatalf("columns=%d", g.ColumnCount())
	}

	header := g.Row(1)
	for i, want := range []string{"Date", "Power Output", "Efficiency", "Online"} {
		if header[i] != want {
			t.Fatalf("header %d=%v", i, header[i])
		}
	}

	row := g.Row(2)
	if row[1] != 450.5 {
		t.Fatalf("numeric cell=%v (%T)", row[1], row[1])
	}
	if row[2] != "85%" {
		t.Fatalf("percent cell=%v", row[2])
	}
	if row[3] != true {
		t.Fatalf("bool cell=%v (%T)", row[3], row[3])
	}
}

func TestFromXLSXOutOfRangeRow(t *testing.T) {
	blob := mkXLSX(t, [][]any{{"only"}}, nil)
	g, err := FromXLSX(blob)
	if err != nil {
		t.Fatal(err)
	}
	if g.Row(0) != nil || g.Row(2) != nil {
		t.Fatal("out-of-range rows must be nil")
	}
}

func TestFromXLSXMergedCells(t *testing.T) {
	blob := mkXLSX(t, [][]any{
		{"Plant Alpha", nil, nil, nil},
		{"Date", "Power", "Temp", "Status"},
	}, [][2]string{{"A1", "D1"}})

	g, err := FromXLSX(blob)
	if err != nil {
		t.Fatal(err)
	}
	regions := g.MergedRegions()
	if len(regions) != 1 {
		t.Fatalf("merged=%v", regions)
	}
	r := regions[0]
	if r.MinRow != 1 || r.MaxRow != 1 || r.MinCol != 1 || r.MaxCol != 4 {
		t.Fatalf("region=%+v", r)
	}
}

func TestFromXLSXGarbage(t *testing.T) {
	if _, err := FromXLSX([]byte("not a workbook")); err == nil {
		t.Fatal("expected error")
	}
}
