package pipeline

import (
	"context"
	"errors"
	"testing"

	"sheetmap/internal"
	"sheetmap/internal/grid"
)

type fakeQuerier struct {
	response string
	prompts  []string
}

func (f *fakeQuerier) SimpleQuery(_ context.Context, prompt string) string {
	f.prompts = append(f.prompts, prompt)
	return f.response
}

func TestDetectStructureHeuristic(t *testing.T) {
	g := &grid.SliceGrid{Rows: [][]any{
		{"Monthly Report", nil, nil, nil},
		{"Date", "Power Output", "Efficiency", "Status"},
		{"2024-01-01", 450.0, "85%", "running"},
	}}

	structure, err := DetectStructure(context.Background(), g, nil)
	if err != nil {
		t.Fatal(err)
	}
	if structure.HeaderRowIndex != 2 {
		t.Fatalf("header row=%d", structure.HeaderRowIndex)
	}
	if structure.DataStartRow != 3 {
		t.Fatalf("data start=%d", structure.DataStartRow)
	}
	if structure.ColumnCount != 4 {
		t.Fatalf("columns=%d", structure.ColumnCount)
	}
	if structure.MergedCells == nil || len(structure.MergedCells) != 0 {
		t.Fatalf("merged=%v", structure.MergedCells)
	}
}

func TestDetectStructureMaxCountWins(t *testing.T) {
	// Rows 2 and 4 both exceed the candidate threshold; row 4 has strictly
	// more text cells so it wins even though row 2 comes first.
	g := &grid.SliceGrid{Rows: [][]any{
		{"Plant Alpha", nil, nil, nil, nil},
		{"Date", "Power", "Temp", "Status", nil},
		{nil, nil, nil, nil, nil},
		{"Date", "Power", "Temp", "Status", "Remarks"},
		{"2024-01-01", 450.0, 320.0, "ok", "none"},
	}}

	structure, err := DetectStructure(context.Background(), g, nil)
	if err != nil {
		t.Fatal(err)
	}
	if structure.HeaderRowIndex != 4 {
		t.Fatalf("header row=%d", structure.HeaderRowIndex)
	}
}

func TestDetectStructureTieKeepsEarliestRow(t *testing.T) {
	g := &grid.SliceGrid{Rows: [][]any{
		{"Date", "Power", "Temp", "Status"},
		{"Shift", "Crew", "Notes", "Flag"},
		{"2024-01-01", 450.0, 320.0, "ok"},
	}}

	structure, err := DetectStructure(context.Background(), g, nil)
	if err != nil {
		t.Fatal(err)
	}
	if structure.HeaderRowIndex != 1 {
		t.Fatalf("header row=%d", structure.HeaderRowIndex)
	}
}

func TestDetectStructureNumericCellsDoNotCount(t *testing.T) {
	// Every row is numeric-heavy; no candidate, no fallback, default row 1.
	g := &grid.SliceGrid{Rows: [][]any{
		{1.0, 2.0, 3.0, 4.0, "x"},
		{5.0, 6.0, 7.0, 8.0, "y"},
	}}

	structure, err := DetectStructure(context.Background(), g, nil)
	if err != nil {
		t.Fatal(err)
	}
	if structure.HeaderRowIndex != 1 || structure.DataStartRow != 2 {
		t.Fatalf("structure=%+v", structure)
	}
}

func TestDetectStructureFallback(t *testing.T) {
	g := &grid.SliceGrid{Rows: [][]any{
		{1.0, 2.0, "a"},
		{"Date", "Power", 3.0},
		{4.0, 5.0, 6.0},
	}}

	cases := []struct {
		name     string
		response string
		want     int
	}{
		{"fallback answer used", "2", 2},
		{"whitespace tolerated", " 2 \n", 2},
		{"non-numeric defaults to 1", "the second row", 1},
		{"out of range defaults to 1", "17", 1},
		{"zero defaults to 1", "0", 1},
		{"empty defaults to 1", "", 1},
	}
	for _, c := range cases {
		q := &fakeQuerier{response: c.response}
		structure, err := DetectStructure(context.Background(), g, q)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if structure.HeaderRowIndex != c.want {
			t.Fatalf("%s: header row=%d want %d", c.name, structure.HeaderRowIndex, c.want)
		}
		if structure.DataStartRow != c.want+1 {
			t.Fatalf("%s: data start=%d", c.name, structure.DataStartRow)
		}
		if len(q.prompts) != 1 {
			t.Fatalf("%s: prompts=%d", c.name, len(q.prompts))
		}
	}
}

func TestDetectStructureInvalidGrid(t *testing.T) {
	if _, err := DetectStructure(context.Background(), nil, nil); !errors.Is(err, ErrInvalidGrid) {
		t.Fatalf("nil grid err=%v", err)
	}
	empty := &grid.SliceGrid{}
	if _, err := DetectStructure(context.Background(), empty, nil); !errors.Is(err, ErrInvalidGrid) {
		t.Fatalf("empty grid err=%v", err)
	}
}

func TestDetectStructureMergedRegions(t *testing.T) {
	g := &grid.SliceGrid{
		Rows: [][]any{
			{"Plant", nil, "Q1", nil},
			{"Date", "Power", "Temp", "Status"},
			{"2024-01-01", 450.0, 320.0, "ok"},
		},
		Merged: []internal.MergedRegion{
			{MinRow: 1, MaxRow: 1, MinCol: 3, MaxCol: 4},
		},
	}

	structure, err := DetectStructure(context.Background(), g, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(structure.MergedCells) != 1 {
		t.Fatalf("merged=%v", structure.MergedCells)
	}
	if structure.MergedCells[0].MaxCol != 4 {
		t.Fatalf("merged region=%+v", structure.MergedCells[0])
	}
}
