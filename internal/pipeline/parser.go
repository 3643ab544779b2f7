package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"sheetmap/internal"
)

var (
	rePercent = regexp.MustCompile(`^(-?[\d,]+\.?\d*)\s*%$`)
	reNumber  = regexp.MustCompile(`^-?[\d,]+\.?\d*$`)
	absentSet = map[string]struct{}{"N/A": {}, "NA": {}, "NULL": {}, "NONE": {}, "-": {}}
)

// ParseValue deterministically parses a raw cell value. No network, no
// lookups: only string rules, applied in order, first match wins.
//
//	nil / blank                  -> nil
//	N/A, NA, NULL, NONE, -       -> nil
//	YES / NO                     -> 1.0 / 0.0
//	"85%"                        -> 0.85
//	"1,234.56"                   -> 1234.56
//	anything else                -> trimmed original string
//
// Total function: unparseable text is preserved verbatim, never rejected.
func ParseValue(raw any) any {
	if raw == nil {
		return nil
	}

	var str string
	switch v := raw.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case bool:
		str = strconv.FormatBool(v)
	case string:
		str = v
	default:
		str = fmt.Sprintf("%v", v)
	}

	str = strings.TrimSpace(str)
	if str == "" {
		return nil
	}

	upper := strings.ToUpper(str)
	if _, ok := absentSet[upper]; ok {
		return nil
	}
	if upper == "YES" {
		return 1.0
	}
	if upper == "NO" {
		return 0.0
	}

	if m := rePercent.FindStringSubmatch(str); m != nil {
		numeric := strings.ReplaceAll(m[1], ",", "")
		if n, err := strconv.ParseFloat(numeric, 64); err == nil {
			return n / 100.0
		}
		return str
	}

	if reNumber.MatchString(str) {
		numeric := strings.ReplaceAll(str, ",", "")
		if n, err := strconv.ParseFloat(numeric, 64); err == nil {
			return n
		}
		return str
	}

	return str
}

// ParseRow parses a whole data row against its header mappings, producing one
// ParsedCell per column position. Positions run to max(values, mappings):
// a missing value is treated as absent, a missing mapping is synthesized as
// Column_<i> with method none, so every cell stays auditable even for ragged
// input. One bad cell never aborts the row.
func ParseRow(values []any, mappings []internal.HeaderMapping, rowIndex int) []internal.ParsedCell {
	count := len(values)
	if len(mappings) > count {
		count = len(mappings)
	}

	cells := make([]internal.ParsedCell, 0, count)
	for col := 0; col < count; col++ {
		var value any
		if col < len(values) {
			value = values[col]
		}

		var mapping internal.HeaderMapping
		if col < len(mappings) {
			mapping = mappings[col]
		} else {
			mapping = internal.HeaderMapping{
				OriginalHeader: fmt.Sprintf("Column_%d", col),
				Method:         internal.MethodNone,
				Confidence:     internal.ConfidenceLow,
			}
		}

		cells = append(cells, parseCell(value, mapping, rowIndex, col))
	}
	return cells
}

func parseCell(value any, mapping internal.HeaderMapping, rowIndex, colIndex int) (cell internal.ParsedCell) {
	cell = internal.ParsedCell{
		RowIndex:      rowIndex,
		ColumnIndex:   colIndex,
		OriginalValue: value,
		HeaderMapping: mapping,
		ParseSuccess:  true,
	}

	// ParseValue itself is total, but the raw value may be an arbitrary
	// type from a decoder; keep the failure contained to this one cell.
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("parse cell: %v", r)
			cell.ParsedValue = nil
			cell.ParseSuccess = false
			cell.ParseError = &msg
		}
	}()

	cell.ParsedValue = ParseValue(value)
	return cell
}
