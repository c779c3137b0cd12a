package ml

import (
	"encoding/json"
	"fmt"
	"math"
)

// Frame is the tabular input of a preprocessor: named columns and row-major
// values. A prediction request is framed as a single row.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// NewFrame checks that every row has one value per column.
func NewFrame(columns []string, rows ...[]any) (*Frame, error) {
	seen := make(map[string]bool, len(columns))
	for _, name := range columns {
		if seen[name] {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = true
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(columns))
		}
	}
	return &Frame{Columns: columns, Rows: rows}, nil
}

// ColumnIndex returns the position of name in the frame.
func (f *Frame) ColumnIndex(name string) (int, bool) {
	for i, column := range f.Columns {
		if column == name {
			return i, true
		}
	}
	return -1, false
}

// toFloat converts numeric and boolean cells to float64. Booleans encode as 1 and 0.
func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return x.Float64()
	case nil:
		return math.NaN(), nil
	default:
		return 0, fmt.Errorf("value %v of type %T is not numeric", v, v)
	}
}

// categoryOf returns the category label of a cell.
func categoryOf(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case nil:
		return "", fmt.Errorf("missing category value")
	case bool:
		if x {
			return "True", nil
		}
		return "False", nil
	default:
		return fmt.Sprint(x), nil
	}
}
