// Package dataset loads the historical rentals table and draws random previews from it.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Record is one row keyed by column name.
type Record map[string]any

// Frame is a loaded table. Frames may be shared between requests through the
// cache and must not be mutated after load.
type Frame struct {
	Columns []string
	Rows    []Record
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// ParseCSV reads a comma separated table with a header line. A leading unnamed
// column holds the row index written by pandas and is dropped. Cell values are
// typed: empty and NaN become nil, then int64, float64, bool, string.
func ParseCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv is empty")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	skip := 0
	if len(header) > 0 && isIndexColumn(header[0]) {
		skip = 1
	}
	columns := make([]string, 0, len(header)-skip)
	for _, name := range header[skip:] {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.New("csv header has an empty column name")
		}
		columns = append(columns, name)
	}
	if len(columns) == 0 {
		return nil, errors.New("csv header has no data columns")
	}

	frame := &Frame{Columns: columns}
	line := 1
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		record := make(Record, len(columns))
		for i, name := range columns {
			record[name] = parseCell(fields[i+skip])
		}
		frame.Rows = append(frame.Rows, record)
	}
	return frame, nil
}

func isIndexColumn(name string) bool {
	name = strings.TrimSpace(name)
	return name == "" || strings.HasPrefix(name, "Unnamed: ")
}

func parseCell(raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	}
	switch s {
	case "True", "true", "TRUE":
		return true
	case "False", "false", "FALSE":
		return false
	}
	return s
}
