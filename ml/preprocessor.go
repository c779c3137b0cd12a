package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Transformer kinds understood by ColumnTransformer.
const (
	KindOneHot         = "onehot"
	KindStandardScaler = "standard_scaler"
	KindPassthrough    = "passthrough"
)

// UnknownCategoryError is returned when a onehot column sees a value that was
// not present at fit time and unknown values are not ignored.
type UnknownCategoryError struct {
	Column string
	Value  string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown category %q for column %q", e.Value, e.Column)
}

// ColumnTransformer is a fitted preprocessing step exported as JSON. Each
// transformer encodes its columns; outputs are concatenated in list order and
// the remainder (columns not named by any transformer) is dropped or passed
// through at the end.
type ColumnTransformer struct {
	Kind         string        `json:"kind"`
	Transformers []Transformer `json:"transformers"`
	Remainder    string        `json:"remainder"`
}

type Transformer struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Columns []string `json:"columns"`

	// onehot
	Categories    [][]string `json:"categories,omitempty"`
	HandleUnknown string     `json:"handle_unknown,omitempty"`
	Drop          string     `json:"drop,omitempty"`

	// standard_scaler
	Mean  []float64 `json:"mean,omitempty"`
	Scale []float64 `json:"scale,omitempty"`

	index []map[string]int
}

// LoadPreprocessor reads and validates a ColumnTransformer artifact.
func LoadPreprocessor(path string) (*ColumnTransformer, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ct ColumnTransformer
	if err := json.Unmarshal(payload, &ct); err != nil {
		return nil, fmt.Errorf("decode preprocessor %s: %w", path, err)
	}
	if err := ct.init(); err != nil {
		return nil, fmt.Errorf("invalid preprocessor %s: %w", path, err)
	}
	return &ct, nil
}

func (ct *ColumnTransformer) init() error {
	if ct.Kind != "" && ct.Kind != "column_transformer" {
		return fmt.Errorf("unsupported preprocessor kind %q", ct.Kind)
	}
	switch ct.Remainder {
	case "":
		ct.Remainder = "drop"
	case "drop", KindPassthrough:
	default:
		return fmt.Errorf("unsupported remainder %q", ct.Remainder)
	}
	if len(ct.Transformers) == 0 {
		return errors.New("no transformers")
	}

	for i := range ct.Transformers {
		t := &ct.Transformers[i]
		if len(t.Columns) == 0 {
			return fmt.Errorf("transformer %q has no columns", t.Name)
		}
		switch t.Kind {
		case KindOneHot:
			if len(t.Categories) != len(t.Columns) {
				return fmt.Errorf("transformer %q: %d category lists for %d columns", t.Name, len(t.Categories), len(t.Columns))
			}
			switch t.HandleUnknown {
			case "":
				t.HandleUnknown = "error"
			case "error", "ignore":
			default:
				return fmt.Errorf("transformer %q: unsupported handle_unknown %q", t.Name, t.HandleUnknown)
			}
			switch t.Drop {
			case "", "first", "if_binary":
			default:
				return fmt.Errorf("transformer %q: unsupported drop %q", t.Name, t.Drop)
			}
			t.index = make([]map[string]int, len(t.Categories))
			for c, cats := range t.Categories {
				if len(cats) == 0 {
					return fmt.Errorf("transformer %q: column %q has no categories", t.Name, t.Columns[c])
				}
				t.index[c] = make(map[string]int, len(cats))
				for k, cat := range cats {
					t.index[c][cat] = k
				}
			}
		case KindStandardScaler:
			if t.Mean == nil {
				t.Mean = make([]float64, len(t.Columns))
			}
			if t.Scale == nil {
				t.Scale = make([]float64, len(t.Columns))
				for k := range t.Scale {
					t.Scale[k] = 1
				}
			}
			if len(t.Mean) != len(t.Columns) || len(t.Scale) != len(t.Columns) {
				return fmt.Errorf("transformer %q: mean/scale length does not match %d columns", t.Name, len(t.Columns))
			}
		case KindPassthrough:
		default:
			return fmt.Errorf("transformer %q: unsupported kind %q", t.Name, t.Kind)
		}
	}
	return nil
}

// Transform encodes every row of frame into a numeric feature vector.
func (ct *ColumnTransformer) Transform(frame *Frame) ([][]float64, error) {
	positions := make([][]int, len(ct.Transformers))
	used := make(map[string]bool)
	for i, t := range ct.Transformers {
		positions[i] = make([]int, len(t.Columns))
		for c, name := range t.Columns {
			idx, ok := frame.ColumnIndex(name)
			if !ok {
				return nil, fmt.Errorf("column %q required by transformer %q is missing", name, t.Name)
			}
			positions[i][c] = idx
			used[name] = true
		}
	}
	var remainder []int
	if ct.Remainder == KindPassthrough {
		for idx, name := range frame.Columns {
			if !used[name] {
				remainder = append(remainder, idx)
			}
		}
	}

	out := make([][]float64, len(frame.Rows))
	for r, row := range frame.Rows {
		vector := make([]float64, 0, len(row))
		for i := range ct.Transformers {
			var err error
			vector, err = ct.Transformers[i].apply(vector, row, positions[i])
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", r, err)
			}
		}
		for _, idx := range remainder {
			v, err := toFloat(row[idx])
			if err != nil {
				return nil, fmt.Errorf("row %d: column %q: %w", r, frame.Columns[idx], err)
			}
			vector = append(vector, v)
		}
		out[r] = vector
	}
	return out, nil
}

func (t *Transformer) apply(vector []float64, row []any, positions []int) ([]float64, error) {
	switch t.Kind {
	case KindOneHot:
		for c, pos := range positions {
			label, err := categoryOf(row[pos])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", t.Columns[c], err)
			}
			hot, known := t.index[c][label]
			if !known && t.HandleUnknown == "error" {
				return nil, &UnknownCategoryError{Column: t.Columns[c], Value: label}
			}
			first := t.dropsFirst(c)
			for k := range t.Categories[c] {
				if first && k == 0 {
					continue
				}
				if known && k == hot {
					vector = append(vector, 1)
				} else {
					vector = append(vector, 0)
				}
			}
		}
	case KindStandardScaler:
		for c, pos := range positions {
			v, err := toFloat(row[pos])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", t.Columns[c], err)
			}
			scale := t.Scale[c]
			if scale == 0 {
				scale = 1
			}
			vector = append(vector, (v-t.Mean[c])/scale)
		}
	case KindPassthrough:
		for c, pos := range positions {
			v, err := toFloat(row[pos])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", t.Columns[c], err)
			}
			vector = append(vector, v)
		}
	}
	return vector, nil
}

func (t *Transformer) dropsFirst(column int) bool {
	switch t.Drop {
	case "first":
		return true
	case "if_binary":
		return len(t.Categories[column]) == 2
	}
	return false
}

// FeatureNames lists output features in order, named like
// "<transformer>__<column>_<category>". Remainder columns are not included.
func (ct *ColumnTransformer) FeatureNames() []string {
	var names []string
	for i := range ct.Transformers {
		t := &ct.Transformers[i]
		for c, column := range t.Columns {
			if t.Kind != KindOneHot {
				names = append(names, t.Name+"__"+column)
				continue
			}
			for k, cat := range t.Categories[c] {
				if k == 0 && t.dropsFirst(c) {
					continue
				}
				names = append(names, t.Name+"__"+column+"_"+cat)
			}
		}
	}
	return names
}

// OutputWidth is the number of features produced per row, excluding any
// remainder columns.
func (ct *ColumnTransformer) OutputWidth() int {
	return len(ct.FeatureNames())
}
