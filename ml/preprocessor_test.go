package ml

import (
	"errors"
	"math"
	"testing"
)

var exampleColumns = []string{
	"model_key", "mileage", "engine_power", "fuel", "paint_color", "car_type",
	"private_parking_available", "has_gps", "has_air_conditioning", "automatic_car",
	"has_getaround_connect", "has_speed_regulator", "winter_tires",
}

func exampleFrame(t *testing.T) *Frame {
	t.Helper()
	frame, err := NewFrame(exampleColumns,
		[]any{"Volkswagen", 17500, 190, "diesel", "black", "convertible", true, true, true, true, true, true, true},
	)
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	return frame
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestColumnTransformerExample(t *testing.T) {
	ct, err := LoadPreprocessor("testdata/preprocessor.json")
	if err != nil {
		t.Fatalf("LoadPreprocessor: %v", err)
	}
	out, err := ct.Transform(exampleFrame(t))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	want := []float64{
		0, 0, 1, // model_key
		1, 0, // fuel
		1, 0, 0, // paint_color
		1, 0, 0, // car_type
		(17500 - 140000) / 60000.0, 1.5,
		1, 1, 1, 1, 1, 1, 1,
	}
	if len(out) != 1 || len(out[0]) != len(want) {
		t.Fatalf("unexpected shape %d x %d", len(out), len(out[0]))
	}
	for i := range want {
		if !almostEqual(out[0][i], want[i]) {
			t.Fatalf("feature %d: expected %v, got %v", i, want[i], out[0][i])
		}
	}
	if ct.OutputWidth() != 20 {
		t.Fatalf("expected width 20, got %d", ct.OutputWidth())
	}
}

func TestColumnTransformerUnknownCategory(t *testing.T) {
	newCT := func(handle string) *ColumnTransformer {
		ct := &ColumnTransformer{Transformers: []Transformer{{
			Name:          "cat",
			Kind:          KindOneHot,
			Columns:       []string{"fuel"},
			Categories:    [][]string{{"diesel", "petrol"}},
			HandleUnknown: handle,
		}}}
		if err := ct.init(); err != nil {
			t.Fatalf("init: %v", err)
		}
		return ct
	}
	frame, _ := NewFrame([]string{"fuel"}, []any{"electro"})

	out, err := newCT("ignore").Transform(frame)
	if err != nil {
		t.Fatalf("ignore: %v", err)
	}
	if out[0][0] != 0 || out[0][1] != 0 {
		t.Fatalf("expected all-zero encoding, got %v", out[0])
	}

	_, err = newCT("").Transform(frame)
	var unknown *UnknownCategoryError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownCategoryError, got %v", err)
	}
	if unknown.Column != "fuel" || unknown.Value != "electro" {
		t.Fatalf("unexpected error fields: %+v", unknown)
	}
}

func TestColumnTransformerDrop(t *testing.T) {
	tests := []struct {
		drop  string
		cats  []string
		input string
		want  []float64
	}{
		{"", []string{"a", "b"}, "b", []float64{0, 1}},
		{"first", []string{"a", "b", "c"}, "c", []float64{0, 1}},
		{"first", []string{"a", "b", "c"}, "a", []float64{0, 0}},
		{"if_binary", []string{"a", "b"}, "b", []float64{1}},
		{"if_binary", []string{"a", "b", "c"}, "b", []float64{0, 1, 0}},
	}
	for _, tt := range tests {
		ct := &ColumnTransformer{Transformers: []Transformer{{
			Name: "cat", Kind: KindOneHot, Columns: []string{"x"},
			Categories: [][]string{tt.cats}, Drop: tt.drop,
		}}}
		if err := ct.init(); err != nil {
			t.Fatalf("init: %v", err)
		}
		frame, _ := NewFrame([]string{"x"}, []any{tt.input})
		out, err := ct.Transform(frame)
		if err != nil {
			t.Fatalf("drop %q: %v", tt.drop, err)
		}
		if len(out[0]) != len(tt.want) || ct.OutputWidth() != len(tt.want) {
			t.Fatalf("drop %q: expected %v, got %v", tt.drop, tt.want, out[0])
		}
		for i := range tt.want {
			if out[0][i] != tt.want[i] {
				t.Fatalf("drop %q: expected %v, got %v", tt.drop, tt.want, out[0])
			}
		}
	}
}

func TestColumnTransformerRemainder(t *testing.T) {
	ct := &ColumnTransformer{
		Remainder: KindPassthrough,
		Transformers: []Transformer{{
			Name: "num", Kind: KindStandardScaler, Columns: []string{"a"},
			Mean: []float64{1}, Scale: []float64{0},
		}},
	}
	if err := ct.init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	frame, _ := NewFrame([]string{"b", "a", "c"}, []any{int64(7), 3.0, false})
	out, err := ct.Transform(frame)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	want := []float64{2, 7, 0}
	for i := range want {
		if out[0][i] != want[i] {
			t.Fatalf("expected %v, got %v", want, out[0])
		}
	}
}

func TestColumnTransformerErrors(t *testing.T) {
	ct, err := LoadPreprocessor("testdata/preprocessor.json")
	if err != nil {
		t.Fatalf("LoadPreprocessor: %v", err)
	}
	missing, _ := NewFrame([]string{"model_key"}, []any{"Renault"})
	if _, err := ct.Transform(missing); err == nil {
		t.Fatalf("expected missing column error")
	}

	frame := exampleFrame(t)
	frame.Rows[0][1] = "many"
	if _, err := ct.Transform(frame); err == nil {
		t.Fatalf("expected non-numeric error")
	}

	frame = exampleFrame(t)
	frame.Rows[0][0] = nil
	if _, err := ct.Transform(frame); err == nil {
		t.Fatalf("expected missing category error")
	}

	invalid := []*ColumnTransformer{
		{},
		{Remainder: "scale", Transformers: []Transformer{{Name: "p", Kind: KindPassthrough, Columns: []string{"a"}}}},
		{Transformers: []Transformer{{Name: "p", Kind: "binarizer", Columns: []string{"a"}}}},
		{Transformers: []Transformer{{Name: "p", Kind: KindPassthrough}}},
		{Transformers: []Transformer{{Name: "c", Kind: KindOneHot, Columns: []string{"a", "b"}, Categories: [][]string{{"x"}}}}},
		{Transformers: []Transformer{{Name: "s", Kind: KindStandardScaler, Columns: []string{"a"}, Mean: []float64{1, 2}}}},
	}
	for i, ct := range invalid {
		if err := ct.init(); err == nil {
			t.Fatalf("case %d: expected init error", i)
		}
	}
}

func TestFeatureNames(t *testing.T) {
	ct, err := LoadPreprocessor("testdata/preprocessor.json")
	if err != nil {
		t.Fatalf("LoadPreprocessor: %v", err)
	}
	names := ct.FeatureNames()
	if names[0] != "cat__model_key_Citroën" || names[11] != "num__mileage" || names[19] != "flags__winter_tires" {
		t.Fatalf("unexpected feature names: %v", names)
	}
}

func TestNewFrame(t *testing.T) {
	if _, err := NewFrame([]string{"a", "a"}); err == nil {
		t.Fatalf("expected duplicate column error")
	}
	if _, err := NewFrame([]string{"a", "b"}, []any{1}); err == nil {
		t.Fatalf("expected row width error")
	}
}
