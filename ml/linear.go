package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// LinearModel is an exported linear regression: intercept + coefficients·x.
type LinearModel struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

func (m *LinearModel) Predict(features []float64) (float64, error) {
	if len(m.Coefficients) == 0 {
		return 0, errors.New("model not loaded")
	}
	if len(features) != len(m.Coefficients) {
		return 0, &ShapeError{Expected: len(m.Coefficients), Got: len(features)}
	}
	y := m.Intercept
	for i, w := range m.Coefficients {
		y += w * features[i]
	}
	return y, nil
}

func (m *LinearModel) NumFeatures() int { return len(m.Coefficients) }

func (m *LinearModel) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var model LinearModel
	if err := json.Unmarshal(payload, &model); err != nil {
		return fmt.Errorf("decode linear model %s: %w", path, err)
	}
	if len(model.Coefficients) == 0 {
		return fmt.Errorf("linear model %s has no coefficients", path)
	}
	*m = model
	return nil
}
