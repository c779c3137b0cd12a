package ml

import "fmt"

// Regressor maps one encoded feature vector to a continuous estimate.
// Implementations are immutable after Load and safe for concurrent use.
type Regressor interface {
	Predict(features []float64) (float64, error)
	NumFeatures() int
}

// ShapeError reports a feature vector whose width does not match the model.
type ShapeError struct {
	Expected int
	Got      int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("feature shape mismatch: model expects %d features, got %d", e.Expected, e.Got)
}
