package ml

import (
	"fmt"
	"time"
)

// ArtifactPaths locates the two fitted artifacts of a pipeline.
type ArtifactPaths struct {
	PreprocessorPath string
	ModelType        string
	ModelPath        string
}

// Pipeline pairs a fitted preprocessor with the model trained on its output.
// A loaded pipeline is never modified; reloads build a new one.
type Pipeline struct {
	Preprocessor *ColumnTransformer
	Model        Regressor
	Paths        ArtifactPaths
	LoadedAt     time.Time
}

// LoadPipeline reads both artifacts from disk.
func LoadPipeline(paths ArtifactPaths) (*Pipeline, error) {
	preprocessor, err := LoadPreprocessor(paths.PreprocessorPath)
	if err != nil {
		return nil, fmt.Errorf("load preprocessor: %w", err)
	}
	model, err := LoadModel(paths.ModelType, paths.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if preprocessor.Remainder != KindPassthrough {
		if width := preprocessor.OutputWidth(); width != model.NumFeatures() {
			return nil, fmt.Errorf("preprocessor produces %d features but model expects %d: %w",
				width, model.NumFeatures(), &ShapeError{Expected: model.NumFeatures(), Got: width})
		}
	}
	return &Pipeline{
		Preprocessor: preprocessor,
		Model:        model,
		Paths:        paths,
		LoadedAt:     time.Now(),
	}, nil
}

// Transform applies the preprocessor to frame.
func (p *Pipeline) Transform(frame *Frame) ([][]float64, error) {
	return p.Preprocessor.Transform(frame)
}

// Predict runs the model on one encoded row.
func (p *Pipeline) Predict(features []float64) (float64, error) {
	return p.Model.Predict(features)
}
