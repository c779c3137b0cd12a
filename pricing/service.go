package pricing

import (
	"context"
	"fmt"
	"math"

	"rentalpricing/ml"
)

// PriceLabel prefixes every successful estimate.
const PriceLabel = "Predicted daily rental price for your car"

// DiagnosticMessage is the user-facing answer to any pipeline failure.
const DiagnosticMessage = `Error! Please check your input. It should be in json format. Example input:

    "model_key": "Volkswagen",
    "mileage": 17500,
    "engine_power": 190,
    "fuel": "diesel",
    "paint_color": "black",
    "car_type": "convertible",
    "private_parking_available": true,
    "has_gps": true,
    "has_air_conditioning": true,
    "automatic_car": true,
    "has_getaround_connect": true,
    "has_speed_regulator": true,
    "winter_tires": true
`

// Pipeline stages reported by PipelineError.
const (
	StageLoad       = "load"
	StageFrame      = "frame"
	StagePreprocess = "preprocess"
	StagePredict    = "predict"
)

// PipelineError is any failure after validation. Clients only ever see
// DiagnosticMessage; Stage and Err are for logs.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Estimate is a successful prediction.
type Estimate struct {
	Price float64
}

// Message formats the estimate for clients.
func (e Estimate) Message() string {
	return FormatPrice(e.Price)
}

// FormatPrice renders a price rounded to two decimals.
func FormatPrice(price float64) string {
	return fmt.Sprintf("%s: %.2f USD", PriceLabel, price)
}

// PipelineProvider hands out the current preprocessor/model pair.
type PipelineProvider interface {
	Get() (*ml.Pipeline, error)
}

// Service runs validated requests through the loaded pipeline.
type Service struct {
	pipelines PipelineProvider
}

func NewService(pipelines PipelineProvider) *Service {
	return &Service{pipelines: pipelines}
}

// Predict validates req, then frames, preprocesses and scores it. The error
// is a *ValidationError or a *PipelineError.
func (s *Service) Predict(ctx context.Context, req *PredictionRequest) (est Estimate, err error) {
	if req == nil {
		return Estimate{}, &ValidationError{Fields: []FieldError{{Field: "body", Reason: "request body is empty"}}}
	}
	if err := req.Validate(); err != nil {
		return Estimate{}, err
	}

	stage := StageLoad
	defer func() {
		if r := recover(); r != nil {
			est = Estimate{}
			err = &PipelineError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := ctx.Err(); err != nil {
		return Estimate{}, &PipelineError{Stage: stage, Err: err}
	}
	pipeline, err := s.pipelines.Get()
	if err != nil {
		return Estimate{}, &PipelineError{Stage: stage, Err: err}
	}

	stage = StageFrame
	frame, err := req.Frame()
	if err != nil {
		return Estimate{}, &PipelineError{Stage: stage, Err: err}
	}

	stage = StagePreprocess
	rows, err := pipeline.Transform(frame)
	if err != nil {
		return Estimate{}, &PipelineError{Stage: stage, Err: err}
	}
	if len(rows) != 1 {
		return Estimate{}, &PipelineError{Stage: stage, Err: fmt.Errorf("expected 1 encoded row, got %d", len(rows))}
	}

	stage = StagePredict
	price, err := pipeline.Predict(rows[0])
	if err != nil {
		return Estimate{}, &PipelineError{Stage: stage, Err: err}
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return Estimate{}, &PipelineError{Stage: stage, Err: fmt.Errorf("model returned %v", price)}
	}
	return Estimate{Price: price}, nil
}
