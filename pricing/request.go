package pricing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"rentalpricing/ml"
)

// PredictionRequest is the feature set of one vehicle. Field order is the
// column order the preprocessor was fitted on.
type PredictionRequest struct {
	ModelKey                *string  `json:"model_key" validate:"required"`
	Mileage                 *float64 `json:"mileage" validate:"required"`
	EnginePower             *float64 `json:"engine_power" validate:"required"`
	Fuel                    *string  `json:"fuel" validate:"required"`
	PaintColor              *string  `json:"paint_color" validate:"required"`
	CarType                 *string  `json:"car_type" validate:"required"`
	PrivateParkingAvailable *bool    `json:"private_parking_available" validate:"required"`
	HasGPS                  *bool    `json:"has_gps" validate:"required"`
	HasAirConditioning      *bool    `json:"has_air_conditioning" validate:"required"`
	AutomaticCar            *bool    `json:"automatic_car" validate:"required"`
	HasGetaroundConnect     *bool    `json:"has_getaround_connect" validate:"required"`
	HasSpeedRegulator       *bool    `json:"has_speed_regulator" validate:"required"`
	WinterTires             *bool    `json:"winter_tires" validate:"required"`
}

// Columns lists the request fields in declaration order.
var Columns = jsonNames(reflect.TypeOf(PredictionRequest{}))

func jsonNames(t reflect.Type) []string {
	names := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		names = append(names, name)
	}
	return names
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError is returned for a request that is structurally invalid.
// The pipeline is never invoked for such requests.
type ValidationError struct {
	Fields []FieldError
	Err    error
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Reason
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return e.Err }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeRequest reads one JSON PredictionRequest. Unknown fields are ignored;
// missing, null and mistyped fields, or anything but whitespace after the
// object, produce a *ValidationError.
func DecodeRequest(r io.Reader) (*PredictionRequest, error) {
	var req PredictionRequest
	dec := json.NewDecoder(r)
	if err := dec.Decode(&req); err != nil {
		return nil, decodeError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, &ValidationError{
			Fields: []FieldError{{Field: "body", Reason: "unexpected data after JSON object"}},
			Err:    err,
		}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// ParseRequest is DecodeRequest for an in-memory payload.
func ParseRequest(payload []byte) (*PredictionRequest, error) {
	return DecodeRequest(bytes.NewReader(payload))
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return &ValidationError{Fields: []FieldError{{
			Field:  field,
			Reason: fmt.Sprintf("expected %s, got JSON %s", typeName(typeErr.Type), typeErr.Value),
		}}}
	case errors.As(err, &syntaxErr):
		return &ValidationError{Fields: []FieldError{{Field: "body", Reason: "malformed JSON: " + err.Error()}}}
	case errors.Is(err, io.EOF):
		return &ValidationError{Fields: []FieldError{{Field: "body", Reason: "request body is empty"}}}
	default:
		return &ValidationError{Fields: []FieldError{{Field: "body", Reason: err.Error()}}, Err: err}
	}
}

func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.String:
		return "string"
	case reflect.Struct:
		return "object"
	}
	return t.String()
}

// Validate checks that every field is present.
func (r *PredictionRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		reason := "failed " + fe.Tag()
		if fe.Tag() == "required" {
			reason = "field required"
		}
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Reason: reason})
	}
	return out
}

// Frame converts the request into the single-row table the preprocessor expects.
// The request must have passed Validate.
func (r *PredictionRequest) Frame() (*ml.Frame, error) {
	row := []any{
		*r.ModelKey,
		*r.Mileage,
		*r.EnginePower,
		*r.Fuel,
		*r.PaintColor,
		*r.CarType,
		*r.PrivateParkingAvailable,
		*r.HasGPS,
		*r.HasAirConditioning,
		*r.AutomaticCar,
		*r.HasGetaroundConnect,
		*r.HasSpeedRegulator,
		*r.WinterTires,
	}
	return ml.NewFrame(Columns, row)
}
