package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"rentalpricing/dataset"
	"rentalpricing/ml"
	"rentalpricing/pricing"
)

// Sampler 从历史数据集中抽样预览行
type Sampler interface {
	Sample(ctx context.Context, rows int) ([]dataset.Record, error)
}

// Predictor 对单个已校验请求进行预测
type Predictor interface {
	Predict(ctx context.Context, req *pricing.PredictionRequest) (pricing.Estimate, error)
}

// PipelineStatus 报告当前加载的模型制品
type PipelineStatus interface {
	Current() *ml.Pipeline
}

// Handlers 预览、预测和健康检查处理器
type Handlers struct {
	sampler     Sampler
	predictor   Predictor
	status      PipelineStatus
	logger      *zap.Logger
	defaultRows int
}

func NewHandlers(sampler Sampler, predictor Predictor, status PipelineStatus, defaultRows int, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultRows < 1 {
		defaultRows = 10
	}
	return &Handlers{
		sampler:     sampler,
		predictor:   predictor,
		status:      status,
		logger:      logger,
		defaultRows: defaultRows,
	}
}

func RegisterHandlers(mux *http.ServeMux, h *Handlers) {
	mux.HandleFunc("GET /{$}", h.handlePreview)
	mux.HandleFunc("GET /preview", h.handlePreview)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("GET /health", h.handleHealth)
}

type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *Handlers) handlePreview(w http.ResponseWriter, r *http.Request) {
	rows := h.defaultRows
	if raw := r.URL.Query().Get("rows"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{
				Error:   "invalid request",
				Details: []pricing.FieldError{{Field: "rows", Reason: "must be a positive integer"}},
			})
			return
		}
		rows = n
	}

	records, err := h.sampler.Sample(r.Context(), rows)
	if err != nil {
		var exceed *dataset.RowsExceedError
		switch {
		case errors.As(err, &exceed):
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request", Details: exceed.Error()})
		case errors.Is(err, dataset.ErrInvalidRows):
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "invalid request", Details: err.Error()})
		case errors.Is(err, context.DeadlineExceeded):
			h.logger.Error("dataset fetch timed out", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
			writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: "dataset unavailable", Details: "timed out loading the dataset"})
		default:
			h.logger.Error("dataset fetch failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
			writeJSON(w, http.StatusBadGateway, errorBody{Error: "dataset unavailable", Details: err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, records)
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	req, err := pricing.DecodeRequest(r.Body)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large", Details: tooLarge.Limit})
		return
	}
	if err != nil {
		status, body := h.predictionResponse(r.Context(), pricing.Estimate{}, err)
		writeJSON(w, status, body)
		return
	}
	est, err := h.predictor.Predict(r.Context(), req)
	status, body := h.predictionResponse(r.Context(), est, err)
	writeJSON(w, status, body)
}

// predictionResponse maps a prediction outcome to the status and body shared
// by /predict and the WebSocket endpoint.
func (h *Handlers) predictionResponse(ctx context.Context, est pricing.Estimate, err error) (int, any) {
	if err == nil {
		return http.StatusOK, []string{est.Message()}
	}

	var valErr *pricing.ValidationError
	if errors.As(err, &valErr) {
		return http.StatusUnprocessableEntity, errorBody{Error: "invalid request", Details: valErr.Fields}
	}

	fields := []zap.Field{zap.String("request_id", GetRequestID(ctx)), zap.Error(err)}
	var pipeErr *pricing.PipelineError
	if errors.As(err, &pipeErr) {
		fields = append(fields, zap.String("stage", pipeErr.Stage))
	}
	h.logger.Warn("prediction failed", fields...)
	return http.StatusOK, messageBody{Message: pricing.DiagnosticMessage}
}

type healthBody struct {
	Status         string     `json:"status"`
	PipelineLoaded bool       `json:"pipeline_loaded"`
	LoadedAt       *time.Time `json:"loaded_at,omitempty"`
	ModelType      string     `json:"model_type,omitempty"`
	NumFeatures    int        `json:"num_features,omitempty"`
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := healthBody{Status: "ok"}
	if h.status != nil {
		if p := h.status.Current(); p != nil {
			loadedAt := p.LoadedAt
			body.PipelineLoaded = true
			body.LoadedAt = &loadedAt
			body.ModelType = p.Paths.ModelType
			body.NumFeatures = p.Model.NumFeatures()
		}
	}
	writeJSON(w, http.StatusOK, body)
}
