package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"rentalpricing/dataset"
)

// TargetColumn is the label column of the historical dataset.
const TargetColumn = "rental_price_per_day"

// Metrics summarises regression quality over labelled dataset rows.
type Metrics struct {
	Rows   int     `json:"rows"`
	Failed int     `json:"failed"`
	MAE    float64 `json:"mae"`
	RMSE   float64 `json:"rmse"`
	R2     float64 `json:"r2"`
}

// RequestFromRecord builds a PredictionRequest from a dataset row, applying
// the same checks as an API request. Extra columns such as the target are ignored.
func RequestFromRecord(record dataset.Record) (*PredictionRequest, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	return ParseRequest(payload)
}

// HoldoutSplit returns the trailing fraction of records. A ratio outside
// (0, 1] selects the last 20%.
func HoldoutSplit(records []dataset.Record, ratio float64) []dataset.Record {
	if ratio <= 0 || ratio > 1 {
		ratio = 0.2
	}
	split := int(float64(len(records)) * (1 - ratio))
	return records[split:]
}

// Evaluate scores every record that carries a numeric target. Rows the
// pipeline cannot score are counted in Failed.
func Evaluate(ctx context.Context, svc *Service, records []dataset.Record) (Metrics, error) {
	var m Metrics
	var absSum, sqSum float64
	var actuals []float64

	for _, record := range records {
		actual, ok := numeric(record[TargetColumn])
		if !ok {
			m.Failed++
			continue
		}
		req, err := RequestFromRecord(record)
		if err != nil {
			m.Failed++
			continue
		}
		est, err := svc.Predict(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return m, ctx.Err()
			}
			m.Failed++
			continue
		}
		diff := est.Price - actual
		absSum += math.Abs(diff)
		sqSum += diff * diff
		actuals = append(actuals, actual)
	}

	m.Rows = len(actuals)
	if m.Rows == 0 {
		return m, errors.New("no rows could be scored")
	}
	n := float64(m.Rows)
	m.MAE = absSum / n
	m.RMSE = math.Sqrt(sqSum / n)

	var mean float64
	for _, a := range actuals {
		mean += a
	}
	mean /= n
	var total float64
	for _, a := range actuals {
		total += (a - mean) * (a - mean)
	}
	if total > 0 {
		m.R2 = 1 - sqSum/total
	}
	return m, nil
}

func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	}
	return 0, false
}

func (m Metrics) String() string {
	return fmt.Sprintf("rows=%d failed=%d mae=%.2f rmse=%.2f r2=%.3f", m.Rows, m.Failed, m.MAE, m.RMSE, m.R2)
}
