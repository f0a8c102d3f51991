package models

import "time"

const (
	ModelLSTM = "LSTM-OHLCV"
	ModelSMA  = "SMA"

	ModelUsedPrimary  = "primary"
	ModelUsedFallback = "fallback"
)

// ForecastResult is a multi-step daily forecast.
type ForecastResult struct {
	Symbol             string       `json:"symbol"`
	CurrentPrice       float64      `json:"current_price"`
	PredictedPrices    []float64    `json:"predicted_prices"`
	PredictionDates    []string     `json:"prediction_dates"`
	Confidence         float64      `json:"confidence"`
	PredictionInterval [][2]float64 `json:"prediction_interval"`
	Model              string       `json:"model"`
	ModelUsed          string       `json:"model_used"`
	GeneratedAt        time.Time    `json:"generated_at"`
}

// Horizon returns the number of forecast steps.
func (r *ForecastResult) Horizon() int { return len(r.PredictedPrices) }
