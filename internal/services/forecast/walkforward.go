package forecast

import (
	"fmt"
	"math"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/internal/services/features"
	"FinCast/pkg/util"
)

// Predictor maps one normalized window to the next normalized close.
type Predictor interface {
	Predict(window [][models.NumChannels]float64) (float64, error)
}

// WalkForward produces multi-step forecasts by feeding each predicted close
// back into the model window.
type WalkForward struct {
	confidence         float64
	intervalConfidence float64
}

// NewWalkForward clamps confidence into [0,1].
func NewWalkForward(confidence, intervalConfidence float64) *WalkForward {
	return &WalkForward{
		confidence:         clamp(confidence, 0, 1),
		intervalConfidence: intervalConfidence,
	}
}

// Forecast normalizes the last window with the artifact's scaler (never
// refitted), rolls the model forward horizon steps and maps the result back
// to prices. Volume is carried forward unchanged; the first predicted price
// is pinned to the last observed close.
func (w *WalkForward) Forecast(series *models.PriceSeries, artifact *models.ModelArtifact, model Predictor, horizon int, now time.Time) (*models.ForecastResult, error) {
	if horizon < 1 {
		return nil, models.ErrInvalidHorizon
	}
	if artifact == nil || artifact.Window <= 0 {
		return nil, fmt.Errorf("artifact window must be positive")
	}
	scaler := features.NewScaler(artifact.Scaler)
	window, err := features.LastWindow(series, scaler, artifact.Window)
	if err != nil {
		return nil, err
	}

	seq := make([]features.Vector, len(window), len(window)+horizon)
	copy(seq, window)
	lastVolume := seq[len(seq)-1][4]

	normalized := make([]float64, horizon)
	for step := 0; step < horizon; step++ {
		p, err := model.Predict(seq[len(seq)-artifact.Window:])
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, fmt.Errorf("step %d: non-finite prediction", step)
		}
		normalized[step] = p
		seq = append(seq, features.Vector{p, p, p, p, lastVolume})
	}

	last := series.Last()
	prices := make([]float64, horizon)
	for i, p := range normalized {
		prices[i] = scaler.InverseChannel(models.CloseChannel, p)
	}
	prices[0] = last.Close

	return &models.ForecastResult{
		Symbol:             series.Symbol,
		CurrentPrice:       last.Close,
		PredictedPrices:    prices,
		PredictionDates:    util.FormatDates(util.NextTradingDays(last.Date, horizon)),
		Confidence:         w.confidence,
		PredictionInterval: Interval(series.Closes(), prices, w.intervalConfidence),
		Model:              models.ModelLSTM,
		ModelUsed:          models.ModelUsedPrimary,
		GeneratedAt:        now,
	}, nil
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
