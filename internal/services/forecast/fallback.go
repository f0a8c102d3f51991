package forecast

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/stat"

	"FinCast/internal/domain/models"
	"FinCast/internal/services/features"
	"FinCast/pkg/util"
)

const (
	DefaultFallbackWindow = 20
	trendLookback         = 10
)

// Fallback projects a damped trend with small noise from a moving average.
// Noise is seeded from the symbol and last bar date so equal inputs give
// equal outputs.
type Fallback struct {
	window             int
	intervalConfidence float64
}

func NewFallback(window int, intervalConfidence float64) *Fallback {
	if window <= 0 {
		window = DefaultFallbackWindow
	}
	return &Fallback{window: window, intervalConfidence: intervalConfidence}
}

// Forecast needs at least one bar.
func (f *Fallback) Forecast(series *models.PriceSeries, horizon int, now time.Time) (*models.ForecastResult, error) {
	if horizon < 1 {
		return nil, models.ErrInvalidHorizon
	}
	if series.Len() == 0 {
		return nil, models.ErrNotFound
	}

	closes := series.Closes()
	recent := closes
	if len(recent) > f.window {
		recent = recent[len(recent)-f.window:]
	}
	last := series.Last()

	mean, sd := stat.PopMeanStdDev(recent, nil)
	volRatio := 0.0
	if mean != 0 {
		volRatio = sd / mean
	}
	confidence := math.Round(clamp(0.7-volRatio, 0.3, 0.7)*100) / 100

	var trend, dailyVol float64
	if len(recent) >= trendLookback {
		trend, dailyVol = stat.PopMeanStdDev(features.Diffs(recent[len(recent)-trendLookback:]), nil)
	} else {
		dailyVol = volRatio * mean * 0.1
	}

	rng := rand.New(rand.NewSource(seedFor(series.Symbol, last.Date)))
	floor := 0.5 * last.Close
	prices := make([]float64, horizon)
	prev := mean
	for i := range prices {
		next := prev + 0.5*trend + rng.NormFloat64()*0.3*dailyVol
		prev = math.Max(next, floor)
		prices[i] = prev
	}
	prices[0] = last.Close

	return &models.ForecastResult{
		Symbol:             series.Symbol,
		CurrentPrice:       last.Close,
		PredictedPrices:    prices,
		PredictionDates:    util.FormatDates(util.NextTradingDays(last.Date, horizon)),
		Confidence:         confidence,
		PredictionInterval: Interval(closes, prices, f.intervalConfidence),
		Model:              models.ModelSMA,
		ModelUsed:          models.ModelUsedFallback,
		GeneratedAt:        now,
	}, nil
}

func seedFor(symbol string, date time.Time) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	_, _ = h.Write([]byte(util.FormatDate(date)))
	return int64(h.Sum64())
}
