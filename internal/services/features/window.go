package features

import (
	"fmt"

	"FinCast/internal/domain/models"
	"FinCast/internal/domain/service"
)

const (
	DefaultWindow = 60
	DefaultMargin = 10
)

// Dataset is the windowed, normalized training sample for one series.
type Dataset struct {
	Samples []service.Sample
	Scaler  *Scaler
}

// BuildDataset fits a scaler over the whole series and emits len-window
// examples, each a window of normalized bars with the next bar's normalized
// close as target. A series shorter than window+margin is rejected.
func BuildDataset(series *models.PriceSeries, window, margin int) (*Dataset, error) {
	n := series.Len()
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %d", window)
	}
	if n < window+margin {
		return nil, fmt.Errorf("%s has %d bars, need %d: %w", series.Symbol, n, window+margin, models.ErrInsufficientData)
	}

	scaler := FitScaler(series.Bars)
	norm := scaler.TransformBars(series.Bars)

	samples := make([]service.Sample, 0, n-window)
	for i := window; i < n; i++ {
		samples = append(samples, service.Sample{
			Window: norm[i-window : i],
			Target: norm[i][models.CloseChannel],
		})
	}
	return &Dataset{Samples: samples, Scaler: scaler}, nil
}

// LastWindow normalizes the last window bars with an existing scaler.
func LastWindow(series *models.PriceSeries, scaler *Scaler, window int) ([]Vector, error) {
	if series.Len() < window {
		return nil, fmt.Errorf("%s has %d bars, need %d: %w", series.Symbol, series.Len(), window, models.ErrInsufficientData)
	}
	return scaler.TransformBars(series.Tail(window)), nil
}
