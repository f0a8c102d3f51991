package models

import "time"

// ScalerState is the per-channel min and max a model was fitted with.
type ScalerState struct {
	Min [NumChannels]float64 `json:"min"`
	Max [NumChannels]float64 `json:"max"`
}

// ModelMetrics are fit-quality figures. MAE, RMSE and R2 are measured on
// denormalized prices; the losses are on the normalized scale.
type ModelMetrics struct {
	MAE       float64 `json:"mae"`
	RMSE      float64 `json:"rmse"`
	R2        float64 `json:"r2"`
	TrainLoss float64 `json:"train_loss"`
	ValLoss   float64 `json:"val_loss"`
	Epochs    int     `json:"epochs"`
}

// ModelArtifact is a persisted trained model for one symbol.
type ModelArtifact struct {
	Symbol           string       `json:"symbol"`
	Weights          []byte       `json:"weights"`
	Scaler           ScalerState  `json:"scaler"`
	Window           int          `json:"window"`
	TrainedAt        time.Time    `json:"trained_at"`
	LastObservedDate time.Time    `json:"last_observed_date"`
	SampleCount      int          `json:"sample_count"`
	Metrics          ModelMetrics `json:"metrics"`
}
