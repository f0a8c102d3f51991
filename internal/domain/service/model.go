package service

import (
	"context"

	"FinCast/internal/domain/models"
)

// Sample is one supervised example: a window of normalized feature vectors
// and the normalized close that follows it.
type Sample struct {
	Window [][models.NumChannels]float64
	Target float64
}

// FitResult summarizes a completed fit.
type FitResult struct {
	TrainLoss float64
	ValLoss   float64
	Epochs    int
}

// SequenceModel maps a window of feature vectors to the next normalized close.
type SequenceModel interface {
	Fit(ctx context.Context, samples []Sample) (FitResult, error)
	Predict(window [][models.NumChannels]float64) (float64, error)
	MarshalBinary() ([]byte, error)
}

// ModelFactory builds fresh models for training and restores persisted ones.
type ModelFactory interface {
	New(seed int64) SequenceModel
	Restore(blob []byte) (SequenceModel, error)
}
