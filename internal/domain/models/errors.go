package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no price history exists for the symbol.
	ErrNotFound = errors.New("symbol not found")
	// ErrInsufficientData means the history is shorter than window plus margin.
	ErrInsufficientData = errors.New("insufficient data")
	ErrTrainingFailure  = errors.New("training failed")
	// ErrTrainingInProgress means no usable model exists yet and one is being trained.
	ErrTrainingInProgress = errors.New("training in progress")
	ErrArtifactNotFound   = errors.New("artifact not found")
	ErrInvalidHorizon     = errors.New("invalid horizon")
)

// PersistenceError wraps an artifact store failure.
type PersistenceError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("artifact %s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
