package models

import "time"

const (
	EventTrainingCompleted = "training.completed"
	EventTrainingFailed    = "training.failed"
	EventForecastServed    = "forecast.served"
)

// Event is the envelope published on the events topic.
type Event struct {
	Type       string        `json:"type"`
	Symbol     string        `json:"symbol"`
	OccurredAt time.Time     `json:"occurred_at"`
	Metrics    *ModelMetrics `json:"metrics,omitempty"`
	DurationMs int64         `json:"duration_ms,omitempty"`
	Error      string        `json:"error,omitempty"`
	ModelUsed  string        `json:"model_used,omitempty"`
	Horizon    int           `json:"horizon,omitempty"`
}

// TrainRequest is the payload accepted on the train topic.
type TrainRequest struct {
	Symbol string `json:"symbol"`
}
