package models

import "time"

// TrainingState is the lifecycle state of a symbol's model.
type TrainingState string

const (
	StateNoModel  TrainingState = "no_model"
	StateTraining TrainingState = "training"
	StateTrained  TrainingState = "trained"
	StateFailed   TrainingState = "failed"
)

// TrainingStatus is a symbol's current state plus the last transition.
type TrainingStatus struct {
	Symbol    string        `json:"symbol"`
	State     TrainingState `json:"state"`
	UpdatedAt time.Time     `json:"updated_at,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Admission is the outcome of asking to start a training job.
type Admission int

const (
	Admitted Admission = iota
	AlreadyInProgress
	NotNeeded
)

func (a Admission) String() string {
	switch a {
	case Admitted:
		return "admitted"
	case AlreadyInProgress:
		return "already_in_progress"
	case NotNeeded:
		return "not_needed"
	default:
		return "unknown"
	}
}
