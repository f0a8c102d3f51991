package usecase

import (
	"sync"
	"time"

	"FinCast/internal/domain/models"
)

// TrainingRegistry tracks the last known training state per symbol for this
// process. It is not persisted.
type TrainingRegistry struct {
	mu  sync.RWMutex
	m   map[string]models.TrainingStatus
	now func() time.Time
}

func NewTrainingRegistry(now func() time.Time) *TrainingRegistry {
	if now == nil {
		now = time.Now
	}
	return &TrainingRegistry{m: make(map[string]models.TrainingStatus), now: now}
}

// Get returns the recorded status, if any.
func (r *TrainingRegistry) Get(symbol string) (models.TrainingStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.m[symbol]
	return st, ok
}

// Set records a transition. err is stored only for StateFailed.
func (r *TrainingRegistry) Set(symbol string, state models.TrainingState, err error) {
	st := models.TrainingStatus{Symbol: symbol, State: state, UpdatedAt: r.now()}
	if err != nil && state == models.StateFailed {
		st.Error = err.Error()
	}
	r.mu.Lock()
	r.m[symbol] = st
	r.mu.Unlock()
}

// Snapshot copies every recorded status.
func (r *TrainingRegistry) Snapshot() map[string]models.TrainingStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]models.TrainingStatus, len(r.m))
	for k, v := range r.m {
		out[k] = v
	}
	return out
}
