package usecase

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/internal/domain/service"
	"FinCast/internal/services/forecast"
	"FinCast/pkg/logger"
	"FinCast/pkg/util"
)

var ny = util.NewMarketClock(util.DefaultMarketTimezone, nil)

// afterClose is a Tuesday at 17:00 New York time.
var afterClose = time.Date(2024, 3, 5, 17, 0, 0, 0, ny.Location())

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func makeSeries(symbol string, n int) *models.PriceSeries {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	for i := range bars {
		c := 100 + 5*math.Sin(float64(i)/5)
		bars[i] = models.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   c - 0.5,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1e6 + float64(i%3)*1e4,
		}
	}
	return &models.PriceSeries{Symbol: symbol, Bars: bars}
}

type fakeHistory struct {
	mu     sync.Mutex
	series map[string]*models.PriceSeries
	calls  int
}

func (h *fakeHistory) GetHistory(_ context.Context, symbol, _ string) (*models.PriceSeries, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	s, ok := h.series[symbol]
	if !ok {
		return nil, models.ErrNotFound
	}
	return s, nil
}

type fakeStore struct {
	mu      sync.Mutex
	m       map[string]*models.ModelArtifact
	loadErr error
	saves   int
}

func newFakeStore() *fakeStore { return &fakeStore{m: make(map[string]*models.ModelArtifact)} }

func (s *fakeStore) Load(_ context.Context, symbol string) (*models.ModelArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, &models.PersistenceError{Op: "load", Symbol: symbol, Err: s.loadErr}
	}
	a, ok := s.m[symbol]
	if !ok {
		return nil, models.ErrArtifactNotFound
	}
	return a, nil
}

func (s *fakeStore) Save(_ context.Context, a *models.ModelArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[a.Symbol] = a
	s.saves++
	return nil
}

func (s *fakeStore) Delete(_ context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, symbol)
	return nil
}

func (s *fakeStore) Health(context.Context) error { return nil }

func (s *fakeStore) get(symbol string) *models.ModelArtifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[symbol]
}

// persistModel predicts the last close of its window.
type persistModel struct {
	fitErr   error
	fitPanic bool
}

func (m *persistModel) Fit(context.Context, []service.Sample) (service.FitResult, error) {
	if m.fitPanic {
		panic("boom")
	}
	if m.fitErr != nil {
		return service.FitResult{}, m.fitErr
	}
	return service.FitResult{TrainLoss: 0.01, ValLoss: 0.02, Epochs: 1}, nil
}

func (m *persistModel) Predict(w [][models.NumChannels]float64) (float64, error) {
	return w[len(w)-1][models.CloseChannel], nil
}

func (m *persistModel) MarshalBinary() ([]byte, error) { return []byte("persist"), nil }

type fakeFactory struct {
	fitErr     error
	restoreErr error
	mu         sync.Mutex
	built      int
}

func (f *fakeFactory) New(int64) service.SequenceModel {
	f.mu.Lock()
	f.built++
	f.mu.Unlock()
	return &persistModel{fitErr: f.fitErr}
}

func (f *fakeFactory) Restore([]byte) (service.SequenceModel, error) {
	if f.restoreErr != nil {
		return nil, f.restoreErr
	}
	return &persistModel{}, nil
}

type nopMetrics struct{}

func (nopMetrics) RecordForecast(string, string)                {}
func (nopMetrics) RecordTraining(string, string, time.Duration) {}
func (nopMetrics) RecordError(string)                           {}
func (nopMetrics) RecordLastPrice(string, float64)              {}
func (nopMetrics) RecordLatency(string, time.Duration)          {}

type recordingEvents struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordingEvents) Publish(_ context.Context, ev models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingEvents) Close() error { return nil }

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// panicTrainer wraps a trainer and panics for symbols with the given prefix.
type panicTrainer struct {
	next   ModelTrainer
	prefix string
}

func (p panicTrainer) Train(ctx context.Context, symbol string) (models.ModelMetrics, error) {
	if strings.HasPrefix(symbol, p.prefix) {
		panic("trainer exploded")
	}
	return p.next.Train(ctx, symbol)
}

// blockingTrainer counts calls and blocks until release is closed.
type blockingTrainer struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
	err     error
}

func newBlockingTrainer() *blockingTrainer {
	return &blockingTrainer{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (b *blockingTrainer) Train(ctx context.Context, symbol string) (models.ModelMetrics, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	b.started <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
		return models.ModelMetrics{}, ctx.Err()
	}
	return models.ModelMetrics{}, b.err
}

func (b *blockingTrainer) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type stubPolicy struct{ retrain bool }

func (s stubPolicy) ShouldRetrain(context.Context, string) bool { return s.retrain }

var errFit = errors.New("fit diverged")

const (
	testWindow = 10
	testMargin = 5
)

type engineFixture struct {
	history  *fakeHistory
	store    *fakeStore
	factory  *fakeFactory
	events   *recordingEvents
	registry *TrainingRegistry
	guard    *TrainingGuard
	engine   *Engine
}

func newEngineFixture(now time.Time, watch []string, series ...*models.PriceSeries) *engineFixture {
	l := logger.Nop()
	f := &engineFixture{
		history: &fakeHistory{series: make(map[string]*models.PriceSeries)},
		store:   newFakeStore(),
		factory: &fakeFactory{},
		events:  &recordingEvents{},
	}
	for _, s := range series {
		f.history.series[s.Symbol] = s
	}
	clock := fixedClock(now)
	f.registry = NewTrainingRegistry(clock)
	policy := NewRetrainPolicy(f.store, ny, DefaultStaleAfter, clock, l)
	trainer := NewTrainer(TrainerConfig{Period: "2y", Window: testWindow, Margin: testMargin, Seed: 1},
		f.history, f.store, f.factory, f.events, nopMetrics{}, clock, l)
	f.guard = NewTrainingGuard(policy, trainer, f.registry, SyncExecutor{}, l)
	pre := NewPretrainer(f.guard, 2, l)
	f.engine = NewEngine(
		EngineConfig{Period: "2y", Window: testWindow, Margin: testMargin, FailureCooldown: 10 * time.Minute, Watchlist: watch},
		f.history, f.store, f.factory, policy, f.guard, f.registry, pre,
		forecast.NewWalkForward(0.8, 0.95), forecast.NewFallback(20, 0.95), f.events, nopMetrics{}, l,
	)
	return f
}
