package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/domain/service"
	"FinCast/internal/services/forecast"
	"FinCast/pkg/logger"
	"FinCast/pkg/util"
)

const MaxHorizon = 365

// EngineConfig holds the serving parameters of the forecasting engine.
type EngineConfig struct {
	Period          string
	Window          int
	Margin          int
	FailureCooldown time.Duration
	Watchlist       []string
}

// Engine serves forecasts per symbol, triggering training when the model is
// missing or stale and falling back to the moving-average forecaster when no
// trained model can answer.
type Engine struct {
	cfg        EngineConfig
	history    domrepo.HistoryProvider
	store      domrepo.ArtifactStore
	factory    service.ModelFactory
	policy     *RetrainPolicy
	guard      *TrainingGuard
	registry   *TrainingRegistry
	pretrainer *Pretrainer
	primary    *forecast.WalkForward
	fallback   *forecast.Fallback
	events     domrepo.EventPublisher
	metrics    domrepo.Metrics
	log        *logger.Logger

	watch map[string]struct{}

	modelsMu sync.Mutex
	models   map[string]cachedModel

	batches       Executor
	batchMu       sync.Mutex
	batchRunning  bool
	batchCtx      context.Context
	cancelBatches context.CancelFunc
}

type cachedModel struct {
	trainedAt time.Time
	model     service.SequenceModel
}

func NewEngine(
	cfg EngineConfig,
	history domrepo.HistoryProvider,
	store domrepo.ArtifactStore,
	factory service.ModelFactory,
	policy *RetrainPolicy,
	guard *TrainingGuard,
	registry *TrainingRegistry,
	pretrainer *Pretrainer,
	primary *forecast.WalkForward,
	fallback *forecast.Fallback,
	events domrepo.EventPublisher,
	metrics domrepo.Metrics,
	l *logger.Logger,
) *Engine {
	batchCtx, cancel := context.WithCancel(context.Background())
	watch := make(map[string]struct{}, len(cfg.Watchlist))
	for _, s := range util.NormalizeSymbols(cfg.Watchlist) {
		watch[s] = struct{}{}
	}
	return &Engine{
		cfg:        cfg,
		history:    history,
		store:      store,
		factory:    factory,
		policy:     policy,
		guard:      guard,
		registry:   registry,
		pretrainer: pretrainer,
		primary:    primary,
		fallback:   fallback,
		events:     events,
		metrics:    metrics,
		log:        l.Component("engine"),
		watch:      watch,
		models:     make(map[string]cachedModel),

		batches:       NewPoolExecutor(1),
		batchCtx:      batchCtx,
		cancelBatches: cancel,
	}
}

// Watchlist returns the symbols eligible for the primary model.
func (e *Engine) Watchlist() []string {
	return util.NormalizeSymbols(e.cfg.Watchlist)
}

// IsWatched reports whether symbol is on the watchlist.
func (e *Engine) IsWatched(symbol string) bool {
	_, ok := e.watch[util.NormalizeSymbol(symbol)]
	return ok
}

// Predict returns a horizon-day forecast for symbol.
//
// Unwatched symbols and short histories get the fallback forecast. A missing
// model triggers background training and yields ErrTrainingInProgress unless
// the last attempt failed within the cooldown, in which case the fallback is
// served. A stale model is still served while its replacement trains.
func (e *Engine) Predict(ctx context.Context, symbol string, horizon int) (*models.ForecastResult, error) {
	start := time.Now()
	defer func() { e.metrics.RecordLatency("predict", time.Since(start)) }()

	symbol = util.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol: %w", models.ErrNotFound)
	}
	if horizon < 1 || horizon > MaxHorizon {
		return nil, fmt.Errorf("horizon %d outside 1..%d: %w", horizon, MaxHorizon, models.ErrInvalidHorizon)
	}

	series, err := e.history.GetHistory(ctx, symbol, e.cfg.Period)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			e.metrics.RecordError("history")
		}
		return nil, err
	}
	e.metrics.RecordLastPrice(symbol, series.Last().Close)
	now := e.policy.Now()

	if !e.IsWatched(symbol) {
		return e.serveFallback(ctx, series, horizon, now, "not_watched")
	}
	if series.Len() < e.cfg.Window+e.cfg.Margin {
		return e.serveFallback(ctx, series, horizon, now, "insufficient_data")
	}

	artifact := e.loadArtifact(ctx, symbol)
	if e.policy.IsStale(artifact, now) && !e.inCooldown(symbol, now) {
		adm := e.guard.EnsureTrained(ctx, symbol)
		e.log.Debug("training requested",
			logger.String("symbol", symbol), logger.String("admission", adm.String()))
		if adm == models.NotNeeded && artifact == nil {
			artifact = e.loadArtifact(ctx, symbol)
		}
	}

	if artifact == nil {
		if e.inCooldown(symbol, now) {
			return e.serveFallback(ctx, series, horizon, now, "training_failed")
		}
		return nil, models.ErrTrainingInProgress
	}

	res, err := e.forecastPrimary(series, artifact, horizon, now)
	if err != nil {
		e.metrics.RecordError("model")
		e.log.Warn("primary model failed, using fallback",
			logger.String("symbol", symbol), logger.Error(err))
		return e.serveFallback(ctx, series, horizon, now, "model_error")
	}
	e.served(ctx, res)
	return res, nil
}

func (e *Engine) forecastPrimary(series *models.PriceSeries, artifact *models.ModelArtifact, horizon int, now time.Time) (*models.ForecastResult, error) {
	model, err := e.restore(artifact)
	if err != nil {
		return nil, err
	}
	return e.primary.Forecast(series, artifact, model, horizon, now)
}

// restore reuses the decoded model while the artifact is unchanged.
func (e *Engine) restore(artifact *models.ModelArtifact) (service.SequenceModel, error) {
	if artifact.Window <= 0 || len(artifact.Weights) == 0 {
		return nil, fmt.Errorf("restore %s: artifact has no window or weights", artifact.Symbol)
	}
	e.modelsMu.Lock()
	defer e.modelsMu.Unlock()

	if c, ok := e.models[artifact.Symbol]; ok && c.trainedAt.Equal(artifact.TrainedAt) {
		return c.model, nil
	}
	model, err := e.factory.Restore(artifact.Weights)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", artifact.Symbol, err)
	}
	e.models[artifact.Symbol] = cachedModel{trainedAt: artifact.TrainedAt, model: model}
	return model, nil
}

// loadArtifact returns nil when nothing usable is stored.
func (e *Engine) loadArtifact(ctx context.Context, symbol string) *models.ModelArtifact {
	artifact, err := e.store.Load(ctx, symbol)
	if err != nil {
		if !errors.Is(err, models.ErrArtifactNotFound) {
			e.metrics.RecordError("persistence")
			e.log.Error("artifact load failed", logger.String("symbol", symbol), logger.Error(err))
		}
		return nil
	}
	return artifact
}

func (e *Engine) inCooldown(symbol string, now time.Time) bool {
	st, ok := e.registry.Get(symbol)
	return ok && st.State == models.StateFailed && now.Sub(st.UpdatedAt) < e.cfg.FailureCooldown
}

func (e *Engine) serveFallback(ctx context.Context, series *models.PriceSeries, horizon int, now time.Time, reason string) (*models.ForecastResult, error) {
	res, err := e.fallback.Forecast(series, horizon, now)
	if err != nil {
		return nil, err
	}
	e.log.Debug("serving fallback forecast",
		logger.String("symbol", series.Symbol), logger.String("reason", reason))
	e.served(ctx, res)
	return res, nil
}

func (e *Engine) served(ctx context.Context, res *models.ForecastResult) {
	e.metrics.RecordForecast(res.Symbol, res.ModelUsed)
	if e.events == nil {
		return
	}
	ev := models.Event{
		Type:       models.EventForecastServed,
		Symbol:     res.Symbol,
		OccurredAt: res.GeneratedAt,
		ModelUsed:  res.ModelUsed,
		Horizon:    res.Horizon(),
	}
	if err := e.events.Publish(ctx, ev); err != nil {
		e.log.Warn("publish event failed", logger.String("symbol", res.Symbol), logger.Error(err))
	}
}

// TrainNow trains symbol synchronously. It returns false when a job for the
// symbol is already running or training fails.
func (e *Engine) TrainNow(ctx context.Context, symbol string) bool {
	symbol = util.NormalizeSymbol(symbol)
	if symbol == "" {
		return false
	}
	adm, err := e.guard.TrainSync(ctx, symbol)
	if adm != models.Admitted {
		e.log.Info("training already in progress", logger.String("symbol", symbol))
		return false
	}
	return err == nil
}

// PretrainAll trains every symbol with bounded parallelism and reports
// per-symbol success. A nil or empty list means the watchlist.
func (e *Engine) PretrainAll(ctx context.Context, symbols []string) map[string]bool {
	if len(symbols) == 0 {
		symbols = e.Watchlist()
	}
	return e.pretrainer.PretrainAll(ctx, symbols)
}

// StartPretrain runs PretrainAll in the background on the engine's batch
// executor. It returns false when a batch is already running or batches
// were cancelled.
func (e *Engine) StartPretrain(symbols []string) bool {
	if len(symbols) == 0 {
		symbols = e.Watchlist()
	}
	e.batchMu.Lock()
	if e.batchRunning || e.batchCtx.Err() != nil {
		e.batchMu.Unlock()
		return false
	}
	e.batchRunning = true
	e.batchMu.Unlock()

	e.batches.Go(func() {
		defer func() {
			e.batchMu.Lock()
			e.batchRunning = false
			e.batchMu.Unlock()
		}()
		results := e.PretrainAll(e.batchCtx, symbols)
		failed := make([]string, 0)
		for sym, ok := range results {
			if !ok {
				failed = append(failed, sym)
			}
		}
		sort.Strings(failed)
		e.log.Info("background pretrain finished",
			logger.Int("symbols", len(results)),
			logger.Strings("failed", failed),
		)
	})
	return true
}

// CancelBatches stops background batches started by StartPretrain and
// rejects new ones. Symbols not yet trained are reported as failed.
func (e *Engine) CancelBatches() { e.cancelBatches() }

// TrainingState reports symbol's model lifecycle state.
func (e *Engine) TrainingState(ctx context.Context, symbol string) models.TrainingStatus {
	symbol = util.NormalizeSymbol(symbol)
	if st, ok := e.registry.Get(symbol); ok {
		return st
	}
	if artifact, err := e.store.Load(ctx, symbol); err == nil {
		return models.TrainingStatus{Symbol: symbol, State: models.StateTrained, UpdatedAt: artifact.TrainedAt}
	}
	return models.TrainingStatus{Symbol: symbol, State: models.StateNoModel}
}

// TrainingStates lists every symbol with a recorded training outcome in this
// process.
func (e *Engine) TrainingStates() []models.TrainingStatus {
	snap := e.registry.Snapshot()
	out := make([]models.TrainingStatus, 0, len(snap))
	for _, st := range snap {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Wait blocks until background batches and training jobs finish.
func (e *Engine) Wait() {
	e.batches.Wait()
	e.guard.Wait()
}
