package usecase

import (
	"context"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/domain/service"
	"FinCast/internal/services/features"
	"FinCast/internal/services/lstm"
	"FinCast/pkg/logger"
	"FinCast/pkg/util"
)

// TrainerConfig holds the data-shaping parameters for training.
type TrainerConfig struct {
	Period string
	Window int
	Margin int
	Seed   int64
}

// Trainer fetches history, fits a fresh model and persists the artifact.
type Trainer struct {
	cfg     TrainerConfig
	history domrepo.HistoryProvider
	store   domrepo.ArtifactStore
	factory service.ModelFactory
	events  domrepo.EventPublisher
	metrics domrepo.Metrics
	now     func() time.Time
	log     *logger.Logger
}

func NewTrainer(
	cfg TrainerConfig,
	history domrepo.HistoryProvider,
	store domrepo.ArtifactStore,
	factory service.ModelFactory,
	events domrepo.EventPublisher,
	metrics domrepo.Metrics,
	now func() time.Time,
	l *logger.Logger,
) *Trainer {
	if cfg.Window <= 0 {
		cfg.Window = features.DefaultWindow
	}
	if cfg.Margin < 0 {
		cfg.Margin = features.DefaultMargin
	}
	if cfg.Period == "" {
		cfg.Period = "2y"
	}
	if now == nil {
		now = time.Now
	}
	return &Trainer{
		cfg:     cfg,
		history: history,
		store:   store,
		factory: factory,
		events:  events,
		metrics: metrics,
		now:     now,
		log:     l.Component("trainer"),
	}
}

// Train replaces symbol's artifact with a freshly fitted model. The previous
// artifact is untouched unless the new one is saved successfully.
func (t *Trainer) Train(ctx context.Context, symbol string) (models.ModelMetrics, error) {
	symbol = util.NormalizeSymbol(symbol)
	start := time.Now()

	m, err := t.train(ctx, symbol)
	elapsed := time.Since(start)

	if err != nil {
		t.metrics.RecordTraining(symbol, "failure", elapsed)
		t.publish(ctx, models.Event{
			Type:       models.EventTrainingFailed,
			Symbol:     symbol,
			OccurredAt: t.now(),
			DurationMs: elapsed.Milliseconds(),
			Error:      err.Error(),
		})
		return models.ModelMetrics{}, err
	}

	t.metrics.RecordTraining(symbol, "success", elapsed)
	t.log.Info("model trained",
		logger.String("symbol", symbol),
		logger.Float64("mae", m.MAE),
		logger.Float64("rmse", m.RMSE),
		logger.Float64("r2", m.R2),
		logger.Float64("val_loss", m.ValLoss),
		logger.Duration("duration_ms", elapsed),
	)
	t.publish(ctx, models.Event{
		Type:       models.EventTrainingCompleted,
		Symbol:     symbol,
		OccurredAt: t.now(),
		Metrics:    &m,
		DurationMs: elapsed.Milliseconds(),
	})
	return m, nil
}

func (t *Trainer) train(ctx context.Context, symbol string) (models.ModelMetrics, error) {
	series, err := t.history.GetHistory(ctx, symbol, t.cfg.Period)
	if err != nil {
		return models.ModelMetrics{}, fmt.Errorf("fetch history: %w", err)
	}

	ds, err := features.BuildDataset(series, t.cfg.Window, t.cfg.Margin)
	if err != nil {
		return models.ModelMetrics{}, err
	}

	model := t.factory.New(t.cfg.Seed)
	fit, err := model.Fit(ctx, ds.Samples)
	if err != nil {
		return models.ModelMetrics{}, err
	}

	m, err := evaluate(model, ds)
	if err != nil {
		return models.ModelMetrics{}, err
	}
	m.TrainLoss = fit.TrainLoss
	m.ValLoss = fit.ValLoss
	m.Epochs = fit.Epochs

	blob, err := model.MarshalBinary()
	if err != nil {
		return models.ModelMetrics{}, fmt.Errorf("encode model: %w", err)
	}

	artifact := &models.ModelArtifact{
		Symbol:           symbol,
		Weights:          blob,
		Scaler:           ds.Scaler.State(),
		Window:           t.cfg.Window,
		TrainedAt:        t.now(),
		LastObservedDate: series.Last().Date,
		SampleCount:      series.Len(),
		Metrics:          m,
	}
	if err := t.store.Save(ctx, artifact); err != nil {
		return models.ModelMetrics{}, err
	}
	return m, nil
}

// evaluate scores in-sample predictions in price space.
func evaluate(model service.SequenceModel, ds *features.Dataset) (models.ModelMetrics, error) {
	pred := make([]float64, len(ds.Samples))
	target := make([]float64, len(ds.Samples))
	for i, s := range ds.Samples {
		p, err := model.Predict(s.Window)
		if err != nil {
			return models.ModelMetrics{}, fmt.Errorf("evaluate: %w", err)
		}
		pred[i] = ds.Scaler.InverseChannel(models.CloseChannel, p)
		target[i] = ds.Scaler.InverseChannel(models.CloseChannel, s.Target)
	}
	return lstm.Evaluate(pred, target), nil
}

func (t *Trainer) publish(ctx context.Context, ev models.Event) {
	if t.events == nil {
		return
	}
	if err := t.events.Publish(ctx, ev); err != nil {
		t.log.Warn("publish event failed", logger.String("type", ev.Type), logger.Error(err))
	}
}
