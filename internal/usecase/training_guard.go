package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/pkg/logger"
)

// ModelTrainer fits and persists a model for one symbol.
type ModelTrainer interface {
	Train(ctx context.Context, symbol string) (models.ModelMetrics, error)
}

// Locker is an optional cross-process lock. cache.Service satisfies it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type stalenessChecker interface {
	ShouldRetrain(ctx context.Context, symbol string) bool
}

// TrainingGuard serializes training per symbol. At most one job per symbol
// is in flight in this process (and across processes when a Locker is set);
// different symbols train in parallel up to the executor's bound.
type TrainingGuard struct {
	mu sync.Mutex // serializes EnsureTrained's check-then-admit

	inMu       sync.Mutex
	inProgress map[string]struct{}

	policy   stalenessChecker
	trainer  ModelTrainer
	registry *TrainingRegistry
	exec     Executor
	locker   Locker
	lockTTL  time.Duration
	timeout  time.Duration
	log      *logger.Logger
}

type GuardOption func(*TrainingGuard)

// WithLocker enables a distributed lock held for at most ttl.
func WithLocker(l Locker, ttl time.Duration) GuardOption {
	return func(g *TrainingGuard) {
		g.locker = l
		if ttl > 0 {
			g.lockTTL = ttl
		}
	}
}

// WithTrainingTimeout bounds each background job. Zero, the default, leaves
// fits unbounded.
func WithTrainingTimeout(d time.Duration) GuardOption {
	return func(g *TrainingGuard) { g.timeout = d }
}

func NewTrainingGuard(policy stalenessChecker, trainer ModelTrainer, registry *TrainingRegistry, exec Executor, l *logger.Logger, opts ...GuardOption) *TrainingGuard {
	g := &TrainingGuard{
		inProgress: make(map[string]struct{}),
		policy:     policy,
		trainer:    trainer,
		registry:   registry,
		exec:       exec,
		lockTTL:    time.Hour,
		log:        l.Component("training-guard"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func lockKey(symbol string) string { return "train-lock:" + symbol }

// BeginTraining atomically marks symbol as in progress.
func (g *TrainingGuard) BeginTraining(ctx context.Context, symbol string) models.Admission {
	g.inMu.Lock()
	if _, busy := g.inProgress[symbol]; busy {
		g.inMu.Unlock()
		return models.AlreadyInProgress
	}
	g.inProgress[symbol] = struct{}{}
	g.inMu.Unlock()

	if g.locker != nil {
		ok, err := g.locker.TryLock(ctx, lockKey(symbol), g.lockTTL)
		switch {
		case err != nil:
			g.log.Warn("distributed lock unavailable, using local guard only",
				logger.String("symbol", symbol), logger.Error(err))
		case !ok:
			g.release(symbol)
			return models.AlreadyInProgress
		}
	}

	g.registry.Set(symbol, models.StateTraining, nil)
	return models.Admitted
}

// EndTraining clears the in-progress mark. It must follow every Admitted
// BeginTraining.
func (g *TrainingGuard) EndTraining(symbol string) {
	if g.locker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := g.locker.Unlock(ctx, lockKey(symbol)); err != nil {
			g.log.Warn("distributed unlock failed", logger.String("symbol", symbol), logger.Error(err))
		}
		cancel()
	}
	g.release(symbol)
}

func (g *TrainingGuard) release(symbol string) {
	g.inMu.Lock()
	delete(g.inProgress, symbol)
	g.inMu.Unlock()
}

// InProgress reports whether symbol is currently training in this process.
func (g *TrainingGuard) InProgress(symbol string) bool {
	g.inMu.Lock()
	defer g.inMu.Unlock()
	_, ok := g.inProgress[symbol]
	return ok
}

// EnsureTrained re-checks staleness under the guard mutex and, when still
// needed, submits a background job without waiting for it.
func (g *TrainingGuard) EnsureTrained(ctx context.Context, symbol string) models.Admission {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.InProgress(symbol) {
		return models.AlreadyInProgress
	}
	if !g.policy.ShouldRetrain(ctx, symbol) {
		return models.NotNeeded
	}
	if adm := g.BeginTraining(ctx, symbol); adm != models.Admitted {
		return adm
	}

	g.exec.Go(func() {
		defer g.EndTraining(symbol)

		jobCtx := context.Background()
		if g.timeout > 0 {
			var cancel context.CancelFunc
			jobCtx, cancel = context.WithTimeout(jobCtx, g.timeout)
			defer cancel()
		}
		_ = g.run(jobCtx, symbol)
	})
	return models.Admitted
}

// TrainSync trains symbol on the caller's goroutine. It returns
// AlreadyInProgress without training when a job for symbol is running.
func (g *TrainingGuard) TrainSync(ctx context.Context, symbol string) (models.Admission, error) {
	if adm := g.BeginTraining(ctx, symbol); adm != models.Admitted {
		return adm, nil
	}
	defer g.EndTraining(symbol)
	return models.Admitted, g.run(ctx, symbol)
}

// run executes the trainer and records the outcome. Panics are recorded as
// failures.
func (g *TrainingGuard) run(ctx context.Context, symbol string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("training panic: %v: %w", r, models.ErrTrainingFailure)
		}
		if err != nil {
			g.registry.Set(symbol, models.StateFailed, err)
			g.log.Error("training failed", logger.String("symbol", symbol), logger.Error(err))
			return
		}
		g.registry.Set(symbol, models.StateTrained, nil)
	}()

	_, err = g.trainer.Train(ctx, symbol)
	return err
}

// Wait blocks until every background job submitted so far has finished.
func (g *TrainingGuard) Wait() { g.exec.Wait() }
