package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/pkg/logger"
	"FinCast/pkg/util"
)

// Pretrainer trains a batch of symbols through the guard so that it never
// overlaps with request-triggered jobs for the same symbol.
type Pretrainer struct {
	guard   *TrainingGuard
	workers int
	newExec func() Executor
	log     *logger.Logger
}

func NewPretrainer(guard *TrainingGuard, workers int, l *logger.Logger) *Pretrainer {
	if workers < 1 {
		workers = 1
	}
	p := &Pretrainer{guard: guard, workers: workers, log: l.Component("pretrainer")}
	p.newExec = func() Executor { return NewPoolExecutor(p.workers) }
	return p
}

// PretrainAll returns true per symbol that trained successfully. Failures and
// panics in one symbol never affect the others. Symbols not started before
// ctx is done are reported false.
func (p *Pretrainer) PretrainAll(ctx context.Context, symbols []string) map[string]bool {
	symbols = util.NormalizeSymbols(symbols)
	results := make(map[string]bool, len(symbols))
	var mu sync.Mutex
	record := func(symbol string, ok bool) {
		mu.Lock()
		results[symbol] = ok
		mu.Unlock()
	}

	start := time.Now()
	exec := p.newExec()
	for _, symbol := range symbols {
		symbol := symbol
		if ctx.Err() != nil {
			record(symbol, false)
			continue
		}
		exec.Go(func() { record(symbol, p.trainOne(ctx, symbol)) })
	}
	exec.Wait()

	ok := 0
	for _, v := range results {
		if v {
			ok++
		}
	}
	p.log.Info("pretraining finished",
		logger.Int("symbols", len(symbols)),
		logger.Int("succeeded", ok),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return results
}

func (p *Pretrainer) trainOne(ctx context.Context, symbol string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("pretraining panicked", logger.String("symbol", symbol), logger.Error(fmt.Errorf("%v", r)))
			ok = false
		}
	}()
	if ctx.Err() != nil {
		return false
	}

	adm, err := p.guard.TrainSync(ctx, symbol)
	switch {
	case adm != models.Admitted:
		p.log.Info("skipping symbol already in training", logger.String("symbol", symbol))
		return false
	case err != nil:
		p.log.Warn("pretraining failed", logger.String("symbol", symbol), logger.Error(err))
		return false
	}
	return true
}
