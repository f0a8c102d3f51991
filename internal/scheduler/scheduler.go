package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	applogger "FinCast/pkg/logger"
)

// Pretrainer is the batch training entry point run on schedule.
type Pretrainer interface {
	PretrainAll(ctx context.Context, symbols []string) map[string]bool
}

// Scheduler runs the daily pretraining batch after the market close.
type Scheduler struct {
	cron       *cron.Cron
	pretrainer Pretrainer
	symbols    func() []string
	ctx        context.Context
	cancel     context.CancelFunc
	l          *applogger.Logger
}

// New creates a scheduler whose cron expressions (with seconds) are
// evaluated in loc. symbols is called on every run so watchlist reloads are
// picked up.
func New(pretrainer Pretrainer, symbols func() []string, loc *time.Location, l *applogger.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		pretrainer: pretrainer,
		symbols:    symbols,
		ctx:        ctx,
		cancel:     cancel,
		l:          l.Component("scheduler"),
	}
}

// Register adds the pretraining job. Overlapping runs are skipped.
func (s *Scheduler) Register(pretrainCron string) error {
	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(s.RunPretrainNow))
	if _, err := s.cron.AddJob(pretrainCron, job); err != nil {
		return fmt.Errorf("register pretrain task: %w", err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.l.Info("scheduler started", applogger.Int("jobs", len(s.cron.Entries())))
}

// Stop cancels a running batch and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.l.Info("scheduler stopped")
}

// Next returns the next scheduled run, or the zero time when none.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunPretrainNow runs the batch on the caller's goroutine.
func (s *Scheduler) RunPretrainNow() {
	symbols := s.symbols()
	if len(symbols) == 0 {
		s.l.Warn("pretrain skipped, watchlist empty")
		return
	}
	start := time.Now()
	s.l.Info("running scheduled pretrain", applogger.Int("symbols", len(symbols)))

	results := s.pretrainer.PretrainAll(s.ctx, symbols)
	failed := make([]string, 0)
	for sym, ok := range results {
		if !ok {
			failed = append(failed, sym)
		}
	}
	s.l.Info("scheduled pretrain finished",
		applogger.Int("succeeded", len(results)-len(failed)),
		applogger.Strings("failed", failed),
		applogger.Duration("duration_ms", time.Since(start)),
	)
}
