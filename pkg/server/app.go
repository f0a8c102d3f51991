package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/handler/api"
	"FinCast/internal/scheduler"
	"FinCast/internal/usecase"
	"FinCast/pkg/config"
	xhttp "FinCast/pkg/http"
	pkgkafka "FinCast/pkg/kafka"
	applogger "FinCast/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg          *config.Config
	l            *applogger.Logger
	engine       *usecase.Engine
	handler      *api.ForecastEchoHandler
	consumer     *pkgkafka.Consumer
	trainHandler pkgkafka.MessageHandler
	scheduler    *scheduler.Scheduler
	producer     *pkgkafka.Producer
	events       domrepo.EventPublisher
	httpServer   *xhttp.Server
}

// New creates a new App instance with all dependencies. consumer, scheduler
// and producer may be nil when the matching feature is disabled.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	engine *usecase.Engine,
	handler *api.ForecastEchoHandler,
	consumer *pkgkafka.Consumer,
	trainHandler pkgkafka.MessageHandler,
	sched *scheduler.Scheduler,
	producer *pkgkafka.Producer,
	events domrepo.EventPublisher,
) *App {
	return &App{
		cfg:          cfg,
		l:            l,
		engine:       engine,
		handler:      handler,
		consumer:     consumer,
		trainHandler: trainHandler,
		scheduler:    sched,
		producer:     producer,
		events:       events,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.startLogShipping()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(a.cfg.Server.MetricsPath),
		xhttp.WithCORSOrigins(a.cfg.Server.CORSOrigins),
		xhttp.WithSlowThreshold(a.cfg.Server.SlowRequest),
		xhttp.WithLogger(a.l),
	)

	// Start consumer if configured
	if a.consumer != nil && a.trainHandler != nil {
		a.consumer.RegisterHandler(a.trainHandler)
		if err := a.consumer.Start(); err != nil {
			a.l.Error("kafka consumer error", applogger.Error(err))
			return err
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.trainHandler.Topic()))
	}

	if a.scheduler != nil {
		a.scheduler.Start()
		a.l.Info("next pretrain run", applogger.Time("at", a.scheduler.Next()))
		if a.cfg.Scheduler.RunOnStart {
			go a.scheduler.RunPretrainNow()
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.handler.SetReady(true)
	a.l.Info("fincast ready",
		applogger.String("env", a.cfg.Environment),
		applogger.Strings("watchlist", a.engine.Watchlist()),
	)

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// PretrainOnly trains the whole watchlist once, waits for the batch and
// releases the publishers. It reports how many symbols failed.
func (a *App) PretrainOnly(ctx context.Context) (failed int) {
	a.startLogShipping()

	started := time.Now()
	results := a.engine.PretrainAll(ctx, nil)
	for sym, ok := range results {
		if !ok {
			failed++
			a.l.Warn("pretrain failed", applogger.String("symbol", sym))
		}
	}
	a.l.Info("pretrain finished",
		applogger.Int("symbols", len(results)),
		applogger.Int("failed", failed),
		applogger.Duration("took_ms", time.Since(started)),
	)

	a.engine.Wait()
	a.closePublishers()
	return failed
}

// startLogShipping forwards aggregated error logs to Kafka when a logs topic
// is configured.
func (a *App) startLogShipping() {
	if a.producer == nil || a.cfg.Kafka.LogsTopic == "" {
		return
	}
	a.l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          a.cfg.Kafka.LogsTopic,
		Publisher:      a.producer,
	})
}

// shutdown gracefully stops all services. Stores and clients are released by
// the DI cleanup afterwards.
func (a *App) shutdown(ctx context.Context) error {
	a.l.Info("shutting down...")
	a.handler.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// Training jobs hold artifact store handles; give them the remaining budget.
	a.engine.CancelBatches()
	done := make(chan struct{})
	go func() {
		a.engine.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.l.Warn("training still running at shutdown", applogger.Error(shutdownCtx.Err()))
	}

	a.closePublishers()
	a.l.Info("shutdown complete")
	return nil
}

// closePublishers flushes the log collector before the event publisher closes
// the shared producer.
func (a *App) closePublishers() {
	a.l.RemoveCollector()
	if err := a.events.Close(); err != nil {
		a.l.Warn("event publisher close error", applogger.Error(err))
	}
}
