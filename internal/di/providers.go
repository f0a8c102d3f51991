package di

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"FinCast/internal/domain/repository"
	"FinCast/internal/domain/service"
	"FinCast/internal/handler/api"
	internalrepo "FinCast/internal/repository"
	"FinCast/internal/scheduler"
	"FinCast/internal/services/forecast"
	"FinCast/internal/services/lstm"
	"FinCast/internal/usecase"
	"FinCast/pkg/cache"
	pkgch "FinCast/pkg/clickhouse"
	"FinCast/pkg/config"
	pkghttp "FinCast/pkg/http"
	pkgkafka "FinCast/pkg/kafka"
	"FinCast/pkg/logger"
	"FinCast/pkg/metrics"
	"FinCast/pkg/server"
	"FinCast/pkg/util"
)

// ProvideLogger creates the root structured logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&cfg.Logger)
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

func ProvideMarketClock(cfg *config.Config) *util.MarketClock {
	return util.NewMarketClock(cfg.Market.Timezone, cfg.Market.Holidays)
}

// ProvideCache returns redis (optionally layered under an in-process L1) when
// enabled, otherwise an in-memory cache.
func ProvideCache(cfg *config.Config, l *logger.Logger) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		mc := cache.NewMemoryCache(cache.WithMemoryMaxSize(10000))
		return mc, func() { _ = mc.Close() }, nil
	}

	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 4*time.Second),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	l.Info("redis connected", logger.String("addr", cfg.Redis.Addr), logger.Bool("layered", cfg.Redis.Layered))

	if !cfg.Redis.Layered {
		return rc, func() { _ = rc.Close() }, nil
	}
	lc := cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(5000), cache.WithLayeredL1TTL(cfg.Redis.L1TTL))
	return lc, func() { _ = lc.Close() }, nil
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when the bar
// archive is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database,
	}); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Producer.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.Producer.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher publishes domain events to Kafka when a producer exists.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer, l *logger.Logger) repository.EventPublisher {
	if producer == nil {
		return internalrepo.NopEventPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic, 1024, l)
}

// ProvideKafkaConsumer creates the train-request consumer, or nil when Kafka
// is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideHistory chains Yahoo, the optional ClickHouse archive and the cache.
func ProvideHistory(cfg *config.Config, chClient *pkgch.Client, c cache.Service, market *util.MarketClock, l *logger.Logger) (repository.HistoryProvider, error) {
	client := pkghttp.NewClient(
		pkghttp.WithTimeout(cfg.History.Timeout),
		pkghttp.WithHeader("User-Agent", cfg.History.UserAgent),
		pkghttp.WithHeader("Accept", "application/json"),
	)
	var provider repository.HistoryProvider = internalrepo.NewYahooHistory(internalrepo.YahooConfig{
		BaseURL:        cfg.History.BaseURL,
		MaxRetries:     cfg.History.MaxRetries,
		RetryMaxWait:   cfg.History.RetryMaxWait,
		StaleAfterDays: cfg.History.StaleAfterDays,
	}, client, l)

	if chClient != nil {
		archive := internalrepo.NewCHBarArchive(chClient, l)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := archive.Init(ctx); err != nil {
			return nil, fmt.Errorf("bar archive: %w", err)
		}
		provider = internalrepo.NewArchivedHistory(provider, archive, l)
	}

	if cfg.History.CacheEnabled {
		provider = internalrepo.NewCachedHistory(provider, c, market, l)
	}
	return provider, nil
}

// ProvideArtifactStore selects the artifact backend.
func ProvideArtifactStore(cfg *config.Config, c cache.Service, l *logger.Logger) (repository.ArtifactStore, func(), error) {
	switch cfg.Artifacts.Backend {
	case "redis", "memory":
		return internalrepo.NewKVArtifactStore(c, cfg.Artifacts.KeyPrefix, cfg.Artifacts.TTL), func() {}, nil
	default:
		s, err := internalrepo.NewSQLiteArtifactStore(cfg.Artifacts.SQLitePath, l)
		if err != nil {
			return nil, nil, fmt.Errorf("artifact store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	}
}

// ProvideModelFactory builds LSTM networks from the engine config.
func ProvideModelFactory(cfg *config.Config) service.ModelFactory {
	mc := lstm.DefaultConfig()
	mc.Window = cfg.Engine.Window
	mc.Units = cfg.Engine.Units
	mc.Layers = cfg.Engine.Layers
	mc.Dropout = cfg.Engine.Dropout
	mc.LearningRate = cfg.Engine.LearningRate
	mc.Epochs = cfg.Engine.Epochs
	mc.BatchSize = cfg.Engine.BatchSize
	mc.ValidationSplit = cfg.Engine.ValidationSplit
	// training jobs already run in parallel across symbols
	if n := cfg.Engine.MaxConcurrentTraining; n > 1 {
		mc.Workers = max(1, runtime.GOMAXPROCS(0)/n)
	}
	return lstm.NewFactory(mc)
}

func ProvideTrainingRegistry() *usecase.TrainingRegistry {
	return usecase.NewTrainingRegistry(time.Now)
}

func ProvideRetrainPolicy(cfg *config.Config, store repository.ArtifactStore, market *util.MarketClock, l *logger.Logger) *usecase.RetrainPolicy {
	return usecase.NewRetrainPolicy(store, market, cfg.Engine.StaleAfter, time.Now, l)
}

func ProvideTrainer(
	cfg *config.Config,
	history repository.HistoryProvider,
	store repository.ArtifactStore,
	factory service.ModelFactory,
	events repository.EventPublisher,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.Trainer {
	return usecase.NewTrainer(usecase.TrainerConfig{
		Period: cfg.History.Period,
		Window: cfg.Engine.Window,
		Margin: cfg.Engine.Margin,
		Seed:   cfg.Engine.Seed,
	}, history, store, factory, events, m, time.Now, l)
}

// ProvideTrainingGuard bounds background training and, when configured, takes
// a cache lock so replicas never train the same symbol at once.
func ProvideTrainingGuard(
	cfg *config.Config,
	policy *usecase.RetrainPolicy,
	trainer *usecase.Trainer,
	registry *usecase.TrainingRegistry,
	c cache.Service,
	l *logger.Logger,
) *usecase.TrainingGuard {
	opts := []usecase.GuardOption{usecase.WithTrainingTimeout(cfg.Engine.TrainingTimeout)}
	if cfg.Engine.DistributedLock {
		opts = append(opts, usecase.WithLocker(c, cfg.Engine.TrainingTimeout))
	}
	return usecase.NewTrainingGuard(policy, trainer, registry,
		usecase.NewPoolExecutor(cfg.Engine.MaxConcurrentTraining), l, opts...)
}

func ProvidePretrainer(cfg *config.Config, guard *usecase.TrainingGuard, l *logger.Logger) *usecase.Pretrainer {
	return usecase.NewPretrainer(guard, cfg.Engine.PretrainWorkers, l)
}

// ProvideEngine assembles the forecasting engine over the resolved watchlist.
func ProvideEngine(
	cfg *config.Config,
	history repository.HistoryProvider,
	store repository.ArtifactStore,
	factory service.ModelFactory,
	policy *usecase.RetrainPolicy,
	guard *usecase.TrainingGuard,
	registry *usecase.TrainingRegistry,
	pretrainer *usecase.Pretrainer,
	events repository.EventPublisher,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.Engine {
	return usecase.NewEngine(usecase.EngineConfig{
		Period:          cfg.History.Period,
		Window:          cfg.Engine.Window,
		Margin:          cfg.Engine.Margin,
		FailureCooldown: cfg.Engine.FailureCooldown,
		Watchlist:       cfg.Watchlist(),
	}, history, store, factory, policy, guard, registry, pretrainer,
		forecast.NewWalkForward(cfg.Engine.PrimaryConfidence, cfg.Engine.IntervalConfidence),
		forecast.NewFallback(cfg.Engine.FallbackWindow, cfg.Engine.IntervalConfidence),
		events, m, l)
}

func ProvideKafkaTrainHandler(cfg *config.Config, engine *usecase.Engine, m repository.Metrics, l *logger.Logger) *usecase.KafkaTrainHandler {
	return usecase.NewKafkaTrainHandler(cfg.Kafka.TrainTopic, engine, m, l)
}

// ProvideScheduler registers the after-close pretraining job, or returns nil
// when scheduling is disabled.
func ProvideScheduler(cfg *config.Config, engine *usecase.Engine, market *util.MarketClock, l *logger.Logger) (*scheduler.Scheduler, error) {
	if !cfg.Scheduler.Enabled {
		return nil, nil
	}
	s := scheduler.New(engine, engine.Watchlist, market.Location(), l)
	if err := s.Register(cfg.Scheduler.PretrainCron); err != nil {
		return nil, err
	}
	return s, nil
}

// ProvideForecastHandler exposes the engine over HTTP with dependency health checks.
func ProvideForecastHandler(
	cfg *config.Config,
	l *logger.Logger,
	engine *usecase.Engine,
	market *util.MarketClock,
	store repository.ArtifactStore,
	c cache.Service,
	chClient *pkgch.Client,
) *api.ForecastEchoHandler {
	checks := []api.HealthCheck{
		{Name: "artifacts", Check: store.Health},
		{Name: "cache", Check: c.Ping},
	}
	if chClient != nil {
		checks = append(checks, api.HealthCheck{Name: "clickhouse", Check: chClient.Health})
	}
	return api.NewForecastEchoHandler(l, engine, market, api.RateLimit{
		Capacity:  cfg.RateLimit.TrainCapacity,
		PerMinute: cfg.RateLimit.TrainPerMinute,
	}, checks...)
}

// ProvideApp creates the application lifecycle owner.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	engine *usecase.Engine,
	handler *api.ForecastEchoHandler,
	consumer *pkgkafka.Consumer,
	trainHandler *usecase.KafkaTrainHandler,
	sched *scheduler.Scheduler,
	producer *pkgkafka.Producer,
	events repository.EventPublisher,
) *server.App {
	return server.New(cfg, l, engine, handler, consumer, trainHandler, sched, producer, events)
}
