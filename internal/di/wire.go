//go:build wireinject
// +build wireinject

package di

import (
	"FinCast/pkg/config"
	"FinCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application along
// with a cleanup that releases stores and clients.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideMarketClock,

		// Infrastructure clients
		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideHistory,
		ProvideArtifactStore,
		ProvideEventPublisher,

		// Engine
		ProvideModelFactory,
		ProvideTrainingRegistry,
		ProvideRetrainPolicy,
		ProvideTrainer,
		ProvideTrainingGuard,
		ProvidePretrainer,
		ProvideEngine,

		// Delivery
		ProvideForecastHandler,
		ProvideKafkaTrainHandler,
		ProvideScheduler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil, nil
}
