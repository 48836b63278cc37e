//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	domrepo "WasteFlow/internal/domain/repository"
	"WasteFlow/pkg/config"
	"WasteFlow/pkg/metrics"
	"WasteFlow/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		wire.Bind(new(domrepo.Metrics), new(*metrics.Recorder)),

		// Infrastructure clients
		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideSeriesArchive,
		ProvideRecordStore,
		ProvideContractFeed,
		ProvideEventPublisher,

		// Services and use cases
		ProvideHistoryLoader,
		ProvideModelBank,
		ProvideClassifier,
		ProvideForecastService,
		ProvideExchangeService,

		// HTTP
		ProvideRateLimiter,
		ProvideHTTPHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
