//go:build wireinject
// +build wireinject

package di

import (
	"MarketPulse/pkg/config"
	"MarketPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,

		// Infrastructure clients
		ProvideLocation,
		ProvideStore,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideHistoryStore,
		ProvidePublisher,
		ProvideLockStore,

		// External sources
		ProvidePriceSource,
		ProvidePolymarketClient,
		ProvidePositionSources,
		ProvideMarketCaches,

		// Use cases
		ProvideScheduler,
		ProvideDiscovery,
		ProvideConsensus,

		// Application server
		ProvideSnapshotHandler,
		ProvideHTTPServer,
		ProvideResources,
		ProvideApp,
	)
	return &server.App{}, nil
}
