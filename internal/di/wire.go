//go:build wireinject
// +build wireinject

package di

import (
	"FxSentry/pkg/config"
	"FxSentry/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideAuditStore,
		ProvideKafkaProducer,
		ProvideEventPublisher,
		ProvideRedisCache,
		ProvideCache,

		// External services
		ProvideSubscriptionSource,
		ProvideRegistry,
		ProvideDirectory,
		ProvidePredictionService,
		ProvidePriceHistory,
		ProvidePriceFeed,
		ProvideLivePrices,

		// State
		ProvideSignalStates,
		ProvidePositions,
		ProvideCooldownGate,

		// Use cases
		ProvideDispatcher,
		ProvideSignalMonitor,
		ProvidePositionMonitor,
		ProvideSummaryQueue,
		ProvideSummaryScheduler,

		// HTTP surface
		ProvideMonitoringHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
