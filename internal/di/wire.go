//go:build wireinject
// +build wireinject

package di

import (
	"TradeSync/pkg/config"
	"TradeSync/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure
		ProvideFactSink,
		ProvideCache,
		ProvideTradingAPI,
		ProvidePushChannel,

		// Use cases
		ProvideFactRecorder,
		ProvideSubscriptionRegistry,
		ProvideStateStore,
		ProvideRealtimePipeline,
		ProvideScheduler,
		ProvideEventRouter,
		ProvideSession,
		ProvideActionCoordinator,
		ProvideMarketDataService,

		// Delivery
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
