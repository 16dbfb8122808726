package repository

import (
	"context"

	"TradeSync/internal/domain/models"
)

// PushChannel is the long-lived event connection to the backend.
type PushChannel interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Subscribe(ctx context.Context, symbol string) error
	Unsubscribe(ctx context.Context, symbol string) error
	Events() (<-chan models.Event, func())
	State() models.ConnectionState
}

// SubscriptionSource yields the symbols the push channel must carry after
// any (re)connect.
type SubscriptionSource interface {
	DesiredSet() []string
}

// TradingAPI is the request/response half of the transport. Implementations
// never retry; failures are classified with the fault package.
type TradingAPI interface {
	FetchPortfolio(ctx context.Context) (models.PortfolioState, error)
	FetchTickers(ctx context.Context) ([]models.MarketSnapshot, error)
	GenerateSignal(ctx context.Context, symbol string) (models.Signal, error)
	ExecuteTrade(ctx context.Context, req models.TradeRequest) (models.TradeResult, error)
	TrainModel(ctx context.Context, symbol string) (models.TrainStatus, error)
	Analyze(ctx context.Context, req models.AnalyzeRequest) (models.Analysis, error)
	FetchMarketData(ctx context.Context, req models.MarketDataRequest) ([]models.Candle, error)
	FetchMarketsList(ctx context.Context) ([]string, error)
	UpdateConfig(ctx context.Context, cfg models.BackendConfig) (models.ConfigStatus, error)
	Health(ctx context.Context) (map[string]any, error)
}

// FactSink receives accepted market facts and terminal action records.
type FactSink interface {
	RecordMarket(ctx context.Context, snaps []models.MarketSnapshot) error
	RecordActions(ctx context.Context, actions []models.PendingAction) error
	Close() error
}

type Metrics interface {
	RecordFactApplied(slice string, source models.Source)
	RecordStaleWrite(slice string)
	RecordDroppedEvent(reason string)
	RecordConnectionState(state models.ConnectionState)
	RecordReconnect()
	RecordAction(kind models.ActionKind, outcome string)
	RecordMessageSent(backend, key string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
