package models

// Requests accepted by the local HTTP API and by the action coordinator.

type SymbolRequest struct {
	Symbol string `json:"symbol" query:"symbol" validate:"required,symbol"`
}

type TradeRequest struct {
	Symbol string      `json:"symbol" validate:"required,symbol"`
	Action TradeAction `json:"action" validate:"required,oneof=buy sell hold"`
	Price  float64     `json:"price" validate:"gt=0"`
}

type AnalyzeRequest struct {
	Type   string `json:"type" default:"market" validate:"oneof=portfolio market"`
	Symbol string `json:"symbol,omitempty" validate:"omitempty,symbol"`
}

type MarketDataRequest struct {
	Symbol    string `json:"symbol" query:"symbol" validate:"required,symbol"`
	Timeframe string `json:"timeframe" query:"timeframe" default:"1m" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	Limit     int    `json:"limit" query:"limit" default:"500" validate:"gte=1,lte=1000"`
}

type ConfigRequest struct {
	Config BackendConfig `json:"config" validate:"required"`
}
