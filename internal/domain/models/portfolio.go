package models

import (
	"math"
	"time"
)

// AnyVersion disables the expected-version precondition of a portfolio merge.
const AnyVersion int64 = math.MaxInt64

type Position struct {
	Symbol       string    `json:"symbol"`
	Quantity     float64   `json:"quantity"`
	EntryPrice   float64   `json:"entry_price"`
	CurrentPrice float64   `json:"current_price"`
	Value        float64   `json:"value"`
	PnL          float64   `json:"pnl"`
	PnLPct       float64   `json:"pnl_pct"`
	EntryTime    time.Time `json:"entry_time"`
}

type Trade struct {
	Symbol     string      `json:"symbol"`
	Action     TradeAction `json:"action"`
	Quantity   float64     `json:"quantity"`
	Price      float64     `json:"price"`
	Cost       float64     `json:"cost,omitempty"`
	PnL        float64     `json:"pnl"`
	PnLPct     float64     `json:"pnl_pct"`
	ExecutedAt time.Time   `json:"executed_at"`
}

// PortfolioState is the account view. Version increases on every accepted
// merge. Partial marks push updates that only carry value, pnl and positions.
type PortfolioState struct {
	TotalValue      float64    `json:"total_value"`
	Cash            float64    `json:"cash"`
	InitialCash     float64    `json:"initial_cash"`
	PnL             float64    `json:"pnl"`
	PnLPct          float64    `json:"pnl_pct"`
	WinRate         float64    `json:"win_rate"`
	TotalTrades     int        `json:"total_trades"`
	ActivePositions []Position `json:"active_positions"`
	RecentTrades    []Trade    `json:"recent_trades"`
	Version         int64      `json:"version"`
	ObservedAt      Stamp      `json:"observed_at"`
	Source          Source     `json:"source"`
	Partial         bool       `json:"-"`
}

// Clone returns a copy that shares no slices with p.
func (p PortfolioState) Clone() PortfolioState {
	out := p
	if p.ActivePositions != nil {
		out.ActivePositions = append([]Position(nil), p.ActivePositions...)
	}
	if p.RecentTrades != nil {
		out.RecentTrades = append([]Trade(nil), p.RecentTrades...)
	}
	return out
}
