package backend

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"TradeSync/internal/domain/models"
	"TradeSync/pkg/util"
)

type portfolioResponse struct {
	Metrics struct {
		InitialCash     float64 `json:"initial_cash"`
		Cash            float64 `json:"cash"`
		TotalValue      float64 `json:"total_value"`
		TotalPnL        float64 `json:"total_pnl"`
		TotalPnLPct     float64 `json:"total_pnl_pct"`
		ActivePositions int     `json:"active_positions"`
		TotalTrades     int     `json:"total_trades"`
		WinRate         float64 `json:"win_rate"`
	} `json:"metrics"`
	Positions    []positionDTO   `json:"positions"`
	RecentTrades []tradeDTO      `json:"recent_trades"`
	Version      int64           `json:"version"`
	Timestamp    json.RawMessage `json:"timestamp"`
}

type positionDTO struct {
	Symbol       string          `json:"symbol"`
	Quantity     float64         `json:"quantity"`
	EntryPrice   float64         `json:"entry_price"`
	CurrentPrice float64         `json:"current_price"`
	Value        float64         `json:"value"`
	PnL          float64         `json:"pnl"`
	PnLPct       float64         `json:"pnl_pct"`
	EntryTime    json.RawMessage `json:"entry_time"`
}

type tradeDTO struct {
	Symbol    string          `json:"symbol"`
	Action    string          `json:"action"`
	Quantity  float64         `json:"quantity"`
	Price     float64         `json:"price"`
	Cost      float64         `json:"cost"`
	PnL       float64         `json:"pnl"`
	PnLPct    float64         `json:"pnl_pct"`
	Timestamp json.RawMessage `json:"timestamp"`
}

func (r portfolioResponse) toModel(issuedAt time.Time) models.PortfolioState {
	ts, ok := util.ParseRawTime(r.Timestamp)
	if !ok {
		ts = issuedAt
	}
	positions := make([]models.Position, 0, len(r.Positions))
	for _, p := range r.Positions {
		entry, _ := util.ParseRawTime(p.EntryTime)
		positions = append(positions, models.Position{
			Symbol:       models.NormalizeSymbol(p.Symbol),
			Quantity:     p.Quantity,
			EntryPrice:   p.EntryPrice,
			CurrentPrice: p.CurrentPrice,
			Value:        p.Value,
			PnL:          p.PnL,
			PnLPct:       p.PnLPct,
			EntryTime:    entry,
		})
	}
	trades := make([]models.Trade, 0, len(r.RecentTrades))
	for _, t := range r.RecentTrades {
		trades = append(trades, t.toModel(issuedAt))
	}
	return models.PortfolioState{
		TotalValue:      r.Metrics.TotalValue,
		Cash:            r.Metrics.Cash,
		InitialCash:     r.Metrics.InitialCash,
		PnL:             r.Metrics.TotalPnL,
		PnLPct:          r.Metrics.TotalPnLPct,
		WinRate:         r.Metrics.WinRate,
		TotalTrades:     r.Metrics.TotalTrades,
		ActivePositions: positions,
		RecentTrades:    trades,
		Version:         r.Version,
		ObservedAt:      models.StampAt(ts, issuedAt),
		Source:          models.SourcePoll,
	}
}

func (t tradeDTO) toModel(fallback time.Time) models.Trade {
	ts, ok := util.ParseRawTime(t.Timestamp)
	if !ok {
		ts = fallback
	}
	return models.Trade{
		Symbol:     models.NormalizeSymbol(t.Symbol),
		Action:     models.TradeAction(strings.ToLower(t.Action)),
		Quantity:   t.Quantity,
		Price:      t.Price,
		Cost:       t.Cost,
		PnL:        t.PnL,
		PnLPct:     t.PnLPct,
		ExecutedAt: ts,
	}
}

type tickerDTO struct {
	Symbol    string          `json:"symbol"`
	Price     float64         `json:"price"`
	Change    float64         `json:"change"`
	Volume    json.RawMessage `json:"volume"`
	High24h   float64         `json:"high_24h"`
	Low24h    float64         `json:"low_24h"`
	Timestamp json.RawMessage `json:"timestamp"`
}

func (t tickerDTO) toModel(issuedAt time.Time) models.MarketSnapshot {
	ts, ok := util.ParseRawTime(t.Timestamp)
	if !ok {
		ts = issuedAt
	}
	return models.MarketSnapshot{
		Symbol:     models.NormalizeSymbol(t.Symbol),
		Price:      t.Price,
		Change24h:  t.Change,
		Volume:     parseVolume(t.Volume),
		High24h:    t.High24h,
		Low24h:     t.Low24h,
		ObservedAt: models.StampAt(ts, issuedAt),
		Source:     models.SourcePoll,
	}
}

// parseVolume accepts plain numbers and abbreviated strings such as "1.2M".
func parseVolume(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	v, _ := util.ParseCompactNumber(s)
	return v
}

type signalResponse struct {
	Symbol    string          `json:"symbol"`
	Timestamp json.RawMessage `json:"timestamp"`
	Signal    struct {
		Action     string  `json:"action"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
		PumpProb   float64 `json:"pump_prob"`
		ExitProb   float64 `json:"exit_prob"`
	} `json:"signal"`
	CurrentPrice     float64 `json:"current_price"`
	OpportunityScore float64 `json:"opportunity_score"`
	HasPosition      bool    `json:"has_position"`
	Insight          string  `json:"ai_insight"`
}

func (r signalResponse) toModel(symbol string, issuedAt time.Time) models.Signal {
	ts, ok := util.ParseRawTime(r.Timestamp)
	if !ok {
		ts = issuedAt
	}
	if r.Symbol != "" {
		symbol = r.Symbol
	}
	return models.Signal{
		Symbol:           models.NormalizeSymbol(symbol),
		Action:           models.TradeAction(strings.ToLower(r.Signal.Action)),
		Confidence:       r.Signal.Confidence,
		OpportunityScore: r.OpportunityScore,
		GeneratedAt:      models.StampAt(ts, issuedAt),
		Source:           models.SourcePoll,
		Reason:           r.Signal.Reason,
		CurrentPrice:     r.CurrentPrice,
		PumpProb:         r.Signal.PumpProb,
		ExitProb:         r.Signal.ExitProb,
		HasPosition:      r.HasPosition,
		Insight:          r.Insight,
	}
}

type tradeResponse struct {
	Status   string  `json:"status"`
	Action   string  `json:"action"`
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Cost     float64 `json:"cost"`
	Message  string  `json:"message"`
	Detail   string  `json:"detail"`
}

func (r tradeResponse) toModel(req models.TradeRequest, issuedAt time.Time) models.TradeResult {
	if r.Status != "success" {
		reason := r.Detail
		if reason == "" {
			reason = r.Message
		}
		if reason == "" {
			reason = "trade not accepted: status " + strconv.Quote(r.Status)
		}
		return models.TradeResult{Accepted: false, Reason: reason}
	}
	action := models.TradeAction(strings.ToLower(r.Action))
	if action == "" {
		action = req.Action
	}
	price := r.Price
	if price == 0 {
		price = req.Price
	}
	return models.TradeResult{
		Accepted: true,
		Trade: &models.Trade{
			Symbol:     models.NormalizeSymbol(req.Symbol),
			Action:     action,
			Quantity:   r.Quantity,
			Price:      price,
			Cost:       r.Cost,
			ExecutedAt: issuedAt,
		},
	}
}

type analysisResponse struct {
	Analysis json.RawMessage `json:"analysis"`
	Findings json.RawMessage `json:"structured_findings"`
}

func (r analysisResponse) toModel(req models.AnalyzeRequest) models.Analysis {
	out := models.Analysis{Type: req.Type, Symbol: req.Symbol, Findings: r.Findings}
	var text string
	if err := json.Unmarshal(r.Analysis, &text); err == nil {
		out.Analysis = text
	} else if len(r.Analysis) > 0 && out.Findings == nil {
		out.Findings = r.Analysis
	}
	return out
}

type marketDataResponse struct {
	Symbol    string      `json:"symbol"`
	Timeframe string      `json:"timeframe"`
	Data      []candleDTO `json:"data"`
}

type candleDTO struct {
	Timestamp json.RawMessage `json:"timestamp"`
	Open      float64         `json:"open"`
	High      float64         `json:"high"`
	Low       float64         `json:"low"`
	Close     float64         `json:"close"`
	Volume    float64         `json:"volume"`
}

type marketsResponse struct {
	Markets []string `json:"markets"`
}
