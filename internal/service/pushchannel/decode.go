package pushchannel

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"TradeSync/internal/domain/models"
	"TradeSync/pkg/util"
)

// Server frame types.
const (
	framePrice        = "price_update"
	frameSignal       = "signal_update"
	framePortfolio    = "portfolio_update"
	frameTrade        = "trade_executed"
	frameSubscribed   = "subscribed"
	frameUnsubscribed = "unsubscribed"
	frameBulkSubbed   = "realtime_data_subscribed"
	frameError        = "error"
)

// Client frame types.
const (
	frameAuth        = "auth"
	frameSubscribe   = "subscribe_symbol"
	frameUnsubscribe = "unsubscribe_symbol"
)

type outFrame struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol,omitempty"`
	Token  string `json:"token,omitempty"`
}

// inFrame is the flat union of every server frame.
type inFrame struct {
	Type      string          `json:"type"`
	Symbol    string          `json:"symbol"`
	Symbols   []string        `json:"symbols"`
	Timestamp json.RawMessage `json:"timestamp"`
	TS        json.RawMessage `json:"ts"`
	Message   string          `json:"message"`

	Price     float64  `json:"price"`
	Change24h *float64 `json:"change_24h"`
	Change    float64  `json:"change"`
	Volume24h *float64 `json:"volume_24h"`
	Volume    float64  `json:"volume"`
	High24h   float64  `json:"high_24h"`
	Low24h    float64  `json:"low_24h"`

	Action           string      `json:"action"`
	Confidence       float64     `json:"confidence"`
	OpportunityScore float64     `json:"opportunity_score"`
	Reason           string      `json:"reason"`
	RequestID        string      `json:"request_id"`
	Signal           *signalBody `json:"signal"`

	Version    int64          `json:"version"`
	TotalValue float64        `json:"total_value"`
	PnL        float64        `json:"pnl"`
	PnLPct     float64        `json:"pnl_pct"`
	Positions  []wirePosition `json:"positions"`

	Quantity float64 `json:"quantity"`
	Cost     float64 `json:"cost"`
}

type signalBody struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	PumpProb   float64 `json:"pump_prob"`
	ExitProb   float64 `json:"exit_prob"`
}

type wirePosition struct {
	Symbol       string          `json:"symbol"`
	Quantity     float64         `json:"quantity"`
	EntryPrice   float64         `json:"entry_price"`
	CurrentPrice float64         `json:"current_price"`
	Value        float64         `json:"value"`
	PnL          float64         `json:"pnl"`
	PnLPct       float64         `json:"pnl_pct"`
	EntryTime    json.RawMessage `json:"entry_time"`
}

// decode turns one text frame into zero or more events. Unknown frame types
// yield no events and no error.
func decode(b []byte, now time.Time) ([]models.Event, error) {
	var f inFrame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	ts, ok := util.ParseRawTime(f.TS)
	if !ok {
		ts, ok = util.ParseRawTime(f.Timestamp)
	}
	if !ok {
		ts = now
	}
	stamp := models.StampAt(ts, now)
	symbol := models.NormalizeSymbol(f.Symbol)

	ev := models.Event{ReceivedAt: now}
	switch f.Type {
	case framePrice:
		ev.Type = models.EventPriceUpdate
		ev.Market = &models.MarketSnapshot{
			Symbol:     symbol,
			Price:      f.Price,
			Change24h:  pick(f.Change24h, f.Change),
			Volume:     pick(f.Volume24h, f.Volume),
			High24h:    f.High24h,
			Low24h:     f.Low24h,
			ObservedAt: stamp,
			Source:     models.SourcePush,
		}

	case frameSignal:
		sig := models.Signal{
			Symbol:           symbol,
			Action:           models.TradeAction(strings.ToLower(f.Action)),
			Confidence:       f.Confidence,
			OpportunityScore: f.OpportunityScore,
			GeneratedAt:      stamp,
			RequestID:        f.RequestID,
			Source:           models.SourcePush,
			Reason:           f.Reason,
			CurrentPrice:     f.Price,
		}
		if f.Signal != nil {
			sig.Action = models.TradeAction(strings.ToLower(f.Signal.Action))
			sig.Confidence = f.Signal.Confidence
			sig.Reason = f.Signal.Reason
			sig.PumpProb = f.Signal.PumpProb
			sig.ExitProb = f.Signal.ExitProb
		}
		ev.Type = models.EventSignalUpdate
		ev.Signal = &sig

	case framePortfolio:
		positions := make([]models.Position, 0, len(f.Positions))
		for _, p := range f.Positions {
			positions = append(positions, p.toModel())
		}
		ev.Type = models.EventPortfolioUpdate
		ev.Portfolio = &models.PortfolioState{
			TotalValue:      f.TotalValue,
			PnL:             f.PnL,
			PnLPct:          f.PnLPct,
			ActivePositions: positions,
			Version:         f.Version,
			ObservedAt:      stamp,
			Source:          models.SourcePush,
			Partial:         true,
		}

	case frameTrade:
		ev.Type = models.EventTradeExecuted
		ev.Trade = &models.Trade{
			Symbol:     symbol,
			Action:     models.TradeAction(strings.ToLower(f.Action)),
			Quantity:   f.Quantity,
			Price:      f.Price,
			Cost:       f.Cost,
			PnL:        f.PnL,
			PnLPct:     f.PnLPct,
			ExecutedAt: ts,
		}

	case frameSubscribed, frameUnsubscribed:
		ev.Type = models.EventSubscriptionAck
		ev.Ack = &models.SubscriptionAck{Symbol: symbol, Subscribed: f.Type == frameSubscribed}

	case frameBulkSubbed:
		out := make([]models.Event, 0, len(f.Symbols))
		for _, s := range f.Symbols {
			out = append(out, models.Event{
				Type:       models.EventSubscriptionAck,
				Ack:        &models.SubscriptionAck{Symbol: models.NormalizeSymbol(s), Subscribed: true},
				ReceivedAt: now,
			})
		}
		return out, nil

	case frameError:
		if symbol == "" {
			return nil, fmt.Errorf("server error: %s", f.Message)
		}
		ev.Type = models.EventSubscriptionAck
		ev.Ack = &models.SubscriptionAck{Symbol: symbol, Failed: true, Reason: f.Message}

	default:
		return nil, nil
	}
	return []models.Event{ev}, nil
}

func (p wirePosition) toModel() models.Position {
	entry, _ := util.ParseRawTime(p.EntryTime)
	return models.Position{
		Symbol:       models.NormalizeSymbol(p.Symbol),
		Quantity:     p.Quantity,
		EntryPrice:   p.EntryPrice,
		CurrentPrice: p.CurrentPrice,
		Value:        p.Value,
		PnL:          p.PnL,
		PnLPct:       p.PnLPct,
		EntryTime:    entry,
	}
}

func pick(primary *float64, fallback float64) float64 {
	if primary != nil {
		return *primary
	}
	return fallback
}
