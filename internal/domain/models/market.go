package models

import "time"

// Source identifies which channel delivered a fact.
type Source string

const (
	SourcePush Source = "push"
	SourcePoll Source = "poll"
)

// Stamp orders facts on a single timeline. Logical is the backend time in
// unix milliseconds; Wall is the local receipt time and is informational.
type Stamp struct {
	Logical int64     `json:"logical"`
	Wall    time.Time `json:"wall"`
}

// StampAt builds a stamp from a backend timestamp received at wall.
func StampAt(ts, wall time.Time) Stamp {
	return Stamp{Logical: ts.UnixMilli(), Wall: wall}
}

// Newer reports whether a fact stamped s from src should replace a stored
// fact stamped cur from curSrc. Equal stamps go to push over poll.
func (s Stamp) Newer(src Source, cur Stamp, curSrc Source) bool {
	if s.Logical != cur.Logical {
		return s.Logical > cur.Logical
	}
	return src == SourcePush && curSrc == SourcePoll
}

type MarketSnapshot struct {
	Symbol     string  `json:"symbol" validate:"required"`
	Price      float64 `json:"price" validate:"gte=0"`
	Change24h  float64 `json:"change_24h"`
	Volume     float64 `json:"volume" validate:"gte=0"`
	High24h    float64 `json:"high_24h" validate:"gte=0"`
	Low24h     float64 `json:"low_24h" validate:"gte=0"`
	ObservedAt Stamp   `json:"observed_at"`
	Source     Source  `json:"source" validate:"oneof=push poll"`
}

// Candle is one OHLCV bar returned by the market data endpoint.
type Candle struct {
	Bucket time.Time `json:"timestamp"`
	Symbol string    `json:"symbol"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}
