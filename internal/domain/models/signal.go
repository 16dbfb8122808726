package models

type TradeAction string

const (
	ActionBuy  TradeAction = "buy"
	ActionSell TradeAction = "sell"
	ActionHold TradeAction = "hold"
)

// Signal is an immutable trading recommendation for one symbol.
type Signal struct {
	Symbol           string      `json:"symbol" validate:"required"`
	Action           TradeAction `json:"action" validate:"oneof=buy sell hold"`
	Confidence       float64     `json:"confidence" validate:"gte=0,lte=1"`
	OpportunityScore float64     `json:"opportunity_score" validate:"gte=0,lte=100"`
	GeneratedAt      Stamp       `json:"generated_at"`
	RequestID        string      `json:"request_id,omitempty"`
	Source           Source      `json:"source"`

	Reason       string  `json:"reason,omitempty"`
	CurrentPrice float64 `json:"current_price,omitempty"`
	PumpProb     float64 `json:"pump_prob,omitempty"`
	ExitProb     float64 `json:"exit_prob,omitempty"`
	HasPosition  bool    `json:"has_position,omitempty"`
	Insight      string  `json:"ai_insight,omitempty"`
}
