package models

import "time"

type EventType string

const (
	EventPriceUpdate            EventType = "priceUpdate"
	EventSignalUpdate           EventType = "signalUpdate"
	EventPortfolioUpdate        EventType = "portfolioUpdate"
	EventTradeExecuted          EventType = "tradeExecuted"
	EventConnectionStateChanged EventType = "connectionStateChanged"
	EventSubscriptionAck        EventType = "subscriptionAck"
)

type ConnectionState string

const (
	ConnConnecting   ConnectionState = "connecting"
	ConnConnected    ConnectionState = "connected"
	ConnDisconnected ConnectionState = "disconnected"
	ConnError        ConnectionState = "error"
)

type ConnectionChange struct {
	State   ConnectionState `json:"state"`
	Reason  string          `json:"reason,omitempty"`
	Attempt int             `json:"attempt,omitempty"`
}

// SubscriptionAck is the channel's answer to a subscribe or unsubscribe frame.
type SubscriptionAck struct {
	Symbol     string `json:"symbol"`
	Subscribed bool   `json:"subscribed"`
	Failed     bool   `json:"failed,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Event is one typed message from the push channel. Exactly one payload
// pointer is set, matching Type.
type Event struct {
	Type       EventType         `json:"type"`
	Market     *MarketSnapshot   `json:"market,omitempty"`
	Signal     *Signal           `json:"signal,omitempty"`
	Portfolio  *PortfolioState   `json:"portfolio,omitempty"`
	Trade      *Trade            `json:"trade,omitempty"`
	Connection *ConnectionChange `json:"connection,omitempty"`
	Ack        *SubscriptionAck  `json:"ack,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}
