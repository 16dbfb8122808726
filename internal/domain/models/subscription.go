package models

import "strings"

type DesiredState string

const (
	DesiredSubscribed   DesiredState = "subscribed"
	DesiredUnsubscribed DesiredState = "unsubscribed"
)

type ChannelState string

const (
	ChannelPending ChannelState = "pending"
	ChannelActive  ChannelState = "active"
	ChannelFailed  ChannelState = "failed"
)

type Subscription struct {
	Symbol  string       `json:"symbol"`
	Desired DesiredState `json:"desired"`
	Channel ChannelState `json:"channel"`
}

// NormalizeSymbol trims and upper-cases a trading pair such as "btc/usdt".
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
