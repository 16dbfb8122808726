package metrics

import "TradeSync/internal/domain/models"

// Nop discards all measurements. Used when metrics are disabled and in tests.
type Nop struct{}

func (Nop) RecordFactApplied(string, models.Source)      {}
func (Nop) RecordStaleWrite(string)                      {}
func (Nop) RecordDroppedEvent(string)                    {}
func (Nop) RecordConnectionState(models.ConnectionState) {}
func (Nop) RecordReconnect()                             {}
func (Nop) RecordAction(models.ActionKind, string)       {}
func (Nop) RecordMessageSent(string, string)             {}
func (Nop) RecordError(string)                           {}
func (Nop) RecordLastPrice(string, float64)              {}
func (Nop) RecordLatency(string, float64)                {}
