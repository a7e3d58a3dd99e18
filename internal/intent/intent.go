// Package intent defines the descriptor RiskMonitor and SignalEngine
// produce and OrderPipeline consumes (spec glossary: "Intent").
package intent

import "gridward/internal/position"

// Status is the trade action an intent requests.
type Status string

const (
	Opening Status = "is_opening"
	Avg     Status = "is_avg"
	Closing Status = "is_closing"
)

// Intent carries everything OrderPipeline needs to execute one action on
// one (user, symbol, side) without reaching back into configuration.
type Intent struct {
	ID       string // correlation id; RiskMonitor and SignalEngine leave it empty
	User     string
	Strategy string
	Symbol   string
	Side     position.Side
	Status   Status
}

// Key identifies the (user, symbol) serialization queue this intent
// belongs to (spec §4.7 "Grouping").
func (i Intent) Key() string {
	return i.User + "|" + i.Symbol
}
