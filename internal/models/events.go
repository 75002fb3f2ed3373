package models

import "time"

// Event type constants for the trade event stream.
const (
	EventExecutionReported = "EXECUTION_REPORTED"
	EventTradeOpened       = "TRADE_OPENED"
	EventTradeClosed       = "TRADE_CLOSED"
)

// ExecutionEvent is an inbound broker execution published by an upstream
// connector. Quantity and price travel as strings so the producer does not
// need to agree on a numeric encoding.
type ExecutionEvent struct {
	EventType   string    `json:"event_type"`
	Source      string    `json:"source"`
	PortfolioID int       `json:"portfolio_id"`
	Timestamp   time.Time `json:"timestamp"`
	Data        struct {
		OrderID    string `json:"order_id"`
		Symbol     string `json:"symbol"`
		Side       string `json:"side"`
		OrderType  string `json:"order_type"`
		Quantity   string `json:"quantity"`
		Price      string `json:"price"`
		Instrument string `json:"instrument"`
		ExecutedAt string `json:"executed_at"`
	} `json:"data"`
}

// TradeEvent is published when a trade opens or closes.
type TradeEvent struct {
	EventType string    `json:"event_type"`
	Trade     *Trade    `json:"trade"`
	Ticker    string    `json:"ticker"`
	Timestamp time.Time `json:"timestamp"`
}
