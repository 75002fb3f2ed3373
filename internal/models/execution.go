package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Execution order type constants
const (
	OrderTypeBuy    = "BUY"
	OrderTypeSell   = "SELL"
	OrderTypeAdd    = "ADD_TO_POSITION"
	OrderTypeReduce = "REDUCE_POSITION"
)

// ValidOrderType reports whether s is a known order type.
func ValidOrderType(s string) bool {
	switch s {
	case OrderTypeBuy, OrderTypeSell, OrderTypeAdd, OrderTypeReduce:
		return true
	}
	return false
}

// Execution represents one fill belonging to exactly one trade. Executions
// are append-only; corrections are modeled as new offsetting executions.
// BrokerRef carries the broker's execution reference id when the fill came
// from an import and is used for duplicate detection on re-upload.
type Execution struct {
	ID        int             `json:"id"`
	TradeID   int             `json:"trade_id"`
	OrderType string          `json:"order_type"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	OrderDate time.Time       `json:"order_date"`
	Notes     string          `json:"notes,omitempty"`
	BrokerRef string          `json:"broker_ref,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
