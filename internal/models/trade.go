package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade side constants
const (
	TradeSideLong  = "LONG"
	TradeSideShort = "SHORT"
)

// Trade status constants
const (
	TradeStatusOpen   = "OPEN"
	TradeStatusClosed = "CLOSED"
	TradeStatusWin    = "WIN"
	TradeStatusLoss   = "LOSS"
)

// Instrument type constants
const (
	InstrumentShare  = "SHARE"
	InstrumentOption = "OPTION"
)

// ValidTradeSide reports whether s is a known trade side.
func ValidTradeSide(s string) bool {
	return s == TradeSideLong || s == TradeSideShort
}

// ValidInstrument reports whether s is a known instrument type.
func ValidInstrument(s string) bool {
	return s == InstrumentShare || s == InstrumentOption
}

// Trade represents one position lifecycle for a ticker within a portfolio.
// OpenSize is the remaining unsigned exposure; direction is carried by Side.
// AvgBuy is the weighted average of the entry side (the fills that increased
// exposure), AvgSell of the exit side. For SHORT trades the entry side
// consists of sells, so AvgBuy holds the average entry price regardless of
// side. A zero AvgBuy/AvgSell means that side has no fills yet.
type Trade struct {
	ID             int             `json:"id"`
	PortfolioID    int             `json:"portfolio_id"`
	Ticker         string          `json:"ticker"`
	Side           string          `json:"side"`
	Instrument     string          `json:"instrument"`
	Status         string          `json:"status"`
	OpenSize       decimal.Decimal `json:"open_size"`
	AvgBuy         decimal.Decimal `json:"avg_buy"`
	AvgSell        decimal.Decimal `json:"avg_sell"`
	NetReturn      decimal.Decimal `json:"net_return"`
	OpenDate       time.Time       `json:"open_date"`
	CloseDate      *time.Time      `json:"close_date,omitempty"`
	ExecutionCount int             `json:"execution_count"`
	Version        int             `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IsOpen reports whether the trade can still accept executions.
func (t *Trade) IsOpen() bool {
	return t.Status == TradeStatusOpen
}

// TradeStats holds aggregated journal statistics.
type TradeStats struct {
	TotalTrades    int             `json:"total_trades"`
	OpenTrades     int             `json:"open_trades"`
	ClosedTrades   int             `json:"closed_trades"`
	WinningTrades  int             `json:"winning_trades"`
	LosingTrades   int             `json:"losing_trades"`
	WinRate        decimal.Decimal `json:"win_rate"`
	TotalNetReturn decimal.Decimal `json:"total_net_return"`
}
