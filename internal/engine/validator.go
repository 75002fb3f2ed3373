package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rgutierrez/trade-journal/internal/models"
)

// ExecutionInput is a proposed fill before it has touched any trade state.
type ExecutionInput struct {
	OrderType string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	OrderDate time.Time
	Notes     string
	BrokerRef string
}

// ValidateExecution checks a proposed execution for structural validity.
// It is deterministic and side-effect free; trade status is checked by the
// ledger, not here.
func ValidateExecution(in ExecutionInput) error {
	if !models.ValidOrderType(in.OrderType) {
		return fmt.Errorf("%w: unknown order type %q", ErrInvalidExecution, in.OrderType)
	}
	if !in.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive, got %s", ErrInvalidExecution, in.Quantity)
	}
	if !in.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive, got %s", ErrInvalidExecution, in.Price)
	}
	if in.OrderDate.IsZero() {
		return fmt.Errorf("%w: order date is required", ErrInvalidExecution)
	}
	return nil
}

// ValidateRecord checks an import record before it is matched against open
// positions.
func ValidateRecord(rec models.ImportRecord) error {
	if strings.TrimSpace(rec.Ticker) == "" {
		return fmt.Errorf("%w: ticker is required", ErrInvalidExecution)
	}
	if !models.ValidTradeSide(rec.Side) {
		return fmt.Errorf("%w: side must be LONG or SHORT, got %q", ErrInvalidExecution, rec.Side)
	}
	if rec.Instrument != "" && !models.ValidInstrument(rec.Instrument) {
		return fmt.Errorf("%w: unknown instrument %q", ErrInvalidExecution, rec.Instrument)
	}
	return ValidateExecution(ExecutionInput{
		OrderType: rec.OrderType,
		Quantity:  rec.Quantity,
		Price:     rec.Price,
		OrderDate: rec.OrderDate,
	})
}
