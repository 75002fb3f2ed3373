package engine

import "errors"

// Standard engine-level errors. Callers branch on these with errors.Is;
// storage adapters wrap their infrastructure failures before surfacing them.
var (
	// ErrInvalidExecution marks a structurally invalid execution
	// (non-positive quantity or price, unknown order type, missing date).
	ErrInvalidExecution = errors.New("invalid execution")

	// ErrTradeNotOpen is returned when an execution targets a trade that
	// has already closed.
	ErrTradeNotOpen = errors.New("trade is not open")

	// ErrOverExecution is returned when a fill would push the open size
	// past zero into the opposite direction. The fill must be split by the
	// caller; the engine never splits it.
	ErrOverExecution = errors.New("execution exceeds open position size")

	ErrTradeNotFound     = errors.New("trade not found")
	ErrPortfolioNotFound = errors.New("portfolio not found")

	// ErrVersionConflict signals an optimistic concurrency failure on
	// save. The ledger retries a bounded number of times before giving up.
	ErrVersionConflict = errors.New("trade was modified concurrently")

	// ErrDuplicateExecution marks a fill whose broker reference id has
	// already been applied somewhere in the portfolio.
	ErrDuplicateExecution = errors.New("execution already imported")
)
