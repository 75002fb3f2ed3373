package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rgutierrez/trade-journal/internal/models"
)

// maxSaveRetries bounds the optimistic-concurrency retry loop in
// AppendExecution. Each retry reloads the aggregate before recomputing.
const maxSaveRetries = 3

// Ledger owns the aggregation logic for a single trade: appending validated
// executions, maintaining weighted averages and remaining open size, and
// driving the OPEN -> WIN|LOSS transition exactly once.
type Ledger struct {
	repo Repository
	log  zerolog.Logger
}

// NewLedger creates a Ledger backed by the given repository.
func NewLedger(repo Repository, log zerolog.Logger) *Ledger {
	return &Ledger{repo: repo, log: log}
}

// CreateTradeInput describes a new trade. Every trade starts from at least
// one fill; an empty trade is not a representable state.
type CreateTradeInput struct {
	PortfolioID    int
	Ticker         string
	Side           string
	Instrument     string
	FirstExecution ExecutionInput
}

// direction returns +1 if the order type increases exposure for the trade
// side, -1 if it reduces it. On LONG trades buys enter and sells exit; on
// SHORT trades the roles mirror.
func direction(side, orderType string) int {
	entry := orderType == models.OrderTypeBuy || orderType == models.OrderTypeAdd
	if side == models.TradeSideShort {
		entry = !entry
	}
	if entry {
		return 1
	}
	return -1
}

// positionTotals is the aggregate state recomputed from a trade's full
// execution history.
type positionTotals struct {
	openSize  decimal.Decimal
	entryQty  decimal.Decimal
	entryCost decimal.Decimal
	exitQty   decimal.Decimal
	exitValue decimal.Decimal
}

func (p *positionTotals) apply(side, orderType string, qty, price decimal.Decimal) {
	if direction(side, orderType) > 0 {
		p.openSize = p.openSize.Add(qty)
		p.entryQty = p.entryQty.Add(qty)
		p.entryCost = p.entryCost.Add(qty.Mul(price))
	} else {
		p.openSize = p.openSize.Sub(qty)
		p.exitQty = p.exitQty.Add(qty)
		p.exitValue = p.exitValue.Add(qty.Mul(price))
	}
}

func (p *positionTotals) avgBuy() decimal.Decimal {
	if p.entryQty.IsZero() {
		return decimal.Zero
	}
	return p.entryCost.Div(p.entryQty)
}

func (p *positionTotals) avgSell() decimal.Decimal {
	if p.exitQty.IsZero() {
		return decimal.Zero
	}
	return p.exitValue.Div(p.exitQty)
}

// netReturn is only meaningful once the position has fully closed.
func (p *positionTotals) netReturn(side string) decimal.Decimal {
	if side == models.TradeSideShort {
		return p.avgBuy().Sub(p.avgSell()).Mul(p.exitQty)
	}
	return p.avgSell().Sub(p.avgBuy()).Mul(p.exitQty)
}

// CreateTrade opens a new trade from its mandatory first execution. The
// first fill must increase exposure; a brand-new trade is always OPEN.
func (l *Ledger) CreateTrade(ctx context.Context, in CreateTradeInput) (*models.Trade, *models.Execution, error) {
	ticker := strings.ToUpper(strings.TrimSpace(in.Ticker))
	if ticker == "" {
		return nil, nil, fmt.Errorf("%w: ticker is required", ErrInvalidExecution)
	}
	if !models.ValidTradeSide(in.Side) {
		return nil, nil, fmt.Errorf("%w: side must be LONG or SHORT, got %q", ErrInvalidExecution, in.Side)
	}
	instrument := in.Instrument
	if instrument == "" {
		instrument = models.InstrumentShare
	}
	if !models.ValidInstrument(instrument) {
		return nil, nil, fmt.Errorf("%w: unknown instrument %q", ErrInvalidExecution, instrument)
	}
	if err := ValidateExecution(in.FirstExecution); err != nil {
		return nil, nil, err
	}
	if direction(in.Side, in.FirstExecution.OrderType) < 0 {
		return nil, nil, fmt.Errorf("%w: first execution %s would reduce a position of zero",
			ErrOverExecution, in.FirstExecution.OrderType)
	}

	exists, err := l.repo.PortfolioExists(ctx, in.PortfolioID)
	if err != nil {
		return nil, nil, fmt.Errorf("checking portfolio %d: %w", in.PortfolioID, err)
	}
	if !exists {
		return nil, nil, fmt.Errorf("%w: id %d", ErrPortfolioNotFound, in.PortfolioID)
	}
	if err := l.checkBrokerRef(ctx, in.PortfolioID, in.FirstExecution.BrokerRef); err != nil {
		return nil, nil, err
	}

	first := in.FirstExecution
	trade := &models.Trade{
		PortfolioID:    in.PortfolioID,
		Ticker:         ticker,
		Side:           in.Side,
		Instrument:     instrument,
		Status:         models.TradeStatusOpen,
		OpenSize:       first.Quantity,
		AvgBuy:         first.Price,
		OpenDate:       first.OrderDate,
		ExecutionCount: 1,
		Version:        1,
	}
	exec := &models.Execution{
		OrderType: first.OrderType,
		Quantity:  first.Quantity,
		Price:     first.Price,
		OrderDate: first.OrderDate,
		Notes:     first.Notes,
		BrokerRef: first.BrokerRef,
	}

	if err := l.repo.CreateTradeWithExecution(ctx, trade, exec); err != nil {
		return nil, nil, fmt.Errorf("creating trade for %s: %w", ticker, err)
	}

	l.log.Info().
		Int("trade_id", trade.ID).
		Str("ticker", ticker).
		Str("side", trade.Side).
		Str("size", trade.OpenSize.String()).
		Msg("trade opened")

	return trade, exec, nil
}

// checkBrokerRef guards against re-applying a fill the portfolio has already
// recorded. Fills without a broker reference are always accepted.
func (l *Ledger) checkBrokerRef(ctx context.Context, portfolioID int, ref string) error {
	if ref == "" {
		return nil
	}
	exists, err := l.repo.ExecutionExistsByBrokerRef(ctx, portfolioID, ref)
	if err != nil {
		return fmt.Errorf("checking broker ref %q: %w", ref, err)
	}
	if exists {
		return fmt.Errorf("%w: broker ref %q", ErrDuplicateExecution, ref)
	}
	return nil
}

// AppendExecution validates a fill against the trade's current state,
// recomputes the aggregate from the full execution history, and persists the
// updated trade together with the new execution atomically. Concurrent
// appends to the same trade are serialized by an optimistic version check;
// on conflict the aggregate is reloaded and recomputed, up to
// maxSaveRetries times.
func (l *Ledger) AppendExecution(ctx context.Context, tradeID int, in ExecutionInput) (*models.Trade, *models.Execution, error) {
	if err := ValidateExecution(in); err != nil {
		return nil, nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		trade, exec, err := l.tryAppend(ctx, tradeID, in)
		if err == nil {
			return trade, exec, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, nil, err
		}
		lastErr = err
		l.log.Warn().Int("trade_id", tradeID).Int("attempt", attempt+1).
			Msg("version conflict appending execution, retrying")
	}
	return nil, nil, fmt.Errorf("appending execution to trade %d after %d attempts: %w",
		tradeID, maxSaveRetries, lastErr)
}

func (l *Ledger) tryAppend(ctx context.Context, tradeID int, in ExecutionInput) (*models.Trade, *models.Execution, error) {
	trade, err := l.repo.GetTradeByID(ctx, tradeID)
	if err != nil {
		return nil, nil, err
	}
	if !trade.IsOpen() {
		return nil, nil, fmt.Errorf("%w: trade %d is %s", ErrTradeNotOpen, trade.ID, trade.Status)
	}
	if err := l.checkBrokerRef(ctx, trade.PortfolioID, in.BrokerRef); err != nil {
		return nil, nil, err
	}

	history, err := l.repo.GetExecutionsByTradeID(ctx, tradeID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading executions for trade %d: %w", tradeID, err)
	}

	// Recompute from scratch rather than trusting the stored aggregate,
	// so the incrementally maintained state can never drift.
	var totals positionTotals
	for _, h := range history {
		totals.apply(trade.Side, h.OrderType, h.Quantity, h.Price)
	}

	if direction(trade.Side, in.OrderType) < 0 && in.Quantity.GreaterThan(totals.openSize) {
		return nil, nil, fmt.Errorf("%w: %s %s against open size %s on trade %d",
			ErrOverExecution, in.OrderType, in.Quantity, totals.openSize, trade.ID)
	}
	totals.apply(trade.Side, in.OrderType, in.Quantity, in.Price)

	trade.OpenSize = totals.openSize
	trade.AvgBuy = totals.avgBuy()
	trade.AvgSell = totals.avgSell()
	trade.ExecutionCount = len(history) + 1

	closed := totals.openSize.IsZero()
	if closed {
		net := totals.netReturn(trade.Side)
		trade.NetReturn = net
		closeDate := in.OrderDate
		trade.CloseDate = &closeDate
		if net.IsNegative() {
			trade.Status = models.TradeStatusLoss
		} else {
			trade.Status = models.TradeStatusWin
		}
	}

	exec := &models.Execution{
		TradeID:   trade.ID,
		OrderType: in.OrderType,
		Quantity:  in.Quantity,
		Price:     in.Price,
		OrderDate: in.OrderDate,
		Notes:     in.Notes,
		BrokerRef: in.BrokerRef,
	}

	if err := l.repo.SaveTradeWithExecution(ctx, trade, exec); err != nil {
		return nil, nil, err
	}

	evt := l.log.Info().
		Int("trade_id", trade.ID).
		Str("ticker", trade.Ticker).
		Str("order_type", in.OrderType).
		Str("open_size", trade.OpenSize.String())
	if closed {
		evt = evt.Str("status", trade.Status).Str("net_return", trade.NetReturn.String())
	}
	evt.Msg("execution appended")

	return trade, exec, nil
}
