package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgutierrez/trade-journal/internal/models"
)

func newTestLedger() (*Ledger, *fakeRepo) {
	repo := newFakeRepo()
	return NewLedger(repo, zerolog.Nop()), repo
}

func buyInput(qty, price int64, at time.Time) ExecutionInput {
	return ExecutionInput{
		OrderType: models.OrderTypeBuy,
		Quantity:  decimal.NewFromInt(qty),
		Price:     decimal.NewFromInt(price),
		OrderDate: at,
	}
}

func TestLedgerCreateTrade(t *testing.T) {
	ctx := context.Background()
	openDate := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

	t.Run("opens a trade from its first execution", func(t *testing.T) {
		ledger, _ := newTestLedger()

		trade, exec, err := ledger.CreateTrade(ctx, CreateTradeInput{
			PortfolioID:    1,
			Ticker:         " aapl ",
			Side:           models.TradeSideLong,
			FirstExecution: buyInput(100, 50, openDate),
		})
		require.NoError(t, err)

		assert.Equal(t, "AAPL", trade.Ticker)
		assert.Equal(t, models.TradeStatusOpen, trade.Status)
		assert.Equal(t, models.InstrumentShare, trade.Instrument)
		assert.True(t, decimal.NewFromInt(100).Equal(trade.OpenSize))
		assert.True(t, decimal.NewFromInt(50).Equal(trade.AvgBuy))
		assert.True(t, trade.AvgSell.IsZero())
		assert.Equal(t, 1, trade.ExecutionCount)
		assert.Equal(t, 1, trade.Version)
		assert.Equal(t, openDate, trade.OpenDate)
		assert.Equal(t, trade.ID, exec.TradeID)
	})

	t.Run("first execution must increase exposure", func(t *testing.T) {
		ledger, _ := newTestLedger()

		in := buyInput(100, 50, openDate)
		in.OrderType = models.OrderTypeSell
		_, _, err := ledger.CreateTrade(ctx, CreateTradeInput{
			PortfolioID:    1,
			Ticker:         "AAPL",
			Side:           models.TradeSideLong,
			FirstExecution: in,
		})
		assert.ErrorIs(t, err, ErrOverExecution)
	})

	t.Run("short trade opens with a sell", func(t *testing.T) {
		ledger, _ := newTestLedger()

		in := buyInput(100, 50, openDate)
		in.OrderType = models.OrderTypeSell
		trade, _, err := ledger.CreateTrade(ctx, CreateTradeInput{
			PortfolioID:    1,
			Ticker:         "TSLA",
			Side:           models.TradeSideShort,
			FirstExecution: in,
		})
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(100).Equal(trade.OpenSize))
	})

	t.Run("rejects unknown portfolio", func(t *testing.T) {
		ledger, _ := newTestLedger()

		_, _, err := ledger.CreateTrade(ctx, CreateTradeInput{
			PortfolioID:    42,
			Ticker:         "AAPL",
			Side:           models.TradeSideLong,
			FirstExecution: buyInput(100, 50, openDate),
		})
		assert.ErrorIs(t, err, ErrPortfolioNotFound)
	})

	t.Run("rejects invalid side", func(t *testing.T) {
		ledger, _ := newTestLedger()

		_, _, err := ledger.CreateTrade(ctx, CreateTradeInput{
			PortfolioID:    1,
			Ticker:         "AAPL",
			Side:           "FLAT",
			FirstExecution: buyInput(100, 50, openDate),
		})
		assert.ErrorIs(t, err, ErrInvalidExecution)
	})
}

func TestLedgerAppendExecution(t *testing.T) {
	ctx := context.Background()
	openDate := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

	open := func(t *testing.T, ledger *Ledger, qty, price int64) *models.Trade {
		t.Helper()
		trade, _, err := ledger.CreateTrade(ctx, CreateTradeInput{
			PortfolioID:    1,
			Ticker:         "AAPL",
			Side:           models.TradeSideLong,
			FirstExecution: buyInput(qty, price, openDate),
		})
		require.NoError(t, err)
		return trade
	}

	t.Run("scaling in recomputes the weighted average", func(t *testing.T) {
		ledger, _ := newTestLedger()
		trade := open(t, ledger, 10, 100)

		add := buyInput(5, 130, openDate.Add(time.Hour))
		add.OrderType = models.OrderTypeAdd
		updated, _, err := ledger.AppendExecution(ctx, trade.ID, add)
		require.NoError(t, err)

		assert.True(t, decimal.NewFromInt(15).Equal(updated.OpenSize), "open size %s", updated.OpenSize)
		assert.True(t, decimal.NewFromInt(110).Equal(updated.AvgBuy), "avg buy %s", updated.AvgBuy)
		assert.Equal(t, models.TradeStatusOpen, updated.Status)
		assert.Equal(t, 2, updated.ExecutionCount)
	})

	t.Run("partial exit keeps the trade open", func(t *testing.T) {
		ledger, _ := newTestLedger()
		trade := open(t, ledger, 100, 50)

		sell := buyInput(40, 55, openDate.Add(time.Hour))
		sell.OrderType = models.OrderTypeSell
		updated, _, err := ledger.AppendExecution(ctx, trade.ID, sell)
		require.NoError(t, err)

		assert.True(t, decimal.NewFromInt(60).Equal(updated.OpenSize))
		assert.True(t, decimal.NewFromInt(55).Equal(updated.AvgSell))
		assert.Equal(t, models.TradeStatusOpen, updated.Status)
		assert.Nil(t, updated.CloseDate)
	})

	t.Run("full exit closes as WIN with net return", func(t *testing.T) {
		ledger, _ := newTestLedger()
		trade := open(t, ledger, 100, 50)

		closeDate := openDate.Add(48 * time.Hour)
		sell := buyInput(100, 55, closeDate)
		sell.OrderType = models.OrderTypeSell
		updated, _, err := ledger.AppendExecution(ctx, trade.ID, sell)
		require.NoError(t, err)

		assert.Equal(t, models.TradeStatusWin, updated.Status)
		assert.True(t, updated.OpenSize.IsZero())
		assert.True(t, decimal.NewFromInt(500).Equal(updated.NetReturn), "net return %s", updated.NetReturn)
		require.NotNil(t, updated.CloseDate)
		assert.Equal(t, closeDate, *updated.CloseDate)
	})

	t.Run("full exit below cost closes as LOSS", func(t *testing.T) {
		ledger, _ := newTestLedger()
		trade := open(t, ledger, 100, 50)

		sell := buyInput(100, 45, openDate.Add(time.Hour))
		sell.OrderType = models.OrderTypeSell
		updated, _, err := ledger.AppendExecution(ctx, trade.ID, sell)
		require.NoError(t, err)

		assert.Equal(t, models.TradeStatusLoss, updated.Status)
		assert.True(t, decimal.NewFromInt(-500).Equal(updated.NetReturn))
	})

	t.Run("breakeven close counts as WIN", func(t *testing.T) {
		ledger, _ := newTestLedger()
		trade := open(t, ledger, 100, 50)

		sell := buyInput(100, 50, openDate.Add(time.Hour))
		sell.OrderType = models.OrderTypeSell
		updated, _, err := ledger.AppendExecution(ctx, trade.ID, sell)
		require.NoError(t, err)

		assert.Equal(t, models.TradeStatusWin, updated.Status)
		assert.True(t, updated.NetReturn.IsZero())
	})

	t.Run("short trade profits when covering lower", func(t *testing.T) {
		ledger, _ := newTestLedger()

		entry := buyInput(100, 50, openDate)
		entry.OrderType = models.OrderTypeSell
		trade, _, err := ledger.CreateTrade(ctx, CreateTradeInput{
			PortfolioID:    1,
			Ticker:         "TSLA",
			Side:           models.TradeSideShort,
			FirstExecution: entry,
		})
		require.NoError(t, err)

		cover := buyInput(100, 45, openDate.Add(time.Hour))
		updated, _, err := ledger.AppendExecution(ctx, trade.ID, cover)
		require.NoError(t, err)

		assert.Equal(t, models.TradeStatusWin, updated.Status)
		assert.True(t, decimal.NewFromInt(500).Equal(updated.NetReturn), "net return %s", updated.NetReturn)
	})

	t.Run("over-execution is rejected and state untouched", func(t *testing.T) {
		ledger, repo := newTestLedger()
		trade := open(t, ledger, 50, 100)

		sell := buyInput(80, 110, openDate.Add(time.Hour))
		sell.OrderType = models.OrderTypeSell
		_, _, err := ledger.AppendExecution(ctx, trade.ID, sell)
		assert.ErrorIs(t, err, ErrOverExecution)

		stored, err := repo.GetTradeByID(ctx, trade.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TradeStatusOpen, stored.Status)
		assert.True(t, decimal.NewFromInt(50).Equal(stored.OpenSize))
		assert.Equal(t, 1, stored.ExecutionCount)
	})

	t.Run("closed trades reject further executions", func(t *testing.T) {
		ledger, _ := newTestLedger()
		trade := open(t, ledger, 100, 50)

		sell := buyInput(100, 55, openDate.Add(time.Hour))
		sell.OrderType = models.OrderTypeSell
		_, _, err := ledger.AppendExecution(ctx, trade.ID, sell)
		require.NoError(t, err)

		_, _, err = ledger.AppendExecution(ctx, trade.ID, buyInput(10, 54, openDate.Add(2*time.Hour)))
		assert.ErrorIs(t, err, ErrTradeNotOpen)
	})

	t.Run("rejects an already-applied broker ref", func(t *testing.T) {
		ledger, _ := newTestLedger()

		first := buyInput(100, 50, openDate)
		first.BrokerRef = "ord-1"
		trade, _, err := ledger.CreateTrade(ctx, CreateTradeInput{
			PortfolioID:    1,
			Ticker:         "AAPL",
			Side:           models.TradeSideLong,
			FirstExecution: first,
		})
		require.NoError(t, err)

		replay := buyInput(100, 50, openDate.Add(time.Hour))
		replay.OrderType = models.OrderTypeAdd
		replay.BrokerRef = "ord-1"
		_, _, err = ledger.AppendExecution(ctx, trade.ID, replay)
		assert.ErrorIs(t, err, ErrDuplicateExecution)
	})

	t.Run("unknown trade", func(t *testing.T) {
		ledger, _ := newTestLedger()
		_, _, err := ledger.AppendExecution(ctx, 999, buyInput(10, 50, openDate))
		assert.ErrorIs(t, err, ErrTradeNotFound)
	})

	t.Run("retries through a version conflict", func(t *testing.T) {
		ledger, repo := newTestLedger()
		trade := open(t, ledger, 100, 50)

		repo.saveErrs = []error{fmt.Errorf("%w: injected", ErrVersionConflict)}

		add := buyInput(10, 52, openDate.Add(time.Hour))
		add.OrderType = models.OrderTypeAdd
		updated, _, err := ledger.AppendExecution(ctx, trade.ID, add)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(110).Equal(updated.OpenSize))
	})

	t.Run("gives up after repeated version conflicts", func(t *testing.T) {
		ledger, repo := newTestLedger()
		trade := open(t, ledger, 100, 50)

		conflict := fmt.Errorf("%w: injected", ErrVersionConflict)
		repo.saveErrs = []error{conflict, conflict, conflict}

		add := buyInput(10, 52, openDate.Add(time.Hour))
		add.OrderType = models.OrderTypeAdd
		_, _, err := ledger.AppendExecution(ctx, trade.ID, add)
		assert.ErrorIs(t, err, ErrVersionConflict)
	})
}
