package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rgutierrez/trade-journal/internal/engine"
	"github.com/rgutierrez/trade-journal/internal/models"
)

const tradeColumns = `id, portfolio_id, ticker, side, instrument, status,
		open_size, avg_buy, avg_sell, net_return,
		open_date, close_date, execution_count, version, created_at, updated_at`

// CreateTradeWithExecution inserts a new trade and its first execution in a
// single transaction
func (db *DB) CreateTradeWithExecution(ctx context.Context, t *models.Trade, e *models.Execution) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	query := `
		INSERT INTO trades (
			portfolio_id, ticker, side, instrument, status,
			open_size, avg_buy, avg_sell, net_return,
			open_date, execution_count, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`
	err = tx.QueryRowContext(ctx, query,
		t.PortfolioID, t.Ticker, t.Side, t.Instrument, t.Status,
		t.OpenSize, t.AvgBuy, t.AvgSell, t.NetReturn,
		t.OpenDate, t.ExecutionCount, t.Version, now, now,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}

	e.TradeID = t.ID
	if err := insertExecution(ctx, tx, e); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trade creation: %w", err)
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

// SaveTradeWithExecution updates a trade's aggregate state and appends the
// new execution atomically. The update only applies when the stored version
// matches the version the trade was loaded with; otherwise the caller gets
// engine.ErrVersionConflict and is expected to reload and retry.
func (db *DB) SaveTradeWithExecution(ctx context.Context, t *models.Trade, e *models.Execution) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	query := `
		UPDATE trades SET
			status = $3, open_size = $4, avg_buy = $5, avg_sell = $6,
			net_return = $7, close_date = $8, execution_count = $9,
			version = version + 1, updated_at = $10
		WHERE id = $1 AND version = $2
	`
	result, err := tx.ExecContext(ctx, query,
		t.ID, t.Version, t.Status, t.OpenSize, t.AvgBuy, t.AvgSell,
		t.NetReturn, t.CloseDate, t.ExecutionCount, now,
	)
	if err != nil {
		return fmt.Errorf("failed to update trade: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM trades WHERE id = $1)`, t.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check trade existence: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: id %d", engine.ErrTradeNotFound, t.ID)
		}
		return fmt.Errorf("%w: trade %d version %d", engine.ErrVersionConflict, t.ID, t.Version)
	}

	e.TradeID = t.ID
	if err := insertExecution(ctx, tx, e); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trade update: %w", err)
	}
	t.Version++
	t.UpdatedAt = now
	return nil
}

func insertExecution(ctx context.Context, tx *sql.Tx, e *models.Execution) error {
	query := `
		INSERT INTO executions (trade_id, order_type, quantity, price, order_date, notes, broker_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
		RETURNING id
	`
	now := time.Now()
	err := tx.QueryRowContext(ctx, query,
		e.TradeID, e.OrderType, e.Quantity, e.Price, e.OrderDate, e.Notes, e.BrokerRef, now,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}
	e.CreatedAt = now
	return nil
}

// GetTradeByID retrieves a trade by ID
func (db *DB) GetTradeByID(ctx context.Context, id int) (*models.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = $1`
	return db.scanSingleTrade(db.conn.QueryRowContext(ctx, query, id), id)
}

func (db *DB) scanSingleTrade(row *sql.Row, id int) (*models.Trade, error) {
	var t models.Trade
	var closeDate sql.NullTime

	err := row.Scan(
		&t.ID, &t.PortfolioID, &t.Ticker, &t.Side, &t.Instrument, &t.Status,
		&t.OpenSize, &t.AvgBuy, &t.AvgSell, &t.NetReturn,
		&t.OpenDate, &closeDate, &t.ExecutionCount, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", engine.ErrTradeNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	if closeDate.Valid {
		t.CloseDate = &closeDate.Time
	}
	return &t, nil
}

// GetOpenTradesByTicker retrieves all OPEN trades for a ticker in a
// portfolio, most recently opened first
func (db *DB) GetOpenTradesByTicker(ctx context.Context, portfolioID int, ticker string) ([]*models.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE portfolio_id = $1 AND UPPER(ticker) = UPPER($2) AND status = 'OPEN'
		ORDER BY open_date DESC, id DESC
	`
	return db.scanTrades(db.conn.QueryContext(ctx, query, portfolioID, ticker))
}

// GetOpenTradesByPortfolio retrieves all OPEN trades in a portfolio
func (db *DB) GetOpenTradesByPortfolio(ctx context.Context, portfolioID int) ([]*models.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE portfolio_id = $1 AND status = 'OPEN'
		ORDER BY ticker ASC, open_date DESC
	`
	return db.scanTrades(db.conn.QueryContext(ctx, query, portfolioID))
}

// GetTradesByPortfolio retrieves trades in a portfolio with optional status
// and ticker filters
func (db *DB) GetTradesByPortfolio(ctx context.Context, portfolioID int, status, ticker string, limit int) ([]*models.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE portfolio_id = $1
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR UPPER(ticker) = UPPER($3))
		ORDER BY open_date DESC, id DESC
		LIMIT $4
	`
	return db.scanTrades(db.conn.QueryContext(ctx, query, portfolioID, status, ticker, limit))
}

func (db *DB) scanTrades(rows *sql.Rows, err error) ([]*models.Trade, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		var t models.Trade
		var closeDate sql.NullTime

		err := rows.Scan(
			&t.ID, &t.PortfolioID, &t.Ticker, &t.Side, &t.Instrument, &t.Status,
			&t.OpenSize, &t.AvgBuy, &t.AvgSell, &t.NetReturn,
			&t.OpenDate, &closeDate, &t.ExecutionCount, &t.Version, &t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		if closeDate.Valid {
			t.CloseDate = &closeDate.Time
		}
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

// GetExecutionsByTradeID retrieves a trade's executions in insertion order
func (db *DB) GetExecutionsByTradeID(ctx context.Context, tradeID int) ([]*models.Execution, error) {
	query := `
		SELECT id, trade_id, order_type, quantity, price, order_date, notes, broker_ref, created_at
		FROM executions
		WHERE trade_id = $1
		ORDER BY order_date ASC, id ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var executions []*models.Execution
	for rows.Next() {
		var e models.Execution
		var notes, brokerRef sql.NullString

		err := rows.Scan(
			&e.ID, &e.TradeID, &e.OrderType, &e.Quantity, &e.Price,
			&e.OrderDate, &notes, &brokerRef, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		if notes.Valid {
			e.Notes = notes.String
		}
		if brokerRef.Valid {
			e.BrokerRef = brokerRef.String
		}
		executions = append(executions, &e)
	}
	return executions, rows.Err()
}

// ExecutionExistsByBrokerRef checks if an execution with the given broker
// reference id already exists anywhere in the portfolio
func (db *DB) ExecutionExistsByBrokerRef(ctx context.Context, portfolioID int, ref string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1
			FROM executions e
			JOIN trades t ON t.id = e.trade_id
			WHERE t.portfolio_id = $1 AND e.broker_ref = $2
		)
	`
	var exists bool
	err := db.conn.QueryRowContext(ctx, query, portfolioID, ref).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check execution existence: %w", err)
	}
	return exists, nil
}

// GetTradeStats returns aggregated statistics for a portfolio
func (db *DB) GetTradeStats(ctx context.Context, portfolioID int) (*models.TradeStats, error) {
	query := `
		SELECT
			COUNT(*) AS total_trades,
			COUNT(*) FILTER (WHERE status = 'OPEN') AS open_trades,
			COUNT(*) FILTER (WHERE status <> 'OPEN') AS closed_trades,
			COUNT(*) FILTER (WHERE status = 'WIN') AS winning_trades,
			COUNT(*) FILTER (WHERE status = 'LOSS') AS losing_trades,
			COALESCE(SUM(net_return) FILTER (WHERE status <> 'OPEN'), 0) AS total_net_return
		FROM trades
		WHERE portfolio_id = $1
	`
	var stats models.TradeStats
	err := db.conn.QueryRowContext(ctx, query, portfolioID).Scan(
		&stats.TotalTrades, &stats.OpenTrades, &stats.ClosedTrades,
		&stats.WinningTrades, &stats.LosingTrades, &stats.TotalNetReturn,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get trade stats: %w", err)
	}

	if stats.ClosedTrades > 0 {
		stats.WinRate = decimal.NewFromInt(int64(stats.WinningTrades)).
			Div(decimal.NewFromInt(int64(stats.ClosedTrades))).
			Mul(decimal.NewFromInt(100))
	}
	return &stats, nil
}
