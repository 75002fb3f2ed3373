package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	t.Run("all tables exist", func(t *testing.T) {
		expectedTables := []string{
			"portfolios",
			"trades",
			"executions",
		}

		for _, tableName := range expectedTables {
			var exists bool
			err := testDB.GetRawConn().QueryRow(`
				SELECT EXISTS (
					SELECT FROM information_schema.tables
					WHERE table_schema = 'public'
					AND table_name = $1
				)
			`, tableName).Scan(&exists)

			require.NoError(t, err, "failed to check table existence for %s", tableName)
			assert.True(t, exists, "table %s should exist", tableName)
		}
	})

	t.Run("trades table has correct columns", func(t *testing.T) {
		expectedColumns := []string{
			"id", "portfolio_id", "ticker", "side", "instrument", "status",
			"open_size", "avg_buy", "avg_sell", "net_return",
			"open_date", "close_date", "execution_count", "version",
			"created_at", "updated_at",
		}

		for _, colName := range expectedColumns {
			var exists bool
			err := testDB.GetRawConn().QueryRow(`
				SELECT EXISTS (
					SELECT FROM information_schema.columns
					WHERE table_name = 'trades' AND column_name = $1
				)
			`, colName).Scan(&exists)

			require.NoError(t, err)
			assert.True(t, exists, "column %s should exist in trades table", colName)
		}
	})

	t.Run("executions table has correct columns", func(t *testing.T) {
		expectedColumns := []string{
			"id", "trade_id", "order_type", "quantity", "price",
			"order_date", "notes", "broker_ref", "created_at",
		}

		for _, colName := range expectedColumns {
			var exists bool
			err := testDB.GetRawConn().QueryRow(`
				SELECT EXISTS (
					SELECT FROM information_schema.columns
					WHERE table_name = 'executions' AND column_name = $1
				)
			`, colName).Scan(&exists)

			require.NoError(t, err)
			assert.True(t, exists, "column %s should exist in executions table", colName)
		}
	})

	t.Run("indexes exist", func(t *testing.T) {
		expectedIndexes := []struct {
			table string
			index string
		}{
			{"trades", "idx_trades_portfolio_status"},
			{"trades", "idx_trades_portfolio_ticker"},
			{"executions", "idx_executions_trade"},
			{"executions", "idx_executions_broker_ref"},
		}

		for _, idx := range expectedIndexes {
			var exists bool
			err := testDB.GetRawConn().QueryRow(`
				SELECT EXISTS (
					SELECT FROM pg_indexes
					WHERE tablename = $1 AND indexname = $2
				)
			`, idx.table, idx.index).Scan(&exists)

			require.NoError(t, err)
			assert.True(t, exists, "index %s should exist on table %s", idx.index, idx.table)
		}
	})

	t.Run("constraints hold", func(t *testing.T) {
		// side CHECK constraint
		_, err := testDB.GetRawConn().Exec(`
			INSERT INTO portfolios (name) VALUES ('constraints')
		`)
		require.NoError(t, err)

		_, err = testDB.GetRawConn().Exec(`
			INSERT INTO trades (portfolio_id, ticker, side, open_size, open_date)
			SELECT id, 'AAPL', 'SIDEWAYS', 100, NOW() FROM portfolios WHERE name = 'constraints'
		`)
		assert.Error(t, err, "invalid side should violate CHECK constraint")

		// executions require a parent trade
		_, err = testDB.GetRawConn().Exec(`
			INSERT INTO executions (trade_id, order_type, quantity, price, order_date)
			VALUES (99999, 'BUY', 10, 50, NOW())
		`)
		assert.Error(t, err, "execution without trade should violate foreign key")
	})

	t.Run("portfolio name is unique", func(t *testing.T) {
		testDB.TruncateAll(t)

		_, err := testDB.GetRawConn().Exec(`INSERT INTO portfolios (name) VALUES ('dup')`)
		require.NoError(t, err)
		_, err = testDB.GetRawConn().Exec(`INSERT INTO portfolios (name) VALUES ('dup')`)
		assert.Error(t, err)
	})
}
