package engine

import (
	"context"

	"github.com/rgutierrez/trade-journal/internal/models"
)

// Repository is the persistence collaborator required by the engine. The
// trade aggregate (row plus execution history) is the unit of atomicity:
// Create/Save must write the trade and the new execution in one transaction,
// and Save must fail with ErrVersionConflict when the stored version no
// longer matches the loaded one.
type Repository interface {
	PortfolioExists(ctx context.Context, id int) (bool, error)

	GetTradeByID(ctx context.Context, id int) (*models.Trade, error)
	GetExecutionsByTradeID(ctx context.Context, tradeID int) ([]*models.Execution, error)

	// GetOpenTradesByTicker returns OPEN trades for the ticker
	// (case-insensitive) in the portfolio, most recently opened first.
	GetOpenTradesByTicker(ctx context.Context, portfolioID int, ticker string) ([]*models.Trade, error)

	CreateTradeWithExecution(ctx context.Context, t *models.Trade, e *models.Execution) error
	SaveTradeWithExecution(ctx context.Context, t *models.Trade, e *models.Execution) error

	// ExecutionExistsByBrokerRef reports whether any execution in the
	// portfolio carries the given broker reference id.
	ExecutionExistsByBrokerRef(ctx context.Context, portfolioID int, ref string) (bool, error)
}
