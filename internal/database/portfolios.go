package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rgutierrez/trade-journal/internal/engine"
	"github.com/rgutierrez/trade-journal/internal/models"
)

// CreatePortfolio inserts a new portfolio
func (db *DB) CreatePortfolio(ctx context.Context, p *models.Portfolio) error {
	query := `
		INSERT INTO portfolios (name, description, archived, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	now := time.Now()

	err := db.conn.QueryRowContext(ctx, query, p.Name, p.Description, p.Archived, now).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}
	p.CreatedAt = now
	return nil
}

// GetPortfolioByID retrieves a portfolio by ID
func (db *DB) GetPortfolioByID(ctx context.Context, id int) (*models.Portfolio, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), archived, created_at
		FROM portfolios
		WHERE id = $1
	`
	var p models.Portfolio
	err := db.conn.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Description, &p.Archived, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", engine.ErrPortfolioNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return &p, nil
}

// GetAllPortfolios retrieves all non-archived portfolios
func (db *DB) GetAllPortfolios(ctx context.Context) ([]*models.Portfolio, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), archived, created_at
		FROM portfolios
		WHERE archived = FALSE
		ORDER BY name ASC
	`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []*models.Portfolio
	for rows.Next() {
		var p models.Portfolio
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Archived, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, &p)
	}
	return portfolios, rows.Err()
}

// PortfolioExists checks if a portfolio with the given id exists
func (db *DB) PortfolioExists(ctx context.Context, id int) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM portfolios WHERE id = $1)`
	var exists bool
	err := db.conn.QueryRowContext(ctx, query, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check portfolio existence: %w", err)
	}
	return exists, nil
}
