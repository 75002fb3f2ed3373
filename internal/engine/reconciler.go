package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rgutierrez/trade-journal/internal/models"
)

// DedupCache is an optional fast path for broker-reference duplicate checks.
// It is advisory: a miss falls through to the repository, and cache failures
// must never fail an import, so implementations swallow their own errors.
type DedupCache interface {
	Seen(ctx context.Context, portfolioID int, ref string) bool
	Add(ctx context.Context, portfolioID int, ref string)
}

// Reconciler turns a batch of normalized broker records into trades and
// executions. Records are grouped by (ticker, side); groups run in parallel
// since they share no trade state, while records within a group run strictly
// in their given order so that later fills see the trades created or
// modified by earlier ones.
type Reconciler struct {
	repo   Repository
	ledger *Ledger
	dedup  DedupCache
	log    zerolog.Logger
}

// NewReconciler creates a Reconciler. dedup may be nil.
func NewReconciler(repo Repository, ledger *Ledger, dedup DedupCache, log zerolog.Logger) *Reconciler {
	return &Reconciler{repo: repo, ledger: ledger, dedup: dedup, log: log}
}

// Reconcile applies an import batch to the portfolio. A bad record is
// reported in the summary and never aborts the rest of the batch.
// Re-running the same batch is a no-op for records carrying broker
// reference ids: they are reported as duplicates.
func (r *Reconciler) Reconcile(ctx context.Context, portfolioID int, records []models.ImportRecord) (*models.ReconciliationSummary, error) {
	return r.run(ctx, portfolioID, records, false)
}

// Preview runs the batch without persisting anything: records are validated
// and matched, and the summary shows what Reconcile would do. Within a
// group, records following a would-be trade creation are reported as merges
// into the pending trade.
func (r *Reconciler) Preview(ctx context.Context, portfolioID int, records []models.ImportRecord) (*models.ReconciliationSummary, error) {
	return r.run(ctx, portfolioID, records, true)
}

type indexedRecord struct {
	idx int
	rec models.ImportRecord
}

type groupKey struct {
	ticker string
	side   string
}

func (r *Reconciler) run(ctx context.Context, portfolioID int, records []models.ImportRecord, dryRun bool) (*models.ReconciliationSummary, error) {
	exists, err := r.repo.PortfolioExists(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("checking portfolio %d: %w", portfolioID, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: id %d", ErrPortfolioNotFound, portfolioID)
	}

	summary := &models.ReconciliationSummary{
		BatchID: uuid.NewString(),
		DryRun:  dryRun,
		Total:   len(records),
		Results: make([]models.RecordResult, len(records)),
	}

	// Group records by (ticker, side), preserving batch order within each
	// group. Group order itself carries no meaning.
	groups := make(map[groupKey][]indexedRecord)
	var keys []groupKey
	for i, rec := range records {
		key := groupKey{ticker: strings.ToUpper(strings.TrimSpace(rec.Ticker)), side: rec.Side}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], indexedRecord{idx: i, rec: rec})
	}

	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(key groupKey, recs []indexedRecord) {
			defer wg.Done()
			r.processGroup(ctx, portfolioID, recs, summary.Results, dryRun)
		}(key, groups[key])
	}
	wg.Wait()

	for _, res := range summary.Results {
		switch res.Status {
		case models.RecordCreated:
			summary.Created++
		case models.RecordMerged:
			summary.Merged++
		case models.RecordDuplicate:
			summary.Duplicates++
		default:
			summary.Failed++
		}
		if res.Warning != "" {
			summary.Warnings = append(summary.Warnings, res.Warning)
		}
	}

	r.log.Info().
		Str("batch_id", summary.BatchID).
		Bool("dry_run", dryRun).
		Int("portfolio_id", portfolioID).
		Int("total", summary.Total).
		Int("created", summary.Created).
		Int("merged", summary.Merged).
		Int("duplicates", summary.Duplicates).
		Int("failed", summary.Failed).
		Msg("reconciliation batch finished")

	return summary, nil
}

// processGroup handles one (ticker, side) group sequentially. Each goroutine
// writes only its own records' slots in results, so no locking is needed.
// If the open-trade snapshot cannot be read, the remainder of the group is
// failed; other groups are unaffected.
func (r *Reconciler) processGroup(ctx context.Context, portfolioID int, recs []indexedRecord, results []models.RecordResult, dryRun bool) {
	// Trades this group would have created in a dry run, so later records
	// still match against causally consistent state.
	var pending []*models.Trade

	for i, ir := range recs {
		res := models.RecordResult{Index: ir.idx, Ticker: strings.ToUpper(strings.TrimSpace(ir.rec.Ticker))}

		dup, err := r.isDuplicate(ctx, portfolioID, ir.rec.BrokerRef)
		if err != nil {
			r.failRemainder(recs[i:], results, fmt.Sprintf("duplicate check failed: %v", err))
			return
		}
		if dup {
			res.Status = models.RecordDuplicate
			results[ir.idx] = res
			continue
		}

		if err := ValidateRecord(ir.rec); err != nil {
			res.Status = models.RecordFailed
			res.Error = err.Error()
			results[ir.idx] = res
			continue
		}

		openTrades, err := r.repo.GetOpenTradesByTicker(ctx, portfolioID, res.Ticker)
		if err != nil {
			r.failRemainder(recs[i:], results, fmt.Sprintf("open position snapshot unavailable: %v", err))
			return
		}
		if dryRun {
			openTrades = append(openTrades, pending...)
		}

		decision := FindMergeTarget(ir.rec, openTrades)
		res.Warning = decision.Warning

		switch {
		case dryRun && decision.Merge:
			res.Status = models.RecordMerged
			res.TradeID = decision.TradeID
		case dryRun:
			res.Status = models.RecordCreated
			pending = append(pending, &models.Trade{
				PortfolioID: portfolioID,
				Ticker:      res.Ticker,
				Side:        ir.rec.Side,
				Status:      models.TradeStatusOpen,
				OpenDate:    ir.rec.OrderDate,
			})
		case decision.Merge:
			_, _, err := r.ledger.AppendExecution(ctx, decision.TradeID, executionInput(ir.rec))
			if err != nil {
				res.Status = models.RecordFailed
				res.Error = err.Error()
			} else {
				res.Status = models.RecordMerged
				res.TradeID = decision.TradeID
				r.markApplied(ctx, portfolioID, ir.rec.BrokerRef)
			}
		default:
			trade, _, err := r.ledger.CreateTrade(ctx, CreateTradeInput{
				PortfolioID:    portfolioID,
				Ticker:         ir.rec.Ticker,
				Side:           ir.rec.Side,
				Instrument:     ir.rec.Instrument,
				FirstExecution: executionInput(ir.rec),
			})
			if err != nil {
				res.Status = models.RecordFailed
				res.Error = err.Error()
			} else {
				res.Status = models.RecordCreated
				res.TradeID = trade.ID
				r.markApplied(ctx, portfolioID, ir.rec.BrokerRef)
			}
		}

		results[ir.idx] = res
	}
}

func (r *Reconciler) failRemainder(recs []indexedRecord, results []models.RecordResult, msg string) {
	for _, ir := range recs {
		results[ir.idx] = models.RecordResult{
			Index:  ir.idx,
			Ticker: strings.ToUpper(strings.TrimSpace(ir.rec.Ticker)),
			Status: models.RecordFailed,
			Error:  msg,
		}
	}
}

// isDuplicate consults the cache first and falls back to the repository.
// Records without a broker reference are never duplicates.
func (r *Reconciler) isDuplicate(ctx context.Context, portfolioID int, ref string) (bool, error) {
	if ref == "" {
		return false, nil
	}
	if r.dedup != nil && r.dedup.Seen(ctx, portfolioID, ref) {
		return true, nil
	}
	exists, err := r.repo.ExecutionExistsByBrokerRef(ctx, portfolioID, ref)
	if err != nil {
		return false, err
	}
	if exists && r.dedup != nil {
		r.dedup.Add(ctx, portfolioID, ref)
	}
	return exists, nil
}

func (r *Reconciler) markApplied(ctx context.Context, portfolioID int, ref string) {
	if ref != "" && r.dedup != nil {
		r.dedup.Add(ctx, portfolioID, ref)
	}
}

func executionInput(rec models.ImportRecord) ExecutionInput {
	return ExecutionInput{
		OrderType: rec.OrderType,
		Quantity:  rec.Quantity,
		Price:     rec.Price,
		OrderDate: rec.OrderDate,
		Notes:     rec.Notes,
		BrokerRef: rec.BrokerRef,
	}
}
