package engine

import (
	"fmt"
	"strings"

	"github.com/rgutierrez/trade-journal/internal/models"
)

// MatchDecision is the matcher's advice for one import record: merge the
// execution into an existing open trade, or start a new one.
type MatchDecision struct {
	Merge   bool
	TradeID int
	Warning string
}

// FindMergeTarget decides whether an externally-sourced execution belongs to
// one of the portfolio's open trades. A trade is compatible when it is OPEN,
// its ticker matches case-insensitively, and its side matches the record's
// side intent; a BUY that would open a SHORT never merges into a LONG trade
// on the same ticker.
//
// The ledger keeps at most one open trade per ticker and side, but import
// data can violate that assumption. When several trades are compatible the
// most recently opened one wins and a warning is surfaced; the matcher never
// silently averages across trades. Read-only and deterministic.
func FindMergeTarget(rec models.ImportRecord, openTrades []*models.Trade) MatchDecision {
	ticker := strings.ToUpper(strings.TrimSpace(rec.Ticker))

	var candidates []*models.Trade
	for _, t := range openTrades {
		if !t.IsOpen() {
			continue
		}
		if !strings.EqualFold(t.Ticker, ticker) {
			continue
		}
		if t.Side != rec.Side {
			continue
		}
		candidates = append(candidates, t)
	}

	switch len(candidates) {
	case 0:
		return MatchDecision{}
	case 1:
		return MatchDecision{Merge: true, TradeID: candidates[0].ID}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.OpenDate.After(best.OpenDate) ||
			(c.OpenDate.Equal(best.OpenDate) && c.ID > best.ID) {
			best = c
		}
	}
	return MatchDecision{
		Merge:   true,
		TradeID: best.ID,
		Warning: fmt.Sprintf("%d open %s trades found for %s, merged into most recent (trade %d)",
			len(candidates), rec.Side, ticker, best.ID),
	}
}
