package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rgutierrez/trade-journal/internal/models"
)

// fakeRepo is an in-memory Repository with the same version semantics as the
// real database layer. Reads return copies so ledger mutations never leak
// into stored state before a save.
type fakeRepo struct {
	mu          sync.Mutex
	portfolios  map[int]bool
	trades      map[int]*models.Trade
	execs       map[int][]*models.Execution
	nextTradeID int
	nextExecID  int

	// saveErrs is popped once per SaveTradeWithExecution call, letting
	// tests inject version conflicts.
	saveErrs []error
	// openTradesErr fails GetOpenTradesByTicker for specific tickers.
	openTradesErr map[string]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		portfolios:    map[int]bool{1: true},
		trades:        make(map[int]*models.Trade),
		execs:         make(map[int][]*models.Execution),
		openTradesErr: make(map[string]error),
	}
}

func copyTrade(t *models.Trade) *models.Trade {
	c := *t
	if t.CloseDate != nil {
		d := *t.CloseDate
		c.CloseDate = &d
	}
	return &c
}

func copyExec(e *models.Execution) *models.Execution {
	c := *e
	return &c
}

func (f *fakeRepo) PortfolioExists(_ context.Context, id int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.portfolios[id], nil
}

func (f *fakeRepo) GetTradeByID(_ context.Context, id int) (*models.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.trades[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrTradeNotFound, id)
	}
	return copyTrade(t), nil
}

func (f *fakeRepo) GetExecutionsByTradeID(_ context.Context, tradeID int) ([]*models.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Execution
	for _, e := range f.execs[tradeID] {
		out = append(out, copyExec(e))
	}
	return out, nil
}

func (f *fakeRepo) GetOpenTradesByTicker(_ context.Context, portfolioID int, ticker string) ([]*models.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.openTradesErr[strings.ToUpper(ticker)]; err != nil {
		return nil, err
	}
	var out []*models.Trade
	for _, t := range f.trades {
		if t.PortfolioID == portfolioID && strings.EqualFold(t.Ticker, ticker) && t.IsOpen() {
			out = append(out, copyTrade(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenDate.Equal(out[j].OpenDate) {
			return out[i].OpenDate.After(out[j].OpenDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (f *fakeRepo) CreateTradeWithExecution(_ context.Context, t *models.Trade, e *models.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTradeID++
	t.ID = f.nextTradeID
	f.nextExecID++
	e.ID = f.nextExecID
	e.TradeID = t.ID
	f.trades[t.ID] = copyTrade(t)
	f.execs[t.ID] = append(f.execs[t.ID], copyExec(e))
	return nil
}

func (f *fakeRepo) SaveTradeWithExecution(_ context.Context, t *models.Trade, e *models.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saveErrs) > 0 {
		err := f.saveErrs[0]
		f.saveErrs = f.saveErrs[1:]
		if err != nil {
			return err
		}
	}
	stored, ok := f.trades[t.ID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrTradeNotFound, t.ID)
	}
	if stored.Version != t.Version {
		return fmt.Errorf("%w: trade %d version %d", ErrVersionConflict, t.ID, t.Version)
	}
	t.Version++
	f.nextExecID++
	e.ID = f.nextExecID
	e.TradeID = t.ID
	f.trades[t.ID] = copyTrade(t)
	f.execs[t.ID] = append(f.execs[t.ID], copyExec(e))
	return nil
}

func (f *fakeRepo) ExecutionExistsByBrokerRef(_ context.Context, portfolioID int, ref string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for tradeID, execs := range f.execs {
		t := f.trades[tradeID]
		if t == nil || t.PortfolioID != portfolioID {
			continue
		}
		for _, e := range execs {
			if e.BrokerRef == ref && ref != "" {
				return true, nil
			}
		}
	}
	return false, nil
}
