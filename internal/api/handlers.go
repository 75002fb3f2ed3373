package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rgutierrez/trade-journal/internal/database"
	"github.com/rgutierrez/trade-journal/internal/engine"
	"github.com/rgutierrez/trade-journal/internal/kafka"
	"github.com/rgutierrez/trade-journal/internal/models"
)

const defaultTradeLimit = 100

// Handler holds dependencies for HTTP handlers
type Handler struct {
	db         *database.DB
	ledger     *engine.Ledger
	reconciler *engine.Reconciler
	producer   *kafka.Producer
	log        zerolog.Logger
}

// NewHandler creates a new Handler. producer may be nil when event
// publishing is disabled.
func NewHandler(db *database.DB, ledger *engine.Ledger, reconciler *engine.Reconciler, producer *kafka.Producer, log zerolog.Logger) *Handler {
	return &Handler{
		db:         db,
		ledger:     ledger,
		reconciler: reconciler,
		producer:   producer,
		log:        log,
	}
}

// executionRequest is the JSON shape of a single fill in trade and
// execution requests.
type executionRequest struct {
	OrderType string          `json:"order_type"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	OrderDate time.Time       `json:"order_date"`
	Notes     string          `json:"notes"`
	BrokerRef string          `json:"broker_ref"`
}

func (e executionRequest) toInput() engine.ExecutionInput {
	return engine.ExecutionInput{
		OrderType: e.OrderType,
		Quantity:  e.Quantity,
		Price:     e.Price,
		OrderDate: e.OrderDate,
		Notes:     e.Notes,
		BrokerRef: e.BrokerRef,
	}
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// CreatePortfolio handles POST /portfolios
func (h *Handler) CreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	portfolio := &models.Portfolio{Name: req.Name, Description: req.Description}
	if err := h.db.CreatePortfolio(r.Context(), portfolio); err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, portfolio)
}

// GetAllPortfolios handles GET /portfolios
func (h *Handler) GetAllPortfolios(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.db.GetAllPortfolios(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, portfolios)
}

// CreateTrade handles POST /trades
func (h *Handler) CreateTrade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PortfolioID int              `json:"portfolio_id"`
		Ticker      string           `json:"ticker"`
		Side        string           `json:"side"`
		Instrument  string           `json:"instrument"`
		Execution   executionRequest `json:"execution"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	trade, _, err := h.ledger.CreateTrade(r.Context(), engine.CreateTradeInput{
		PortfolioID:    req.PortfolioID,
		Ticker:         req.Ticker,
		Side:           req.Side,
		Instrument:     req.Instrument,
		FirstExecution: req.Execution.toInput(),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.publishTradeOpened(r, trade)

	respondJSON(w, http.StatusCreated, trade)
}

// GetTrade handles GET /trades/{id}; the response includes the trade's
// execution history.
func (h *Handler) GetTrade(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid trade id", http.StatusBadRequest)
		return
	}

	trade, err := h.db.GetTradeByID(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	executions, err := h.db.GetExecutionsByTradeID(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, struct {
		*models.Trade
		Executions []*models.Execution `json:"executions"`
	}{trade, executions})
}

// ListTrades handles GET /trades?portfolio=&status=&ticker=
func (h *Handler) ListTrades(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := strconv.Atoi(r.URL.Query().Get("portfolio"))
	if err != nil {
		http.Error(w, "portfolio query parameter is required", http.StatusBadRequest)
		return
	}

	limit := defaultTradeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}

	trades, err := h.db.GetTradesByPortfolio(r.Context(), portfolioID,
		r.URL.Query().Get("status"), r.URL.Query().Get("ticker"), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, trades)
}

// AppendExecution handles POST /trades/{id}/executions
func (h *Handler) AppendExecution(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid trade id", http.StatusBadRequest)
		return
	}

	var req executionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	trade, _, err := h.ledger.AppendExecution(r.Context(), id, req.toInput())
	if err != nil {
		h.respondError(w, err)
		return
	}

	if !trade.IsOpen() {
		h.publishTradeClosed(r, trade)
	}

	respondJSON(w, http.StatusOK, trade)
}

// GetPositions handles GET /portfolios/{id}/positions
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid portfolio id", http.StatusBadRequest)
		return
	}

	if _, err := h.db.GetPortfolioByID(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}

	trades, err := h.db.GetOpenTradesByPortfolio(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, trades)
}

// ImportExecutions handles POST /portfolios/{id}/import. With ?dry_run=true
// the batch is matched but nothing is persisted.
func (h *Handler) ImportExecutions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid portfolio id", http.StatusBadRequest)
		return
	}

	var req struct {
		Records []models.ImportRecord `json:"records"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Records) == 0 {
		http.Error(w, "records is required", http.StatusBadRequest)
		return
	}

	var summary *models.ReconciliationSummary
	if r.URL.Query().Get("dry_run") == "true" {
		summary, err = h.reconciler.Preview(r.Context(), id, req.Records)
	} else {
		summary, err = h.reconciler.Reconcile(r.Context(), id, req.Records)
	}
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// GetStats handles GET /stats?portfolio=
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := strconv.Atoi(r.URL.Query().Get("portfolio"))
	if err != nil {
		http.Error(w, "portfolio query parameter is required", http.StatusBadRequest)
		return
	}

	if _, err := h.db.GetPortfolioByID(r.Context(), portfolioID); err != nil {
		h.respondError(w, err)
		return
	}

	stats, err := h.db.GetTradeStats(r.Context(), portfolioID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

func (h *Handler) publishTradeOpened(r *http.Request, trade *models.Trade) {
	if h.producer == nil {
		return
	}
	if err := h.producer.PublishTradeOpened(r.Context(), trade); err != nil {
		// Log but don't fail the request; the trade is already persisted.
		h.log.Error().Err(err).Int("trade_id", trade.ID).Msg("failed to publish trade opened event")
	}
}

func (h *Handler) publishTradeClosed(r *http.Request, trade *models.Trade) {
	if h.producer == nil {
		return
	}
	if err := h.producer.PublishTradeClosed(r.Context(), trade); err != nil {
		h.log.Error().Err(err).Int("trade_id", trade.ID).Msg("failed to publish trade closed event")
	}
}

// respondError maps engine errors onto HTTP statuses. Version conflicts
// surface as 503 only after the ledger has exhausted its retries.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrInvalidExecution):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrTradeNotFound), errors.Is(err, engine.ErrPortfolioNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrTradeNotOpen), errors.Is(err, engine.ErrOverExecution),
		errors.Is(err, engine.ErrDuplicateExecution):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrVersionConflict):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}
	http.Error(w, err.Error(), status)
}

func pathID(r *http.Request, name string) (int, error) {
	return strconv.Atoi(mux.Vars(r)[name])
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
