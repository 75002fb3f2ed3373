package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Portfolio routes
	api.HandleFunc("/portfolios", handler.CreatePortfolio).Methods("POST")
	api.HandleFunc("/portfolios", handler.GetAllPortfolios).Methods("GET")
	api.HandleFunc("/portfolios/{id:[0-9]+}/positions", handler.GetPositions).Methods("GET")
	api.HandleFunc("/portfolios/{id:[0-9]+}/import", handler.ImportExecutions).Methods("POST")

	// Trade routes
	api.HandleFunc("/trades", handler.CreateTrade).Methods("POST")
	api.HandleFunc("/trades", handler.ListTrades).Methods("GET")
	api.HandleFunc("/trades/{id:[0-9]+}", handler.GetTrade).Methods("GET")
	api.HandleFunc("/trades/{id:[0-9]+}/executions", handler.AppendExecution).Methods("POST")

	// Stats
	api.HandleFunc("/stats", handler.GetStats).Methods("GET")

	return r
}
