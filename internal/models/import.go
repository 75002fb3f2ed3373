package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ImportRecord is one normalized execution record from a broker export.
// Parsing of the broker's file format happens upstream; by the time a record
// reaches the reconciler it is already in this shape.
type ImportRecord struct {
	Ticker     string          `json:"ticker"`
	Side       string          `json:"side"`
	Instrument string          `json:"instrument,omitempty"`
	OrderType  string          `json:"order_type"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	OrderDate  time.Time       `json:"order_date"`
	Notes      string          `json:"notes,omitempty"`
	BrokerRef  string          `json:"broker_ref,omitempty"`
}

// Record outcome constants for ReconciliationSummary results.
const (
	RecordCreated   = "CREATED"
	RecordMerged    = "MERGED"
	RecordDuplicate = "DUPLICATE"
	RecordFailed    = "FAILED"
)

// RecordResult reports the outcome of a single import record.
type RecordResult struct {
	Index   int    `json:"index"`
	Ticker  string `json:"ticker"`
	Status  string `json:"status"`
	TradeID int    `json:"trade_id,omitempty"`
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// ReconciliationSummary is the per-batch outcome of an import. It is
// returned to the caller once and never persisted.
type ReconciliationSummary struct {
	BatchID    string         `json:"batch_id"`
	DryRun     bool           `json:"dry_run,omitempty"`
	Total      int            `json:"total"`
	Created    int            `json:"created"`
	Merged     int            `json:"merged"`
	Duplicates int            `json:"duplicates"`
	Failed     int            `json:"failed"`
	Results    []RecordResult `json:"results"`
	Warnings   []string       `json:"warnings,omitempty"`
}
