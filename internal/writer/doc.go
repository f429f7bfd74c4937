// Package writer implements the ingestion writers.
//
// Writers:
//   - Ticker writer (ticker_data)
//   - Trade writer (trade_data, deduplicated on product_id + trade_id)
//
// Each writer drains one bounded router queue with a small pool of
// goroutines and inserts with pgx batches. All writers use append-only
// semantics (never update, only insert). Prices and sizes are stored as
// NUMERIC; shopspring/decimal values are passed through unchanged.
package writer
