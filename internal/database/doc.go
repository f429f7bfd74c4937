// Package database owns the PostgreSQL store: connection pool, schema
// initialization and the read queries behind the query engine.
//
// Tables:
//   - ticker_data: append-only price samples
//   - trade_data: append-only trades, unique on (product_id, trade_id)
//
// Materialized views (rollups, refreshed by internal/rollup):
//   - hourly_ticker_summary, daily_ticker_summary: unique on (product_id, bin_start)
package database
