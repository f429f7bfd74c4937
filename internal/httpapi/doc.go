// Package httpapi serves the query API over HTTP with gin.
//
// Routes:
//   - GET /api/ticker_data       binned average prices
//   - GET /api/recent_trades     newest trades first
//   - GET /api/aggregated_trades buy/sell summaries since an instant
//   - GET /api/last_trade        newest trade, 404 when there is none
//   - GET /api/summary           hourly or daily rollups
//   - GET /health, GET /metrics
//
// Prices and sizes are rendered as JSON numbers and times as RFC 3339 UTC.
package httpapi
