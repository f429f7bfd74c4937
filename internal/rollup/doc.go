// Package rollup implements the Aggregate Refresher component.
//
// The Aggregate Refresher:
//   - Recomputes hourly and daily price summaries from ticker_data
//   - Runs once at startup and then on a fixed interval (default 1h)
//   - Uses REFRESH MATERIALIZED VIEW CONCURRENTLY so queries never see a
//     half-built rollup
//   - Logs and counts failures without stopping the loop
package rollup
