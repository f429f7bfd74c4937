// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Feed subscriber state and envelope outcomes per channel
//   - Bounded queue depth and drop-oldest evictions
//   - Writer inserts, duplicate trades and failed rows
//   - Rollup refresh results and latency
//
// All methods are safe on a nil *Metrics so components can run without metrics.
package metrics
