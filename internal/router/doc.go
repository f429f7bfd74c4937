// Package router implements the Message Router component.
//
// The Message Router:
//   - Decodes each feed message into an explicit envelope variant
//     (ticker, market_trades, heartbeat, unknown) before touching fields
//   - Normalizes timestamps and prices into model.Ticker / model.Trade records
//   - Drops a malformed envelope as a unit, counting the typed result
//   - Feeds two bounded drop-oldest queues drained by the writers, so slow
//     storage never stalls feed reception
package router
