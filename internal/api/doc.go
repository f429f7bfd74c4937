// Package api provides the Coinbase Advanced Trade REST client.
//
// REST endpoint:
//   - https://api.coinbase.com/api/v3/brokerage
//
// Only product lookups are used: the gatherer checks its configured
// product set before subscribing to the WebSocket feed.
package api
