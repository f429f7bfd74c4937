// Package connection implements the feed Subscriber component.
//
// The Subscriber:
//   - Maintains one WebSocket connection to the exchange feed
//   - Sends one rate-limited subscribe message per channel, signed with a
//     short-lived JWT when credentials are configured
//   - Handles reconnection with exponential backoff, re-issuing the same
//     subscription set every time
//   - Routes incoming frames to the Message Router
//
// State moves Disconnected → Connecting → Subscribed, drops to Reconnecting
// on transport errors, and ends in Closed after Stop.
package connection
