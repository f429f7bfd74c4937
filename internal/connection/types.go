package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no inbound frames)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// RawMessage is a message from the Subscriber to the Message Router.
type RawMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ConnID     int       // Which connection this came from; increases on every reconnect
	ReceivedAt time.Time // Local timestamp when WS Client received message
}

// SubscribeMessage subscribes a product set to one channel.
type SubscribeMessage struct {
	Type       string   `json:"type"` // "subscribe" or "unsubscribe"
	ProductIDs []string `json:"product_ids"`
	Channel    string   `json:"channel"`
	JWT        string   `json:"jwt,omitempty"`
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL (e.g., wss://advanced-trade-ws.coinbase.com)
	PingInterval time.Duration // How often we ping the server
	PingTimeout  time.Duration // Max time without any inbound frame or pong before the connection is stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size

	MaxMessageSize int64 // Read limit per frame (default: 10 MiB)
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 30 * time.Second,
		PingTimeout:  90 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1000,
	}
}

// SubscriberConfig configures the feed Subscriber.
type SubscriberConfig struct {
	WSURL             string        // WebSocket URL
	Products          []string      // Product IDs, e.g. BTC-USD
	Channels          []string      // One subscribe message is sent per channel
	ReconnectBaseWait time.Duration // Base wait time for reconnection
	ReconnectMaxWait  time.Duration // Max wait time for reconnection
	PingInterval      time.Duration
	PingTimeout       time.Duration
	WriteTimeout      time.Duration
	SubscribeRate     float64 // Subscribe messages per second
	MessageBufferSize int     // Buffer size for output message channel
}

// DefaultSubscriberConfig returns sensible defaults.
func DefaultSubscriberConfig() SubscriberConfig {
	return SubscriberConfig{
		WSURL:             "wss://advanced-trade-ws.coinbase.com",
		Channels:          []string{"ticker", "market_trades", "heartbeats"},
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  60 * time.Second,
		PingInterval:      30 * time.Second,
		PingTimeout:       90 * time.Second,
		WriteTimeout:      5 * time.Second,
		SubscribeRate:     5,
		MessageBufferSize: 10000,
	}
}

// Queue names for frames dropped before they reach the router.
const (
	QueueSocket = "socket" // Client message buffer
	QueueFeed   = "feed"   // Subscriber output channel
)

// State is the subscriber lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateReconnecting
	StateClosed // Terminal
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// TokenSource issues the JWT attached to subscribe messages.
type TokenSource interface {
	Token() (string, error)
}
