package router

// RouterConfig holds configuration for the Message Router.
type RouterConfig struct {
	// Bounded queue capacities. A full queue drops its oldest record.
	TickerQueueSize int // Default: 10000
	TradeQueueSize  int // Default: 10000
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		TickerQueueSize: 10000,
		TradeQueueSize:  10000,
	}
}

// Result is the outcome of routing one envelope.
type Result int

const (
	ResultOK              Result = iota // Records enqueued
	ResultIgnored                       // Heartbeat or unknown channel, nothing to store
	ResultParseError                    // Malformed JSON, timestamp or number
	ResultValidationError               // Decoded but violates a record invariant
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultIgnored:
		return "ignored"
	case ResultParseError:
		return "parse_error"
	case ResultValidationError:
		return "validation_error"
	}
	return "unknown"
}

// Queue names used in logs and metrics.
const (
	QueueTicker = "ticker"
	QueueTrade  = "trade"
)
