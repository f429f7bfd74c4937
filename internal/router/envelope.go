package router

import (
	"encoding/json"

	"github.com/rickgao/coinbase-data/internal/apperr"
)

// Feed channel names as they appear in the envelope "channel" field.
const (
	ChannelTicker        = "ticker"
	ChannelMarketTrades  = "market_trades"
	ChannelHeartbeats    = "heartbeats"
	ChannelSubscriptions = "subscriptions"
)

// Envelope is one decoded feed message. It is exactly one of
// *TickerEnvelope, *TradeEnvelope, *Heartbeat or *Unknown.
type Envelope interface {
	Channel() string
	Sequence() int64
	envelope()
}

type header struct {
	ChannelName string `json:"channel"`
	Timestamp   string `json:"timestamp"`
	SequenceNum int64  `json:"sequence_num"`
}

func (h header) Channel() string { return h.ChannelName }
func (h header) Sequence() int64 { return h.SequenceNum }
func (header) envelope()         {}

// TickerEnvelope carries ticker events. Every ticker in it is stamped with the
// envelope-level Timestamp.
type TickerEnvelope struct {
	header
	Events []TickerEvent `json:"events"`
}

// TickerEvent is one event of a ticker envelope.
type TickerEvent struct {
	Type    string        `json:"type"` // "snapshot" or "update"
	Tickers []TickerEntry `json:"tickers"`
}

// TickerEntry is one product price sample.
type TickerEntry struct {
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
}

// TradeEnvelope carries market_trades events. Each trade has its own time.
type TradeEnvelope struct {
	header
	Events []TradeEvent `json:"events"`
}

// TradeEvent is one event of a market_trades envelope.
type TradeEvent struct {
	Type   string       `json:"type"`
	Trades []TradeEntry `json:"trades"`
}

// TradeEntry is one executed trade.
type TradeEntry struct {
	TradeID   string `json:"trade_id"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Time      string `json:"time"`
}

// Heartbeat is a heartbeats channel message. It carries no records.
type Heartbeat struct {
	header
}

// Unknown is any other message: subscription acks, errors, new channels.
type Unknown struct {
	header
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Decode decodes data into its Envelope variant based on the channel field.
// Field access happens only after the variant is known.
func Decode(data []byte) (Envelope, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, apperr.E(apperr.ErrParse, "decode envelope", err)
	}

	var env Envelope
	switch h.ChannelName {
	case ChannelTicker:
		env = &TickerEnvelope{}
	case ChannelMarketTrades:
		env = &TradeEnvelope{}
	case ChannelHeartbeats:
		return &Heartbeat{header: h}, nil
	default:
		env = &Unknown{}
	}

	if err := json.Unmarshal(data, env); err != nil {
		return nil, apperr.E(apperr.ErrParse, "decode "+channelLabel(h.ChannelName)+" envelope", err)
	}
	return env, nil
}

// channelLabel maps a channel name to a bounded label value for logs and metrics.
func channelLabel(channel string) string {
	switch channel {
	case ChannelTicker, ChannelMarketTrades, ChannelHeartbeats, ChannelSubscriptions:
		return channel
	}
	return "unknown"
}
