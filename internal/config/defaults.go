package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultWSURL              = "wss://advanced-trade-ws.coinbase.com"
	DefaultRestURL            = "https://api.coinbase.com/api/v3/brokerage"
	DefaultAPITimeout         = 30 * time.Second
	DefaultMaxRetries         = 3
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultPingInterval       = 30 * time.Second
	DefaultPingTimeout        = 90 * time.Second
	DefaultSubscribeRate      = 5
	DefaultFeedBufferSize     = 10000
	DefaultBatchSize          = 500
	DefaultFlushInterval      = 1 * time.Second
	DefaultQueueSize          = 10000
	DefaultWorkers            = 2
	DefaultRollupInterval     = 1 * time.Hour
	DefaultRollupTimeout      = 5 * time.Minute
	DefaultServerAddr         = ":5000"
	DefaultBinSize            = 10 * time.Second
	DefaultReadTimeout        = 10 * time.Second
	DefaultWriteTimeout       = 30 * time.Second
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

// DefaultProducts matches the product set the dashboard charts.
var DefaultProducts = []string{"BTC-USD", "ETH-USD", "ADA-USD", "MUSE-USD"}

// DefaultChannels are subscribed when feed.channels is empty.
var DefaultChannels = []string{"ticker", "market_trades", "heartbeats"}

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = "coinbase-data"
	}

	// Feed defaults
	if c.Feed.WSURL == "" {
		c.Feed.WSURL = DefaultWSURL
	}
	if len(c.Feed.Products) == 0 {
		c.Feed.Products = append([]string(nil), DefaultProducts...)
	}
	if len(c.Feed.Channels) == 0 {
		c.Feed.Channels = append([]string(nil), DefaultChannels...)
	}
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultPingInterval
	}
	if c.Feed.PingTimeout == 0 {
		c.Feed.PingTimeout = DefaultPingTimeout
	}
	if c.Feed.SubscribeRate == 0 {
		c.Feed.SubscribeRate = DefaultSubscribeRate
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultFeedBufferSize
	}

	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	applyDBDefaults(&c.Database)

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.QueueSize == 0 {
		c.Writers.QueueSize = DefaultQueueSize
	}
	if c.Writers.Workers == 0 {
		c.Writers.Workers = DefaultWorkers
	}

	// Rollup defaults
	if c.Rollup.Interval == 0 {
		c.Rollup.Interval = DefaultRollupInterval
	}
	if c.Rollup.Timeout == 0 {
		c.Rollup.Timeout = DefaultRollupTimeout
	}

	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.DefaultBinSize == 0 {
		c.Server.DefaultBinSize = DefaultBinSize
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
