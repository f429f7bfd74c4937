package config

import "time"

// Config is the root configuration shared by the gatherer and the query server.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Feed     FeedConfig     `yaml:"feed"`
	API      APIConfig      `yaml:"api"`
	Database DBConfig       `yaml:"database"`
	Writers  WritersConfig  `yaml:"writers"`
	Rollup   RollupConfig   `yaml:"rollup"`
	Server   ServerConfig   `yaml:"server"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FeedConfig holds Coinbase Advanced Trade WebSocket settings.
type FeedConfig struct {
	WSURL              string        `yaml:"ws_url"`
	Products           []string      `yaml:"products"`
	Channels           []string      `yaml:"channels"`
	KeyFile            string        `yaml:"key_file"` // CDP API key JSON ({"name", "privateKey"}); empty = unauthenticated
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	SubscribeRate      float64       `yaml:"subscribe_rate"` // Subscribe messages per second
	BufferSize         int           `yaml:"buffer_size"`
}

// APIConfig holds Coinbase REST settings.
type APIConfig struct {
	RestURL    string        `yaml:"rest_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WritersConfig holds ingestion writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	QueueSize     int           `yaml:"queue_size"` // Capacity of each bounded queue
	Workers       int           `yaml:"workers"`    // Writer goroutines per queue
}

// RollupConfig holds aggregate refresher settings.
type RollupConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ServerConfig holds query API settings.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	DefaultBinSize time.Duration `yaml:"default_bin_size"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// MetricsConfig holds Prometheus and health endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig selects the slog handler and optional rotating file output.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file"`   // Empty = stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}
