package config

import (
	"errors"
	"fmt"
	"strings"
)

var knownChannels = map[string]bool{
	"ticker":        true,
	"market_trades": true,
	"heartbeats":    true,
}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := c.Database.validate("database"); err != nil {
		return err
	}

	for _, p := range c.Feed.Products {
		if strings.TrimSpace(p) == "" {
			return errors.New("feed.products must not contain empty entries")
		}
	}
	for _, ch := range c.Feed.Channels {
		if !knownChannels[ch] {
			return fmt.Errorf("feed.channels: unknown channel %q", ch)
		}
	}
	if c.Feed.ReconnectBaseDelay > c.Feed.ReconnectMaxDelay {
		return fmt.Errorf("feed.reconnect_base_delay (%s) cannot exceed reconnect_max_delay (%s)",
			c.Feed.ReconnectBaseDelay, c.Feed.ReconnectMaxDelay)
	}
	if c.Feed.SubscribeRate <= 0 {
		return errors.New("feed.subscribe_rate must be > 0")
	}

	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}
	if c.Writers.QueueSize < 1 {
		return errors.New("writers.queue_size must be >= 1")
	}
	if c.Writers.Workers < 1 {
		return errors.New("writers.workers must be >= 1")
	}

	if c.Rollup.Interval <= 0 {
		return errors.New("rollup.interval must be > 0")
	}
	if c.Server.DefaultBinSize <= 0 {
		return errors.New("server.default_bin_size must be > 0")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
