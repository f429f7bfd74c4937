package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/coinbase-data/internal/api"
	"github.com/rickgao/coinbase-data/internal/auth"
	"github.com/rickgao/coinbase-data/internal/config"
	"github.com/rickgao/coinbase-data/internal/connection"
	"github.com/rickgao/coinbase-data/internal/database"
	"github.com/rickgao/coinbase-data/internal/logging"
	"github.com/rickgao/coinbase-data/internal/metrics"
	"github.com/rickgao/coinbase-data/internal/rollup"
	"github.com/rickgao/coinbase-data/internal/router"
	"github.com/rickgao/coinbase-data/internal/version"
	"github.com/rickgao/coinbase-data/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/gatherer.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional dotenv file")
	skipCheck := flag.Bool("skip-product-check", false, "do not verify products over REST before subscribing")
	flag.Parse()

	if err := config.LoadEnvFile(*envPath); err != nil {
		slog.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("starting gatherer",
		version.Attrs(),
		"instance_id", cfg.Instance.ID,
		"config", *configPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	m := metrics.New(reg)

	// Connect to database and make sure tables and views exist
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	store, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Init(ctx); err != nil {
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	// Credentials are optional: ticker and market_trades are public channels
	var (
		creds  *auth.Credentials
		tokens connection.TokenSource
		signer api.Signer
	)
	if cfg.Feed.KeyFile != "" {
		creds, err = auth.LoadCredentials(cfg.Feed.KeyFile)
		if err != nil {
			logger.Error("failed to load credentials", "error", err)
			os.Exit(1)
		}
		tokens, signer = creds, creds
		logger.Info("using API credentials", "key_name", creds.KeyName)
	}

	products := cfg.Feed.Products
	if !*skipCheck {
		products, err = checkProducts(ctx, cfg, signer, logger)
		if err != nil {
			logger.Error("product check failed", "error", err)
			os.Exit(1)
		}
	}

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHealthHandler(store, reg, cfg.Metrics.Path),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Feed subscriber
	subCfg := connection.DefaultSubscriberConfig()
	subCfg.WSURL = cfg.Feed.WSURL
	subCfg.Products = products
	subCfg.Channels = cfg.Feed.Channels
	subCfg.ReconnectBaseWait = cfg.Feed.ReconnectBaseDelay
	subCfg.ReconnectMaxWait = cfg.Feed.ReconnectMaxDelay
	subCfg.PingInterval = cfg.Feed.PingInterval
	subCfg.PingTimeout = cfg.Feed.PingTimeout
	subCfg.SubscribeRate = cfg.Feed.SubscribeRate
	subCfg.MessageBufferSize = cfg.Feed.BufferSize
	sub := connection.NewSubscriber(subCfg, tokens, m, logger)

	// Router
	rtr := router.NewRouter(router.RouterConfig{
		TickerQueueSize: cfg.Writers.QueueSize,
		TradeQueueSize:  cfg.Writers.QueueSize,
	}, sub.Messages(), m, logger)
	buffers := rtr.Buffers()

	// Writers
	writerCfg := writer.DefaultWriterConfig()
	writerCfg.BatchSize = cfg.Writers.BatchSize
	writerCfg.FlushInterval = cfg.Writers.FlushInterval
	writerCfg.Workers = cfg.Writers.Workers
	tickerWriter := writer.NewTickerWriter(writerCfg, buffers.Ticker, store.Pool(), m, logger)
	tradeWriter := writer.NewTradeWriter(writerCfg, buffers.Trade, store.Pool(), m, logger)

	// Rollup refresher
	refresher := rollup.New(rollup.Config{
		Interval: cfg.Rollup.Interval,
		Timeout:  cfg.Rollup.Timeout,
	}, store.Pool(), m, logger)

	// Start consumers before producers
	for _, c := range []struct {
		name  string
		start func(context.Context) error
	}{
		{"ticker writer", tickerWriter.Start},
		{"trade writer", tradeWriter.Start},
		{"router", rtr.Start},
		{"subscriber", sub.Start},
		{"rollup refresher", refresher.Start},
	} {
		if err := c.start(ctx); err != nil {
			logger.Error("failed to start component", "component", c.name, "error", err)
			os.Exit(1)
		}
	}

	logger.Info("gatherer running",
		"products", products,
		"channels", cfg.Feed.Channels,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop producers first so the writers drain everything already queued
	if err := sub.Stop(shutdownCtx); err != nil {
		logger.Warn("subscriber stop", "error", err)
	}
	if err := refresher.Stop(shutdownCtx); err != nil {
		logger.Warn("refresher stop", "error", err)
	}
	if err := rtr.Stop(shutdownCtx); err != nil {
		logger.Warn("router stop", "error", err)
	}
	if err := tickerWriter.Stop(shutdownCtx); err != nil {
		logger.Warn("ticker writer stop", "error", err)
	}
	if err := tradeWriter.Stop(shutdownCtx); err != nil {
		logger.Warn("trade writer stop", "error", err)
	}
	healthServer.Shutdown(shutdownCtx)

	rs := rtr.Stats()
	ss := sub.Stats()
	logger.Info("gatherer stopped",
		"connections", ss.Connections,
		"reconnects", ss.Reconnects,
		"feed_dropped", ss.MessagesDropped,
		"envelopes", rs.MessagesReceived,
		"parse_errors", rs.ParseErrors,
		"validation_errors", rs.ValidationErrors,
		"ticker_inserts", tickerWriter.Stats().Inserts,
		"trade_inserts", tradeWriter.Stats().Inserts,
		"trade_conflicts", tradeWriter.Stats().Conflicts,
	)
}

// checkProducts drops configured products that Coinbase does not list as
// tradable. It fails only when nothing usable remains.
func checkProducts(ctx context.Context, cfg *config.Config, signer api.Signer, logger *slog.Logger) ([]string, error) {
	client := api.NewClient(
		cfg.API.RestURL,
		signer,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
		api.WithRateLimit(10),
	)

	unusable, err := client.CheckProducts(ctx, cfg.Feed.Products)
	if err != nil {
		return nil, err
	}
	if len(unusable) == 0 {
		return cfg.Feed.Products, nil
	}

	skip := make(map[string]bool, len(unusable))
	for _, id := range unusable {
		skip[id] = true
	}
	var usable []string
	for _, id := range cfg.Feed.Products {
		if !skip[id] {
			usable = append(usable, id)
		}
	}
	logger.Warn("skipping unusable products", "products", unusable)

	if len(usable) == 0 {
		return nil, fmt.Errorf("none of the configured products are tradable: %v", unusable)
	}
	return usable, nil
}

// createHealthHandler creates the HTTP handler for health checks and metrics.
func createHealthHandler(store *database.Store, gatherer prometheus.Gatherer, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := store.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.Handle(metricsPath, metrics.Handler(gatherer))

	return mux
}
