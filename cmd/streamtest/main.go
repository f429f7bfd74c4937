// streamtest connects to the Coinbase WebSocket feed and prints routed records
// to the console. Nothing is written to the database.
// Usage: go run ./cmd/streamtest --config configs/gatherer.yaml
//
// Set feed.key_file to a CDP API key JSON to subscribe with a JWT.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/coinbase-data/internal/auth"
	"github.com/rickgao/coinbase-data/internal/config"
	"github.com/rickgao/coinbase-data/internal/connection"
	"github.com/rickgao/coinbase-data/internal/logging"
	"github.com/rickgao/coinbase-data/internal/model"
	"github.com/rickgao/coinbase-data/internal/router"
)

func main() {
	configPath := flag.String("config", "configs/gatherer.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full record JSON")
	flag.Parse()

	logger := slog.New(logging.NewHandler(os.Stdout, "text", slog.LevelDebug))

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var tokens connection.TokenSource
	if cfg.Feed.KeyFile != "" {
		creds, err := auth.LoadCredentials(cfg.Feed.KeyFile)
		if err != nil {
			logger.Error("failed to load credentials", "error", err)
			os.Exit(1)
		}
		tokens = creds
		logger.Info("using API credentials", "key_name", creds.KeyName)
	}

	subCfg := connection.DefaultSubscriberConfig()
	subCfg.WSURL = cfg.Feed.WSURL
	subCfg.Products = cfg.Feed.Products
	subCfg.Channels = cfg.Feed.Channels
	sub := connection.NewSubscriber(subCfg, tokens, nil, logger)

	rtr := router.NewRouter(router.RouterConfig{
		TickerQueueSize: 1000,
		TradeQueueSize:  1000,
	}, sub.Messages(), nil, logger)

	if err := rtr.Start(ctx); err != nil {
		logger.Error("failed to start router", "error", err)
		os.Exit(1)
	}
	if err := sub.Start(ctx); err != nil {
		logger.Error("failed to start subscriber", "error", err)
		os.Exit(1)
	}

	buffers := rtr.Buffers()
	// Printers exit when the router closes its queues
	go printTickers(buffers.Ticker, *verbose)
	go printTrades(buffers.Trade, *verbose)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rs := rtr.Stats()
				ss := sub.Stats()
				logger.Info("stats",
					"state", ss.State,
					"reconnects", ss.Reconnects,
					"received", rs.MessagesReceived,
					"routed", rs.MessagesRouted,
					"parse_errors", rs.ParseErrors,
					"validation_errors", rs.ValidationErrors,
					"seq_gaps", rs.SeqGaps,
					"ticker_buf", rs.TickerBuffer.Count,
					"trade_buf", rs.TradeBuffer.Count,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop", "products", cfg.Feed.Products)
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down...")
	sub.Stop(shutdownCtx)
	rtr.Stop(shutdownCtx)
	logger.Info("shutdown complete")
}

func printTickers(buf *router.BoundedBuffer[model.Ticker], verbose bool) {
	for {
		t, ok := buf.Receive()
		if !ok {
			return
		}
		if verbose {
			data, _ := json.MarshalIndent(t, "", "  ")
			fmt.Printf("[TICKER] %s\n", data)
			continue
		}
		fmt.Printf("[TICKER] product=%s price=%s time=%s\n",
			t.ProductID, t.Price, t.Time.Format(time.RFC3339Nano))
	}
}

func printTrades(buf *router.BoundedBuffer[model.Trade], verbose bool) {
	for {
		tr, ok := buf.Receive()
		if !ok {
			return
		}
		if verbose {
			data, _ := json.MarshalIndent(tr, "", "  ")
			fmt.Printf("[TRADE] %s\n", data)
			continue
		}
		fmt.Printf("[TRADE] product=%s id=%s side=%s price=%s size=%s\n",
			tr.ProductID, tr.TradeID, tr.Side, tr.Price, tr.Size)
	}
}
