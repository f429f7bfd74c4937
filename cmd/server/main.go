// server serves the read-only query API over the gathered data.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/coinbase-data/internal/config"
	"github.com/rickgao/coinbase-data/internal/database"
	"github.com/rickgao/coinbase-data/internal/httpapi"
	"github.com/rickgao/coinbase-data/internal/logging"
	"github.com/rickgao/coinbase-data/internal/metrics"
	"github.com/rickgao/coinbase-data/internal/query"
	"github.com/rickgao/coinbase-data/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "configs/gatherer.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional dotenv file")
	origin := flag.String("origin", "epoch", "bin origin: epoch or first_point")
	flag.Parse()

	if err := config.LoadEnvFile(*envPath); err != nil {
		return err
	}
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	queryCfg := query.DefaultConfig()
	if queryCfg.Origin, err = query.ParseOrigin(*origin); err != nil {
		return err
	}

	logger.Info("starting query server", version.Attrs(), "addr", cfg.Server.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer store.Close()

	if err := confirmSchema(ctx, store); err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	srv := httpapi.NewServer(httpapi.Config{
		Addr:           cfg.Server.Addr,
		DefaultBinSize: cfg.Server.DefaultBinSize,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
	}, query.NewService(queryCfg, store, logger), store, metrics.Handler(reg), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	err = g.Wait()
	logger.Info("query server stopped", "error", err)
	return err
}

type schemaInitializer interface {
	Init(ctx context.Context) error
}

// confirmSchema creates any missing tables and views. The server must not
// answer queries against a database it could not prepare.
func confirmSchema(ctx context.Context, s schemaInitializer) error {
	if err := s.Init(ctx); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}
