package rollup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/coinbase-data/internal/database"
	"github.com/rickgao/coinbase-data/internal/metrics"
)

// Execer runs a statement. *pgxpool.Pool satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Config holds refresher configuration.
type Config struct {
	Interval time.Duration // Refresh interval (default: 1h)
	Timeout  time.Duration // Per-cycle timeout (default: 5m)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: time.Hour,
		Timeout:  5 * time.Minute,
	}
}

// Views are refreshed in this order.
var Views = []string{database.HourlyView, database.DailyView}

// Refresher periodically recomputes the hourly and daily rollups.
type Refresher struct {
	cfg     Config
	db      Execer
	metrics *metrics.Metrics
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Refresher.
func New(cfg Config, db Execer, m *metrics.Metrics, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Refresher{
		cfg:     cfg,
		db:      db,
		metrics: m,
		logger:  logger,
	}
}

// Start begins the refresh loop.
func (r *Refresher) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run()

	r.logger.Info("rollup refresher started", "interval", r.cfg.Interval)
	return nil
}

// Stop gracefully shuts down the refresher.
func (r *Refresher) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("rollup refresher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main refresh loop.
func (r *Refresher) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	// Refresh immediately on start.
	r.cycle()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.cycle()
		}
	}
}

// cycle runs one refresh and records the outcome. Failures wait for the next tick.
func (r *Refresher) cycle() {
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := r.RefreshCycle(ctx)
	elapsed := time.Since(start)

	r.metrics.ObserveRefresh(elapsed.Seconds(), err)

	if err != nil {
		if r.ctx.Err() != nil {
			return
		}
		r.logger.Error("rollup refresh failed", "error", err, "duration", elapsed)
		return
	}
	r.logger.Info("rollups refreshed", "duration", elapsed)
}

// RefreshCycle recomputes every rollup from ticker_data. Each view is replaced
// atomically; readers see either the old or the new contents. Running it
// twice over unchanged input yields the same rows.
func (r *Refresher) RefreshCycle(ctx context.Context) error {
	var errs []error
	for _, view := range Views {
		if _, err := r.db.Exec(ctx, refreshSQL(view)); err != nil {
			errs = append(errs, fmt.Errorf("refresh %s: %w", view, err))
		}
	}
	return errors.Join(errs...)
}

func refreshSQL(view string) string {
	return "REFRESH MATERIALIZED VIEW CONCURRENTLY " + view
}
