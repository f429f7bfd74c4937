package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rickgao/coinbase-data/internal/apperr"
	"github.com/rickgao/coinbase-data/internal/model"
	"github.com/rickgao/coinbase-data/internal/timestamp"
)

// Store is the read surface of the database. *database.Store satisfies it.
type Store interface {
	TickerSeries(ctx context.Context, productID string, start time.Time, end *time.Time) ([]model.RawTicker, error)
	TradesSince(ctx context.Context, productID string, since time.Time) ([]model.Trade, error)
	RecentTrades(ctx context.Context, productID string, limit int) ([]model.Trade, error)
	Rollups(ctx context.Context, g model.Granularity, productID string, start, end *time.Time) ([]model.Rollup, error)
}

// Config holds query service configuration.
type Config struct {
	Origin   Origin // Bin anchoring (default: epoch)
	MaxLimit int    // Upper bound on RecentTrades limit (default: 1000)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Origin:   OriginEpoch,
		MaxLimit: 1000,
	}
}

// Service answers read queries. It keeps no state between calls and is safe
// for concurrent use.
type Service struct {
	cfg    Config
	store  Store
	logger *slog.Logger
}

// NewService creates a new query Service.
func NewService(cfg Config, store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 1000
	}
	return &Service{cfg: cfg, store: store, logger: logger}
}

// FetchBinned returns the average price of productID per bin of width
// binSize over [start, end]. Rows whose stored time cannot be normalized are
// skipped.
func (s *Service) FetchBinned(ctx context.Context, productID string, start time.Time, end *time.Time, binSize time.Duration) ([]model.Bin, error) {
	if err := requireProduct("fetch binned", productID); err != nil {
		return nil, err
	}
	if binSize <= 0 {
		return nil, apperr.Errorf(apperr.ErrInvalidArgument, "fetch binned", "bin size must be positive, got %s", binSize)
	}

	rows, err := s.store.TickerSeries(ctx, productID, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch binned %s: %w", productID, err)
	}

	points := make([]Point, 0, len(rows))
	skipped := 0
	for _, r := range rows {
		ts, err := timestamp.Normalize(r.Time)
		if err != nil {
			skipped++
			continue
		}
		points = append(points, Point{Time: ts, Price: r.Price})
	}
	if skipped > 0 {
		s.logger.Warn("skipped rows with unusable timestamps",
			"product_id", productID,
			"skipped", skipped,
		)
	}

	return BinTickers(points, binSize, s.cfg.Origin)
}

// AggregateSince summarizes the trades of productID strictly after since.
func (s *Service) AggregateSince(ctx context.Context, productID string, since time.Time) (model.TradeAggregate, error) {
	if err := requireProduct("aggregate trades", productID); err != nil {
		return model.TradeAggregate{}, err
	}

	trades, err := s.store.TradesSince(ctx, productID, since)
	if err != nil {
		return model.TradeAggregate{}, fmt.Errorf("aggregate trades %s: %w", productID, err)
	}
	return AggregateTrades(trades), nil
}

// RecentTrades returns up to limit trades of productID, newest first.
func (s *Service) RecentTrades(ctx context.Context, productID string, limit int) ([]model.Trade, error) {
	if err := requireProduct("recent trades", productID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, apperr.Errorf(apperr.ErrInvalidArgument, "recent trades", "limit must be positive, got %d", limit)
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	trades, err := s.store.RecentTrades(ctx, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent trades %s: %w", productID, err)
	}

	// The store already orders rows, but the contract holds regardless of it.
	SortTradesDesc(trades)
	if len(trades) > limit {
		trades = trades[:limit]
	}
	return trades, nil
}

// LastTrade returns the newest trade of productID, or apperr.ErrNotFound.
func (s *Service) LastTrade(ctx context.Context, productID string) (model.Trade, error) {
	trades, err := s.RecentTrades(ctx, productID, 1)
	if err != nil {
		return model.Trade{}, err
	}
	if len(trades) == 0 {
		return model.Trade{}, apperr.Errorf(apperr.ErrNotFound, "last trade", "no trades for %s", productID)
	}
	return trades[0], nil
}

// Rollups returns hourly or daily summaries of productID.
func (s *Service) Rollups(ctx context.Context, productID string, g model.Granularity, start, end *time.Time) ([]model.Rollup, error) {
	if err := requireProduct("rollups", productID); err != nil {
		return nil, err
	}

	rows, err := s.store.Rollups(ctx, g, productID, start, end)
	if err != nil {
		return nil, fmt.Errorf("rollups %s: %w", productID, err)
	}
	return rows, nil
}

func requireProduct(op, productID string) error {
	if strings.TrimSpace(productID) == "" {
		return apperr.Errorf(apperr.ErrValidation, op, "product_id is required")
	}
	return nil
}
