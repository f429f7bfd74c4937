package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/coinbase-data/internal/apperr"
	"github.com/rickgao/coinbase-data/internal/config"
	"github.com/rickgao/coinbase-data/internal/model"
)

// Store is the explicit handle to the persistence layer. It is created by Open,
// prepared by Init and released by Close; nothing is initialized implicitly.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to PostgreSQL. It does not touch the schema.
func Open(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, apperr.E(apperr.ErrConnection, "open store", err)
	}

	return &Store{pool: pool, logger: logger}, nil
}

// Connect creates a single connection pool.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := newPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// newPoolConfig pins the session settings the read queries depend on: time
// columns are rendered with ::text, so the output layout must not follow the
// server's DateStyle or TimeZone.
func newPoolConfig(cfg config.DBConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.ConnConfig.RuntimeParams["DateStyle"] = "ISO, YMD"
	poolCfg.ConnConfig.RuntimeParams["timezone"] = "UTC"

	return poolCfg, nil
}

// Init creates the schema. A failure is fatal for callers: the process must
// not ingest or serve without a confirmed schema.
func (s *Store) Init(ctx context.Context) error {
	if err := initSchema(ctx, s.pool); err != nil {
		return err
	}
	s.logger.Info("database schema ready", "statements", len(schemaStatements))
	return nil
}

// Pool exposes the pool to the writers and the rollup refresher.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping verifies the connection is healthy.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return apperr.E(apperr.ErrConnection, "ping store", err)
	}
	return nil
}

// Close closes the pool. In-flight writes must have finished before this.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// WithConn runs fn on one pooled connection and releases it on every exit path.
func (s *Store) WithConn(ctx context.Context, fn func(conn *pgxpool.Conn) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return apperr.E(apperr.ErrConnection, "acquire connection", err)
	}
	defer conn.Release()

	return fn(conn)
}

// TickerSeries returns the raw ticker rows of productID with time >= start
// (and <= end when end is set), ascending. Times are returned as text and are
// normalized by the caller.
func (s *Store) TickerSeries(ctx context.Context, productID string, start time.Time, end *time.Time) ([]model.RawTicker, error) {
	query, args := tickerSeriesSQL(productID, start, end)

	var out []model.RawTicker
	err := s.WithConn(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query ticker_data: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var r model.RawTicker
			if err := rows.Scan(&r.Time, &r.Price); err != nil {
				return fmt.Errorf("scan ticker_data: %w", err)
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

func tickerSeriesSQL(productID string, start time.Time, end *time.Time) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT time::text, price FROM ticker_data WHERE product_id = $1 AND time >= $2`)
	args := []any{productID, start}
	if end != nil {
		b.WriteString(` AND time <= $3`)
		args = append(args, *end)
	}
	b.WriteString(` ORDER BY time ASC`)
	return b.String(), args
}

const tradeColumns = `product_id, time, trade_id, price, size, side`

// TradesSince returns trades of productID with time > since, ascending.
func (s *Store) TradesSince(ctx context.Context, productID string, since time.Time) ([]model.Trade, error) {
	return s.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trade_data
		WHERE product_id = $1 AND time > $2
		ORDER BY time ASC, trade_id ASC`, productID, since)
}

// RecentTrades returns up to limit trades of productID, newest first.
// Ties on time are broken by trade_id so the order is deterministic.
func (s *Store) RecentTrades(ctx context.Context, productID string, limit int) ([]model.Trade, error) {
	return s.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trade_data
		WHERE product_id = $1
		ORDER BY time DESC, trade_id DESC
		LIMIT $2`, productID, limit)
}

func (s *Store) queryTrades(ctx context.Context, query string, args ...any) ([]model.Trade, error) {
	var out []model.Trade
	err := s.WithConn(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query trade_data: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			tr, err := scanTrade(rows)
			if err != nil {
				return err
			}
			out = append(out, tr)
		}
		return rows.Err()
	})
	return out, err
}

func scanTrade(rows pgx.Rows) (model.Trade, error) {
	var (
		tr   model.Trade
		side string
	)
	if err := rows.Scan(&tr.ProductID, &tr.Time, &tr.TradeID, &tr.Price, &tr.Size, &side); err != nil {
		return model.Trade{}, fmt.Errorf("scan trade_data: %w", err)
	}
	parsed, err := model.ParseSide(side)
	if err != nil {
		return model.Trade{}, fmt.Errorf("scan trade_data: %w", err)
	}
	tr.Side = parsed
	tr.Time = tr.Time.UTC()
	return tr, nil
}

// Rollups returns rollup rows of granularity g for productID, ascending by
// bin_start, optionally bounded by start and end.
func (s *Store) Rollups(ctx context.Context, g model.Granularity, productID string, start, end *time.Time) ([]model.Rollup, error) {
	query, args, err := rollupsSQL(g, productID, start, end)
	if err != nil {
		return nil, err
	}

	var out []model.Rollup
	err = s.WithConn(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query rollups: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var r model.Rollup
			if err := rows.Scan(&r.ProductID, &r.BinStart, &r.AvgPrice, &r.MinPrice, &r.MaxPrice); err != nil {
				return fmt.Errorf("scan rollups: %w", err)
			}
			r.BinStart = r.BinStart.UTC()
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

func rollupsSQL(g model.Granularity, productID string, start, end *time.Time) (string, []any, error) {
	view, err := RollupView(g)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString(`SELECT product_id, bin_start, avg_price, min_price, max_price FROM `)
	b.WriteString(view)
	b.WriteString(` WHERE product_id = $1`)
	args := []any{productID}
	if start != nil {
		args = append(args, *start)
		fmt.Fprintf(&b, ` AND bin_start >= $%d`, len(args))
	}
	if end != nil {
		args = append(args, *end)
		fmt.Fprintf(&b, ` AND bin_start <= $%d`, len(args))
	}
	b.WriteString(` ORDER BY bin_start ASC`)
	return b.String(), args, nil
}
