package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/coinbase-data/internal/apperr"
	"github.com/rickgao/coinbase-data/internal/model"
)

// Rollup view names.
const (
	HourlyView = "hourly_ticker_summary"
	DailyView  = "daily_ticker_summary"
)

// RollupView returns the materialized view holding rollups of granularity g.
func RollupView(g model.Granularity) (string, error) {
	switch g {
	case model.GranularityHour:
		return HourlyView, nil
	case model.GranularityDay:
		return DailyView, nil
	}
	return "", apperr.Errorf(apperr.ErrInvalidArgument, "rollup view", "unknown granularity %q", g)
}

// schemaStatements create the tables, indexes and rollup views. Every
// statement is idempotent so Init can run on each start.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ticker_data (
		id         BIGSERIAL PRIMARY KEY,
		product_id TEXT        NOT NULL,
		time       TIMESTAMPTZ NOT NULL,
		price      NUMERIC     NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trade_data (
		id         BIGSERIAL PRIMARY KEY,
		product_id TEXT        NOT NULL,
		time       TIMESTAMPTZ NOT NULL,
		trade_id   TEXT        NOT NULL,
		price      NUMERIC     NOT NULL,
		size       NUMERIC     NOT NULL CHECK (size >= 0),
		side       TEXT        NOT NULL CHECK (side IN ('BUY', 'SELL'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ticker_data_product_time ON ticker_data (product_id, time)`,
	`CREATE INDEX IF NOT EXISTS idx_ticker_data_time ON ticker_data (time)`,
	`CREATE INDEX IF NOT EXISTS idx_trade_data_product_time ON trade_data (product_id, time)`,
	`CREATE INDEX IF NOT EXISTS idx_trade_data_time ON trade_data (time)`,
	// A reconnect can replay recent trades; the writer skips them on conflict.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_trade_data_product_trade ON trade_data (product_id, trade_id)`,
	rollupViewSQL(HourlyView, "hour"),
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_hourly_ticker_summary ON ` + HourlyView + ` (product_id, bin_start)`,
	rollupViewSQL(DailyView, "day"),
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_daily_ticker_summary ON ` + DailyView + ` (product_id, bin_start)`,
}

// rollupViewSQL truncates in UTC so bins do not depend on the session time zone.
func rollupViewSQL(view, unit string) string {
	return fmt.Sprintf(`CREATE MATERIALIZED VIEW IF NOT EXISTS %s AS
	SELECT
		product_id,
		date_trunc('%s', time AT TIME ZONE 'UTC') AT TIME ZONE 'UTC' AS bin_start,
		AVG(price) AS avg_price,
		MIN(price) AS min_price,
		MAX(price) AS max_price
	FROM ticker_data
	GROUP BY product_id, bin_start`, view, unit)
}

// execer is the subset of pgxpool.Pool used for DDL.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// initSchema runs the schema statements in order. Any failure means the store
// cannot be used and is reported as apperr.ErrStoreUnavailable.
func initSchema(ctx context.Context, db execer) error {
	for i, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return apperr.E(apperr.ErrStoreUnavailable, "init schema", fmt.Errorf("statement %d: %w", i+1, err))
		}
	}
	return nil
}
