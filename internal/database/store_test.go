package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/coinbase-data/internal/apperr"
	"github.com/rickgao/coinbase-data/internal/model"
)

type fakeExecer struct {
	stmts  []string
	failAt int // 1-based statement that fails; 0 = never
}

func (f *fakeExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	if f.failAt == len(f.stmts) {
		return pgconn.CommandTag{}, errors.New("relation already exists with different definition")
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func TestInitSchema(t *testing.T) {
	db := &fakeExecer{}
	require.NoError(t, initSchema(context.Background(), db))
	require.Len(t, db.stmts, len(schemaStatements))

	all := strings.Join(db.stmts, "\n")
	for _, want := range []string{
		"ticker_data", "trade_data",
		"idx_ticker_data_product_time", "idx_trade_data_time",
		"idx_trade_data_product_trade",
		HourlyView, DailyView,
		"idx_hourly_ticker_summary", "idx_daily_ticker_summary",
	} {
		assert.Contains(t, all, want)
	}

	// Views read ticker_data, so the tables must come first.
	assert.True(t, strings.Contains(db.stmts[0], "ticker_data"))
}

func TestInitSchema_FailureIsStoreUnavailable(t *testing.T) {
	db := &fakeExecer{failAt: 3}
	err := initSchema(context.Background(), db)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrStoreUnavailable))
	assert.Len(t, db.stmts, 3, "init must stop at the first failure")
}

func TestRollupView(t *testing.T) {
	v, err := RollupView(model.GranularityHour)
	require.NoError(t, err)
	assert.Equal(t, HourlyView, v)

	v, err = RollupView(model.GranularityDay)
	require.NoError(t, err)
	assert.Equal(t, DailyView, v)

	_, err = RollupView("week")
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))
}

func TestTickerSeriesSQL(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	query, args := tickerSeriesSQL("BTC-USD", start, nil)
	assert.NotContains(t, query, "$3")
	assert.Contains(t, query, "ORDER BY time ASC")
	assert.Equal(t, []any{"BTC-USD", start}, args)

	end := start.Add(time.Hour)
	query, args = tickerSeriesSQL("BTC-USD", start, &end)
	assert.Contains(t, query, "time <= $3")
	assert.Equal(t, []any{"BTC-USD", start, end}, args)
}

func TestRollupsSQL(t *testing.T) {
	end := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	query, args, err := rollupsSQL(model.GranularityDay, "ETH-USD", nil, &end)
	require.NoError(t, err)
	assert.Contains(t, query, "FROM "+DailyView)
	assert.Contains(t, query, "bin_start <= $2")
	assert.NotContains(t, query, "bin_start >=")
	assert.Equal(t, []any{"ETH-USD", end}, args)
}
