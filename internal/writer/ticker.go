package writer

import (
	"log/slog"

	"github.com/rickgao/coinbase-data/internal/metrics"
	"github.com/rickgao/coinbase-data/internal/model"
	"github.com/rickgao/coinbase-data/internal/router"
)

const insertTickerSQL = `
	INSERT INTO ticker_data (product_id, time, price)
	VALUES ($1, $2, $3)`

// TickerWriter consumes model.Ticker records from the router queue and writes
// to the ticker_data table.
type TickerWriter struct {
	*batchWriter[model.Ticker]
}

// NewTickerWriter creates a new TickerWriter.
func NewTickerWriter(
	cfg WriterConfig,
	input *router.BoundedBuffer[model.Ticker],
	db DB,
	m *metrics.Metrics,
	logger *slog.Logger,
) *TickerWriter {
	return &TickerWriter{
		batchWriter: newBatchWriter("ticker_data", router.QueueTicker, cfg, input, db, insertTickerSQL, tickerArgs, m, logger),
	}
}

// tickerArgs maps a Ticker to insert parameters.
func tickerArgs(t model.Ticker) []any {
	return []any{t.ProductID, t.Time.UTC(), t.Price}
}
