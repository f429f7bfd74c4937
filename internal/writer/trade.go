package writer

import (
	"log/slog"

	"github.com/rickgao/coinbase-data/internal/metrics"
	"github.com/rickgao/coinbase-data/internal/model"
	"github.com/rickgao/coinbase-data/internal/router"
)

// Replays after a reconnect resend trades; the unique index absorbs them.
const insertTradeSQL = `
	INSERT INTO trade_data (product_id, time, trade_id, price, size, side)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (product_id, trade_id) DO NOTHING`

// TradeWriter consumes model.Trade records from the router queue and writes
// to the trade_data table.
type TradeWriter struct {
	*batchWriter[model.Trade]
}

// NewTradeWriter creates a new TradeWriter.
func NewTradeWriter(
	cfg WriterConfig,
	input *router.BoundedBuffer[model.Trade],
	db DB,
	m *metrics.Metrics,
	logger *slog.Logger,
) *TradeWriter {
	return &TradeWriter{
		batchWriter: newBatchWriter("trade_data", router.QueueTrade, cfg, input, db, insertTradeSQL, tradeArgs, m, logger),
	}
}

// tradeArgs maps a Trade to insert parameters.
func tradeArgs(t model.Trade) []any {
	return []any{t.ProductID, t.Time.UTC(), t.TradeID, t.Price, t.Size, string(t.Side)}
}
