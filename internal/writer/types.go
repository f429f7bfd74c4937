package writer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// Workers is the number of goroutines draining the input queue.
	Workers int

	// WriteTimeout bounds one flush, including single-row retries.
	WriteTimeout time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: time.Second,
		Workers:       2,
		WriteTimeout:  30 * time.Second,
	}
}

// DB is the subset of *pgxpool.Pool the writers use.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// WriterMetrics holds metrics for a writer.
type WriterMetrics struct {
	Inserts      int64
	Conflicts    int64 // Rows skipped by ON CONFLICT DO NOTHING
	Errors       int64 // Rows dropped after a failed single insert
	Flushes      int64
	BatchRetries int64 // Batches that fell back to row-by-row inserts
}
