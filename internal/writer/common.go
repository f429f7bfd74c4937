package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/coinbase-data/internal/metrics"
	"github.com/rickgao/coinbase-data/internal/router"
)

// batchWriter drains a bounded queue into one table. Rows are batched; a batch
// that fails as a whole is retried row by row so each record commits or drops
// on its own.
type batchWriter[T any] struct {
	table   string
	queue   string // router queue name, for metrics
	cfg     WriterConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Input from Message Router
	input *router.BoundedBuffer[T]

	// Database
	db        DB
	insertSQL string
	args      func(T) []any

	// Batching
	batch       []T
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx       context.Context
	cancel    context.CancelFunc
	consumers sync.WaitGroup
	flusher   sync.WaitGroup

	// Stats
	statsMu sync.Mutex
	stats   WriterMetrics
}

func newBatchWriter[T any](
	table, queue string,
	cfg WriterConfig,
	input *router.BoundedBuffer[T],
	db DB,
	insertSQL string,
	args func(T) []any,
	m *metrics.Metrics,
	logger *slog.Logger,
) *batchWriter[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	return &batchWriter[T]{
		table:     table,
		queue:     queue,
		cfg:       cfg,
		logger:    logger.With("table", table),
		metrics:   m,
		input:     input,
		db:        db,
		insertSQL: insertSQL,
		args:      args,
		batch:     make([]T, 0, cfg.BatchSize),
	}
}

// Start begins consuming records and writing to the database.
func (w *batchWriter[T]) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	for i := 0; i < w.cfg.Workers; i++ {
		w.consumers.Add(1)
		go w.consumeLoop()
	}

	w.flusher.Add(1)
	go w.flushLoop()

	w.logger.Info("writer started",
		"workers", w.cfg.Workers,
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop closes the input queue, lets the consumers drain it and flushes what
// is left.
func (w *batchWriter[T]) Stop(ctx context.Context) error {
	w.logger.Info("stopping writer")

	w.input.Close()

	done := make(chan struct{})
	go func() {
		w.consumers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("writer drain timed out", "remaining", w.input.Len())
	}

	if w.cancel != nil {
		w.cancel()
	}
	w.flusher.Wait()
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	// Final flush
	w.flush()

	w.logger.Info("writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *batchWriter[T]) Stats() WriterMetrics {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

// consumeLoop reads from the input queue until it is closed and empty.
func (w *batchWriter[T]) consumeLoop() {
	defer w.consumers.Done()

	for {
		rec, ok := w.input.Receive()
		if !ok {
			return
		}
		// Take whatever else is queued, up to a full batch
		recs := []T{rec}
		if room := w.room() - 1; room > 0 {
			recs = append(recs, w.input.DrainTo(room)...)
		}
		w.metrics.SetQueueDepth(w.queue, w.input.Len())
		w.add(recs...)
	}
}

// room is how many records the current batch can take before it is full.
func (w *batchWriter[T]) room() int {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.cfg.BatchSize - len(w.batch)
}

// flushLoop periodically flushes the batch.
func (w *batchWriter[T]) flushLoop() {
	defer w.flusher.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

// add appends records to the batch.
func (w *batchWriter[T]) add(recs ...T) {
	w.batchMu.Lock()
	w.batch = append(w.batch, recs...)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// flush writes the current batch to the database.
func (w *batchWriter[T]) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]T, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	// Drain writes must finish even after shutdown has begun.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(w.baseContext()), w.cfg.WriteTimeout)
	defer cancel()

	start := time.Now()
	inserted, conflicts, failed := w.write(ctx, batch)

	w.statsMu.Lock()
	w.stats.Inserts += int64(inserted)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Errors += int64(failed)
	w.stats.Flushes++
	w.statsMu.Unlock()

	w.metrics.AddWrites(w.table, inserted, conflicts, failed)

	w.logger.Debug("flushed",
		"count", len(batch),
		"conflicts", conflicts,
		"failed", failed,
		"duration", time.Since(start),
	)
}

func (w *batchWriter[T]) baseContext() context.Context {
	if w.ctx != nil {
		return w.ctx
	}
	return context.Background()
}

// write inserts rows as one batch, falling back to single inserts.
func (w *batchWriter[T]) write(ctx context.Context, rows []T) (inserted, conflicts, failed int) {
	inserted, conflicts, err := w.batchInsert(ctx, rows)
	if err == nil {
		return inserted, conflicts, 0
	}

	w.logger.Warn("batch insert failed, retrying rows singly", "error", err, "count", len(rows))
	w.statsMu.Lock()
	w.stats.BatchRetries++
	w.statsMu.Unlock()

	inserted, conflicts = 0, 0
	for _, r := range rows {
		ct, err := w.db.Exec(ctx, w.insertSQL, w.args(r)...)
		if err != nil {
			failed++
			w.logger.Error("insert failed, dropping record", "error", err, "record", r)
			continue
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		} else {
			inserted++
		}
	}
	return inserted, conflicts, failed
}

// batchInsert inserts rows using pgx.Batch. The batch runs in one implicit
// transaction, so any error means none of it was committed.
func (w *batchWriter[T]) batchInsert(ctx context.Context, rows []T) (inserted, conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(w.insertSQL, w.args(r)...)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		} else {
			inserted++
		}
	}

	return inserted, conflicts, nil
}
