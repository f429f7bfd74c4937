package writer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/rickgao/coinbase-data/internal/metrics"
	"github.com/rickgao/coinbase-data/internal/model"
	"github.com/rickgao/coinbase-data/internal/router"
)

// fakeDB records inserts. Rows whose first argument is in failRows make the
// statement fail; rows whose third argument is in dupIDs report a conflict.
type fakeDB struct {
	mu       sync.Mutex
	failRows map[string]bool
	dupIDs   map[string]bool
	batches  int
	execs    int
	rows     [][]any
}

func (f *fakeDB) outcome(args []any) (pgconn.CommandTag, error) {
	if key, ok := args[0].(string); ok && f.failRows[key] {
		return pgconn.CommandTag{}, errors.New("insert rejected")
	}
	if len(args) > 2 {
		if id, ok := args[2].(string); ok && f.dupIDs[id] {
			return pgconn.NewCommandTag("INSERT 0 0"), nil
		}
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++

	res := &fakeResults{}
	committed := true
	var pending [][]any
	for _, q := range b.QueuedQueries {
		ct, err := f.outcome(q.Arguments)
		res.tags = append(res.tags, ct)
		res.errs = append(res.errs, err)
		if err != nil {
			committed = false
		} else if ct.RowsAffected() > 0 {
			pending = append(pending, q.Arguments)
		}
	}
	// A batch is one implicit transaction
	if committed {
		f.rows = append(f.rows, pending...)
	}
	return res
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs++

	ct, err := f.outcome(args)
	if err == nil && ct.RowsAffected() > 0 {
		f.rows = append(f.rows, args)
	}
	return ct, err
}

func (f *fakeDB) inserted() [][]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]any(nil), f.rows...)
}

type fakeResults struct {
	tags []pgconn.CommandTag
	errs []error
	i    int
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.i >= len(r.tags) {
		return pgconn.CommandTag{}, errors.New("no more results")
	}
	ct, err := r.tags[r.i], r.errs[r.i]
	r.i++
	return ct, err
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not implemented") }
func (r *fakeResults) QueryRow() pgx.Row         { return nil }
func (r *fakeResults) Close() error              { return nil }

func testTicker(product string, sec int, price string) model.Ticker {
	return model.Ticker{
		ProductID: product,
		Time:      time.Date(2024, 1, 15, 14, 30, sec, 0, time.UTC),
		Price:     decimal.RequireFromString(price),
	}
}

func testTrade(id string) model.Trade {
	return model.Trade{
		ProductID: "BTC-USD",
		Time:      time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC),
		TradeID:   id,
		Price:     decimal.RequireFromString("42000"),
		Size:      decimal.RequireFromString("0.1"),
		Side:      model.SideBuy,
	}
}

func stopWriter(t *testing.T, stop func(context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestDefaultWriterConfig(t *testing.T) {
	cfg := DefaultWriterConfig()
	if cfg.BatchSize != 500 {
		t.Errorf("BatchSize = %d, want 500", cfg.BatchSize)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Workers)
	}
}

func TestTickerArgs(t *testing.T) {
	tk := testTicker("BTC-USD", 5, "42000.50")
	tk.Time = tk.Time.In(time.FixedZone("EST", -5*3600))

	args := tickerArgs(tk)
	if len(args) != 3 {
		t.Fatalf("len(args) = %d, want 3", len(args))
	}
	if args[0] != "BTC-USD" {
		t.Errorf("product = %v", args[0])
	}
	ts := args[1].(time.Time)
	if ts.Location() != time.UTC {
		t.Errorf("time location = %v, want UTC", ts.Location())
	}
	if !args[2].(decimal.Decimal).Equal(decimal.RequireFromString("42000.5")) {
		t.Errorf("price = %v", args[2])
	}
}

func TestTradeArgs(t *testing.T) {
	args := tradeArgs(testTrade("t1"))
	if len(args) != 6 {
		t.Fatalf("len(args) = %d, want 6", len(args))
	}
	if args[2] != "t1" {
		t.Errorf("trade_id = %v, want t1", args[2])
	}
	if args[5] != "BUY" {
		t.Errorf("side = %v, want BUY", args[5])
	}
}

func TestTickerWriter_DrainsQueueOnStop(t *testing.T) {
	db := &fakeDB{}
	input := router.NewBoundedBuffer[model.Ticker](100)
	cfg := WriterConfig{BatchSize: 1000, FlushInterval: time.Hour, Workers: 3}
	w := NewTickerWriter(cfg, input, db, nil, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for i := 0; i < 25; i++ {
		input.Send(testTicker("BTC-USD", i, "100"))
	}
	stopWriter(t, w.Stop)

	if got := len(db.inserted()); got != 25 {
		t.Errorf("inserted %d rows, want 25", got)
	}
	stats := w.Stats()
	if stats.Inserts != 25 {
		t.Errorf("Inserts = %d, want 25", stats.Inserts)
	}
	if stats.Errors != 0 {
		t.Errorf("Errors = %d, want 0", stats.Errors)
	}
}

func TestTickerWriter_FlushOnBatchSize(t *testing.T) {
	db := &fakeDB{}
	input := router.NewBoundedBuffer[model.Ticker](100)
	cfg := WriterConfig{BatchSize: 2, FlushInterval: time.Hour, Workers: 1}
	w := NewTickerWriter(cfg, input, db, nil, nil)

	w.Start(context.Background())
	defer stopWriter(t, w.Stop)

	input.Send(testTicker("BTC-USD", 0, "1"))
	input.Send(testTicker("BTC-USD", 1, "2"))

	deadline := time.Now().Add(time.Second)
	for len(db.inserted()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(db.inserted()); got != 2 {
		t.Errorf("inserted %d rows before stop, want 2", got)
	}
}

func TestTickerWriter_QueuedRowsShareOneBatch(t *testing.T) {
	db := &fakeDB{}
	input := router.NewBoundedBuffer[model.Ticker](100)
	cfg := WriterConfig{BatchSize: 10, FlushInterval: time.Hour, Workers: 1}
	w := NewTickerWriter(cfg, input, db, nil, nil)

	// Queued before the consumer starts, so one receive drains them all
	for i := 0; i < 10; i++ {
		input.Send(testTicker("BTC-USD", i, "1"))
	}
	w.Start(context.Background())
	defer stopWriter(t, w.Stop)

	deadline := time.Now().Add(time.Second)
	for len(db.inserted()) < 10 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(db.inserted()); got != 10 {
		t.Fatalf("inserted %d rows before stop, want 10", got)
	}

	db.mu.Lock()
	batches := db.batches
	db.mu.Unlock()
	if batches != 1 {
		t.Errorf("batches = %d, want 1", batches)
	}
	if input.Len() != 0 {
		t.Errorf("queue len = %d, want 0", input.Len())
	}
}

func TestTickerWriter_FlushOnInterval(t *testing.T) {
	db := &fakeDB{}
	input := router.NewBoundedBuffer[model.Ticker](100)
	cfg := WriterConfig{BatchSize: 1000, FlushInterval: 10 * time.Millisecond, Workers: 1}
	w := NewTickerWriter(cfg, input, db, nil, nil)

	w.Start(context.Background())
	defer stopWriter(t, w.Stop)

	input.Send(testTicker("BTC-USD", 0, "1"))

	deadline := time.Now().Add(time.Second)
	for len(db.inserted()) < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(db.inserted()); got != 1 {
		t.Errorf("inserted %d rows, want 1", got)
	}
}

func TestBatchWriter_FailedBatchRetriesRowsSingly(t *testing.T) {
	db := &fakeDB{failRows: map[string]bool{"BAD-USD": true}}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	input := router.NewBoundedBuffer[model.Ticker](10)
	w := NewTickerWriter(DefaultWriterConfig(), input, db, m, nil)

	rows := []model.Ticker{
		testTicker("BTC-USD", 0, "1"),
		testTicker("BAD-USD", 1, "2"),
		testTicker("ETH-USD", 2, "3"),
	}
	inserted, conflicts, failed := w.write(context.Background(), rows)

	if inserted != 2 || conflicts != 0 || failed != 1 {
		t.Errorf("write = (%d, %d, %d), want (2, 0, 1)", inserted, conflicts, failed)
	}
	if db.batches != 1 || db.execs != 3 {
		t.Errorf("batches = %d, execs = %d, want 1 and 3", db.batches, db.execs)
	}

	got := db.inserted()
	if len(got) != 2 || got[0][0] != "BTC-USD" || got[1][0] != "ETH-USD" {
		t.Errorf("inserted rows = %v", got)
	}
	if w.Stats().BatchRetries != 1 {
		t.Errorf("BatchRetries = %d, want 1", w.Stats().BatchRetries)
	}
}

func TestBatchWriter_ErrorsAreCounted(t *testing.T) {
	db := &fakeDB{failRows: map[string]bool{"BAD-USD": true}}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	input := router.NewBoundedBuffer[model.Ticker](10)
	w := NewTickerWriter(WriterConfig{BatchSize: 10, FlushInterval: time.Hour, Workers: 1}, input, db, m, nil)

	w.Start(context.Background())
	input.Send(testTicker("BAD-USD", 0, "1"))
	input.Send(testTicker("BTC-USD", 1, "1"))
	stopWriter(t, w.Stop)

	if got := testutil.ToFloat64(m.WriterErrors.WithLabelValues("ticker_data")); got != 1 {
		t.Errorf("writer errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.WriterInserts.WithLabelValues("ticker_data")); got != 1 {
		t.Errorf("writer inserts = %v, want 1", got)
	}
	if w.Stats().Errors != 1 {
		t.Errorf("Errors = %d, want 1", w.Stats().Errors)
	}
}

func TestTradeWriter_DuplicatesAreConflicts(t *testing.T) {
	db := &fakeDB{dupIDs: map[string]bool{"t2": true}}
	input := router.NewBoundedBuffer[model.Trade](10)
	w := NewTradeWriter(WriterConfig{BatchSize: 10, FlushInterval: time.Hour, Workers: 1}, input, db, nil, nil)

	w.Start(context.Background())
	input.Send(testTrade("t1"))
	input.Send(testTrade("t2"))
	input.Send(testTrade("t3"))
	stopWriter(t, w.Stop)

	stats := w.Stats()
	if stats.Inserts != 2 {
		t.Errorf("Inserts = %d, want 2", stats.Inserts)
	}
	if stats.Conflicts != 1 {
		t.Errorf("Conflicts = %d, want 1", stats.Conflicts)
	}
	if stats.Errors != 0 {
		t.Errorf("Errors = %d, want 0", stats.Errors)
	}
}

func TestWriter_StopWithoutStart(t *testing.T) {
	input := router.NewBoundedBuffer[model.Trade](10)
	w := NewTradeWriter(DefaultWriterConfig(), input, &fakeDB{}, nil, nil)
	stopWriter(t, w.Stop)
}
