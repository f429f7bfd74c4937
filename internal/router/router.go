package router

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rickgao/coinbase-data/internal/apperr"
	"github.com/rickgao/coinbase-data/internal/connection"
	"github.com/rickgao/coinbase-data/internal/metrics"
	"github.com/rickgao/coinbase-data/internal/model"
	"github.com/rickgao/coinbase-data/internal/timestamp"
)

// Router decodes raw feed messages into records and queues them for the writers.
type Router interface {
	// Start begins routing messages from the input channel to the queues.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the router and closes the queues.
	Stop(ctx context.Context) error

	// Buffers returns output queues for writers to consume.
	Buffers() RouterBuffers

	// Stats returns current router statistics.
	Stats() RouterStats
}

// RouterBuffers provides access to output queues for writers.
type RouterBuffers struct {
	Ticker *BoundedBuffer[model.Ticker]
	Trade  *BoundedBuffer[model.Trade]
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived int64
	MessagesRouted   int64
	ParseErrors      int64
	ValidationErrors int64
	Ignored          int64
	SeqGaps          int64
	TickerBuffer     BufferStats
	TradeBuffer      BufferStats
}

// router is the internal implementation.
type router struct {
	cfg     RouterConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Input from the feed subscriber
	input <-chan connection.RawMessage

	// Output to Writers
	tickerBuf *BoundedBuffer[model.Ticker]
	tradeBuf  *BoundedBuffer[model.Trade]

	// Lifecycle. The loop ends when input is closed; quit is the forced exit
	// used when Stop times out first.
	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup

	// Sequence tracking, per feed connection
	lastConn int
	lastSeq  int64

	// Stats
	mu               sync.RWMutex
	received         int64
	routed           int64
	parseErrors      int64
	validationErrors int64
	ignored          int64
	seqGaps          int64
}

// NewRouter creates a new Message Router.
func NewRouter(cfg RouterConfig, input <-chan connection.RawMessage, m *metrics.Metrics, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &router{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		input:     input,
		tickerBuf: NewBoundedBuffer[model.Ticker](cfg.TickerQueueSize),
		tradeBuf:  NewBoundedBuffer[model.Trade](cfg.TradeQueueSize),
		lastConn:  -1,
		quit:      make(chan struct{}),
	}
}

// Start begins routing messages. Routing continues past cancellation of ctx
// until the input channel is closed, so frames already buffered upstream are
// not lost on shutdown.
func (r *router) Start(ctx context.Context) error {
	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Info("message router started",
		"ticker_queue", r.cfg.TickerQueueSize,
		"trade_queue", r.cfg.TradeQueueSize,
	)

	return nil
}

// Stop waits for the input channel to be closed and drained, then closes the
// queues. If ctx ends first the loop is abandoned and the remaining input is
// left unrouted.
func (r *router) Stop(ctx context.Context) error {
	r.logger.Info("stopping message router", "pending", len(r.input))

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("message router stopped")
	case <-ctx.Done():
		r.quitOnce.Do(func() { close(r.quit) })
		<-done
		r.logger.Warn("message router stop timed out", "unrouted", len(r.input))
	}

	// Writers drain what is left, then see the close
	r.tickerBuf.Close()
	r.tradeBuf.Close()

	return nil
}

// Buffers returns output queues for writers.
func (r *router) Buffers() RouterBuffers {
	return RouterBuffers{
		Ticker: r.tickerBuf,
		Trade:  r.tradeBuf,
	}
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RouterStats{
		MessagesReceived: r.received,
		MessagesRouted:   r.routed,
		ParseErrors:      r.parseErrors,
		ValidationErrors: r.validationErrors,
		Ignored:          r.ignored,
		SeqGaps:          r.seqGaps,
		TickerBuffer:     r.tickerBuf.Stats(),
		TradeBuffer:      r.tradeBuf.Stats(),
	}
}

// routeLoop is the main routing goroutine.
func (r *router) routeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.quit:
			return
		case raw, ok := <-r.input:
			if !ok {
				r.logger.Info("input channel closed")
				return
			}
			r.handle(raw)
		}
	}
}

// handle routes one message and records its outcome. Errors never stop the loop.
func (r *router) handle(raw connection.RawMessage) {
	channel, result, err := r.route(raw)

	r.mu.Lock()
	r.received++
	switch result {
	case ResultOK:
		r.routed++
	case ResultIgnored:
		r.ignored++
	case ResultParseError:
		r.parseErrors++
	case ResultValidationError:
		r.validationErrors++
	}
	r.mu.Unlock()

	r.metrics.ObserveEnvelope(channelLabel(channel), result.String())

	if err != nil {
		r.logger.Warn("dropping envelope",
			"channel", channel,
			"result", result.String(),
			"conn", raw.ConnID,
			"error", err,
		)
	}
}

// route decodes one message and enqueues its records. All records of an
// envelope are built before any is queued, so a bad field drops the whole
// envelope and nothing else.
func (r *router) route(raw connection.RawMessage) (channel string, result Result, err error) {
	env, err := Decode(raw.Data)
	if err != nil {
		return "", classify(err), err
	}
	channel = env.Channel()

	switch e := env.(type) {
	case *TickerEnvelope:
		r.checkSequence(raw.ConnID, e.Sequence())
		tickers, err := tickersFrom(e)
		if err != nil {
			return channel, classify(err), err
		}
		for _, t := range tickers {
			r.enqueueTicker(t)
		}
		return channel, ResultOK, nil

	case *TradeEnvelope:
		r.checkSequence(raw.ConnID, e.Sequence())
		trades, err := tradesFrom(e)
		if err != nil {
			return channel, classify(err), err
		}
		for _, t := range trades {
			r.enqueueTrade(t)
		}
		return channel, ResultOK, nil

	case *Heartbeat:
		r.checkSequence(raw.ConnID, e.Sequence())
		return channel, ResultIgnored, nil

	case *Unknown:
		if e.Type == "error" {
			r.logger.Error("feed reported error", "message", e.Message)
		} else if channel != ChannelSubscriptions {
			r.logger.Debug("skipping message", "channel", channel, "type", e.Type)
		}
		return channel, ResultIgnored, nil
	}

	return channel, ResultIgnored, nil
}

func (r *router) enqueueTicker(t model.Ticker) {
	_, evicted := r.tickerBuf.Send(t)
	if evicted {
		r.metrics.IncDropped(QueueTicker)
	}
	r.metrics.SetQueueDepth(QueueTicker, r.tickerBuf.Len())
}

func (r *router) enqueueTrade(t model.Trade) {
	_, evicted := r.tradeBuf.Send(t)
	if evicted {
		r.metrics.IncDropped(QueueTrade)
	}
	r.metrics.SetQueueDepth(QueueTrade, r.tradeBuf.Len())
}

// checkSequence logs gaps in sequence_num. Numbering restarts with every
// connection, so a new ConnID resets tracking.
func (r *router) checkSequence(connID int, seq int64) {
	if connID != r.lastConn {
		r.lastConn = connID
		r.lastSeq = seq
		return
	}

	if seq > r.lastSeq+1 {
		r.logger.Warn("sequence gap detected",
			"conn", connID,
			"expected", r.lastSeq+1,
			"got", seq,
			"gap", seq-r.lastSeq-1,
		)
		r.mu.Lock()
		r.seqGaps++
		r.mu.Unlock()
	}
	if seq > r.lastSeq {
		r.lastSeq = seq
	}
}

// tickersFrom builds one Ticker per ticker entry, stamped with the envelope time.
func tickersFrom(e *TickerEnvelope) ([]model.Ticker, error) {
	ts, err := timestamp.Normalize(e.Timestamp)
	if err != nil {
		return nil, err
	}

	var out []model.Ticker
	for _, ev := range e.Events {
		for _, t := range ev.Tickers {
			if strings.TrimSpace(t.ProductID) == "" {
				return nil, apperr.Errorf(apperr.ErrValidation, "ticker", "missing product_id")
			}
			price, err := parseDecimal("price", t.Price)
			if err != nil {
				return nil, err
			}
			out = append(out, model.Ticker{ProductID: t.ProductID, Time: ts, Price: price})
		}
	}
	return out, nil
}

// tradesFrom builds one Trade per trade entry, stamped with the trade's own time.
func tradesFrom(e *TradeEnvelope) ([]model.Trade, error) {
	var out []model.Trade
	for _, ev := range e.Events {
		for _, t := range ev.Trades {
			ts, err := timestamp.Normalize(t.Time)
			if err != nil {
				return nil, err
			}
			price, err := parseDecimal("price", t.Price)
			if err != nil {
				return nil, err
			}
			size, err := parseDecimal("size", t.Size)
			if err != nil {
				return nil, err
			}
			side, err := model.ParseSide(t.Side)
			if err != nil {
				return nil, apperr.E(apperr.ErrValidation, "trade", err)
			}

			trade := model.Trade{
				ProductID: t.ProductID,
				Time:      ts,
				TradeID:   t.TradeID,
				Price:     price,
				Size:      size,
				Side:      side,
			}
			if err := trade.Validate(); err != nil {
				return nil, apperr.E(apperr.ErrValidation, "trade", err)
			}
			out = append(out, trade)
		}
	}
	return out, nil
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, apperr.Errorf(apperr.ErrParse, "parse "+field, "missing %s", field)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, apperr.E(apperr.ErrParse, "parse "+field, err)
	}
	return d, nil
}

func classify(err error) Result {
	if errors.Is(err, apperr.ErrValidation) {
		return ResultValidationError
	}
	return ResultParseError
}
