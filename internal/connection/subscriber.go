package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/rickgao/coinbase-data/internal/apperr"
	"github.com/rickgao/coinbase-data/internal/metrics"
)

// Subscriber keeps one feed connection subscribed to the configured products
// and channels, reconnecting with exponential backoff until stopped.
type Subscriber interface {
	// Start launches the connect/subscribe/read cycle. It does not block.
	Start(ctx context.Context) error

	// Stop closes the connection and moves the subscriber to StateClosed.
	Stop(ctx context.Context) error

	// Messages returns channel of raw messages for Message Router.
	// It is closed once Stop has finished.
	Messages() <-chan RawMessage

	// State returns the current lifecycle state.
	State() State

	// Stats returns current connection statistics.
	Stats() SubscriberStats
}

// SubscriberStats provides statistics about the subscriber.
type SubscriberStats struct {
	State            State
	Connections      int   // Successful connections so far
	Reconnects       int64 // Connection losses followed by a retry
	MessagesReceived int64
	MessagesDropped  int64 // Output channel was full
}

// subscriber implements the Subscriber interface.
type subscriber struct {
	cfg     SubscriberConfig
	tokens  TokenSource
	metrics *metrics.Metrics
	logger  *slog.Logger
	limiter *rate.Limiter
	dropLog *rate.Limiter

	out       chan RawMessage
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	state  atomic.Int32
	connID int // only touched by the run goroutine

	received   atomic.Int64
	dropped    atomic.Int64
	reconnects atomic.Int64
	conns      atomic.Int64
}

// NewSubscriber creates a feed Subscriber. tokens may be nil, in which case
// subscribe messages carry no JWT.
func NewSubscriber(cfg SubscriberConfig, tokens TokenSource, m *metrics.Metrics, logger *slog.Logger) Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SubscribeRate <= 0 {
		cfg.SubscribeRate = 5
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = time.Second
	}
	if cfg.ReconnectMaxWait < cfg.ReconnectBaseWait {
		cfg.ReconnectMaxWait = cfg.ReconnectBaseWait
	}

	s := &subscriber{
		cfg:     cfg,
		tokens:  tokens,
		metrics: m,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(cfg.SubscribeRate), 1),
		dropLog: rate.NewLimiter(rate.Every(dropLogInterval), 1),
		out:     make(chan RawMessage, cfg.MessageBufferSize),
	}
	s.setState(StateDisconnected)
	return s
}

// Start begins the subscriber.
func (s *subscriber) Start(ctx context.Context) error {
	if s.State() == StateClosed {
		return ErrAlreadyClosed
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("feed subscriber started",
		"url", s.cfg.WSURL,
		"products", s.cfg.Products,
		"channels", s.cfg.Channels,
	)
	return nil
}

// Stop gracefully shuts down.
func (s *subscriber) Stop(ctx context.Context) error {
	s.logger.Info("stopping feed subscriber")

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.closeOnce.Do(func() { close(s.out) })
	case <-ctx.Done():
		// The run goroutine may still send; leave the channel open.
		s.logger.Warn("shutdown timeout, feed subscriber still running")
	}

	s.setState(StateClosed)
	s.logger.Info("feed subscriber stopped")
	return nil
}

// Messages returns the output channel for Message Router.
func (s *subscriber) Messages() <-chan RawMessage {
	return s.out
}

// State returns the current state.
func (s *subscriber) State() State {
	return State(s.state.Load())
}

// Stats returns current statistics.
func (s *subscriber) Stats() SubscriberStats {
	return SubscriberStats{
		State:            s.State(),
		Connections:      int(s.conns.Load()),
		Reconnects:       s.reconnects.Load(),
		MessagesReceived: s.received.Load(),
		MessagesDropped:  s.dropped.Load(),
	}
}

// setState records a transition. StateClosed is terminal.
func (s *subscriber) setState(st State) {
	for {
		cur := s.state.Load()
		if State(cur) == StateClosed && st != StateClosed {
			return
		}
		if s.state.CompareAndSwap(cur, int32(st)) {
			break
		}
	}
	s.metrics.SetSubscriberState(int(st))
}

// run is the connect/subscribe/read cycle. It only returns on cancellation.
func (s *subscriber) run() {
	defer s.wg.Done()

	wait := s.cfg.ReconnectBaseWait
	first := true

	for {
		if s.ctx.Err() != nil {
			return
		}

		if first {
			s.setState(StateConnecting)
		} else {
			s.setState(StateReconnecting)
		}

		client, err := s.connect()
		if err != nil {
			s.logger.Warn("feed connection failed",
				"error", err,
				"retry_in", wait,
			)
			if !s.sleep(wait) {
				return
			}
			wait = nextWait(wait, s.cfg.ReconnectMaxWait)
			first = false
			continue
		}

		wait = s.cfg.ReconnectBaseWait
		first = false
		s.setState(StateSubscribed)

		err = s.pump(client)
		client.Close()

		if s.ctx.Err() != nil {
			return
		}

		s.reconnects.Add(1)
		s.metrics.IncReconnects()
		s.logger.Warn("feed connection lost, reconnecting",
			"conn", s.connID,
			"error", err,
			"retry_in", wait,
		)
		s.setState(StateReconnecting)
		if !s.sleep(wait) {
			return
		}
		wait = nextWait(wait, s.cfg.ReconnectMaxWait)
	}
}

// connect dials and issues the full subscription set.
func (s *subscriber) connect() (Client, error) {
	s.connID++
	session := uuid.NewString()
	logger := s.logger.With("conn", s.connID, "session", session)

	client := NewClient(ClientConfig{
		URL:          s.cfg.WSURL,
		PingInterval: s.cfg.PingInterval,
		PingTimeout:  s.cfg.PingTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		BufferSize:   s.cfg.MessageBufferSize,
	}, s.metrics, logger)

	if err := client.Connect(s.ctx); err != nil {
		return nil, err
	}

	for _, channel := range s.cfg.Channels {
		if err := s.subscribe(client, channel); err != nil {
			client.Close()
			return nil, err
		}
	}

	s.conns.Add(1)
	logger.Info("feed subscribed",
		"products", len(s.cfg.Products),
		"channels", s.cfg.Channels,
	)
	return client, nil
}

// subscribe sends one rate-limited subscribe message.
func (s *subscriber) subscribe(client Client, channel string) error {
	if err := s.limiter.Wait(s.ctx); err != nil {
		return err
	}

	msg := SubscribeMessage{
		Type:       "subscribe",
		ProductIDs: s.cfg.Products,
		Channel:    channel,
	}
	if s.tokens != nil {
		jwt, err := s.tokens.Token()
		if err != nil {
			return apperr.E(apperr.ErrConnection, "sign subscribe", err)
		}
		msg.JWT = jwt
	}

	if err := client.SendJSON(msg); err != nil {
		return apperr.E(apperr.ErrConnection, fmt.Sprintf("subscribe %s", channel), err)
	}
	return nil
}

// pump forwards frames until the connection fails or the context ends.
func (s *subscriber) pump(client Client) error {
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case err := <-client.Errors():
			s.drain(client)
			return err
		case msg := <-client.Messages():
			s.forward(msg)
		}
	}
}

// drain forwards whatever the client read before it failed.
func (s *subscriber) drain(client Client) {
	for {
		select {
		case msg := <-client.Messages():
			s.forward(msg)
		default:
			return
		}
	}
}

func (s *subscriber) forward(msg TimestampedMessage) {
	s.received.Add(1)
	raw := RawMessage{
		Data:       msg.Data,
		ConnID:     s.connID,
		ReceivedAt: msg.ReceivedAt,
	}

	select {
	case s.out <- raw:
	default:
		total := s.dropped.Add(1)
		s.metrics.IncDropped(QueueFeed)
		if s.dropLog.Allow() {
			s.logger.Warn("router buffer full, dropping frames", "conn", s.connID, "dropped_total", total)
		}
	}
}

// sleep waits d or until cancellation. It reports false if cancelled.
func (s *subscriber) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-s.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// nextWait doubles wait, capped at max.
func nextWait(wait, max time.Duration) time.Duration {
	wait *= 2
	if wait > max {
		wait = max
	}
	return wait
}
