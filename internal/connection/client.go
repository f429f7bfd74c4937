package connection

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/rickgao/coinbase-data/internal/apperr"
	"github.com/rickgao/coinbase-data/internal/metrics"
)

// defaultReadLimit covers full ticker snapshots for large product sets.
const defaultReadLimit = 10 << 20

// dropLogInterval bounds how often a full buffer is logged.
const dropLogInterval = 10 * time.Second

// Client represents a single WebSocket connection to the exchange feed.
type Client interface {
	// Connect establishes the WebSocket connection.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection.
	Close() error

	// Send writes raw bytes to the connection.
	Send(data []byte) error

	// SendJSON marshals v and writes it as one text frame.
	SendJSON(v any) error

	// Messages returns every inbound frame stamped with its local receive time.
	Messages() <-chan TimestampedMessage

	// Errors receives at most one terminal error: a read failure or
	// ErrStaleConnection.
	Errors() <-chan error
}

// client implements the Client interface.
//
// Liveness is tracked with the read deadline. Every inbound frame or pong
// pushes it PingTimeout into the future; the heartbeats channel alone keeps a
// healthy feed well inside that window.
type client struct {
	cfg     ClientConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	dropLog *rate.Limiter

	conn *websocket.Conn

	messages  chan TimestampedMessage
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once

	writeMu sync.Mutex // data frames only; control writes are concurrency-safe

	mu        sync.RWMutex
	connected bool
	closed    bool
	lastSeen  time.Time
	dropped   int64
}

// NewClient creates a new WebSocket client. m may be nil.
func NewClient(cfg ClientConfig, m *metrics.Metrics, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 90 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultReadLimit
	}

	return &client{
		cfg:      cfg,
		metrics:  m,
		logger:   logger.With("url", cfg.URL),
		dropLog:  rate.NewLimiter(rate.Every(dropLogInterval), 1),
		messages: make(chan TimestampedMessage, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect dials the feed and starts the read and keepalive loops.
func (c *client) Connect(ctx context.Context) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrAlreadyClosed
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  10 * time.Second,
		EnableCompression: true,
	}
	header := http.Header{}
	header.Set("Accept", "application/json")

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return apperr.E(apperr.ErrConnection, "dial feed", err)
	}
	conn.SetReadLimit(c.cfg.MaxMessageSize)

	now := time.Now()
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastSeen = now
	c.mu.Unlock()
	conn.SetReadDeadline(now.Add(c.cfg.PingTimeout))

	conn.SetPingHandler(func(data string) error {
		c.touch()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	go c.readLoop()
	go c.keepaliveLoop()

	c.logger.Debug("websocket connected")
	return nil
}

// touch records inbound activity and extends the read deadline.
func (c *client) touch() {
	now := time.Now()
	c.mu.Lock()
	c.lastSeen = now
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.SetReadDeadline(now.Add(c.cfg.PingTimeout))
	}
}

// Close sends a close frame and tears the connection down. Safe to call twice.
func (c *client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.connected = false
		conn := c.conn
		c.mu.Unlock()

		close(c.done)
		if conn == nil {
			return
		}

		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = conn.Close()
	})
	return err
}

// Send writes one text frame.
func (c *client) Send(data []byte) error {
	c.mu.RLock()
	conn, connected := c.conn, c.connected
	c.mu.RUnlock()
	if !connected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// SendJSON marshals v and sends it.
func (c *client) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(data)
}

func (c *client) Messages() <-chan TimestampedMessage {
	return c.messages
}

func (c *client) Errors() <-chan error {
	return c.errors
}

func (c *client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			select {
			case <-c.done:
				// Close() was called; the read error is expected.
			default:
				c.fail(c.classify(err))
			}
			return
		}
		c.touch()

		select {
		case c.messages <- TimestampedMessage{Data: data, ReceivedAt: receivedAt}:
		case <-c.done:
			return
		default:
			c.drop()
		}
	}
}

// drop counts a frame lost to a full message buffer. Logging is throttled.
func (c *client) drop() {
	c.metrics.IncDropped(QueueSocket)
	c.mu.Lock()
	c.dropped++
	total := c.dropped
	c.mu.Unlock()
	if c.dropLog.Allow() {
		c.logger.Warn("message buffer full, dropping frames", "dropped_total", total)
	}
}

// classify turns a read-deadline expiry into ErrStaleConnection.
func (c *client) classify(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		c.mu.RLock()
		lastSeen := c.lastSeen
		c.mu.RUnlock()
		c.logger.Warn("no frames received, connection stale",
			"last_seen", lastSeen,
			"timeout", c.cfg.PingTimeout,
		)
		return ErrStaleConnection
	}
	return apperr.E(apperr.ErrConnection, "read feed", err)
}

func (c *client) fail(err error) {
	select {
	case c.errors <- err:
	default:
	}
}

// keepaliveLoop pings the server so an idle product set still produces pongs.
func (c *client) keepaliveLoop() {
	interval := c.cfg.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}
		}
	}
}
