package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spectra/engine/internal/store"
)

const (
	// DefaultPingInterval is how often the {"type":"ping"} heartbeat is sent.
	DefaultPingInterval = 20 * time.Second
	// DefaultReconnectDelay is the fixed wait before reconnecting after an
	// unexpected close.
	DefaultReconnectDelay = 3 * time.Second

	// WriteTimeout bounds every write to the socket
	WriteTimeout = 10 * time.Second
	// ReadTimeout drops connections that stay silent across several pings
	ReadTimeout = 90 * time.Second
)

// StatusFunc is told when the stream connects or disconnects.
type StatusFunc func(connected bool)

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithPingInterval overrides DefaultPingInterval.
func WithPingInterval(d time.Duration) ListenerOption {
	return func(l *Listener) {
		if d > 0 {
			l.pingInterval = d
		}
	}
}

// WithReconnectDelay overrides DefaultReconnectDelay.
func WithReconnectDelay(d time.Duration) ListenerOption {
	return func(l *Listener) {
		if d > 0 {
			l.reconnectDelay = d
		}
	}
}

// WithStatusFunc registers a connection status callback.
func WithStatusFunc(fn StatusFunc) ListenerOption {
	return func(l *Listener) {
		l.status = fn
	}
}

// Listener keeps a subscription to the live trade channel open and emits
// normalized trade batches.
type Listener struct {
	url            string
	out            chan<- []store.LiveTrade
	pingInterval   time.Duration
	reconnectDelay time.Duration
	status         StatusFunc

	conn   *websocket.Conn
	connMu sync.Mutex

	// cancelled is checked before any batch is emitted so nothing is
	// written after Stop returns.
	cancelled atomic.Bool
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	logger *slog.Logger
}

// NewListener creates a new trade stream listener that sends batches on out.
func NewListener(url string, out chan<- []store.LiveTrade, opts ...ListenerOption) *Listener {
	l := &Listener{
		url:            url,
		out:            out,
		pingInterval:   DefaultPingInterval,
		reconnectDelay: DefaultReconnectDelay,
		stopChan:       make(chan struct{}),
		logger:         slog.Default().WithGroup("stream"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start begins the listener with automatic reconnection.
func (l *Listener) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.runLoop(ctx)
}

// Stop closes the socket, stops the heartbeat and any pending reconnect, and
// waits for the loops to exit. It is safe to call more than once.
func (l *Listener) Stop() {
	l.cancelled.Store(true)
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.closeConnection()
	l.wg.Wait()
}

func (l *Listener) stopped(ctx context.Context) bool {
	if l.cancelled.Load() {
		return true
	}
	select {
	case <-ctx.Done():
		return true
	case <-l.stopChan:
		return true
	default:
		return false
	}
}

// runLoop handles connection, reading, and reconnection.
func (l *Listener) runLoop(ctx context.Context) {
	defer l.wg.Done()

	for {
		if l.stopped(ctx) {
			l.logger.Info("ws_loop_stopping")
			return
		}

		if err := l.connect(ctx); err != nil {
			l.logger.Error("ws_connect_failed", "error", err, "retry_in", l.reconnectDelay)
		} else {
			l.serve(ctx)
		}

		if l.stopped(ctx) {
			return
		}
		if !l.waitReconnect(ctx) {
			return
		}
	}
}

// serve runs the heartbeat and read loop for one connection.
func (l *Listener) serve(ctx context.Context) {
	done := make(chan struct{})
	var hb sync.WaitGroup
	hb.Add(1)
	go func() {
		defer hb.Done()
		l.heartbeat(ctx, done)
	}()

	if err := l.readLoop(ctx); err != nil && !l.stopped(ctx) {
		l.logger.Warn("ws_read_error", "error", err)
	}

	close(done)
	hb.Wait()
	l.closeConnection()
}

// connect dials the socket and subscribes to the trades channel.
func (l *Listener) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", "https://polymarket.com")

	conn, resp, err := dialer.DialContext(ctx, l.url, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}

	l.connMu.Lock()
	if l.cancelled.Load() {
		l.connMu.Unlock()
		conn.Close()
		return fmt.Errorf("listener stopped")
	}
	l.conn = conn
	l.connMu.Unlock()

	l.logger.Info("ws_connected", "endpoint", l.url)

	if err := l.writeJSON(subscribeMessage{Type: "subscribe", Channels: []string{"trades"}}); err != nil {
		l.closeConnection()
		return fmt.Errorf("subscribe failed: %w", err)
	}
	l.logger.Info("ws_subscribed", "channel", "trades")

	if l.status != nil {
		l.status(true)
	}
	return nil
}

type subscribeMessage struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
}

type pingMessage struct {
	Type string `json:"type"`
}

func (l *Listener) writeJSON(v interface{}) error {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn == nil {
		return fmt.Errorf("connection is nil")
	}
	l.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	return l.conn.WriteJSON(v)
}

// heartbeat sends an application ping on a fixed interval until done closes.
func (l *Listener) heartbeat(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(l.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		case <-done:
			return
		case <-ticker.C:
			if err := l.writeJSON(pingMessage{Type: "ping"}); err != nil {
				l.logger.Warn("ws_ping_failed", "error", err)
				l.closeConnection()
				return
			}
		}
	}
}

// readLoop reads messages until the connection fails or the listener stops.
func (l *Listener) readLoop(ctx context.Context) error {
	for {
		if l.stopped(ctx) {
			return nil
		}

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()

		if conn == nil {
			return fmt.Errorf("connection is nil")
		}

		conn.SetReadDeadline(time.Now().Add(ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		l.handleMessage(ctx, message)
	}
}

// handleMessage normalizes a message and emits its trades as one batch. A
// full channel applies backpressure to the read loop until the consumer
// catches up or the listener stops.
func (l *Listener) handleMessage(ctx context.Context, data []byte) {
	trades, msgType, err := NormalizeTrades(data, time.Now())
	if err != nil {
		l.logger.Debug("ws_parse_error", "error", err, "raw", truncate(string(data), 256))
		return
	}
	if len(trades) == 0 {
		if msgType != "" {
			l.logger.Debug("ws_message", "type", msgType)
		}
		return
	}

	if l.cancelled.Load() {
		return
	}
	select {
	case l.out <- trades:
	case <-l.stopChan:
	case <-ctx.Done():
	}
}

// waitReconnect sleeps for the fixed reconnect delay. It returns false if
// the listener was stopped while waiting.
func (l *Listener) waitReconnect(ctx context.Context) bool {
	timer := time.NewTimer(l.reconnectDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-l.stopChan:
		return false
	case <-timer.C:
		return !l.cancelled.Load()
	}
}

// closeConnection safely closes the WebSocket connection.
func (l *Listener) closeConnection() {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
		l.logger.Info("ws_disconnected")
		if l.status != nil {
			l.status(false)
		}
	}
}

// truncate shortens a string for logging.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
