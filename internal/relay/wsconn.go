package relay

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/gpsrelay/internal/metrics"
)

const (
	DefaultSendBuffer   = 16
	DefaultWriteTimeout = 5 * time.Second

	pingInterval = 30 * time.Second
	pongDeadline = 60 * time.Second
	closeTimeout = time.Second
)

// WSConn is a websocket-backed Conn. A single writer goroutine drains a
// bounded send buffer, so Send never blocks the hub. Reads stay with the
// caller's read pump.
type WSConn struct {
	id           string
	connection   *websocket.Conn
	clock        clockwork.Clock
	writeTimeout time.Duration
	sendChannel  chan []byte
	doneChannel  chan struct{}
	closeOnce    sync.Once
	wg           sync.WaitGroup
}

// NewWSConn wraps connection and starts its writer.
// sendBuffer and writeTimeout fall back to defaults when not positive.
func NewWSConn(connection *websocket.Conn, clock clockwork.Clock, sendBuffer int, writeTimeout time.Duration) *WSConn {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}

	c := &WSConn{
		id:           uuid.NewString(),
		connection:   connection,
		clock:        clock,
		writeTimeout: writeTimeout,
		sendChannel:  make(chan []byte, sendBuffer),
		doneChannel:  make(chan struct{}),
	}
	c.configurePongHandler()
	c.wg.Add(1)
	go c.run()
	return c
}

func (c *WSConn) ID() string {
	return c.id
}

// Send enqueues data for the writer without blocking.
func (c *WSConn) Send(data []byte) error {
	select {
	case <-c.doneChannel:
		return ErrConnClosed
	default:
	}

	select {
	case c.sendChannel <- data:
		return nil
	case <-c.doneChannel:
		return ErrConnClosed
	default:
		return ErrSendBufferFull
	}
}

// Close stops the writer and closes the socket. It does not wait for an
// in-flight write; closing the socket makes that write fail immediately.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.doneChannel)
		err = c.connection.Close()
	})
	if err != nil {
		return fmt.Errorf("close websocket: %w", err)
	}
	return nil
}

// CloseWithReason sends a going-away close frame before closing.
func (c *WSConn) CloseWithReason(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.doneChannel)

		// WriteControl is safe to call concurrently with the writer goroutine.
		closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
		_ = c.connection.WriteControl(websocket.CloseMessage, closeMsg, c.clock.Now().Add(closeTimeout))

		err = c.connection.Close()
	})
	if err != nil {
		return fmt.Errorf("close websocket: %w", err)
	}
	return nil
}

// ReadMessage reads the next data message and extends the read deadline.
// Must only be called from one goroutine.
func (c *WSConn) ReadMessage() ([]byte, error) {
	_, data, err := c.connection.ReadMessage()
	if err != nil {
		return nil, err //nolint:wrapcheck // callers inspect websocket close errors
	}
	c.updateReadDeadline()
	return data, nil
}

// SetReadLimit caps the size of inbound messages.
func (c *WSConn) SetReadLimit(limit int64) {
	c.connection.SetReadLimit(limit)
}

// Done is closed once the connection has been closed.
func (c *WSConn) Done() <-chan struct{} {
	return c.doneChannel
}

// Wait blocks until the writer goroutine has exited.
func (c *WSConn) Wait() {
	c.wg.Wait()
}

func (c *WSConn) run() {
	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.wg.Done()

	for {
		select {
		case msg := <-c.sendChannel:
			start := c.clock.Now()
			c.updateWriteDeadline()
			if err := c.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				// The read pump sees the closed socket and detaches.
				slog.Debug("Websocket write failed", "connection_id", c.id, "error", err)
				_ = c.Close()
				return
			}
			metrics.WebSocketMessageSendDuration.Observe(c.clock.Since(start).Seconds())
		case <-ticker.Chan():
			if err := c.connection.WriteControl(websocket.PingMessage, nil, c.clock.Now().Add(c.writeTimeout)); err != nil {
				metrics.WebSocketPingFailures.Inc()
				_ = c.Close()
				return
			}
		case <-c.doneChannel:
			return
		}
	}
}

func (c *WSConn) configurePongHandler() {
	c.updateReadDeadline()
	c.connection.SetPongHandler(func(string) error {
		c.updateReadDeadline()
		return nil
	})
}

func (c *WSConn) updateWriteDeadline() {
	_ = c.connection.SetWriteDeadline(c.clock.Now().Add(c.writeTimeout))
}

func (c *WSConn) updateReadDeadline() {
	_ = c.connection.SetReadDeadline(c.clock.Now().Add(pongDeadline))
}
