package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/coder/websocket"
	"github.com/eapache/queue"
	"go.uber.org/zap"
)

// ErrConnClosed is returned by Send after the connection went away.
var ErrConnClosed = errors.New("connection closed")

// conn is the frontend side of one websocket. Send is called on the loop
// goroutine and never blocks; a writer goroutine drains the outbox in order.
type conn struct {
	id     string
	ws     *websocket.Conn
	logger *zap.Logger

	mu     sync.Mutex
	outbox *queue.Queue
	closed bool
	notify chan struct{}
}

func newConn(id string, ws *websocket.Conn, logger *zap.Logger) *conn {
	return &conn{
		id:     id,
		ws:     ws,
		logger: logger,
		outbox: queue.New(),
		notify: make(chan struct{}, 1),
	}
}

// Send queues message for delivery.
func (c *conn) Send(message string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	c.outbox.Add(message)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of queued messages.
func (c *conn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outbox.Length()
}

func (c *conn) next() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outbox.Length() == 0 {
		return "", false
	}
	return c.outbox.Remove().(string), true
}

// writeLoop delivers queued messages until ctx is done or a write fails.
func (c *conn) writeLoop(ctx context.Context) error {
	for {
		msg, ok := c.next()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-c.notify:
				continue
			}
		}
		if err := c.ws.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// close stops accepting messages and drops anything still queued.
func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if n := c.outbox.Length(); n > 0 {
		c.logger.Debug("dropping queued messages", zap.Int("count", n))
	}
	c.outbox = queue.New()
}
