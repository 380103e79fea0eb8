package chat

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"chatwire/logger"
)

const (
	sendQueueSize = 64
	writeWait     = 5 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = 30 * time.Second
	maxFrameSize  = 1 << 20 // 1MB
)

// Conn is one authenticated live connection. It moves through two states:
// registered (authenticated, receives only per-user pushes) and joined
// (subscribed to its conversations' rooms after join_conversations).
type Conn struct {
	ID     string
	UserID string

	sock   *websocket.Conn
	send   chan []byte
	joined atomic.Bool

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(id, userID string, sock *websocket.Conn) *Conn {
	return &Conn{
		ID:     id,
		UserID: userID,
		sock:   sock,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

func (c *Conn) Joined() bool { return c.joined.Load() }
func (c *Conn) markJoined()  { c.joined.Store(true) }

// Enqueue hands data to the writer pump. A full queue drops the event for
// this connection only; delivery is best-effort by design.
func (c *Conn) Enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		logger.Warnf("ws: send queue full, dropping event conn=%s user=%s", c.ID, c.UserID)
	}
}

// close tears the socket down; safe to call from any goroutine, repeatedly.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.sock.Close()
	})
}

// writePump owns all writes to the socket: queued events plus keep-alive
// pings. It exits when the connection closes or a write fails.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debugf("ws: write failed conn=%s: %v", c.ID, err)
				return
			}
		case <-ticker.C:
			if err := c.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
