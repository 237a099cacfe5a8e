package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// writeWait is the deadline for a single frame or control write.
	writeWait = 10 * time.Second
	// pingPeriod is how often keepalive pings go out.
	pingPeriod = 30 * time.Second
	// sendBuffer is the per-client queue depth. A client that falls this far
	// behind is treated as dead.
	sendBuffer = 64
)

var errClientGone = errors.New("client gone")

// WSClient adapts a websocket connection to the hub's Client interface.
// Writes go through a buffered queue drained by a single writer goroutine,
// so one stuck connection never stalls a broadcast to the rest.
type WSClient struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewWSClient wraps conn and starts its writer goroutine.
func NewWSClient(conn *websocket.Conn) *WSClient {
	c := &WSClient{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// Send queues a frame for delivery. It fails when the client is closed or
// its queue is full; the hub prunes the client on failure.
func (c *WSClient) Send(data []byte) error {
	select {
	case <-c.done:
		return errClientGone
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errClientGone
	default:
		return errors.New("send queue full")
	}
}

// Close shuts down the client and its writer goroutine. Safe to call twice.
func (c *WSClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writeLoop drains the send queue and keeps the connection alive with pings.
func (c *WSClient) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Msg("client ping failed")
				c.Close()
				return
			}
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Msg("client write failed")
				c.Close()
				return
			}
		}
	}
}
