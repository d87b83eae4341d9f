// Package wsconn wraps a websocket with a buffered outbound queue and a
// single writer pump, so protocol handlers never write concurrently.
package wsconn

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

const writeTimeout = 5 * time.Second

type Conn struct {
	ws   *websocket.Conn
	send chan []byte

	wmu sync.Mutex

	mu     sync.RWMutex
	closed bool
}

func New(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws, send: make(chan []byte, 32)}
}

// ReadMessage blocks for the next inbound frame.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// TrySend queues a frame for the writer pump, dropping it when the buffer
// is full or the connection is closed.
func (c *Conn) TrySend(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrBackpressure
	}
}

// SendNow writes a frame synchronously, bypassing the queue. Used for
// frames that must reach the wire before a close.
func (c *Conn) SendNow(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// Kick delivers a close frame with code and reason, then tears the
// connection down. The owning read loop observes the closed socket and
// runs its cleanup.
func (c *Conn) Kick(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	c.Close()
}

// Close is safe to call from any goroutine, any number of times.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
	c.mu.Unlock()
}

// WritePump drains the outbound queue onto the socket. Run it in its own
// goroutine; it exits when the connection closes.
func (c *Conn) WritePump() {
	for frame := range c.send {
		c.wmu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := c.ws.WriteMessage(websocket.TextMessage, frame)
		c.wmu.Unlock()
		if err != nil {
			log.Debug().Err(err).Str("module", "wsconn").Msg("write pump stopping")
			c.Close()
			return
		}
	}
}
