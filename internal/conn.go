package internal

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ConnState is the liveness of a socket handle.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 4096
	sendBufferSize = 256
)

// Conn is one live socket owned by the gateway. Its user id is fixed at
// creation; its outbound queue is closed exactly once, on the closed transition.
type Conn struct {
	id     string
	userID string
	ws     *websocket.Conn
	send   chan []byte

	mu    sync.Mutex
	state ConnState
}

func newConn(userID string, ws *websocket.Conn) *Conn {
	return &Conn{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		state:  StateConnecting,
	}
}

// ID returns the unique connection id.
func (c *Conn) ID() string { return c.id }

// UserID returns the identity that opened the connection.
func (c *Conn) UserID() string { return c.userID }

// State returns the current liveness state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) open() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateConnecting {
		c.state = StateOpen
	}
}

// enqueue pushes a frame without blocking. It reports false when the handle is
// not open or its buffer is full; full also means the peer is too slow.
func (c *Conn) enqueue(payload []byte) (ok bool, full bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return false, false
	}
	select {
	case c.send <- payload:
		return true, false
	default:
		return false, true
	}
}

// markClosed moves the handle to closed and releases the write pump.
// Only the first call returns true.
func (c *Conn) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false
	}
	c.state = StateClosed
	close(c.send)
	return true
}

func (c *Conn) readPump(gateway *Gateway) {
	defer func() {
		gateway.Disconnect(c)
		c.ws.Close()
	}()
	c.ws.SetReadLimit(maxInboundSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// inbound frames carry nothing for the chat flow; reading keeps
		// deadlines and close detection working.
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				gateway.log.Warn("socket read failed", "conn_id", c.id, "user_id", c.userID, "error", err)
			}
			return
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
