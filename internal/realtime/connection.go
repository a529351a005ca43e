package realtime

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"course_messaging/internal/config"
	"course_messaging/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAuthenticated
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrNotAuthenticated = errors.New("connection not authenticated")
	ErrBufferExceeded   = errors.New("connection buffer exceeded")
)

// Connection wraps a websocket and serializes outbound writes through a buffered channel.
// Only the write loop writes data frames; Close may run concurrently.
type Connection struct {
	ID     string
	UserID int64
	Role   domain.Role

	ws         *websocket.Conn
	send       chan []byte
	done       chan struct{}
	once       sync.Once
	state      atomic.Int32
	writeWait  time.Duration
	pingPeriod time.Duration
}

func newConnection(ws *websocket.Conn, cfg config.RealtimeConfig) *Connection {
	return &Connection{
		ID:         uuid.NewString(),
		ws:         ws,
		send:       make(chan []byte, cfg.SendBuffer),
		done:       make(chan struct{}),
		writeWait:  cfg.WriteWait,
		pingPeriod: cfg.PingPeriod(),
	}
}

func (c *Connection) State() ConnState {
	return ConnState(c.state.Load())
}

// authenticate moves Connecting to Authenticated. It fails if the connection already closed.
func (c *Connection) authenticate(identity domain.Identity) bool {
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateAuthenticated)) {
		return false
	}
	c.UserID = identity.UserID
	c.Role = identity.Role
	return true
}

func (c *Connection) start() {
	go c.writeLoop()
}

// Send enqueues payload without blocking. A full buffer closes the connection.
func (c *Connection) Send(payload []byte) error {
	if c.State() != StateAuthenticated {
		if c.State() == StateClosed {
			return ErrConnectionClosed
		}
		return ErrNotAuthenticated
	}

	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.ClosePolicyViolation, "send buffer full")
		return ErrBufferExceeded
	}
}

// Close terminates the transport. Safe to call many times from any goroutine.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.done)
		deadline := time.Now().Add(c.writeWait)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.ws.Close()
	})
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
