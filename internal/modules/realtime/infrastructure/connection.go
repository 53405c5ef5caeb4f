package infrastructure

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// ErrAlreadyAuthenticated rejects authenticate with a customer id different
// from the one the connection is already bound to.
var ErrAlreadyAuthenticated = errors.New("connection already authenticated as a different customer")

// Connection is the server-side state of one WebSocket client.
type Connection struct {
	id             string
	transport      Transport
	send           chan []byte
	done           chan struct{}
	closeOnce      sync.Once
	handshakeToken string
	limiter        *rate.Limiter
	writeTimeout   time.Duration

	open     atomic.Bool
	alive    atomic.Bool
	lastPing atomic.Int64

	mu            sync.RWMutex
	customerID    string
	subscriptions map[string]struct{}
}

func newConnection(id string, transport Transport, buffer int, writeTimeout time.Duration, now time.Time) *Connection {
	c := &Connection{
		id:            id,
		transport:     transport,
		send:          make(chan []byte, buffer),
		done:          make(chan struct{}),
		writeTimeout:  writeTimeout,
		subscriptions: make(map[string]struct{}),
	}
	c.open.Store(true)
	c.markAlive(now)
	return c
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) CustomerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.customerID
}

func (c *Connection) IsOpen() bool { return c.open.Load() }

func (c *Connection) IsAlive() bool { return c.alive.Load() }

func (c *Connection) LastPing() time.Time { return time.Unix(0, c.lastPing.Load()) }

// authenticate binds the connection to customerID. Repeating the same id
// succeeds; a different id fails and leaves the binding unchanged.
func (c *Connection) authenticate(customerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.customerID != "" && c.customerID != customerID {
		return ErrAlreadyAuthenticated
	}
	c.customerID = customerID
	return nil
}

func (c *Connection) subscribe(key string) {
	c.mu.Lock()
	c.subscriptions[key] = struct{}{}
	c.mu.Unlock()
}

func (c *Connection) unsubscribe(key string) {
	c.mu.Lock()
	delete(c.subscriptions, key)
	c.mu.Unlock()
}

func (c *Connection) subscribed(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[key]
	return ok
}

// Subscriptions returns a copy of the subscription keys.
func (c *Connection) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.subscriptions))
	for k := range c.subscriptions {
		keys = append(keys, k)
	}
	return keys
}

func (c *Connection) markAlive(at time.Time) {
	c.alive.Store(true)
	c.lastPing.Store(at.UnixNano())
}

// enqueue hands a frame to the write pump without blocking. Frames for a
// closed connection or a full buffer are dropped.
func (c *Connection) enqueue(frame []byte) bool {
	if !c.open.Load() {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		slog.Warn("websocket send buffer full, frame dropped", slog.String("connectionId", c.id))
		return false
	}
}

// writePump is the only writer of data frames to the transport.
func (c *Connection) writePump() error {
	for {
		select {
		case <-c.done:
			return nil
		case frame := <-c.send:
			if c.writeTimeout > 0 {
				_ = c.transport.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			}
			if err := c.transport.WriteMessage(websocket.TextMessage, frame); err != nil {
				return err
			}
		}
	}
}

func (c *Connection) ping(deadline time.Time) error {
	return c.transport.WriteControl(websocket.PingMessage, nil, deadline)
}

// close stops the write pump and closes the transport. Safe to call more
// than once.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.transport.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.transport.Close()
	})
}
