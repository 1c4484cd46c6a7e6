package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// connection is one client socket. It is bound to at most one session.
type connection struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	mu        sync.Mutex
	sessionID string
	closed    bool
}

func newConnection(ws *websocket.Conn) *connection {
	return &connection{
		id:   uuid.New().String(),
		ws:   ws,
		send: make(chan []byte, 256),
	}
}

func (c *connection) session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *connection) bind(sessionID string) {
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
}

// sendJSON queues v for the write pump. It reports false when the
// connection is closed or its buffer is full.
func (c *connection) sendJSON(v interface{}) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close stops the write pump. It is safe to call more than once.
func (c *connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
