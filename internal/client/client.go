package client

import (
	"sync"
	"time"
)

// Connection abstracts the websocket connection of one board view.
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (int, []byte, error)
	Close() error
}

type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Client is one open view (a browser tab) of a session's board.
type Client struct {
	ID   string
	Conn Connection

	mu       sync.Mutex
	status   Status
	lastSeen time.Time
}

// New wraps conn as a connected client.
func New(id string, conn Connection) *Client {
	return &Client{
		ID:       id,
		Conn:     conn,
		status:   StatusConnected,
		lastSeen: time.Now(),
	}
}

// Touch records activity from the client.
func (c *Client) Touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// MarkDisconnected flips the status; it reports false if the client was already disconnected.
func (c *Client) MarkDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusDisconnected {
		return false
	}
	c.status = StatusDisconnected
	c.lastSeen = time.Now()
	return true
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}
