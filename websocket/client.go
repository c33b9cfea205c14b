package websocket

import (
	"sync"

	"github.com/google/uuid"
)

// Conn is the slice of a websocket connection the registry needs. The
// production value is a *websocket.Conn from gofiber/contrib/websocket;
// tests inject fakes.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Client is one live connection bound to an authenticated user. A user with
// several devices holds several clients.
type Client struct {
	UserID uuid.UUID

	conn Conn
	mu   sync.Mutex
}

func NewClient(userID uuid.UUID, conn Conn) *Client {
	return &Client{UserID: userID, conn: conn}
}

// Send writes one event to the connection. Writes are serialized per
// connection; concurrent fan-outs to the same client must not interleave
// frames.
func (c *Client) Send(e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(e)
}

func (c *Client) Close() error {
	return c.conn.Close()
}
