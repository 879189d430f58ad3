package platform

import (
	"net"
	"sync"

	"github.com/udisondev/playhub/internal/protocol"
)

// Client is the per-connection state shared by the read loop, the handlers,
// and the push layer. All writes to the socket go through the write lock so
// a push frame can never interleave with a response frame.
type Client struct {
	connID uint64
	conn   net.Conn
	remote string

	writeMu sync.Mutex
}

func newClient(connID uint64, conn net.Conn) *Client {
	remote := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	return &Client{connID: connID, conn: conn, remote: remote}
}

// ConnID returns the server-assigned connection identity.
func (c *Client) ConnID() uint64 {
	return c.connID
}

// Remote returns the peer address for logging.
func (c *Client) Remote() string {
	return c.remote
}

// Send writes one framed message.
func (c *Client) Send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WriteJSON(c.conn, v)
}

// Stream holds the write lock for the duration of fn, so a multi-frame
// sequence (a bundle download) owns the connection exclusively.
func (c *Client) Stream(fn func(send func(v any) error) error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return fn(func(v any) error {
		return protocol.WriteJSON(c.conn, v)
	})
}
