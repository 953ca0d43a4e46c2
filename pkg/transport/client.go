package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// DefaultConnectTimeout bounds Dial when the context has no deadline.
const DefaultConnectTimeout = 10 * time.Second

// ClientConn is a framed connection from a client to a Server.
type ClientConn struct {
	conn   net.Conn
	framer *Framer

	closeCh   chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
	readMu    sync.Mutex
}

// Dial connects to a framed server at address.
func Dial(ctx context.Context, address string, maxSize uint32) (*ClientConn, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultConnectTimeout)
		defer cancel()
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	return &ClientConn{
		conn:    conn,
		framer:  NewFramer(conn, maxSize),
		closeCh: make(chan struct{}),
	}, nil
}

// RemoteAddr returns the remote network address.
func (c *ClientConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send writes a message to the server.
func (c *ClientConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// Receive reads the next message, waiting at most timeout (0 waits forever).
func (c *ClientConn) Receive(timeout time.Duration) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	select {
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	default:
	}

	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}
	return c.framer.ReadFrame()
}

// Close closes the connection.
func (c *ClientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}
