package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/plankton-sim/plankton-go/pkg/log"
)

// Server errors.
var (
	// ErrServerRunning indicates Start was called on a running server.
	ErrServerRunning = errors.New("server already running")

	// ErrConnectionClosed indicates use of a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Address to listen on (e.g. "127.0.0.1:10000" or ":9999").
	Address string

	// Codec splits connections into messages (default FramedCodec).
	Codec Codec

	// MaxMessageSize is the maximum message size (default DefaultMaxMessageSize).
	MaxMessageSize uint32

	// Logger receives frame and connection events (optional).
	Logger log.Logger

	// OnConnect is called when a new connection is established.
	OnConnect func(conn *ServerConn)

	// OnDisconnect is called when a connection is closed.
	OnDisconnect func(conn *ServerConn)

	// OnMessage is called from the connection's read goroutine for every
	// received message.
	OnMessage func(conn *ServerConn, msg []byte)

	// OnError is called when an error occurs. conn is nil for accept errors.
	OnError func(conn *ServerConn, err error)
}

// Server is a TCP server exchanging whole messages with its clients.
type Server struct {
	config   ServerConfig
	listener net.Listener

	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a server. It does not listen until Start.
func NewServer(config ServerConfig) *Server {
	if config.Codec == nil {
		config.Codec = FramedCodec
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	return &Server{
		config: config,
		conns:  make(map[*ServerConn]struct{}),
	}
}

// Start listens on the configured address and accepts connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return ErrServerRunning
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop closes the listener and all connections and waits for their
// goroutines to finish.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

// IsRunning reports whether the server accepts connections.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() && s.config.OnError != nil {
				s.config.OnError(nil, fmt.Errorf("accept error: %w", err))
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	connID := uuid.New().String()
	mc := s.config.Codec(conn, s.config.MaxMessageSize)
	if s.config.Logger != nil {
		if l, ok := mc.(interface{ SetLogger(log.Logger, string) }); ok {
			l.SetLogger(s.config.Logger, connID)
		}
	}

	sconn := &ServerConn{
		conn:       conn,
		mc:         mc,
		server:     s,
		remoteAddr: conn.RemoteAddr(),
		connID:     connID,
		closeCh:    make(chan struct{}),
	}

	s.connsMu.Lock()
	if !s.running.Load() {
		s.connsMu.Unlock()
		conn.Close()
		return
	}
	s.conns[sconn] = struct{}{}
	s.connsMu.Unlock()

	s.logConnState(sconn, "", "connected")
	if s.config.OnConnect != nil {
		s.config.OnConnect(sconn)
	}

	sconn.readLoop()

	s.connsMu.Lock()
	delete(s.conns, sconn)
	s.connsMu.Unlock()

	sconn.Close()
	s.logConnState(sconn, "connected", "disconnected")
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sconn)
	}
}

func (s *Server) logConnState(c *ServerConn, oldState, newState string) {
	if s.config.Logger == nil {
		return
	}
	s.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    log.DirectionNone,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   c.remoteAddr.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
		},
	})
}

// ServerConn is a client connection accepted by a Server.
type ServerConn struct {
	conn       net.Conn
	mc         MessageConn
	server     *Server
	remoteAddr net.Addr
	connID     string

	closeCh   chan struct{}
	closeOnce sync.Once
}

// RemoteAddr returns the remote address of the client.
func (c *ServerConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// ConnID returns the unique connection identifier.
func (c *ServerConn) ConnID() string {
	return c.connID
}

// Send writes a message to the client.
func (c *ServerConn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.mc.WriteMessage(data)
}

// Close closes the connection.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

func (c *ServerConn) readLoop() {
	for {
		data, err := c.mc.ReadMessage()
		if err != nil {
			select {
			case <-c.closeCh:
			default:
				if err != io.EOF && c.server.running.Load() && c.server.config.OnError != nil {
					c.server.config.OnError(c, err)
				}
			}
			return
		}

		if c.server.config.OnMessage != nil {
			c.server.config.OnMessage(c, data)
		}
	}
}
