package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/plankton-sim/plankton-go/pkg/log"
	"github.com/plankton-sim/plankton-go/pkg/transport"
)

// Protocol names the control protocol in event logs.
const Protocol = "jsonrpc"

// Server errors.
var (
	// ErrInvalidHost indicates a listen address whose host does not resolve.
	ErrInvalidHost = errors.New("invalid host")

	// ErrNotStarted indicates Process was called before Start.
	ErrNotStarted = errors.New("control server not started")
)

// pendingLimit bounds requests waiting for Process.
const pendingLimit = 64

type pending struct {
	conn     *transport.ServerConn
	data     []byte
	received time.Time
}

// Server answers JSON-RPC requests for an Exposer.
type Server struct {
	exposer Exposer
	address string
	logger  log.Logger

	mu       sync.Mutex
	server   *transport.Server
	requests chan pending
	done     chan struct{}
}

// NewServer creates a server for address ("host:port"). The host must
// resolve.
func NewServer(exposer Exposer, address string) (*Server, error) {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHost, err)
	}
	if host != "" {
		if _, err := net.LookupHost(host); err != nil {
			return nil, fmt.Errorf("%w: %s could not be resolved: %v", ErrInvalidHost, host, err)
		}
	}

	return &Server{
		exposer: exposer,
		address: address,
		logger:  log.NoopLogger{},
	}, nil
}

// SetLogger sets the event logger. Call before Start.
func (s *Server) SetLogger(logger log.Logger) {
	s.logger = log.OrNoop(logger)
}

// Exposer returns the exposed object.
func (s *Server) Exposer() Exposer {
	return s.exposer
}

// Start listens for clients. Starting a running server does nothing.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return nil
	}

	requests := make(chan pending, pendingLimit)
	done := make(chan struct{})

	server := transport.NewServer(transport.ServerConfig{
		Address: s.address,
		Logger:  s.logger,
		OnMessage: func(conn *transport.ServerConn, msg []byte) {
			select {
			case requests <- pending{conn: conn, data: msg, received: time.Now()}:
			case <-done:
			}
		},
		OnError: func(_ *transport.ServerConn, err error) {
			s.logger.Log(log.NewErrorEvent(log.LayerControl, err, "control connection"))
		},
	})
	if err := server.Start(ctx); err != nil {
		return err
	}

	s.server, s.requests, s.done = server, requests, done
	return nil
}

// Stop closes the listener and all connections.
func (s *Server) Stop() error {
	s.mu.Lock()
	server, done := s.server, s.done
	s.server, s.requests, s.done = nil, nil, nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	close(done)
	return server.Stop()
}

// IsRunning reports whether the server was started.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server != nil
}

// Addr returns the listen address, or nil when stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	return s.server.Addr()
}

// Process answers all queued requests and returns without waiting for
// new ones.
func (s *Server) Process() error {
	s.mu.Lock()
	requests := s.requests
	s.mu.Unlock()
	if requests == nil {
		return ErrNotStarted
	}

	for {
		select {
		case p := <-requests:
			s.handle(p)
		default:
			return nil
		}
	}
}

func (s *Server) handle(p pending) {
	resp, method, rerr := dispatch(s.exposer, p.data)

	s.logMessage(p, log.DirectionIn, &log.MessageEvent{
		Type:     log.MessageTypeRequest,
		Protocol: Protocol,
		Command:  method,
		Raw:      string(p.data),
	})

	status := log.StatusOK
	if rerr != nil {
		status = log.StatusFailed
		if rerr.Code == CodeMethodNotFound {
			status = log.StatusNoMatch
		}
		code := rerr.Code
		event := log.NewErrorEvent(log.LayerControl, rerr, method)
		event.Error.Code = &code
		s.logger.Log(event)
	}

	elapsed := time.Since(p.received)
	s.logMessage(p, log.DirectionOut, &log.MessageEvent{
		Type:           log.MessageTypeResponse,
		Protocol:       Protocol,
		Command:        method,
		Raw:            string(resp),
		Status:         status,
		ProcessingTime: &elapsed,
	})

	if resp == nil {
		return
	}
	if err := p.conn.Send(resp); err != nil {
		s.logger.Log(log.NewErrorEvent(log.LayerControl, err, "send response"))
	}
}

func (s *Server) logMessage(p pending, dir log.Direction, msg *log.MessageEvent) {
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: p.conn.ConnID(),
		Direction:    dir,
		Layer:        log.LayerControl,
		Category:     log.CategoryMessage,
		RemoteAddr:   p.conn.RemoteAddr().String(),
		Message:      msg,
	})
}
