package stream

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"

	"github.com/plankton-sim/plankton-go/pkg/adapter"
	"github.com/plankton-sim/plankton-go/pkg/device"
	"github.com/plankton-sim/plankton-go/pkg/log"
	"github.com/plankton-sim/plankton-go/pkg/transport"
)

// Protocol is the protocol name of the stream adapter.
const Protocol = "stream"

// Default adapter options.
const (
	DefaultBindAddress = "0.0.0.0"
	DefaultPort        = 9999
	DefaultTerminator  = "\r\n"
	TelnetTerminator   = "\r\n"

	// requestQueueSize bounds requests waiting for the next Handle call.
	requestQueueSize = 256
)

// Interface is the command set of a device for the stream protocol.
type Interface struct {
	// Device names the device in documentation and event logs.
	Device string

	// Doc is a free-form introduction shown before the command list.
	Doc string

	InTerminator  string
	OutTerminator string

	Commands []Command

	// HandleError produces the reply for a failed request. The default
	// replies with the error text.
	HandleError func(request string, err error) string
}

// Options configure the network side of the adapter.
type Options struct {
	BindAddress string
	Port        int
	TelnetMode  bool
}

// Address returns the listen address.
func (o Options) Address() string {
	return net.JoinHostPort(o.BindAddress, strconv.Itoa(o.Port))
}

func newFlagSet(o *Options) *pflag.FlagSet {
	fs := pflag.NewFlagSet(Protocol, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVarP(&o.BindAddress, "bind-address", "b", DefaultBindAddress, "IP address to bind the server to")
	fs.IntVarP(&o.Port, "port", "p", DefaultPort, "TCP port to listen on")
	fs.BoolVarP(&o.TelnetMode, "telnet-mode", "t", false, "Override terminators to be telnet compatible")
	return fs
}

// ParseArgs parses adapter arguments.
func ParseArgs(args []string) (Options, error) {
	var o Options
	fs := newFlagSet(&o)
	if err := fs.Parse(args); err != nil {
		return Options{}, fmt.Errorf("stream adapter arguments: %w", err)
	}
	if fs.NArg() > 0 {
		return Options{}, fmt.Errorf("stream adapter arguments: unexpected %q", fs.Args())
	}
	return o, nil
}

// Usage describes the adapter arguments.
func Usage() string {
	var o Options
	return newFlagSet(&o).FlagUsages()
}

// Factory returns an adapter factory for devices of type D. build creates
// the command set bound to the concrete device.
func Factory[D device.Device](build func(D) Interface) adapter.Factory {
	return func(dev device.Device, args []string) (adapter.Adapter, error) {
		d, ok := dev.(D)
		if !ok {
			return nil, fmt.Errorf("%w: %T", adapter.ErrDeviceType, dev)
		}
		opts, err := ParseArgs(args)
		if err != nil {
			return nil, err
		}
		return New(build(d), opts)
	}
}

type request struct {
	conn     *transport.ServerConn
	line     string
	received time.Time
}

// Adapter serves an Interface over TCP.
type Adapter struct {
	iface    Interface
	opts     Options
	commands []boundCommand
	logger   log.Logger

	mu       sync.Mutex
	server   *transport.Server
	requests chan request
	done     chan struct{}
}

// New creates a stream adapter. Command patterns are compiled here so
// errors surface before the simulation starts.
func New(iface Interface, opts Options) (*Adapter, error) {
	commands, err := bind(iface.Commands)
	if err != nil {
		return nil, err
	}

	if iface.InTerminator == "" {
		iface.InTerminator = DefaultTerminator
	}
	if iface.OutTerminator == "" {
		iface.OutTerminator = DefaultTerminator
	}
	if opts.TelnetMode {
		iface.InTerminator = TelnetTerminator
		iface.OutTerminator = TelnetTerminator
	}
	if iface.HandleError == nil {
		iface.HandleError = func(_ string, err error) string { return err.Error() }
	}
	if opts.BindAddress == "" {
		opts.BindAddress = DefaultBindAddress
	}

	return &Adapter{
		iface:    iface,
		opts:     opts,
		commands: commands,
		logger:   log.NoopLogger{},
	}, nil
}

// SetLogger sets the event logger. Call before Start.
func (a *Adapter) SetLogger(logger log.Logger) {
	a.logger = log.OrNoop(logger)
}

// Protocol returns "stream".
func (a *Adapter) Protocol() string { return Protocol }

// Options returns the effective options.
func (a *Adapter) Options() Options { return a.opts }

// Start listens for connections.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return transport.ErrServerRunning
	}

	requests := make(chan request, requestQueueSize)
	done := make(chan struct{})

	server := transport.NewServer(transport.ServerConfig{
		Address: a.opts.Address(),
		Codec:   transport.LineCodec(a.iface.InTerminator, a.iface.OutTerminator),
		Logger:  a.logger,
		OnMessage: func(conn *transport.ServerConn, msg []byte) {
			select {
			case requests <- request{conn: conn, line: string(msg), received: time.Now()}:
			case <-done:
			}
		},
		OnError: func(conn *transport.ServerConn, err error) {
			a.logger.Log(log.NewErrorEvent(log.LayerAdapter, err, "stream connection"))
		},
	})
	if err := server.Start(ctx); err != nil {
		return err
	}

	a.server, a.requests, a.done = server, requests, done
	a.logState("stopped", "running")
	return nil
}

// Stop closes the listener and all client connections. Queued requests
// are discarded.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	server, done := a.server, a.done
	a.server, a.requests, a.done = nil, nil, nil
	a.mu.Unlock()

	if server == nil {
		return nil
	}
	close(done)
	err := server.Stop()
	a.logState("running", "stopped")
	return err
}

// IsRunning reports whether the adapter listens.
func (a *Adapter) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// Addr returns the listen address, or nil when stopped.
func (a *Adapter) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return nil
	}
	return a.server.Addr()
}

// Handle answers queued requests until cycleDelay has passed. With a zero
// delay only requests already queued are answered.
func (a *Adapter) Handle(ctx context.Context, cycleDelay time.Duration) {
	a.mu.Lock()
	requests := a.requests
	a.mu.Unlock()
	if requests == nil {
		return
	}

	if cycleDelay <= 0 {
		for {
			select {
			case r := <-requests:
				a.process(r)
			default:
				return
			}
		}
	}

	timer := time.NewTimer(cycleDelay)
	defer timer.Stop()
	for {
		select {
		case r := <-requests:
			a.process(r)
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

// HandleRequest answers a single request line synchronously, without
// touching the network. The returned error is the one passed to
// HandleError, if any.
func (a *Adapter) HandleRequest(line string) (string, error) {
	res := a.respond(line)
	return res.reply, res.err
}

type result struct {
	cmd    *boundCommand
	args   []any
	reply  string
	status log.Status
	err    error
}

func (a *Adapter) respond(line string) result {
	var res result
	for i := range a.commands {
		args, ok, err := a.commands[i].match(line)
		if !ok {
			continue
		}
		res.cmd, res.args, res.err = &a.commands[i], args, err
		break
	}

	switch {
	case res.cmd == nil:
		res.status = log.StatusNoMatch
		res.err = fmt.Errorf("%w: %q", ErrNoMatchingCommand, line)
	case res.err == nil:
		res.reply, res.err = res.cmd.Handler(res.args...)
	}

	if res.err != nil {
		if res.status == log.StatusOK {
			res.status = log.StatusFailed
		}
		res.reply = a.iface.HandleError(line, res.err)
	}
	return res
}

func (a *Adapter) process(r request) {
	res := a.respond(r.line)

	name := ""
	if res.cmd != nil {
		name = res.cmd.Name
	}
	a.logMessage(r, log.DirectionIn, &log.MessageEvent{
		Type:     log.MessageTypeRequest,
		Protocol: Protocol,
		Command:  name,
		Raw:      r.line,
		Args:     res.args,
	})
	if res.err != nil {
		a.logger.Log(log.NewErrorEvent(log.LayerAdapter, res.err, "handle request"))
	}

	elapsed := time.Since(r.received)
	a.logMessage(r, log.DirectionOut, &log.MessageEvent{
		Type:           log.MessageTypeResponse,
		Protocol:       Protocol,
		Command:        name,
		Raw:            res.reply,
		Status:         res.status,
		ProcessingTime: &elapsed,
	})

	if res.reply == "" {
		return
	}
	if err := r.conn.Send([]byte(res.reply)); err != nil {
		a.logger.Log(log.NewErrorEvent(log.LayerAdapter, err, "send reply"))
	}
}

func (a *Adapter) logMessage(r request, dir log.Direction, msg *log.MessageEvent) {
	a.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: r.conn.ConnID(),
		Direction:    dir,
		Layer:        log.LayerAdapter,
		Category:     log.CategoryMessage,
		Device:       a.iface.Device,
		RemoteAddr:   r.conn.RemoteAddr().String(),
		Message:      msg,
	})
}

func (a *Adapter) logState(oldState, newState string) {
	event := log.NewStateEvent(log.StateEntityAdapter, oldState, newState, Protocol)
	event.Layer = log.LayerAdapter
	event.Device = a.iface.Device
	a.logger.Log(event)
}

// Documentation describes options and commands.
func (a *Adapter) Documentation() string {
	var b strings.Builder

	title := "Stream interface"
	if a.iface.Device != "" {
		title += " of " + a.iface.Device
	}
	b.WriteString(title + "\n" + strings.Repeat("=", len(title)) + "\n\n")
	if a.iface.Doc != "" {
		b.WriteString(device.FormatDocText(a.iface.Doc) + "\n\n")
	}

	b.WriteString("Parameters\n==========\n\n")
	b.WriteString(device.FormatDocText(fmt.Sprintf(
		"bind address: %s\nport: %d\nrequest terminator: %s\nreply terminator: %s",
		a.opts.BindAddress, a.opts.Port,
		strconv.Quote(a.iface.InTerminator), strconv.Quote(a.iface.OutTerminator))))

	b.WriteString("\n\nCommands\n========\n")
	for i := range a.commands {
		b.WriteString("\n" + a.commands[i].documentation() + "\n")
	}
	return b.String()
}
