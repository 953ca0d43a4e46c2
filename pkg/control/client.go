package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/plankton-sim/plankton-go/pkg/transport"
)

// Client errors.
var (
	// ErrTimeout indicates that no response arrived in time.
	ErrTimeout = errors.New("request timed out")

	// ErrUnexpectedReply indicates a response with a foreign ID.
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// DefaultTimeout bounds a call when the context has no deadline.
const DefaultTimeout = 3 * time.Second

// Client calls methods on a control Server. Calls are serialized.
type Client struct {
	conn    *transport.ClientConn
	timeout time.Duration
	nextID  atomic.Uint64
	mu      sync.Mutex
}

// Dial connects to a control server. A zero timeout uses DefaultTimeout.
func Dial(ctx context.Context, address string, timeout time.Duration) (*Client, error) {
	conn, err := transport.Dial(ctx, address, 0)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call invokes method with args and returns the raw result.
func (c *Client) Call(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	params, err := encodeParams(args)
	if err != nil {
		return nil, err
	}
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	id := c.nextID.Add(1)
	rawID := json.RawMessage(fmt.Sprint(id))
	data, err := json.Marshal(Request{
		JSONRPC: jsonrpcVersion,
		Method:  method,
		Params:  rawParams,
		ID:      rawID,
	})
	if err != nil {
		return nil, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	if time.Until(deadline) <= 0 {
		return nil, ErrTimeout
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.Send(data); err != nil {
		return nil, err
	}

	for {
		// Stale replies do not extend the deadline.
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, method)
		}
		reply, err := c.conn.Receive(remaining)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, fmt.Errorf("%w: %s", ErrTimeout, method)
			}
			return nil, err
		}

		var resp Response
		if err := json.Unmarshal(reply, &resp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedReply, err)
		}
		if string(resp.ID) != string(rawID) {
			// Late reply to an earlier call that timed out.
			continue
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

// CallInto invokes method and decodes the result into out.
func (c *Client) CallInto(ctx context.Context, out any, method string, args ...any) error {
	raw, err := c.Call(ctx, method, args...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// Objects lists the objects exposed by the server.
func (c *Client) Objects(ctx context.Context) ([]string, error) {
	var names []string
	err := c.CallInto(ctx, &names, GetObjectsMethod)
	return names, err
}

// API describes an object.
func (c *Client) API(ctx context.Context, object string) (API, error) {
	var api API
	err := c.CallInto(ctx, &api, object+APIMethod)
	return api, err
}

// Object returns a proxy for a remote object.
func (c *Client) Object(ctx context.Context, name string) (*ObjectProxy, error) {
	api, err := c.API(ctx, name)
	if err != nil {
		return nil, err
	}
	return &ObjectProxy{client: c, name: name, api: api}, nil
}

// ObjectProxy gives access to one remote object.
type ObjectProxy struct {
	client *Client
	name   string
	api    API
}

// Name returns the object name.
func (p *ObjectProxy) Name() string { return p.name }

// API returns the object description fetched on creation.
func (p *ObjectProxy) API() API { return p.api }

// Properties returns the names of the object's properties.
func (p *ObjectProxy) Properties() []string {
	var props []string
	for _, m := range p.api.Methods {
		if name, ok := strings.CutSuffix(m, ":get"); ok {
			props = append(props, name)
		}
	}
	return props
}

// Functions returns the callable methods, without property accessors and
// the :api method.
func (p *ObjectProxy) Functions() []string {
	var fns []string
	for _, m := range p.api.Methods {
		if !strings.Contains(m, ":") {
			fns = append(fns, m)
		}
	}
	return fns
}

// IsProperty reports whether name is a property.
func (p *ObjectProxy) IsProperty(name string) bool {
	return p.has(name + ":get")
}

// IsFunction reports whether name is a callable method.
func (p *ObjectProxy) IsFunction(name string) bool {
	return !strings.Contains(name, ":") && p.has(name)
}

// IsWritable reports whether a property can be set.
func (p *ObjectProxy) IsWritable(name string) bool {
	return p.has(name + ":set")
}

func (p *ObjectProxy) has(method string) bool {
	for _, m := range p.api.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// Get reads a property.
func (p *ObjectProxy) Get(ctx context.Context, property string) (json.RawMessage, error) {
	return p.client.Call(ctx, p.name+"."+property+":get")
}

// Set writes a property.
func (p *ObjectProxy) Set(ctx context.Context, property string, value any) error {
	_, err := p.client.Call(ctx, p.name+"."+property+":set", value)
	return err
}

// Call invokes a method of the object.
func (p *ObjectProxy) Call(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	return p.client.Call(ctx, p.name+"."+method, args...)
}
