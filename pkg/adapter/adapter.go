package adapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/plankton-sim/plankton-go/pkg/device"
)

// Selection errors.
var (
	// ErrNoInterfaces indicates a device without any communication interface.
	ErrNoInterfaces = errors.New("no communication interfaces")

	// ErrProtocolNotFound indicates that no interface implements the protocol.
	ErrProtocolNotFound = errors.New("no interface implementing protocol")

	// ErrDeviceType indicates a factory received a device of the wrong type.
	ErrDeviceType = errors.New("unsupported device type")
)

// Adapter exposes a device via a communication protocol.
type Adapter interface {
	// Protocol returns the protocol name, e.g. "stream".
	Protocol() string

	// Documentation describes the command interface for users.
	Documentation() string

	// Start brings up the protocol infrastructure (listeners, servers).
	Start(ctx context.Context) error

	// Handle processes pending requests, spending roughly cycleDelay.
	Handle(ctx context.Context, cycleDelay time.Duration)

	// Stop shuts the infrastructure down. The adapter can be started again.
	Stop() error

	// IsRunning reports whether the adapter is started.
	IsRunning() bool
}

// Factory creates an adapter for dev from adapter-specific arguments.
type Factory func(dev device.Device, args []string) (Adapter, error)

// Interface describes one protocol a device can be exposed through.
type Interface struct {
	Protocol string
	New      Factory
}

// Select picks the interface for protocol. An empty protocol selects the
// first interface.
func Select(deviceName string, interfaces []Interface, protocol string) (Interface, error) {
	if len(interfaces) == 0 {
		return Interface{}, fmt.Errorf("%w for device %q", ErrNoInterfaces, deviceName)
	}
	if protocol == "" {
		return interfaces[0], nil
	}
	for _, iface := range interfaces {
		if iface.Protocol == protocol {
			return iface, nil
		}
	}
	return Interface{}, fmt.Errorf("%w %q for device %q; please check the spelling",
		ErrProtocolNotFound, protocol, deviceName)
}

// Protocols returns the sorted, unique protocol names of interfaces.
func Protocols(interfaces []Interface) []string {
	seen := make(map[string]struct{}, len(interfaces))
	var out []string
	for _, iface := range interfaces {
		if _, ok := seen[iface.Protocol]; ok {
			continue
		}
		seen[iface.Protocol] = struct{}{}
		out = append(out, iface.Protocol)
	}
	sort.Strings(out)
	return out
}

// Collection drives several adapters as one.
type Collection struct {
	mu       sync.Mutex
	adapters []Adapter
}

// NewCollection creates a collection of adapters.
func NewCollection(adapters ...Adapter) *Collection {
	return &Collection{adapters: adapters}
}

// Add appends an adapter.
func (c *Collection) Add(a Adapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapters = append(c.adapters, a)
}

// Adapters returns the adapters of the collection.
func (c *Collection) Adapters() []Adapter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Adapter(nil), c.adapters...)
}

// Len returns the number of adapters.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.adapters)
}

// Connect starts every adapter that is not running. On failure the
// adapters started by this call are stopped again.
func (c *Collection) Connect(ctx context.Context) error {
	var started []Adapter
	for _, a := range c.Adapters() {
		if a.IsRunning() {
			continue
		}
		if err := a.Start(ctx); err != nil {
			for _, s := range started {
				_ = s.Stop()
			}
			return fmt.Errorf("start %s adapter: %w", a.Protocol(), err)
		}
		started = append(started, a)
	}
	return nil
}

// Disconnect stops every running adapter and returns the first error.
func (c *Collection) Disconnect() error {
	var first error
	for _, a := range c.Adapters() {
		if !a.IsRunning() {
			continue
		}
		if err := a.Stop(); err != nil && first == nil {
			first = fmt.Errorf("stop %s adapter: %w", a.Protocol(), err)
		}
	}
	return first
}

// Connected reports whether any adapter is running.
func (c *Collection) Connected() bool {
	for _, a := range c.Adapters() {
		if a.IsRunning() {
			return true
		}
	}
	return false
}

// Handle lets the running adapters handle requests. The cycle delay is
// shared between them. It reports false when no adapter is running, in
// which case nothing waited.
func (c *Collection) Handle(ctx context.Context, cycleDelay time.Duration) bool {
	var running []Adapter
	for _, a := range c.Adapters() {
		if a.IsRunning() {
			running = append(running, a)
		}
	}
	if len(running) == 0 {
		return false
	}

	share := cycleDelay / time.Duration(len(running))
	for _, a := range running {
		a.Handle(ctx, share)
	}
	return true
}

// Documentation joins the documentation of all adapters.
func (c *Collection) Documentation() string {
	var doc string
	for i, a := range c.Adapters() {
		if i > 0 {
			doc += "\n\n"
		}
		doc += a.Documentation()
	}
	return doc
}
