package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/plankton-sim/plankton-go/pkg/adapter"
	"github.com/plankton-sim/plankton-go/pkg/control"
	"github.com/plankton-sim/plankton-go/pkg/device"
	"github.com/plankton-sim/plankton-go/pkg/log"
	"github.com/plankton-sim/plankton-go/pkg/metrics"
	"github.com/plankton-sim/plankton-go/pkg/persistence"
	"github.com/plankton-sim/plankton-go/pkg/registry"
	"github.com/plankton-sim/plankton-go/pkg/version"
)

// Defaults for a new simulation.
const (
	DefaultCycleDelay = 100 * time.Millisecond
	DefaultSpeed      = 1.0
)

// Simulation errors.
var (
	// ErrInvalidState indicates an operation that the current lifecycle
	// state does not allow.
	ErrInvalidState = errors.New("invalid simulation state")

	// ErrInvalidValue indicates a negative speed or cycle delay.
	ErrInvalidValue = errors.New("invalid value")

	// ErrNoRegistry indicates SwitchSetup on a simulation without device
	// registry.
	ErrNoRegistry = errors.New("no device registry configured")
)

// AdapterBuilder creates the adapters for a device. It is called again
// when the setup is switched.
type AdapterBuilder func(dev device.Device) (*adapter.Collection, error)

// AdapterFor returns a builder that creates one adapter from iface with
// the given adapter arguments.
func AdapterFor(iface adapter.Interface, args []string) AdapterBuilder {
	return func(dev device.Device) (*adapter.Collection, error) {
		a, err := iface.New(dev, args)
		if err != nil {
			return nil, err
		}
		return adapter.NewCollection(a), nil
	}
}

// Config configures a Simulation.
type Config struct {
	// DeviceName is the registry name of the device.
	DeviceName string

	// Setup is the setup Device was created with.
	Setup string

	// Device is the simulated device. When nil, it is created from
	// Registry with Setup.
	Device device.Device

	// Registry resolves setups for SwitchSetup. Optional.
	Registry *registry.Registry

	// Adapters builds the adapters. Optional; without adapters the loop
	// sleeps for the cycle delay.
	Adapters AdapterBuilder

	// ControlAddress enables the JSON-RPC control server ("host:port").
	ControlAddress string

	// CycleDelay is the time spent in each cycle. Zero runs as fast as
	// possible. Nil means DefaultCycleDelay.
	CycleDelay *time.Duration

	// Speed scales elapsed time into simulated time. Nil means
	// DefaultSpeed.
	Speed *float64

	// Logger receives lifecycle, state and protocol events.
	Logger log.Logger

	// Metrics is updated after every cycle. Optional.
	Metrics *metrics.Metrics

	// Store saves the device on shutdown and restores it on start.
	// Optional.
	Store *persistence.Store

	// OnStarted is called on the loop goroutine once the adapters and the
	// control server listen, before the first cycle.
	OnStarted func(s *Simulation)
}

// Simulation runs a device and its adapters in a cycle loop. Device
// access from adapters and the control server happens on the loop
// goroutine.
type Simulation struct {
	name      string
	registry  *registry.Registry
	build     AdapterBuilder
	logger    log.Logger
	metrics   *metrics.Metrics
	store     *persistence.Store
	onStarted func(*Simulation)

	control *control.Server
	objects *control.Collection

	mu         sync.Mutex
	device     device.Device
	setup      string
	adapters   *adapter.Collection
	cycleDelay time.Duration
	speed      float64
	started    bool
	paused     bool
	cycles     uint64
	runtime    float64
	startedAt  time.Time
	ctx        context.Context
	cancel     context.CancelFunc
}

// New creates a simulation. The control server, if configured, is created
// but not started.
func New(cfg Config) (*Simulation, error) {
	s := &Simulation{
		name:       cfg.DeviceName,
		registry:   cfg.Registry,
		build:      cfg.Adapters,
		logger:     log.OrNoop(cfg.Logger),
		metrics:    cfg.Metrics,
		store:      cfg.Store,
		onStarted:  cfg.OnStarted,
		setup:      cfg.Setup,
		cycleDelay: DefaultCycleDelay,
		speed:      DefaultSpeed,
	}
	if s.metrics != nil {
		s.logger = log.NewMultiLogger(s.logger, s.metrics)
	}

	if cfg.CycleDelay != nil {
		if err := s.SetCycleDelay(cfg.CycleDelay.Seconds()); err != nil {
			return nil, err
		}
	}
	if cfg.Speed != nil {
		if err := s.SetSpeed(*cfg.Speed); err != nil {
			return nil, err
		}
	}

	dev := cfg.Device
	if dev == nil {
		if s.registry == nil {
			return nil, fmt.Errorf("%w: no device given", ErrNoRegistry)
		}
		created, setup, err := s.registry.Create(s.name, s.setup)
		if err != nil {
			return nil, err
		}
		dev, s.setup = created, setup.Name
	}

	adapters, err := s.buildAdapters(dev)
	if err != nil {
		return nil, err
	}
	s.device, s.adapters = dev, adapters
	s.watchDevice(dev)

	s.objects, err = control.NewCollection(nil)
	if err != nil {
		return nil, err
	}
	if err := s.objects.Add("device", s.deviceObject(dev)); err != nil {
		return nil, err
	}
	simObject, err := control.Expose(s, exposedMembers, nil)
	if err != nil {
		return nil, err
	}
	if err := s.objects.Add("simulation", simObject); err != nil {
		return nil, err
	}

	if cfg.ControlAddress != "" {
		s.control, err = control.NewServer(s.objects, cfg.ControlAddress)
		if err != nil {
			return nil, err
		}
		s.control.SetLogger(s.logger)
	}

	return s, nil
}

// exposedMembers are the members of the "simulation" control object.
var exposedMembers = []string{
	"cycle_delay",
	"speed",
	"cycles",
	"uptime",
	"runtime",
	"is_started",
	"is_paused",
	"pause",
	"resume",
	"stop",
	"set_device_parameters",
	"connect_device",
	"disconnect_device",
	"device_connected",
	"switch_setup",
	"setup",
	"setups",
	"device_documentation",
	"version",
}

func (s *Simulation) buildAdapters(dev device.Device) (*adapter.Collection, error) {
	if s.build == nil {
		return adapter.NewCollection(), nil
	}
	adapters, err := s.build(dev)
	if err != nil {
		return nil, err
	}
	for _, a := range adapters.Adapters() {
		if l, ok := a.(interface{ SetLogger(log.Logger) }); ok {
			l.SetLogger(s.logger)
		}
	}
	return adapters, nil
}

// watchDevice logs state machine transitions of devices that report them.
func (s *Simulation) watchDevice(dev device.Device) {
	w, ok := dev.(interface{ OnTransition(func(from, to string)) })
	if !ok {
		return
	}
	w.OnTransition(func(from, to string) {
		event := log.NewStateEvent(log.StateEntityDevice, from, to, "")
		event.Device = s.name
		s.logger.Log(event)
	})
}

// deviceObject exposes the device parameters and its state.
func (s *Simulation) deviceObject(dev device.Device) *control.ExposedObject {
	o := control.ExposeParameters(s.name, dev.Parameters())
	if !o.Has("state:get") {
		o.AddProperty("state", func() any { return dev.State() }, nil)
	}
	return o
}

// DeviceName returns the registry name of the device.
func (s *Simulation) DeviceName() string {
	return s.name
}

// Objects returns the control objects.
func (s *Simulation) Objects() *control.Collection {
	return s.objects
}

// ControlServer returns the control server, or nil when not configured.
func (s *Simulation) ControlServer() *control.Server {
	return s.control
}

// Device returns the simulated device.
func (s *Simulation) Device() device.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// Adapters returns the adapters of the current device.
func (s *Simulation) Adapters() *adapter.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adapters
}

// Start runs the simulation until Stop is called or ctx is done. The
// adapters and the control server are started first and stopped on
// return.
func (s *Simulation) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("%w: already started", ErrInvalidState)
	}
	// A failed restore leaves the snapshot file untouched.
	if err := s.restoreLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	s.started, s.paused = true, false
	s.cycles, s.runtime = 0, 0
	s.startedAt = time.Now()
	s.ctx, s.cancel = ctx, cancel
	s.mu.Unlock()

	defer s.shutdown(cancel)

	if s.control != nil {
		if err := s.control.Start(ctx); err != nil {
			return fmt.Errorf("start control server: %w", err)
		}
	}
	if err := s.Adapters().Connect(ctx); err != nil {
		return err
	}

	s.logLifecycle("stopped", "started", "")
	if s.onStarted != nil {
		s.onStarted(s)
	}

	delta := 0.0
	for ctx.Err() == nil {
		start := time.Now()
		s.processCycle(ctx, delta)
		delta = device.SecondsSince(start)
	}
	return nil
}

func (s *Simulation) shutdown(cancel context.CancelFunc) {
	cancel()

	if err := s.Adapters().Disconnect(); err != nil {
		s.logger.Log(log.NewErrorEvent(log.LayerSimulation, err, "disconnect adapters"))
	}
	if s.control != nil {
		if err := s.control.Stop(); err != nil {
			s.logger.Log(log.NewErrorEvent(log.LayerSimulation, err, "stop control server"))
		}
	}
	if err := s.save(); err != nil {
		s.logger.Log(log.NewErrorEvent(log.LayerSimulation, err, "save snapshot"))
	}

	s.mu.Lock()
	s.started, s.paused = false, false
	s.ctx, s.cancel = nil, nil
	s.mu.Unlock()

	s.logLifecycle("started", "stopped", "")
}

// processCycle runs one cycle. delta is the real time the previous cycle
// took.
func (s *Simulation) processCycle(ctx context.Context, delta float64) {
	s.mu.Lock()
	adapters, cycleDelay := s.adapters, s.cycleDelay
	s.mu.Unlock()

	if !adapters.Handle(ctx, cycleDelay) {
		sleep(ctx, cycleDelay)
	}

	if s.control != nil {
		if err := s.control.Process(); err != nil {
			s.logger.Log(log.NewErrorEvent(log.LayerSimulation, err, "process control requests"))
		}
	}

	s.mu.Lock()
	dev, paused, speed := s.device, s.paused, s.speed
	s.mu.Unlock()

	if !paused {
		dt := delta * speed
		dev.Process(dt)
		s.mu.Lock()
		s.runtime += dt
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.cycles++
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Observe(s.status())
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (s *Simulation) status() metrics.SimulationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return metrics.SimulationStatus{
		Cycles:     s.cycles,
		Runtime:    s.runtime,
		Uptime:     s.uptimeLocked(),
		Paused:     s.paused,
		Speed:      s.speed,
		CycleDelay: s.cycleDelay.Seconds(),
	}
}

func (s *Simulation) restoreLocked() error {
	if s.store == nil {
		return nil
	}
	snap, err := s.store.Load()
	if err != nil || snap == nil {
		return err
	}
	if err := snap.Restore(s.name, s.device); err != nil {
		return fmt.Errorf("restore %s: %w", s.store.Path(), err)
	}
	s.logLifecycle("stopped", "stopped", "restored from "+s.store.Path())
	return nil
}

func (s *Simulation) save() error {
	if s.store == nil {
		return nil
	}
	s.mu.Lock()
	snap := persistence.Take(s.name, s.setup, s.device)
	snap.Runtime, snap.Cycles = s.runtime, s.cycles
	s.mu.Unlock()
	return s.store.Save(snap)
}

func (s *Simulation) logLifecycle(from, to, reason string) {
	event := log.NewStateEvent(log.StateEntitySimulation, from, to, reason)
	event.Device = s.name
	s.logger.Log(event)
}

// Stop ends the loop after the current cycle. It does not wait.
func (s *Simulation) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return fmt.Errorf("%w: not started", ErrInvalidState)
	}
	s.cancel()
	return nil
}

// Pause stops advancing the device. Adapters keep answering.
func (s *Simulation) Pause() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("%w: can not pause a simulation that is not started", ErrInvalidState)
	}
	s.paused = true
	s.mu.Unlock()

	s.logLifecycle("started", "paused", "")
	return nil
}

// Resume continues a paused simulation.
func (s *Simulation) Resume() error {
	s.mu.Lock()
	if !s.paused {
		s.mu.Unlock()
		return fmt.Errorf("%w: can not resume a simulation that is not paused", ErrInvalidState)
	}
	s.paused = false
	s.mu.Unlock()

	s.logLifecycle("paused", "started", "")
	return nil
}

// IsStarted reports whether the loop is running.
func (s *Simulation) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// IsPaused reports whether the simulation is paused.
func (s *Simulation) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Cycles returns the number of cycles since the start.
func (s *Simulation) Cycles() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

// Uptime returns the real seconds since the start, or 0 when not started.
func (s *Simulation) Uptime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uptimeLocked()
}

func (s *Simulation) uptimeLocked() float64 {
	if !s.started {
		return 0
	}
	return device.SecondsSince(s.startedAt)
}

// Runtime returns the simulated seconds since the start.
func (s *Simulation) Runtime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runtime
}

// CycleDelay returns the cycle delay in seconds.
func (s *Simulation) CycleDelay() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycleDelay.Seconds()
}

// SetCycleDelay sets the cycle delay in seconds.
func (s *Simulation) SetCycleDelay(seconds float64) error {
	if seconds < 0 {
		return fmt.Errorf("%w: cycle delay must be >= 0, got %g", ErrInvalidValue, seconds)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycleDelay = time.Duration(seconds * float64(time.Second))
	return nil
}

// Speed returns the simulation speed.
func (s *Simulation) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// SetSpeed sets the factor between real and simulated time.
func (s *Simulation) SetSpeed(speed float64) error {
	if speed < 0 {
		return fmt.Errorf("%w: speed must be >= 0, got %g", ErrInvalidValue, speed)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = speed
	return nil
}

// SetDeviceParameters updates device parameters. Every name must be a
// writable parameter.
func (s *Simulation) SetDeviceParameters(values map[string]any) error {
	return s.Device().Parameters().Apply(values)
}

// ConnectDevice starts the adapters.
func (s *Simulation) ConnectDevice() error {
	s.mu.Lock()
	ctx, adapters := s.ctx, s.adapters
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	return adapters.Connect(ctx)
}

// DisconnectDevice stops the adapters. The device keeps running.
func (s *Simulation) DisconnectDevice() error {
	return s.Adapters().Disconnect()
}

// DeviceConnected reports whether any adapter is running.
func (s *Simulation) DeviceConnected() bool {
	return s.Adapters().Connected()
}

// Setup returns the name of the current setup.
func (s *Simulation) Setup() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setup
}

// Setups lists the setups available for the device.
func (s *Simulation) Setups() ([]string, error) {
	if s.registry == nil {
		return nil, ErrNoRegistry
	}
	return s.registry.SetupNames(s.name)
}

// Version returns the simulator version.
func (s *Simulation) Version() string {
	return version.Current
}

// DeviceDocumentation returns the documentation of the adapters.
func (s *Simulation) DeviceDocumentation() string {
	return s.Adapters().Documentation()
}

// SwitchSetup replaces the device with a new one in the named setup.
// Adapters are rebuilt for the new device and restarted if they were
// running, so stream clients have to reconnect.
func (s *Simulation) SwitchSetup(name string) error {
	if s.registry == nil {
		return ErrNoRegistry
	}
	dev, setup, err := s.registry.Create(s.name, name)
	if err != nil {
		return err
	}
	adapters, err := s.buildAdapters(dev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	old, oldSetup, ctx := s.adapters, s.setup, s.ctx
	s.mu.Unlock()

	connected := old.Connected()
	if connected {
		if err := old.Disconnect(); err != nil {
			return err
		}
	}

	s.watchDevice(dev)
	s.mu.Lock()
	s.device, s.adapters, s.setup = dev, adapters, setup.Name
	s.mu.Unlock()

	if err := s.objects.Add("device", s.deviceObject(dev)); err != nil {
		return err
	}
	s.logLifecycle(oldSetup, setup.Name, "setup switched")

	if connected {
		if ctx == nil {
			ctx = context.Background()
		}
		return adapters.Connect(ctx)
	}
	return nil
}
