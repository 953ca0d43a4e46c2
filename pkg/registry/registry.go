package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/plankton-sim/plankton-go/pkg/adapter"
	"github.com/plankton-sim/plankton-go/pkg/device"
)

// DefaultSetup is used when no setup is requested.
const DefaultSetup = "default"

// Registry errors.
var (
	// ErrDeviceNotFound indicates an unknown device name.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrSetupNotFound indicates an unknown setup name.
	ErrSetupNotFound = errors.New("setup not found")

	// ErrDuplicateDevice indicates a device registered twice.
	ErrDuplicateDevice = errors.New("device already registered")
)

// Setup is a named starting configuration of a device.
type Setup struct {
	Name         string         `yaml:"-"`
	Description  string         `yaml:"description,omitempty"`
	InitialState string         `yaml:"initial_state,omitempty"`
	InitialData  map[string]any `yaml:"initial_data,omitempty"`
}

// Overrides converts the setup into device overrides.
func (s Setup) Overrides() device.Overrides {
	return device.Overrides{
		InitialState: s.InitialState,
		InitialData:  s.InitialData,
	}
}

// Constructor creates a device with the given overrides.
type Constructor func(device.Overrides) (device.Device, error)

// Entry describes one simulated device type.
type Entry struct {
	Name        string
	Description string
	New         Constructor
	Setups      map[string]Setup
	Interfaces  []adapter.Interface
}

// Registry holds device entries by name.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register adds a device entry.
func (r *Registry) Register(e Entry) error {
	if e.Name == "" || e.New == nil {
		return errors.New("device entry needs a name and a constructor")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[e.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateDevice, e.Name)
	}

	setups := make(map[string]Setup, len(e.Setups))
	for name, s := range e.Setups {
		s.Name = name
		setups[name] = s
	}
	e.Setups = setups
	r.entries[e.Name] = &e
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(e Entry) {
	if err := r.Register(e); err != nil {
		panic(err)
	}
}

// Names returns the sorted device names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the entry of a device.
func (r *Registry) Lookup(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
	}
	return *e, nil
}

// SetupNames returns the sorted setup names of a device. DefaultSetup is
// always included.
func (r *Registry) SetupNames(deviceName string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[deviceName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceName)
	}
	names := make([]string, 0, len(e.Setups)+1)
	if _, ok := e.Setups[DefaultSetup]; !ok {
		names = append(names, DefaultSetup)
	}
	for name := range e.Setups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Setup returns a setup of a device. An empty name selects DefaultSetup,
// which falls back to plain defaults when the device declares none.
func (r *Registry) Setup(deviceName, setupName string) (Setup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[deviceName]
	if !ok {
		return Setup{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceName)
	}
	if setupName == "" {
		setupName = DefaultSetup
	}
	s, ok := e.Setups[setupName]
	if !ok {
		if setupName == DefaultSetup {
			return Setup{Name: DefaultSetup}, nil
		}
		return Setup{}, fmt.Errorf("%w: %q for device %q", ErrSetupNotFound, setupName, deviceName)
	}
	return s, nil
}

// AddSetups adds or replaces setups of a device.
func (r *Registry) AddSetups(deviceName string, setups map[string]Setup) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[deviceName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceName)
	}
	for name, s := range setups {
		s.Name = name
		e.Setups[name] = s
	}
	return nil
}

// Create builds a device in the given setup.
func (r *Registry) Create(deviceName, setupName string) (device.Device, Setup, error) {
	e, err := r.Lookup(deviceName)
	if err != nil {
		return nil, Setup{}, err
	}
	setup, err := r.Setup(deviceName, setupName)
	if err != nil {
		return nil, Setup{}, err
	}
	dev, err := e.New(setup.Overrides())
	if err != nil {
		return nil, Setup{}, fmt.Errorf("setup %q of device %q: %w", setup.Name, deviceName, err)
	}
	return dev, setup, nil
}
