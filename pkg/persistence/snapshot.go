package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/plankton-sim/plankton-go/pkg/device"
)

// SnapshotVersion is the current version of the snapshot file format.
const SnapshotVersion = 1

// ErrDeviceMismatch indicates a snapshot taken from another device.
var ErrDeviceMismatch = errors.New("snapshot belongs to another device")

// Snapshot is the saved state of a simulation.
type Snapshot struct {
	// Version is the snapshot file format version.
	Version int `json:"version"`

	// SavedAt is when the snapshot was taken.
	SavedAt time.Time `json:"saved_at"`

	// Device is the registry name of the simulated device.
	Device string `json:"device"`

	// Setup is the setup the device was started with.
	Setup string `json:"setup,omitempty"`

	// State is the state machine state at the time of saving.
	State string `json:"state,omitempty"`

	// Runtime is the simulated time in seconds.
	Runtime float64 `json:"runtime"`

	// Cycles is the number of simulation cycles.
	Cycles uint64 `json:"cycles"`

	// Parameters holds the writable device parameters.
	Parameters map[string]any `json:"parameters"`
}

// Take captures the writable parameters of dev.
func Take(deviceName, setup string, dev device.Device) *Snapshot {
	return &Snapshot{
		Device:     deviceName,
		Setup:      setup,
		State:      dev.State(),
		Parameters: dev.Parameters().Writable(),
	}
}

// Restore writes the saved parameters back into dev. Every saved parameter
// must still exist on the device.
func (s *Snapshot) Restore(deviceName string, dev device.Device) error {
	if s.Device != deviceName {
		return fmt.Errorf("%w: saved %q, running %q", ErrDeviceMismatch, s.Device, deviceName)
	}
	return dev.Parameters().Apply(s.Parameters)
}

// Store manages a snapshot file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store for path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the file path.
func (s *Store) Path() string {
	return s.path
}

// Save writes the snapshot. The file is replaced atomically.
func (s *Store) Save(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	snap.Version = SnapshotVersion
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now()
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the snapshot. It returns nil, nil if the file doesn't exist.
func (s *Store) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	if snap.Version > SnapshotVersion {
		return nil, fmt.Errorf("%s: unsupported snapshot version %d", s.path, snap.Version)
	}
	return snap, nil
}

// Clear removes the snapshot file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
