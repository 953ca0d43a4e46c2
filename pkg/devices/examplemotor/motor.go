// Package examplemotor is a minimal linear motor used to demonstrate how
// devices are written.
package examplemotor

import (
	"errors"
	"fmt"

	"github.com/plankton-sim/plankton-go/pkg/adapter"
	"github.com/plankton-sim/plankton-go/pkg/device"
	"github.com/plankton-sim/plankton-go/pkg/registry"
	"github.com/plankton-sim/plankton-go/pkg/statemachine"
	"github.com/plankton-sim/plankton-go/pkg/stream"
)

// Name is the registry name of the device.
const Name = "example_motor"

// State names.
const (
	StateIdle   = "idle"
	StateMoving = "moving"
)

// Travel limits in mm.
const (
	MinPosition = 0.0
	MaxPosition = 250.0
)

// ErrTargetOutOfRange is returned for targets outside the travel range.
var ErrTargetOutOfRange = errors.New("target out of range")

// Motor moves towards its target at constant speed.
type Motor struct {
	*device.StateMachineDevice

	Position float64
	Target   float64
	// Speed in mm/s.
	Speed float64
}

// New creates a motor.
func New(overrides device.Overrides) (*Motor, error) {
	m := &Motor{}
	smd, err := device.NewStateMachineDevice(m, overrides)
	if err != nil {
		return nil, err
	}
	m.StateMachineDevice = smd
	return m, nil
}

// InitializeData puts the motor at the origin with no pending move.
func (m *Motor) InitializeData() {
	m.Position = 0
	m.Target = 0
	m.Speed = 2.0
}

// InitialState returns StateIdle.
func (m *Motor) InitialState() string { return StateIdle }

// StateHandlers moves the motor towards its target while in StateMoving.
func (m *Motor) StateHandlers() map[string]statemachine.State {
	return map[string]statemachine.State{
		StateIdle: statemachine.BaseState{},
		StateMoving: statemachine.Funcs{In: func(dt float64) {
			m.Position = device.Approach(m.Position, m.Target, m.Speed, dt)
		}},
	}
}

// TransitionHandlers starts a move when the target differs from the
// position and stops once it is reached.
func (m *Motor) TransitionHandlers() []statemachine.Transition {
	return []statemachine.Transition{
		{From: StateIdle, To: StateMoving, Condition: func() bool { return m.Target != m.Position }},
		{From: StateMoving, To: StateIdle, Condition: func() bool { return m.Target == m.Position }},
	}
}

// RegisterParameters exposes position (read-only), target and speed.
func (m *Motor) RegisterParameters(p *device.Parameters) error {
	if err := device.BindReadOnly(p, "position", &m.Position, "Current position in mm."); err != nil {
		return err
	}
	if err := device.Computed(p, "target", func() float64 { return m.Target }, m.SetTarget,
		"Target position in mm."); err != nil {
		return err
	}
	return device.Bind(p, "speed", &m.Speed, "Speed in mm/s.")
}

// SetTarget sets a new target within the travel range.
func (m *Motor) SetTarget(target float64) error {
	if target < MinPosition || target > MaxPosition {
		return fmt.Errorf("%w: %g not in [%g, %g]", ErrTargetOutOfRange, target, MinPosition, MaxPosition)
	}
	m.Target = target
	return nil
}

// Stop sets the target to the current position.
func (m *Motor) Stop() {
	m.Target = m.Position
}

// StreamInterface returns the command set of m.
func StreamInterface(m *Motor) stream.Interface {
	return stream.Interface{
		Device:        Name,
		InTerminator:  "\r\n",
		OutTerminator: "\r\n",
		Commands: []stream.Command{
			{
				Name: "get_status", Pattern: `^S\?$`, Doc: "Returns the state, idle or moving.",
				Handler: func(...any) (string, error) { return m.State(), nil },
			},
			{
				Name: "get_position", Pattern: `^P\?$`, Doc: "Returns the position in mm.",
				Handler: func(...any) (string, error) { return fmt.Sprintf("%g", m.Position), nil },
			},
			{
				Name: "get_target", Pattern: `^T\?$`, Doc: "Returns the target in mm.",
				Handler: func(...any) (string, error) { return fmt.Sprintf("%g", m.Target), nil },
			},
			{
				Name: "set_target", Pattern: `^T=([-+]?[0-9]*\.?[0-9]+)$`,
				Args: []stream.ArgMapping{stream.Float},
				Doc:  "Moves to the target. Answers T=<target>.",
				Handler: func(args ...any) (string, error) {
					if err := m.SetTarget(args[0].(float64)); err != nil {
						return "", err
					}
					return fmt.Sprintf("T=%g", m.Target), nil
				},
			},
			{
				Name: "stop", Pattern: `^H$`, Doc: "Stops at the current position. Answers T=<target>.",
				Handler: func(...any) (string, error) {
					m.Stop()
					return fmt.Sprintf("T=%g", m.Target), nil
				},
			},
		},
		HandleError: func(_ string, err error) string {
			return "ERR " + err.Error()
		},
	}
}

// Entry returns the registry entry of the motor.
func Entry() registry.Entry {
	return registry.Entry{
		Name:        Name,
		Description: "Linear motor with a 250 mm travel range",
		New: func(o device.Overrides) (device.Device, error) {
			m, err := New(o)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
		Setups: map[string]registry.Setup{
			"middle": {
				Description: "Heading for the middle of the travel range.",
				InitialData: map[string]any{"target": 125.0},
			},
		},
		Interfaces: []adapter.Interface{
			{Protocol: stream.Protocol, New: stream.Factory(StreamInterface)},
		},
	}
}
