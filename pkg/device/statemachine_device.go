package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/plankton-sim/plankton-go/pkg/statemachine"
)

// ErrInvalidOverride indicates an override that refers to something the
// device definition does not declare.
var ErrInvalidOverride = errors.New("invalid override")

// Device is the view of a simulated device used by adapters, the
// simulation loop and the control server.
type Device interface {
	Processor

	// Parameters returns the device data visible outside the device.
	Parameters() *Parameters

	// State returns the current state machine state.
	State() string

	// Reset restores initial data and restarts the state machine.
	Reset() error
}

// Definition describes a state machine device. Concrete device types
// implement it and embed *StateMachineDevice.
type Definition interface {
	// InitializeData assigns every data field its default value.
	InitializeData()

	// StateHandlers returns the handler for every state.
	StateHandlers() map[string]statemachine.State

	// InitialState names the state entered on the first cycle.
	InitialState() string

	// TransitionHandlers returns the ordered transition table.
	TransitionHandlers() []statemachine.Transition

	// RegisterParameters binds data fields as parameters.
	RegisterParameters(p *Parameters) error
}

// Overrides replace parts of a Definition. All replacements are strict.
type Overrides struct {
	InitialState string
	InitialData  map[string]any
	States       map[string]statemachine.State
	Transitions  []statemachine.Transition
}

// StateMachineDevice drives a Definition through its state machine.
type StateMachineDevice struct {
	mu sync.Mutex

	def       Definition
	overrides Overrides
	params    *Parameters
	machine   *statemachine.Machine
	composite Composite
}

// NewStateMachineDevice initializes def, applies overrides and builds the
// state machine.
func NewStateMachineDevice(def Definition, overrides Overrides) (*StateMachineDevice, error) {
	def.InitializeData()

	params := NewParameters()
	if err := def.RegisterParameters(params); err != nil {
		return nil, fmt.Errorf("register parameters: %w", err)
	}
	if err := params.Apply(overrides.InitialData); err != nil {
		return nil, fmt.Errorf("%w: initial data: %w", ErrInvalidOverride, err)
	}

	states := def.StateHandlers()
	if err := StrictUpdate(states, overrides.States); err != nil {
		return nil, fmt.Errorf("%w: states: %w", ErrInvalidOverride, err)
	}

	initial := def.InitialState()
	if overrides.InitialState != "" {
		if _, ok := states[overrides.InitialState]; !ok {
			return nil, fmt.Errorf("%w: initial state %q is not a defined state",
				ErrInvalidOverride, overrides.InitialState)
		}
		initial = overrides.InitialState
	}

	transitions, err := mergeTransitions(def.TransitionHandlers(), overrides.Transitions)
	if err != nil {
		return nil, err
	}

	machine, err := statemachine.New(statemachine.Config{
		Initial:     initial,
		States:      states,
		Transitions: transitions,
	})
	if err != nil {
		return nil, err
	}

	d := &StateMachineDevice{
		def:       def,
		overrides: overrides,
		params:    params,
		machine:   machine,
	}

	if b, ok := def.(BeforeProcessor); ok {
		d.composite.Before = b.BeforeProcess
	}
	if a, ok := def.(AfterProcessor); ok {
		d.composite.After = a.AfterProcess
	}
	d.composite.Add(machine)

	return d, nil
}

// mergeTransitions replaces conditions of existing transitions, keeping the
// definition order.
func mergeTransitions(base, overrides []statemachine.Transition) ([]statemachine.Transition, error) {
	index := make(map[[2]string]int, len(base))
	merged := append([]statemachine.Transition(nil), base...)
	for i, t := range merged {
		index[t.Key()] = i
	}

	for _, o := range overrides {
		i, ok := index[o.Key()]
		if !ok {
			return nil, fmt.Errorf("%w: transition %s -> %s is not defined",
				ErrInvalidOverride, o.From, o.To)
		}
		merged[i].Condition = o.Condition
	}
	return merged, nil
}

// Process advances the device by dt simulated seconds.
func (d *StateMachineDevice) Process(dt float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.composite.Process(dt)
}

// AddProcessor adds a processor that runs after the state machine each cycle.
func (d *StateMachineDevice) AddProcessor(p Processor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.composite.Add(p)
}

// Parameters returns the device parameter registry.
func (d *StateMachineDevice) Parameters() *Parameters {
	return d.params
}

// State returns the current state name.
func (d *StateMachineDevice) State() string {
	return d.machine.State()
}

// Machine returns the underlying state machine.
func (d *StateMachineDevice) Machine() *statemachine.Machine {
	return d.machine
}

// OnTransition registers a callback for state changes.
func (d *StateMachineDevice) OnTransition(fn func(from, to string)) {
	d.machine.OnTransition(fn)
}

// Reset re-initializes the data, re-applies the initial data override and
// restarts the state machine.
func (d *StateMachineDevice) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.def.InitializeData()
	if err := d.params.Apply(d.overrides.InitialData); err != nil {
		return err
	}
	d.machine.Reset()
	return nil
}
