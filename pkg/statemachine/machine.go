package statemachine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Configuration errors.
var (
	// ErrUnknownState indicates a state name that is not part of the configuration.
	ErrUnknownState = errors.New("unknown state")

	// ErrDuplicateTransition indicates two transitions with the same source and target.
	ErrDuplicateTransition = errors.New("duplicate transition")

	// ErrNoCondition indicates a transition without a condition.
	ErrNoCondition = errors.New("transition has no condition")
)

// State receives the cycle callbacks of a state machine.
// dt is the simulated time in seconds since the previous cycle.
type State interface {
	OnEntry(dt float64)
	InState(dt float64)
	OnExit(dt float64)
}

// BaseState implements State with no-op handlers. Embed it to override only
// the handlers a state needs.
type BaseState struct{}

// OnEntry does nothing.
func (BaseState) OnEntry(float64) {}

// InState does nothing.
func (BaseState) InState(float64) {}

// OnExit does nothing.
func (BaseState) OnExit(float64) {}

// Funcs adapts plain functions to the State interface. Nil fields are skipped.
type Funcs struct {
	Entry func(dt float64)
	In    func(dt float64)
	Exit  func(dt float64)
}

// OnEntry calls Entry if set.
func (f Funcs) OnEntry(dt float64) {
	if f.Entry != nil {
		f.Entry(dt)
	}
}

// InState calls In if set.
func (f Funcs) InState(dt float64) {
	if f.In != nil {
		f.In(dt)
	}
}

// OnExit calls Exit if set.
func (f Funcs) OnExit(dt float64) {
	if f.Exit != nil {
		f.Exit(dt)
	}
}

// Condition guards a transition.
type Condition func() bool

// Transition moves the machine from one state to another when its condition holds.
type Transition struct {
	From      string
	To        string
	Condition Condition
}

// Key returns the (From, To) pair identifying the transition.
func (t Transition) Key() [2]string {
	return [2]string{t.From, t.To}
}

// Config describes a state machine.
type Config struct {
	// Initial is the state entered on the first cycle.
	Initial string

	// States maps state names to their handlers.
	States map[string]State

	// Transitions are evaluated in order; only those leaving the current
	// state are considered.
	Transitions []Transition
}

// Machine is a cycle-driven state machine.
type Machine struct {
	mu sync.RWMutex

	initial string
	states  map[string]State

	// outgoing transitions per source state, in declaration order
	outgoing map[string][]Transition

	current string
	entered bool

	onTransition func(from, to string)
}

// New validates cfg and creates a Machine.
func New(cfg Config) (*Machine, error) {
	if _, ok := cfg.States[cfg.Initial]; !ok {
		return nil, fmt.Errorf("%w: initial state %q", ErrUnknownState, cfg.Initial)
	}

	seen := make(map[[2]string]struct{}, len(cfg.Transitions))
	outgoing := make(map[string][]Transition)

	for _, t := range cfg.Transitions {
		if _, ok := cfg.States[t.From]; !ok {
			return nil, fmt.Errorf("%w: transition source %q", ErrUnknownState, t.From)
		}
		if _, ok := cfg.States[t.To]; !ok {
			return nil, fmt.Errorf("%w: transition target %q", ErrUnknownState, t.To)
		}
		if t.Condition == nil {
			return nil, fmt.Errorf("%w: %s -> %s", ErrNoCondition, t.From, t.To)
		}
		if _, dup := seen[t.Key()]; dup {
			return nil, fmt.Errorf("%w: %s -> %s", ErrDuplicateTransition, t.From, t.To)
		}
		seen[t.Key()] = struct{}{}
		outgoing[t.From] = append(outgoing[t.From], t)
	}

	states := make(map[string]State, len(cfg.States))
	for name, s := range cfg.States {
		if s == nil {
			s = BaseState{}
		}
		states[name] = s
	}

	return &Machine{
		initial:  cfg.Initial,
		states:   states,
		outgoing: outgoing,
	}, nil
}

// OnTransition registers a callback invoked after every state change,
// including the initial entry (from is "" in that case).
func (m *Machine) OnTransition(fn func(from, to string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransition = fn
}

// Process runs one cycle of the state machine.
func (m *Machine) Process(dt float64) {
	m.mu.Lock()
	if !m.entered {
		m.entered = true
		m.current = m.initial
		state := m.states[m.current]
		hook := m.onTransition
		m.mu.Unlock()

		state.OnEntry(0)
		if hook != nil {
			hook("", m.initial)
		}
		return
	}

	from := m.current
	candidates := m.outgoing[from]
	m.mu.Unlock()

	// Conditions run without the lock held, they usually read device data
	// and may call State().
	for _, t := range candidates {
		if !t.Condition() {
			continue
		}

		m.states[from].OnExit(dt)

		m.mu.Lock()
		m.current = t.To
		hook := m.onTransition
		m.mu.Unlock()

		m.states[t.To].OnEntry(dt)
		if hook != nil {
			hook(from, t.To)
		}
		return
	}

	m.states[from].InState(dt)
}

// State returns the current state name, or "" before the first cycle.
func (m *Machine) State() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Initial returns the configured initial state.
func (m *Machine) Initial() string {
	return m.initial
}

// Can reports whether a transition from the current state to target exists.
func (m *Machine) Can(target string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.outgoing[m.current] {
		if t.To == target {
			return true
		}
	}
	return false
}

// States returns the sorted names of all configured states.
func (m *Machine) States() []string {
	names := make([]string, 0, len(m.states))
	for name := range m.states {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset returns the machine to its unentered condition. The next Process
// call enters the initial state again.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = ""
	m.entered = false
}
