package statemachine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects handler invocations as "<state>.<handler>" strings.
type recorder struct {
	name  string
	calls *[]string
	dts   *[]float64
}

func (r recorder) OnEntry(dt float64) { r.add("entry", dt) }
func (r recorder) InState(dt float64) { r.add("in", dt) }
func (r recorder) OnExit(dt float64)  { r.add("exit", dt) }

func (r recorder) add(kind string, dt float64) {
	*r.calls = append(*r.calls, r.name+"."+kind)
	*r.dts = append(*r.dts, dt)
}

func newRecorded(t *testing.T, cond map[[2]string]*bool) (*Machine, *[]string, *[]float64) {
	t.Helper()

	calls := &[]string{}
	dts := &[]float64{}

	states := map[string]State{}
	for _, n := range []string{"a", "b", "c"} {
		states[n] = recorder{name: n, calls: calls, dts: dts}
	}

	var transitions []Transition
	for _, key := range [][2]string{{"a", "b"}, {"a", "c"}, {"b", "a"}} {
		flag := cond[key]
		transitions = append(transitions, Transition{
			From: key[0], To: key[1],
			Condition: func() bool { return flag != nil && *flag },
		})
	}

	m, err := New(Config{Initial: "a", States: states, Transitions: transitions})
	require.NoError(t, err)
	return m, calls, dts
}

func TestFirstProcessEntersInitialState(t *testing.T) {
	m, calls, dts := newRecorded(t, nil)

	assert.Equal(t, "", m.State())

	m.Process(0.5)

	assert.Equal(t, "a", m.State())
	assert.Equal(t, []string{"a.entry"}, *calls)
	assert.Equal(t, []float64{0}, *dts)
}

func TestInStateWhenNoConditionHolds(t *testing.T) {
	m, calls, _ := newRecorded(t, nil)

	m.Process(0)
	m.Process(1.5)
	m.Process(2.0)

	assert.Equal(t, "a", m.State())
	assert.Equal(t, []string{"a.entry", "a.in", "a.in"}, *calls)
}

func TestTransitionCallsExitThenEntry(t *testing.T) {
	toB := false
	m, calls, dts := newRecorded(t, map[[2]string]*bool{{"a", "b"}: &toB})

	m.Process(0)
	toB = true
	m.Process(0.25)

	assert.Equal(t, "b", m.State())
	assert.Equal(t, []string{"a.entry", "a.exit", "b.entry"}, *calls)
	assert.Equal(t, []float64{0, 0.25, 0.25}, *dts)
}

func TestTransitionsEvaluatedInDeclarationOrder(t *testing.T) {
	toB, toC := true, true
	m, _, _ := newRecorded(t, map[[2]string]*bool{{"a", "b"}: &toB, {"a", "c"}: &toC})

	m.Process(0)
	m.Process(0.1)

	assert.Equal(t, "b", m.State())
}

func TestOnlyOneTransitionPerCycle(t *testing.T) {
	toB, backToA := true, true
	m, _, _ := newRecorded(t, map[[2]string]*bool{{"a", "b"}: &toB, {"b", "a"}: &backToA})

	m.Process(0)
	m.Process(0.1)
	assert.Equal(t, "b", m.State())

	m.Process(0.1)
	assert.Equal(t, "a", m.State())
}

func TestCan(t *testing.T) {
	m, _, _ := newRecorded(t, nil)
	m.Process(0)

	assert.True(t, m.Can("b"))
	assert.True(t, m.Can("c"))
	assert.False(t, m.Can("a"))
}

func TestResetReentersInitial(t *testing.T) {
	toB := true
	m, calls, _ := newRecorded(t, map[[2]string]*bool{{"a", "b"}: &toB})

	m.Process(0)
	m.Process(0.1)
	require.Equal(t, "b", m.State())

	toB = false
	m.Reset()
	assert.Equal(t, "", m.State())

	m.Process(0.1)
	assert.Equal(t, "a", m.State())
	assert.Equal(t, "a.entry", (*calls)[len(*calls)-1])
}

func TestOnTransitionHook(t *testing.T) {
	toB := false
	m, _, _ := newRecorded(t, map[[2]string]*bool{{"a", "b"}: &toB})

	var seen [][2]string
	m.OnTransition(func(from, to string) {
		seen = append(seen, [2]string{from, to})
	})

	m.Process(0)
	toB = true
	m.Process(0.1)

	assert.Equal(t, [][2]string{{"", "a"}, {"a", "b"}}, seen)
}

func TestNewValidation(t *testing.T) {
	always := func() bool { return true }
	states := map[string]State{"a": BaseState{}, "b": nil}

	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name:    "unknown initial",
			cfg:     Config{Initial: "x", States: states},
			wantErr: ErrUnknownState,
		},
		{
			name: "unknown source",
			cfg: Config{Initial: "a", States: states, Transitions: []Transition{
				{From: "x", To: "a", Condition: always},
			}},
			wantErr: ErrUnknownState,
		},
		{
			name: "unknown target",
			cfg: Config{Initial: "a", States: states, Transitions: []Transition{
				{From: "a", To: "x", Condition: always},
			}},
			wantErr: ErrUnknownState,
		},
		{
			name: "duplicate",
			cfg: Config{Initial: "a", States: states, Transitions: []Transition{
				{From: "a", To: "b", Condition: always},
				{From: "a", To: "b", Condition: always},
			}},
			wantErr: ErrDuplicateTransition,
		},
		{
			name: "missing condition",
			cfg: Config{Initial: "a", States: states, Transitions: []Transition{
				{From: "a", To: "b"},
			}},
			wantErr: ErrNoCondition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNilStateBecomesNoop(t *testing.T) {
	m, err := New(Config{Initial: "a", States: map[string]State{"a": nil}})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		m.Process(0)
		m.Process(1)
	})
	assert.Equal(t, []string{"a"}, m.States())
}

func TestFuncsAdapter(t *testing.T) {
	var entered, in float64
	m, err := New(Config{Initial: "a", States: map[string]State{
		"a": Funcs{
			Entry: func(dt float64) { entered++ },
			In:    func(dt float64) { in += dt },
		},
	}})
	require.NoError(t, err)

	m.Process(0)
	m.Process(1)
	m.Process(2)

	assert.Equal(t, 1.0, entered)
	assert.Equal(t, 3.0, in)
}
