package device

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plankton-sim/plankton-go/pkg/statemachine"
)

// testDevice is a minimal two-state definition.
type testDevice struct {
	*StateMachineDevice

	ExistingMember float64
	Go             bool
	Label          string

	initCalls   int
	beforeCalls int
}

func (d *testDevice) InitializeData() {
	d.initCalls++
	d.ExistingMember = 1.0
	d.Go = false
	d.Label = "x"
}

func (d *testDevice) StateHandlers() map[string]statemachine.State {
	return map[string]statemachine.State{
		"init": statemachine.BaseState{},
		"test": statemachine.BaseState{},
	}
}

func (d *testDevice) InitialState() string { return "init" }

func (d *testDevice) TransitionHandlers() []statemachine.Transition {
	return []statemachine.Transition{
		{From: "init", To: "test", Condition: func() bool { return d.Go }},
	}
}

func (d *testDevice) RegisterParameters(p *Parameters) error {
	if err := Bind(p, "existing_member", &d.ExistingMember, "A float."); err != nil {
		return err
	}
	if err := Bind(p, "go", &d.Go, "Start condition."); err != nil {
		return err
	}
	return BindReadOnly(p, "label", &d.Label, "Read-only label.")
}

func (d *testDevice) BeforeProcess(float64) { d.beforeCalls++ }

func newTestDevice(t *testing.T, o Overrides) (*testDevice, error) {
	t.Helper()
	d := &testDevice{}
	smd, err := NewStateMachineDevice(d, o)
	if err != nil {
		return nil, err
	}
	d.StateMachineDevice = smd
	return d, nil
}

func TestInitCallsDefinition(t *testing.T) {
	d, err := newTestDevice(t, Overrides{})
	require.NoError(t, err)

	assert.Equal(t, 1, d.initCalls)
	assert.Equal(t, "", d.State())

	d.Process(0)
	assert.Equal(t, "init", d.State())
	assert.Equal(t, 1, d.beforeCalls)
}

func TestInvalidInitialOverrideFails(t *testing.T) {
	_, err := newTestDevice(t, Overrides{InitialState: "init"})
	assert.NoError(t, err)

	d, err := newTestDevice(t, Overrides{InitialState: "test"})
	require.NoError(t, err)
	d.Process(0)
	assert.Equal(t, "test", d.State())

	_, err = newTestDevice(t, Overrides{InitialState: "invalid"})
	assert.ErrorIs(t, err, ErrInvalidOverride)
}

func TestOverridingUndefinedDataFails(t *testing.T) {
	d, err := newTestDevice(t, Overrides{InitialData: map[string]any{"existing_member": 2.0}})
	require.NoError(t, err)
	assert.Equal(t, 2.0, d.ExistingMember)

	_, err = newTestDevice(t, Overrides{InitialData: map[string]any{"nonexisting_member": 1.0}})
	assert.ErrorIs(t, err, ErrUnknownParameter)
}

func TestOverridingUndefinedStateFails(t *testing.T) {
	_, err := newTestDevice(t, Overrides{States: map[string]statemachine.State{
		"test": statemachine.BaseState{},
	}})
	assert.NoError(t, err)

	_, err = newTestDevice(t, Overrides{States: map[string]statemachine.State{
		"other": statemachine.BaseState{},
	}})
	assert.ErrorIs(t, err, ErrInvalidOverride)
}

func TestTransitionOverride(t *testing.T) {
	d, err := newTestDevice(t, Overrides{Transitions: []statemachine.Transition{
		{From: "init", To: "test", Condition: func() bool { return true }},
	}})
	require.NoError(t, err)

	d.Process(0)
	d.Process(0.1)
	assert.Equal(t, "test", d.State())

	_, err = newTestDevice(t, Overrides{Transitions: []statemachine.Transition{
		{From: "test", To: "init", Condition: func() bool { return true }},
	}})
	assert.ErrorIs(t, err, ErrInvalidOverride)
}

func TestResetRestoresData(t *testing.T) {
	d, err := newTestDevice(t, Overrides{InitialData: map[string]any{"existing_member": 3}})
	require.NoError(t, err)

	d.Go = true
	d.Process(0)
	d.Process(0.1)
	require.Equal(t, "test", d.State())

	require.NoError(t, d.Parameters().Set("existing_member", 10))
	require.NoError(t, d.Reset())

	assert.Equal(t, 3.0, d.ExistingMember)
	assert.False(t, d.Go)
	assert.Equal(t, "", d.State())
	assert.Equal(t, 2, d.initCalls)
}

func TestParametersConversion(t *testing.T) {
	var (
		i  int
		u  uint8
		f  float64
		s  string
		bl bool
	)
	p := NewParameters()
	require.NoError(t, Bind(p, "i", &i, ""))
	require.NoError(t, Bind(p, "u", &u, ""))
	require.NoError(t, Bind(p, "f", &f, ""))
	require.NoError(t, Bind(p, "s", &s, ""))
	require.NoError(t, Bind(p, "b", &bl, ""))

	require.NoError(t, p.Set("i", 4.0))
	require.NoError(t, p.Set("u", 7))
	require.NoError(t, p.Set("f", 3))
	require.NoError(t, p.Set("s", "hello"))
	require.NoError(t, p.Set("b", true))

	assert.Equal(t, 4, i)
	assert.Equal(t, uint8(7), u)
	assert.Equal(t, 3.0, f)
	assert.Equal(t, "hello", s)
	assert.True(t, bl)

	assert.ErrorIs(t, p.Set("i", 4.5), ErrInvalidValue)
	assert.ErrorIs(t, p.Set("u", -1), ErrInvalidValue)
	assert.ErrorIs(t, p.Set("s", 12), ErrInvalidValue)
	assert.ErrorIs(t, p.Set("b", "yes"), ErrInvalidValue)
	assert.ErrorIs(t, p.Set("missing", 1), ErrUnknownParameter)
	assert.ErrorIs(t, Bind(p, "i", &i, ""), ErrDuplicateParameter)
}

func TestParametersReadOnlyAndComputed(t *testing.T) {
	label := "fixed"
	var stored float64

	p := NewParameters()
	require.NoError(t, BindReadOnly(p, "label", &label, ""))
	require.NoError(t, Computed(p, "double",
		func() float64 { return stored * 2 },
		func(v float64) error { stored = v / 2; return nil },
		"Twice the stored value."))
	require.NoError(t, Computed[string](p, "name", func() string { return "dev" }, nil, ""))

	assert.ErrorIs(t, p.Set("label", "other"), ErrReadOnly)
	assert.ErrorIs(t, p.Set("name", "other"), ErrReadOnly)

	require.NoError(t, p.Set("double", 10))
	assert.Equal(t, 5.0, stored)

	v, err := p.Get("double")
	require.NoError(t, err)
	assert.Equal(t, 10.0, v)

	assert.Equal(t, []string{"label", "double", "name"}, p.Names())
	assert.Equal(t, map[string]any{"double": 10.0}, p.Writable())
	assert.Len(t, p.Snapshot(), 3)
}

func TestApplyIsStrict(t *testing.T) {
	a, b := 1, 2
	p := NewParameters()
	require.NoError(t, Bind(p, "a", &a, ""))
	require.NoError(t, Bind(p, "b", &b, ""))

	err := p.Apply(map[string]any{"a": 10, "c": 3})
	assert.ErrorIs(t, err, ErrUnknownParameter)
	assert.Equal(t, 1, a, "nothing must be written when a key is unknown")

	require.NoError(t, p.Apply(map[string]any{"a": 10, "b": 20}))
	assert.Equal(t, 10, a)
	assert.Equal(t, 20, b)
}

func TestApplyConvertsBeforeWriting(t *testing.T) {
	a, b := 1.0, 2
	p := NewParameters()
	require.NoError(t, Bind(p, "a", &a, ""))
	require.NoError(t, Bind(p, "b", &b, ""))

	err := p.Apply(map[string]any{"a": 42.0, "b": 1.5})
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Equal(t, 1.0, a, "a must not change when b fails to convert")
	assert.Equal(t, 2, b)
}

func TestApplyRollsBackRejectedSetter(t *testing.T) {
	a := 1
	var limit float64
	p := NewParameters()
	require.NoError(t, Bind(p, "a", &a, ""))
	require.NoError(t, Computed(p, "z_limit",
		func() float64 { return limit },
		func(v float64) error {
			if v > 100 {
				return errors.New("limit too high")
			}
			limit = v
			return nil
		}, ""))

	err := p.Apply(map[string]any{"a": 5, "z_limit": 500.0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "z_limit")
	assert.Equal(t, 1, a)
	assert.Equal(t, 0.0, limit)
}

func TestParametersRejectOverflow(t *testing.T) {
	var (
		small int8
		n     int
		u     uint16
		f32   float32
	)
	p := NewParameters()
	require.NoError(t, Bind(p, "small", &small, ""))
	require.NoError(t, Bind(p, "n", &n, ""))
	require.NoError(t, Bind(p, "u", &u, ""))
	require.NoError(t, Bind(p, "f32", &f32, ""))

	assert.ErrorIs(t, p.Set("small", 300), ErrInvalidValue)
	assert.ErrorIs(t, p.Set("small", -129.0), ErrInvalidValue)
	assert.ErrorIs(t, p.Set("n", 1e20), ErrInvalidValue)
	assert.ErrorIs(t, p.Set("u", 70000.0), ErrInvalidValue)
	assert.ErrorIs(t, p.Set("u", uint64(1)<<40), ErrInvalidValue)
	assert.ErrorIs(t, p.Set("f32", 1e300), ErrInvalidValue)
	assert.Equal(t, int8(0), small)
	assert.Equal(t, 0, n)

	require.NoError(t, p.Set("small", -128.0))
	require.NoError(t, p.Set("u", 65535))
	require.NoError(t, p.Set("n", 9e15))
	require.NoError(t, p.Set("f32", 2.5))
	assert.Equal(t, int8(-128), small)
	assert.Equal(t, uint16(65535), u)
	assert.Equal(t, 9000000000000000, n)
	assert.Equal(t, float32(2.5), f32)
}

func TestStrictUpdate(t *testing.T) {
	base := map[string]int{"a": 1, "b": 2}

	require.NoError(t, StrictUpdate(base, map[string]int{"a": 10}))
	assert.Equal(t, map[string]int{"a": 10, "b": 2}, base)

	err := StrictUpdate(base, map[string]int{"a": 5, "c": 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c")
	assert.Equal(t, 10, base["a"])
}

func TestSecondsSince(t *testing.T) {
	start := time.Now().Add(-2 * time.Second)
	got := SecondsSince(start)
	assert.GreaterOrEqual(t, got, 2.0)
	assert.Less(t, got, 3.0)
}

func TestFormatDocText(t *testing.T) {
	text := `
		First line.
		Second line that is very long ` + strings.Repeat("word ", 30)

	out := FormatDocText(text)
	lines := strings.Split(out, "\n")

	assert.Equal(t, "    First line.", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "    Second line"))
	assert.Greater(t, len(lines), 2)
	for _, l := range lines {
		assert.LessOrEqual(t, len(l), DocTextWidth)
		assert.True(t, l == "" || strings.HasPrefix(l, "    "))
	}
}

func TestComposite(t *testing.T) {
	var order []string
	c := Composite{
		Before: func(float64) { order = append(order, "before") },
		After:  func(float64) { order = append(order, "after") },
	}
	c.Add(ProcessorFunc(func(float64) { order = append(order, "p1") }),
		ProcessorFunc(func(float64) { order = append(order, "p2") }))

	c.Process(0.1)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"before", "p1", "p2", "after"}, order)
}

func TestErrorsWrapSentinels(t *testing.T) {
	_, err := newTestDevice(t, Overrides{InitialData: map[string]any{"label": "y"}})
	assert.True(t, errors.Is(err, ErrReadOnly))
	assert.True(t, errors.Is(err, ErrInvalidOverride))
}

func TestApproach(t *testing.T) {
	tests := []struct {
		name                      string
		current, target, rate, dt float64
		want                      float64
	}{
		{"up", 20, 30, 2, 1, 22},
		{"down", 30, 20, 2, 1.5, 27},
		{"lands on target", 29.5, 30, 2, 1, 30},
		{"no overshoot down", 20.5, 20, 2, 1, 20},
		{"zero dt", 20, 30, 2, 0, 20},
		{"zero rate", 20, 30, 0, 1, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Approach(tt.current, tt.target, tt.rate, tt.dt), 1e-9)
		})
	}
}
