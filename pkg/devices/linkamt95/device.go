package linkamt95

import (
	"github.com/plankton-sim/plankton-go/pkg/device"
	"github.com/plankton-sim/plankton-go/pkg/statemachine"
)

// Name is the registry name of the device.
const Name = "linkam_t95"

// State names.
const (
	StateInit    = "init"
	StateStopped = "stopped"
	StateStarted = "started"
	StateHeat    = "heat"
	StateHold    = "hold"
	StateCool    = "cool"
)

// MaxPumpSpeed is the highest regular pump speed; faster means overspeed.
const MaxPumpSpeed = 30

// Device is the simulated T95.
type Device struct {
	*device.StateMachineDevice

	SerialCommandMode bool
	PumpOverspeed     bool

	StartCommanded bool
	StopCommanded  bool
	HoldCommanded  bool

	// TemperatureRate is the rate of change in C/min.
	TemperatureRate float64
	// TemperatureLimit is the target temperature in C.
	TemperatureLimit float64

	// PumpSpeed ranges from 0 to MaxPumpSpeed in arbitrary units.
	PumpSpeed int
	// Temperature is the current stage temperature in C.
	Temperature float64

	PumpManualMode    bool
	ManualTargetSpeed int
}

// New creates a T95 with the given overrides.
func New(overrides device.Overrides) (*Device, error) {
	d := &Device{}
	smd, err := device.NewStateMachineDevice(d, overrides)
	if err != nil {
		return nil, err
	}
	d.StateMachineDevice = smd
	return d, nil
}

// InitializeData sets the power-on defaults. The real device remembers the
// values of its last run, the defaults here are arbitrary.
func (d *Device) InitializeData() {
	d.SerialCommandMode = false
	d.PumpOverspeed = false

	d.StartCommanded = false
	d.StopCommanded = false
	d.HoldCommanded = false

	d.TemperatureRate = 5.0
	d.TemperatureLimit = 0.0

	d.PumpSpeed = 0
	d.Temperature = 24.0

	d.PumpManualMode = false
	d.ManualTargetSpeed = 0
}

// InitialState returns "init".
func (d *Device) InitialState() string { return StateInit }

// StateHandlers returns the default state behavior.
func (d *Device) StateHandlers() map[string]statemachine.State {
	return map[string]statemachine.State{
		StateInit:    statemachine.BaseState{},
		StateStopped: statemachine.Funcs{Entry: d.enterStopped},
		StateStarted: statemachine.Funcs{Entry: d.enterStarted},
		StateHeat:    statemachine.Funcs{In: d.heat},
		StateHold:    statemachine.BaseState{},
		StateCool:    statemachine.Funcs{In: d.cool, Exit: d.leaveCool},
	}
}

// TransitionHandlers returns the transition table. Order matters: the first
// satisfied condition wins.
func (d *Device) TransitionHandlers() []statemachine.Transition {
	return []statemachine.Transition{
		{From: StateInit, To: StateStopped, Condition: func() bool { return d.SerialCommandMode }},

		{From: StateStopped, To: StateStarted, Condition: func() bool { return d.StartCommanded }},

		{From: StateStarted, To: StateStopped, Condition: func() bool { return d.StopCommanded }},
		{From: StateStarted, To: StateHeat, Condition: func() bool { return d.Temperature < d.TemperatureLimit }},
		{From: StateStarted, To: StateHold, Condition: func() bool { return d.Temperature == d.TemperatureLimit }},
		{From: StateStarted, To: StateCool, Condition: func() bool { return d.Temperature > d.TemperatureLimit }},

		{From: StateHeat, To: StateHold, Condition: func() bool {
			return d.Temperature == d.TemperatureLimit || d.HoldCommanded
		}},
		{From: StateHeat, To: StateCool, Condition: func() bool { return d.Temperature > d.TemperatureLimit }},
		{From: StateHeat, To: StateStopped, Condition: func() bool { return d.StopCommanded }},

		{From: StateHold, To: StateHeat, Condition: func() bool {
			return d.Temperature < d.TemperatureLimit && !d.HoldCommanded
		}},
		{From: StateHold, To: StateCool, Condition: func() bool {
			return d.Temperature > d.TemperatureLimit && !d.HoldCommanded
		}},
		{From: StateHold, To: StateStopped, Condition: func() bool { return d.StopCommanded }},

		{From: StateCool, To: StateHeat, Condition: func() bool { return d.Temperature < d.TemperatureLimit }},
		{From: StateCool, To: StateHold, Condition: func() bool {
			return d.Temperature == d.TemperatureLimit || d.HoldCommanded
		}},
		{From: StateCool, To: StateStopped, Condition: func() bool { return d.StopCommanded }},
	}
}

// RegisterParameters exposes the device data.
func (d *Device) RegisterParameters(p *device.Parameters) error {
	binds := []error{
		device.Bind(p, "serial_command_mode", &d.SerialCommandMode, "Set by the first status request."),
		device.Bind(p, "pump_overspeed", &d.PumpOverspeed, "Cooling too fast."),
		device.Bind(p, "start_commanded", &d.StartCommanded, "Start requested."),
		device.Bind(p, "stop_commanded", &d.StopCommanded, "Stop requested."),
		device.Bind(p, "hold_commanded", &d.HoldCommanded, "Hold requested."),
		device.Bind(p, "temperature_rate", &d.TemperatureRate, "Rate of temperature change in C/min."),
		device.Bind(p, "temperature_limit", &d.TemperatureLimit, "Target temperature in C."),
		device.Bind(p, "pump_speed", &d.PumpSpeed, "Cooling pump speed, 0 to 30."),
		device.Bind(p, "temperature", &d.Temperature, "Current temperature in C."),
		device.Bind(p, "pump_manual_mode", &d.PumpManualMode, "Pump speed set manually."),
		device.Bind(p, "manual_target_speed", &d.ManualTargetSpeed, "Pump speed in manual mode."),
	}
	for _, err := range binds {
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) enterStopped(float64) {
	d.StopCommanded = false
	d.HoldCommanded = false
	d.StartCommanded = false
}

func (d *Device) enterStarted(float64) {
	d.StartCommanded = false
}

func (d *Device) heat(dt float64) {
	d.Temperature = device.Approach(d.Temperature, d.TemperatureLimit, d.TemperatureRate/60.0, dt)
}

func (d *Device) cool(dt float64) {
	if d.PumpManualMode {
		d.PumpSpeed = d.ManualTargetSpeed
	} else {
		// Linear pump model: full speed 40 K above the limit, overspeed beyond.
		d.PumpSpeed = int(MaxPumpSpeed * (d.Temperature - d.TemperatureLimit) / 40.0)
	}
	d.PumpOverspeed = d.PumpSpeed > MaxPumpSpeed

	d.Temperature = device.Approach(d.Temperature, d.TemperatureLimit, d.TemperatureRate/60.0, dt)
}

func (d *Device) leaveCool(float64) {
	d.PumpOverspeed = false
	d.PumpSpeed = 0
}
