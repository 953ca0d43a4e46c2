// Package device provides the building blocks for simulated devices.
//
// A simulated device is a state machine plus data. The data lives in ordinary
// Go struct fields of the concrete device type; the device makes selected
// fields visible to the outside world by registering them as Parameters.
// Parameters are what setups override, what the control server exposes and
// what state snapshots persist.
//
// # Writing a Device
//
// A concrete device implements Definition and embeds *StateMachineDevice:
//
//	type Heater struct {
//	    *device.StateMachineDevice
//	    Temperature float64
//	    Target      float64
//	}
//
//	func New(o device.Overrides) (*Heater, error) {
//	    h := &Heater{}
//	    smd, err := device.NewStateMachineDevice(h, o)
//	    if err != nil {
//	        return nil, err
//	    }
//	    h.StateMachineDevice = smd
//	    return h, nil
//	}
//
// InitializeData is called once on construction and again on Reset, so it
// must assign every field a default value. StateHandlers, InitialState and
// TransitionHandlers describe the machine; RegisterParameters binds fields.
//
// # Overrides
//
// Overrides replace parts of a definition without touching its code: the
// initial state, initial data values, state handlers and transition
// conditions. Overrides are strict; they may only replace things the
// definition already declares. A typo in a setup therefore fails loudly
// instead of silently adding a new member.
package device
