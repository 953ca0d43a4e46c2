package linkamt95

import (
	"github.com/plankton-sim/plankton-go/pkg/adapter"
	"github.com/plankton-sim/plankton-go/pkg/device"
	"github.com/plankton-sim/plankton-go/pkg/registry"
	"github.com/plankton-sim/plankton-go/pkg/stream"
)

// Entry returns the registry entry of the T95.
func Entry() registry.Entry {
	return registry.Entry{
		Name:        Name,
		Description: "Linkam T95 temperature controller",
		New: func(o device.Overrides) (device.Device, error) {
			d, err := New(o)
			if err != nil {
				return nil, err
			}
			return d, nil
		},
		Setups: map[string]registry.Setup{
			registry.DefaultSetup: {
				Description: "Power-on state, waiting for the first status request.",
			},
			"ready": {
				Description:  "Serial command mode active, stopped at room temperature.",
				InitialState: StateStopped,
				InitialData:  map[string]any{"serial_command_mode": true},
			},
			"hot": {
				Description:  "Stopped at 80 C, cooling needs the pump.",
				InitialState: StateStopped,
				InitialData: map[string]any{
					"serial_command_mode": true,
					"temperature":         80.0,
				},
			},
		},
		Interfaces: []adapter.Interface{
			{Protocol: stream.Protocol, New: stream.Factory(StreamInterface)},
		},
	}
}
