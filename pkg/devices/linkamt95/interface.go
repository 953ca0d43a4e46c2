package linkamt95

import (
	"fmt"
	"strings"

	"github.com/plankton-sim/plankton-go/pkg/stream"
)

// pumpSpeedChars encodes manual pump speeds 0 to 30, one char each.
const pumpSpeedChars = "0123456789:;<=>?@ABCDEFGHIJKLMN"

// Status bytes of the T response.
const (
	statusStopped    byte = 0x01
	statusHeating    byte = 0x10
	statusCooling    byte = 0x20
	statusHolding    byte = 0x30
	statusHoldingCmd byte = 0x50

	errorNone      byte = 0x80
	errorOverspeed byte = 0x01

	pumpBase byte = 0x80
)

// StreamInterface returns the serial command set of d.
func StreamInterface(d *Device) stream.Interface {
	return stream.Interface{
		Device: Name,
		Doc: `Serial interface of the Linkam T95 controller.

Replies to commands other than T are empty.`,
		InTerminator:  "\r",
		OutTerminator: "\r",
		Commands: []stream.Command{
			{
				Name:    "get_status",
				Pattern: `^T$`,
				Doc: `Returns the 10 byte status: status, error and pump bytes, three
unused bytes, then the temperature in 0.1 C as four hex digits.
The first T also enables serial command mode.`,
				Handler: func(...any) (string, error) { return d.status(), nil },
			},
			{
				Name:    "set_rate",
				Pattern: `^R1([0-9]+)$`,
				Args:    []stream.ArgMapping{stream.Int},
				Doc:     "Sets the temperature rate in 0.01 C/min, 1 to 15000. Other values are ignored.",
				Handler: func(args ...any) (string, error) {
					if rate := args[0].(int); rate >= 1 && rate <= 15000 {
						d.TemperatureRate = float64(rate) / 100.0
					}
					return "", nil
				},
			},
			{
				Name:    "set_limit",
				Pattern: `^L1([0-9]+)$`,
				Args:    []stream.ArgMapping{stream.Int},
				Doc:     "Sets the temperature limit in 0.1 C, -2000 to 6000. Other values are ignored.",
				Handler: func(args ...any) (string, error) {
					if limit := args[0].(int); limit >= -2000 && limit <= 6000 {
						d.TemperatureLimit = float64(limit) / 10.0
					}
					return "", nil
				},
			},
			{
				Name:    "start",
				Pattern: `^S$`,
				Doc:     "Starts heating or cooling towards the limit.",
				Handler: func(...any) (string, error) {
					d.StartCommanded = true
					return "", nil
				},
			},
			{
				Name:    "stop",
				Pattern: `^E$`,
				Doc:     "Stops heating or cooling.",
				Handler: func(...any) (string, error) {
					d.StopCommanded = true
					return "", nil
				},
			},
			{
				Name:    "hold",
				Pattern: `^O$`,
				Doc:     "Holds the current temperature.",
				Handler: func(...any) (string, error) {
					d.HoldCommanded = true
					return "", nil
				},
			},
			{
				Name:    "heat",
				Pattern: `^H$`,
				Doc:     "Releases a hold.",
				Handler: func(...any) (string, error) {
					d.HoldCommanded = false
					return "", nil
				},
			},
			{
				Name:    "cool",
				Pattern: `^C$`,
				Doc:     "Releases a hold.",
				Handler: func(...any) (string, error) {
					d.HoldCommanded = false
					return "", nil
				},
			},
			{
				Name:    "pump_command",
				Pattern: `^P(a0|m0|[0-9:;<=>?@A-N])$`,
				Args:    []stream.ArgMapping{stream.String},
				Doc: `Pa0 switches the pump to automatic mode, Pm0 to manual mode.
P followed by one of "0123456789:;<=>?@ABCDEFGHIJKLMN" sets the manual speed 0 to 30.`,
				Handler: func(args ...any) (string, error) {
					d.pumpCommand(args[0].(string))
					return "", nil
				},
			},
		},
	}
}

func (d *Device) status() string {
	d.SerialCommandMode = true

	resp := [10]byte{}
	for i := range resp {
		resp[i] = 0x80
	}

	switch d.State() {
	case StateHeat:
		resp[0] = statusHeating
	case StateCool:
		resp[0] = statusCooling
	case StateHold:
		resp[0] = statusHolding
		if d.HoldCommanded {
			resp[0] = statusHoldingCmd
		}
	default:
		resp[0] = statusStopped
	}

	resp[1] = errorNone
	if d.PumpOverspeed {
		resp[1] |= errorOverspeed
	}

	speed := d.PumpSpeed
	if speed < 0 {
		speed = 0
	}
	if speed > 0x7f {
		speed = 0x7f
	}
	resp[2] = pumpBase + byte(speed)

	temp := fmt.Sprintf("%04x", int(d.Temperature*10)&0xffff)
	copy(resp[6:], temp)

	return string(resp[:])
}

func (d *Device) pumpCommand(arg string) {
	switch arg {
	case "a0":
		d.PumpManualMode = false
	case "m0":
		d.PumpManualMode = true
	default:
		if i := strings.Index(pumpSpeedChars, arg); i >= 0 {
			d.ManualTargetSpeed = i
		}
	}
}
