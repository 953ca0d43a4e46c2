// Package linkamt95 simulates the Linkam T95 temperature controller.
//
// The controller heats or cools a sample stage towards a temperature
// limit at a configurable rate. Cooling uses a liquid nitrogen pump whose
// speed follows the distance to the limit unless the pump is in manual
// mode. The serial protocol requires a status request (T) before any
// other command is honored.
package linkamt95
