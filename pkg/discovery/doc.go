// Package discovery announces running simulations with mDNS/DNS-SD.
//
// Every listening endpoint of a simulation is advertised as one
// _plankton._tcp service. The instance name is "<device>-<protocol>-<port>".
// TXT records carry:
//
//	device    registry name of the simulated device
//	protocol  adapter protocol ("stream") or "jsonrpc" for the control server
//	setup     setup the device was started with (optional)
//	version   simulator version (optional)
//
// Browse finds these services again, merging the addresses a service is
// seen with on several interfaces.
package discovery
