// Package adapter defines how a simulated device is exposed to clients.
//
// An Adapter speaks one communication protocol on behalf of a device. The
// simulation starts it once, then calls Handle on every cycle; Handle may
// block for up to the cycle delay while it serves requests. Keeping request
// handling inside Handle means every device access happens on the simulation
// goroutine, so device code needs no locking of its own.
//
// Devices publish the protocols they support as Interfaces. A command line
// or test picks one with Select.
package adapter
