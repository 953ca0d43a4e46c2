// Package simulation runs a simulated device.
//
// A Simulation owns the device, its adapters and an optional JSON-RPC
// control server. Start runs a cycle loop on the calling goroutine: the
// adapters answer pending requests for up to the cycle delay, the control
// server handles queued calls, and then the device is advanced by the
// elapsed real time multiplied by the speed. Because adapters and the
// control server only touch the device from inside the loop, devices need
// no locking of their own.
//
// The control server exposes two objects, "device" with the device
// parameters and its state, and "simulation" with the loop settings and
// lifecycle methods.
package simulation
