// Package metrics exports simulator counters in the Prometheus text format.
//
// Metrics implements log.Logger, so it is attached next to the event file
// logger and counts the requests and state changes it sees. The simulation
// loop pushes its own counters with Observe.
package metrics
