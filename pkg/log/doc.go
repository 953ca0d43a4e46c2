// Package log provides structured event capture for Plankton simulations.
//
// This package defines the Logger interface and Event types for recording
// what happens inside a running simulation: raw frames on the control
// transport, requests and replies handled by protocol adapters, control
// server calls and state changes of the device and the simulation itself.
// It is separate from operational logging (slog); the event log is a
// machine-readable trace intended for debugging device behaviour after the
// fact.
//
// # Basic Usage
//
//	// For development: print events via slog
//	cfg := simulation.Config{Logger: log.NewSlogAdapter(slog.Default())}
//
//	// For later analysis: write a binary event file
//	fl, _ := log.NewFileLogger("/tmp/linkam.plog")
//	defer fl.Close()
//	cfg.Logger = fl
//
//	// Both
//	cfg.Logger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Event Types
//
// Events are captured at several layers:
//   - Transport: raw length-prefixed frames of the control server (FrameEvent)
//   - Adapter: protocol requests and replies, e.g. stream commands (MessageEvent)
//   - Control: JSON-RPC calls to the control server (MessageEvent)
//   - Simulation: device state transitions and simulation lifecycle (StateChangeEvent)
//
// Errors at any layer have a dedicated payload.
//
// # File Format
//
// Event files carry the .plog extension. The first CBOR record is a
// FileHeader naming the format version and the producer; events follow as
// one CBOR record each. FileLogger appends only to files whose header it
// understands, and Reader refuses files without one. The plankton-log tool
// views, filters and exports them.
package log
