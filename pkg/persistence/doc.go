// Package persistence stores snapshots of a simulated device so a run can
// continue where the previous one stopped.
//
// A snapshot holds the writable parameters of the device together with the
// setup and the simulated runtime. Snapshots are JSON files.
package persistence
