// Package devices assembles the catalog of bundled device simulations.
package devices

import (
	"github.com/plankton-sim/plankton-go/pkg/devices/examplemotor"
	"github.com/plankton-sim/plankton-go/pkg/devices/linkamt95"
	"github.com/plankton-sim/plankton-go/pkg/registry"
)

// Default returns a registry with every bundled device.
func Default() *registry.Registry {
	r := registry.New()
	r.MustRegister(linkamt95.Entry())
	r.MustRegister(examplemotor.Entry())
	return r
}
