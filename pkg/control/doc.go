// Package control exposes objects of a running simulation over JSON-RPC.
//
// Objects are exposed by name. Their fields and getter/setter pairs become
// properties, reachable as "<property>:get" and "<property>:set"; other
// exported methods are called by name. Every object answers ":api" with
// its class name and method list. A Collection groups objects under dotted
// names, so the method "pause" of the object "simulation" is called as
// "simulation.pause" and its API as "simulation:api".
//
// Go names are exposed in snake case: the field CycleDelay becomes the
// property cycle_delay. A `control:"name"` struct tag overrides the name of
// a field, `control:"-"` hides it.
//
// Messages are JSON-RPC 2.0 requests and responses, each carried in a
// length-prefixed frame. The Server only answers requests inside Process,
// which the simulation calls once per cycle.
package control
