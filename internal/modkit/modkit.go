// Package modkit provides module wiring shared by engine-hosting binaries
package modkit

// Module is the common surface for service modules that expose ports for
// cross-module wiring. There is no HTTP surface here: the façade that
// mounts routes over a module's ports lives outside this repository.
type Module interface {
	// Ports returns a module specific port set interface for cross wiring
	Ports() any

	// Name returns the module name
	Name() string
}

// Builder constructs a Module from shared deps and options
type Builder func(Deps) Module
