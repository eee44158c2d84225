// Package domain defines the public port and DTOs for the registration
// service, consumed by whatever façade (HTTP/WebSocket, CLI) hosts it. It
// never imports internal/core directly, so the core engine can change shape
// without rippling into façade code (spec.md §6 control interface).
package domain

import "context"

// Port is the registration service's control surface, mirroring spec.md §6
// (Start/Cancel/Reset/Snapshot/Subscribe) with a context threaded through
// for façade-side cancellation/tracing, matching the teacher's port style.
type Port interface {
	// Start validates cfg and begins a new run, returning its run ID.
	// Returns an AlreadyRunning error if a run is already in flight (I3).
	Start(ctx context.Context, cfg Config) (runID string, err error)

	// Cancel requests the active run stop at its next suspension point.
	// Returns a NotRunning error if no run is active.
	Cancel(ctx context.Context) error

	// Reset clears the last run's snapshot back to idle. Returns a
	// StillRunning-flavored error while a run is active.
	Reset(ctx context.Context) error

	// Snapshot returns the current broadcast state.
	Snapshot(ctx context.Context) (State, error)

	// Subscribe registers a new event subscriber, returning its stream and
	// an unsubscribe func.
	Subscribe(ctx context.Context) (<-chan Event, func(), error)
}
