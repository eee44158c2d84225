// Package nettiming extracts kernel-level TCP round-trip-time samples for a
// connection, best-effort. It is used only as a cross-check against the
// calibrator's userspace RTT measurement (see calibrate.Sample.KernelRTT):
// it never overrides a userspace sample and is silently unavailable on
// platforms that don't expose TCP_INFO.
package nettiming

import "time"

// Snapshot is the subset of the kernel's tcp_info this package cares about
type Snapshot struct {
	RTT    time.Duration
	RTTVar time.Duration
}

// Sampler reads the current kernel TCP_INFO snapshot for a connection.
// Implementations that cannot support this (non-Linux, or a non-TCP conn)
// return ok=false rather than an error: this is a best-effort cross-check,
// never load-bearing.
type Sampler interface {
	Sample(fd uintptr) (Snapshot, bool)
}

// noopSampler is used on platforms without a TCP_INFO implementation
type noopSampler struct{}

func (noopSampler) Sample(uintptr) (Snapshot, bool) { return Snapshot{}, false }
