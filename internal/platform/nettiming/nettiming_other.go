//go:build !linux

package nettiming

// NewSampler returns the platform Sampler: on Linux this reads TCP_INFO via
// getsockopt, on other platforms it's a no-op
func NewSampler() Sampler { return noopSampler{} }
