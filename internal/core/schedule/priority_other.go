//go:build !linux

package schedule

import "autoreg/internal/platform/logger"

// elevateSchedulingPriority has no implementation outside Linux; it's
// always best-effort, never required for correctness (spec.md §9).
func elevateSchedulingPriority(log *logger.Logger) func() {
	log.Warn().Msg("scheduling priority elevation not supported on this platform")
	return func() {}
}

// elevateTimerResolution has no implementation outside Linux
func elevateTimerResolution() func() { return func() {} }
