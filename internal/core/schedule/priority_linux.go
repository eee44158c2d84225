//go:build linux

package schedule

import (
	"autoreg/internal/platform/logger"

	"golang.org/x/sys/unix"
)

// elevateSchedulingPriority lowers this process's nice value (raising its
// scheduling priority) for the lifetime of the final busy-wait. Best-effort:
// failure (typically insufficient privilege) is logged, never fatal, per
// spec.md §9.
func elevateSchedulingPriority(log *logger.Logger) func() {
	const which = unix.PRIO_PROCESS
	orig, err := unix.Getpriority(which, 0)
	if err != nil {
		log.Warn().Err(err).Msg("could not read process priority; leaving as-is")
		return func() {}
	}
	// Getpriority returns 20-nice per the historical syscall convention.
	origNice := 20 - orig

	if err := unix.Setpriority(which, 0, -5); err != nil {
		log.Warn().Err(err).Msg("could not elevate scheduling priority; continuing at current priority")
		return func() {}
	}
	return func() {
		if err := unix.Setpriority(which, 0, origNice); err != nil {
			log.Warn().Err(err).Msg("could not restore scheduling priority")
		}
	}
}

// elevateTimerResolution is a no-op on Linux: the runtime's nanosleep-backed
// timers already operate at sub-millisecond granularity, and this package
// never sleeps inside the final busy-wait window anyway.
func elevateTimerResolution() func() { return func() {} }
