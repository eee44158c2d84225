// Package schedule converts a target wall-clock moment, a measured server
// offset, and a one-way latency estimate into a precise local monotonic
// trigger instant, then delivers control to the caller at that instant
// (spec.md §4.3).
package schedule

import (
	"context"
	"time"

	perr "autoreg/internal/platform/errors"
	"autoreg/internal/platform/i18n"
	"autoreg/internal/platform/logger"
)

const (
	busyWaitWindow = 50 * time.Millisecond
	maxCoarseSlice = 100 * time.Millisecond
	countdownEvery = 100 * time.Millisecond // ~10Hz
)

// TriggerInstant computes the local monotonic instant at which the attempt
// loop must dispatch its first request so that the request's first byte
// arrives at the SIS at targetLocal:
//
//	trigger_local = target_local − server_offset − rtt_one_way + safety_buffer
func TriggerInstant(targetLocal time.Time, serverOffset, rttOneWay, safetyBuffer time.Duration) time.Time {
	return targetLocal.Add(-serverOffset).Add(-rttOneWay).Add(safetyBuffer)
}

// Scheduler delivers control at a precise monotonic instant
type Scheduler struct {
	Now      func() time.Time
	Sleep    func(time.Duration)
	Countdown func(remaining time.Duration)
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) sleep(d time.Duration) {
	if s.Sleep != nil {
		s.Sleep(d)
		return
	}
	time.Sleep(d)
}

// WaitUntil blocks until trigger is reached, cancelled reports true, or ctx
// is done, whichever happens first. Within the final busyWaitWindow it
// never sleeps, spinning on the monotonic clock instead, per spec.md §4.3.
func (s *Scheduler) WaitUntil(ctx context.Context, trigger time.Time, cancelled func() bool) error {
	log := logger.Named("schedule")
	lastCountdown := s.now().Add(-countdownEvery)

	for {
		now := s.now()
		remaining := trigger.Sub(now)
		if remaining <= busyWaitWindow {
			break
		}
		if cancelled() {
			return perr.Newf(perr.ErrorCodeCancelled, i18n.Message("done.cancelled"))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if s.Countdown != nil && now.Sub(lastCountdown) >= countdownEvery {
			s.Countdown(remaining)
			lastCountdown = now
		}
		sleepFor := remaining - busyWaitWindow
		if sleepFor > maxCoarseSlice {
			sleepFor = maxCoarseSlice
		}
		if sleepFor < 0 {
			sleepFor = 0
		}
		s.sleep(sleepFor)
	}

	restoreTimer := elevateTimerResolution()
	defer restoreTimer()
	restorePriority := elevateSchedulingPriority(log)
	defer restorePriority()

	for {
		if cancelled() {
			return perr.Newf(perr.ErrorCodeCancelled, i18n.Message("done.cancelled"))
		}
		if !s.now().Before(trigger) {
			return nil
		}
	}
}
