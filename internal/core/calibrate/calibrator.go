package calibrate

import (
	"context"
	"net/http"
	"time"

	perr "autoreg/internal/platform/errors"
	"autoreg/internal/platform/i18n"
	"autoreg/internal/platform/logger"
	"autoreg/internal/platform/nettiming"
)

const (
	defaultPollInterval = 10 * time.Millisecond
	defaultBudget       = 30 * time.Second
	minPollInterval     = 5 * time.Millisecond
	maxPollInterval     = 15 * time.Millisecond
	tieWindowNs         = int64(1 * time.Millisecond)
	kernelDisagreeRatio = 3
)

// Calibrator measures server_offset and rtt_one_way by second-boundary
// detection against a stable SIS endpoint's Date header (spec.md §4.1).
type Calibrator struct {
	Endpoint     string
	HTTPClient   *http.Client
	PollInterval time.Duration
	Budget       time.Duration
	History      *History
	Sampler      nettiming.Sampler

	// Now/Sleep are a test seam (see testkit.Swap); nil uses the real clock.
	Now   func() time.Time
	Sleep func(time.Duration)
}

func (c *Calibrator) endpoint() string { return c.Endpoint }

func (c *Calibrator) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Calibrator) pollInterval() time.Duration {
	switch {
	case c.PollInterval < minPollInterval:
		return defaultPollInterval
	case c.PollInterval > maxPollInterval:
		return maxPollInterval
	default:
		return c.PollInterval
	}
}

func (c *Calibrator) budget() time.Duration {
	if c.Budget <= 0 {
		return defaultBudget
	}
	return c.Budget
}

func (c *Calibrator) history() *History {
	if c.History == nil {
		c.History = NewHistory()
	}
	return c.History
}

func (c *Calibrator) sampler() nettiming.Sampler {
	if c.Sampler == nil {
		return nettiming.NewSampler()
	}
	return c.Sampler
}

func (c *Calibrator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Calibrator) sleep(d time.Duration) {
	if c.Sleep != nil {
		c.Sleep(d)
		return
	}
	time.Sleep(d)
}

// Calibrate runs second-boundary detection against Endpoint for up to
// Budget, aggregating transitions by the best-sample-pool rule, and returns
// the resulting offset estimate tagged with source.
func (c *Calibrator) Calibrate(ctx context.Context, token string, source Source) (Result, error) {
	log := logger.Named("calibrate")
	key := TokenKey(token)
	deadline := c.now().Add(c.budget())
	poll := c.pollInterval()

	var prev *probeSample
	var best *Sample

	for c.now().Before(deadline) {
		select {
		case <-ctx.Done():
			return Result{}, perr.Wrapf(ctx.Err(), perr.ErrorCodeCancelled, "calibration cancelled")
		default:
		}

		cur, kernelSnap, kernelOK, err := c.probeOnce(ctx)
		if err != nil {
			log.Warn().Err(err).Msg(i18n.Message("calibrating.probe_failed"))
			c.sleep(poll)
			continue
		}
		if cur.recv.Before(cur.sent) {
			// I5: apparent clock regression discards the sample entirely
			log.Warn().Msg(i18n.Message("calibrating.clock_regression"))
			prev = nil
			c.sleep(poll)
			continue
		}

		if prev != nil && cur.serverSeconds == prev.serverSeconds+1 {
			sample := buildSample(*prev, cur, kernelSnap, kernelOK, source)
			if kernelDisagrees(sample) {
				log.Warn().
					Dur("userspace_rtt", sample.RTTFull).
					Dur("kernel_rtt", sample.KernelRTT).
					Msg(i18n.Message("calibrating.kernel_rtt_disagreement"))
			} else if best == nil || betterSample(sample, *best) {
				best = &sample
			}
		}
		prev = &cur
		c.sleep(poll)
	}

	if best == nil {
		if hist, ok := c.history().Best(key); ok {
			return toResult(hist, SourceManual), nil
		}
		return Result{}, perr.Newf(perr.ErrorCodeNoSecondBoundary, i18n.Message("calibrating.no_boundary"))
	}

	c.history().Offer(key, *best)
	if hist, ok := c.history().Best(key); ok && hist.RTTFull <= best.RTTFull {
		return toResult(hist, source), nil
	}
	return toResult(*best, source), nil
}

func buildSample(prev, cur probeSample, kernelSnap nettiming.Snapshot, kernelOK bool, source Source) Sample {
	rttFull := cur.recv.Sub(cur.sent)
	rttOneWay := rttFull / 2
	mid := prev.sent.Add(cur.recv.Sub(prev.sent) / 2)
	serverAtTransitionLocal := mid.Add(-rttOneWay)
	serverWallTime := time.Unix(cur.serverSeconds, 0).UTC()

	return Sample{
		LocalSendMonotonic:   cur.sent,
		LocalRecvMonotonic:   cur.recv,
		RTTFull:              rttFull,
		ServerSecondBoundary: serverWallTime,
		ServerOffset:         serverWallTime.Sub(serverAtTransitionLocal),
		Source:               source,
		AccuracyMs:           float64(rttFull.Microseconds()) / 2000.0,
		KernelRTTOK:          kernelOK,
		KernelRTT:            kernelSnap.RTT,
	}
}

// kernelDisagrees applies the kernel-RTT sanity cross-check: a sample whose
// kernel-observed RTT disagrees with the userspace measurement by more than
// kernelDisagreeRatio is excluded from the best-sample-pool. The kernel
// reading never overrides the userspace one; it can only veto a sample.
func kernelDisagrees(s Sample) bool {
	if !s.KernelRTTOK || s.KernelRTT <= 0 || s.RTTFull <= 0 {
		return false
	}
	ratio := float64(s.RTTFull) / float64(s.KernelRTT)
	if ratio < 1 {
		ratio = 1 / ratio
	}
	return ratio > kernelDisagreeRatio
}

func betterSample(candidate, incumbent Sample) bool {
	delta := candidate.RTTFull - incumbent.RTTFull
	if delta < 0 {
		delta = -delta
	}
	if int64(delta) <= tieWindowNs {
		return candidate.LocalRecvMonotonic.After(incumbent.LocalRecvMonotonic)
	}
	return candidate.RTTFull < incumbent.RTTFull
}

func toResult(s Sample, source Source) Result {
	return Result{
		ServerOffsetMs: float64(s.ServerOffset.Microseconds()) / 1000.0,
		RTTOneWayMs:    float64(s.RTTFull.Microseconds()) / 2000.0,
		RTTFullMs:      float64(s.RTTFull.Microseconds()) / 1000.0,
		AccuracyMs:     s.AccuracyMs,
		Source:         source,
	}
}
