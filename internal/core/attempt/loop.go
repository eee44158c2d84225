package attempt

import (
	"context"
	"time"

	"autoreg/internal/adapters/sis"
	perr "autoreg/internal/platform/errors"
	"autoreg/internal/platform/i18n"
	"autoreg/internal/platform/logger"
)

// burstMaxAttempts caps how many of the leading attempts may use the
// WindowClosed burst-mode pacing exception (spec.md §4.4).
const burstMaxAttempts = 5

// burstPacingFactor scales RTTFull for burst-mode pacing (rtt_full * 0.8).
const burstPacingFactor = 0.8

// Register is the transport seam Run dispatches attempts through; satisfied
// by *sis.Client in production and faked in tests.
type Register interface {
	Register(ctx context.Context, prepared *sis.PreparedRequest) (*sis.RegisterResponse, int, error)
}

// Rebuild is the request-building seam; satisfied by *request.Builder.
type Rebuild interface {
	Build(ecrn, scrn []string) (*sis.PreparedRequest, error)
}

// Emitter receives the per-CRN cumulative map after every attempt and the
// final map on terminal convergence (spec.md §4.6 crn_update/done events).
// Engine wires CRNUpdate to the event publisher and uses Done for metrics
// only, publishing the done event itself; nil is a valid no-op.
type Emitter interface {
	CRNUpdate(per map[string]CRNResult)
	Done(per map[string]CRNResult)
}

// Loop runs the outer attempt loop against one working set of CRNs.
type Loop struct {
	Client  Register
	Builder Rebuild
	Emitter Emitter

	// OnAttempt, if set, is called with the 1-based attempt number at the
	// start of every iteration, so a caller (engine.Engine) can keep its
	// own state's current_attempt current without Loop needing to know
	// about that state directly (spec.md §3 "Engine state").
	OnAttempt func(attemptNumber int)

	Now   func() time.Time
	Sleep func(time.Duration)
}

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Loop) sleep(d time.Duration) {
	if l.Sleep != nil {
		l.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (l *Loop) onAttempt(attemptNumber int) {
	if l.OnAttempt != nil {
		l.OnAttempt(attemptNumber)
	}
}

// Run executes the outer loop described in spec.md §4.4 until the working
// set converges, the attempt budget is exhausted, the token is rejected, or
// ctx/cancelled signals a stop.
func (l *Loop) Run(ctx context.Context, ecrnSet, scrnSet []string, policy Policy, cancelled func() bool) AttemptSummary {
	log := logger.Named("attempt")

	working := make(map[string]bool, len(ecrnSet))
	for _, c := range ecrnSet {
		working[c] = true
	}
	dropping := make(map[string]bool, len(scrnSet))
	for _, c := range scrnSet {
		dropping[c] = true
	}
	perCRN := make(map[string]CRNResult, len(working)+len(dropping))

	var records []AttemptRecord
	var lastSend time.Time
	rateLimitStreak := 0

	finish := func(outcome Outcome, err error) AttemptSummary {
		if l.Emitter != nil {
			l.Emitter.Done(snapshot(perCRN))
		}
		return AttemptSummary{Outcome: outcome, Attempts: records, PerCRN: perCRN, Err: err}
	}

	for i := 0; i < policy.MaxAttempts; i++ {
		if cancelled() || ctx.Err() != nil {
			return finish(OutcomeCancelled, perr.Newf(perr.ErrorCodeCancelled, i18n.Message("done.cancelled")))
		}
		if len(working) == 0 && len(dropping) == 0 {
			return finish(OutcomeSuccess, nil)
		}
		l.onAttempt(i + 1)

		pending := func() (e, s []string) {
			for c := range working {
				e = append(e, c)
			}
			for c := range dropping {
				s = append(s, c)
			}
			return
		}
		workingECRN, workingSCRN := pending()

		prepared, err := l.Builder.Build(workingECRN, workingSCRN)
		if err != nil {
			return finish(OutcomeBudgetExhausted, err)
		}

		sentAt := l.now()
		resp, status, sendErr := l.Client.Register(ctx, prepared)
		recvAt := l.now()
		lastSend = sentAt

		rec := AttemptRecord{Index: i, SentAt: sentAt, RecvAt: recvAt, HTTPStatus: status, Err: sendErr}

		if sendErr != nil {
			if perr.IsCode(sendErr, perr.ErrorCodeTokenInvalid) {
				records = append(records, rec)
				return finish(OutcomeTokenInvalid, sendErr)
			}
			records = append(records, rec)
			log.Warn().Err(sendErr).Int("attempt", i).Msg(i18n.Message("registering.attempt"))
			if perr.IsCode(sendErr, perr.ErrorCodeTooManyRequests) {
				rateLimitStreak++
			} else {
				rateLimitStreak = 0
			}
			l.waitNextAttempt(ctx, policy, sentAt, false, rateLimitStreak, cancelled)
			continue
		}
		rateLimitStreak = 0

		debounced := isDebounced(resp)
		rec.Debounced = debounced
		records = append(records, rec)

		statuses := classifyResponse(resp)
		now := l.now()
		for crn, st := range statuses {
			perCRN[crn] = CRNResult{CRN: crn, Status: st, UpdatedAt: now}
			if st.Terminal(policy.FullNonTerminal) {
				delete(working, crn)
				delete(dropping, crn)
			}
		}
		if l.Emitter != nil {
			l.Emitter.CRNUpdate(snapshot(perCRN))
		}

		if len(working) == 0 && len(dropping) == 0 {
			return finish(OutcomeSuccess, nil)
		}

		burstEligible := i < burstMaxAttempts && isWindowClosed(resp) && !debounced
		l.waitNextAttempt(ctx, policy, lastSend, burstEligible, 0, cancelled)
	}

	return finish(OutcomeBudgetExhausted, perr.Newf(perr.ErrorCodeUnavailable, i18n.Message("done.budget_exhausted")))
}

// waitNextAttempt paces the loop per spec.md §4.4/§4.5: steady-state
// pacing observes retry_interval measured from the last send (invariant
// I1); the narrow burst exception paces at rtt_full*0.8 instead, only while
// burstEligible holds. A positive rateLimitStreak doubles the interval per
// consecutive HTTP 429, capped at policy.RetryIntervalMax, per the adaptive
// back-off called for in spec.md §4.5.
func (l *Loop) waitNextAttempt(ctx context.Context, policy Policy, lastSend time.Time, burstEligible bool, rateLimitStreak int, cancelled func() bool) {
	interval := policy.RetryInterval
	if burstEligible && policy.RTTFull > 0 {
		burst := time.Duration(float64(policy.RTTFull) * burstPacingFactor)
		if burst < interval {
			interval = burst
		}
	}
	if rateLimitStreak > 0 {
		scaled := policy.RetryInterval
		for i := 0; i < rateLimitStreak && scaled < policy.RetryIntervalMax; i++ {
			scaled *= 2
		}
		if policy.RetryIntervalMax > 0 && scaled > policy.RetryIntervalMax {
			scaled = policy.RetryIntervalMax
		}
		if scaled > interval {
			interval = scaled
		}
	}
	deadline := lastSend.Add(interval)
	for {
		remaining := deadline.Sub(l.now())
		if remaining <= 0 {
			return
		}
		if cancelled() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		step := remaining
		if step > 100*time.Millisecond {
			step = 100 * time.Millisecond
		}
		l.sleep(step)
	}
}

func snapshot(per map[string]CRNResult) map[string]CRNResult {
	out := make(map[string]CRNResult, len(per))
	for k, v := range per {
		out[k] = v
	}
	return out
}
