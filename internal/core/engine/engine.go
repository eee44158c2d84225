// Package engine ties the clock calibrator, request builder, firing
// scheduler, attempt loop, and event publisher into the single state
// machine described by spec.md §4.6 and §5: one long-lived worker per run,
// a small thread-safe control surface (Start/Cancel/Reset/Snapshot/
// Subscribe), and at most one run in flight at a time (I3).
package engine

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"autoreg/internal/adapters/sis"
	"autoreg/internal/core/attempt"
	"autoreg/internal/core/calibrate"
	"autoreg/internal/core/publish"
	"autoreg/internal/core/request"
	"autoreg/internal/core/schedule"
	perr "autoreg/internal/platform/errors"
	"autoreg/internal/platform/i18n"
	"autoreg/internal/platform/logger"
	"autoreg/internal/platform/metrics"
)

// recalibrateEvery is how often the waiting phase refreshes calibration
// (spec.md §4.1 "continuous recalibration during the wait phase").
const recalibrateEvery = 30 * time.Second

// finalCalibrationWindow is how long before firing the engine performs one
// last calibration pass (spec.md §4.1 "one final calibration 35-45s before
// firing").
const finalCalibrationWindow = 40 * time.Second

// tokenCheckTimeout bounds the token check (spec.md §5). Calibration probes
// and registration attempts are bounded by the same 5 s through the
// engine's HTTP client timeout, set in New.
const tokenCheckTimeout = 5 * time.Second

// Engine owns all state for one registration run at a time and exposes the
// thread-safe control surface consumed by a façade (spec.md §6).
type Engine struct {
	sisBaseURL string
	httpClient *http.Client

	active atomic.Bool // CAS gate for I3: true while token_check..registering

	mu    sync.Mutex
	state State

	cancelled atomic.Bool // single, lock-free cancel signal (spec.md §5)
	cancelFn  atomic.Pointer[context.CancelFunc]
	wg        sync.WaitGroup

	publisher *publish.Publisher
	registry  atomic.Pointer[metrics.Registry]

	// Now/Sleep is a test seam threaded into every timing-sensitive
	// collaborator; nil uses the real clock.
	Now   func() time.Time
	Sleep func(time.Duration)
}

// New constructs an Engine targeting sisBaseURL, with a connection pool
// kept exclusively for this engine's own tasks (spec.md §5 "Shared
// resources"). New opens no connection; the pool is warmed by the token
// check and calibration probes that precede firing.
func New(sisBaseURL string) *Engine {
	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Engine{
		sisBaseURL: sisBaseURL,
		httpClient: &http.Client{Transport: transport, Timeout: 5 * time.Second},
		publisher:  publish.NewPublisher(),
		state:      State{Phase: PhaseIdle},
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) sleep(d time.Duration) {
	if e.Sleep != nil {
		e.Sleep(d)
		return
	}
	time.Sleep(d)
}

// Subscribe registers a new event subscriber (spec.md §6).
func (e *Engine) Subscribe() (<-chan publish.Event, func()) { return e.publisher.Subscribe() }

// Snapshot returns the current broadcast state (spec.md §6).
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

// Registry returns the active run's metrics registry, or nil before the
// first Start (spec.md §6 EXPANSION "Metrics").
func (e *Engine) Registry() *metrics.Registry { return e.registry.Load() }

// Start validates cfg and, if no run is currently active, spawns the
// control loop and returns its run ID. Concurrent Start calls while a run
// is in flight fail fast with ErrorCodeAlreadyRunning (I3, P6).
func (e *Engine) Start(cfg Config) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if !e.active.CompareAndSwap(false, true) {
		return "", perr.AlreadyRunningf("a registration run is already in progress")
	}

	runID := uuid.NewString()
	e.cancelled.Store(false)
	e.publisher.SetRunID(runID)

	reg := metrics.NewRegistry(runID)
	e.registry.Store(reg)

	e.mu.Lock()
	e.state = State{
		RunID:       runID,
		Phase:       PhaseTokenCheck,
		Running:     true,
		MaxAttempts: cfg.MaxAttempts,
		PerCRN:      make(map[string]attempt.CRNResult),
	}
	e.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancelFn.Store(&cancel)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.active.Store(false)
		defer cancel()
		e.run(runCtx, runID, cfg, reg)
	}()

	return runID, nil
}

// Cancel requests that the active run stop at its next suspension point. It
// both sets the lock-free cancel flag checked by every loop iteration and
// cancels the run's context, so any in-flight network I/O is aborted
// immediately rather than waiting for its own timeout (P7: done observed
// within 500 ms). Returns ErrorCodeNotRunning if no run is active.
func (e *Engine) Cancel() error {
	if !e.active.Load() {
		return perr.NotRunningf("no registration run is in progress")
	}
	e.cancelled.Store(true)
	if cancel := e.cancelFn.Load(); cancel != nil {
		(*cancel)()
	}
	return nil
}

// Reset clears the last run's snapshot back to idle. It fails with
// ErrorCodeAlreadyRunning (StillRunning in spec.md terms) while a run is
// active; callers must Cancel and wait for done first.
func (e *Engine) Reset() error {
	if e.active.Load() {
		return perr.AlreadyRunningf("cannot reset while a run is still in progress")
	}
	e.mu.Lock()
	e.state = State{Phase: PhaseIdle}
	e.mu.Unlock()
	return nil
}

func (e *Engine) isCancelled() bool { return e.cancelled.Load() }

func (e *Engine) setPhase(phase Phase) {
	e.mu.Lock()
	e.state.Phase = phase
	e.mu.Unlock()
	e.publisher.State(string(phase))
}

func (e *Engine) setDone(reason DoneReason, per map[string]attempt.CRNResult) {
	e.mu.Lock()
	e.state.Phase = PhaseDone
	e.state.Running = false
	e.state.DoneReason = reason
	if per != nil {
		e.state.PerCRN = per
	}
	final := e.state.clone().PerCRN
	e.mu.Unlock()
	e.publisher.State(string(PhaseDone))
	e.publisher.Done(final)
}

// run is the single control-loop goroutine for one Start call, carrying
// the run through idle->token_check->calibrating->waiting->registering->
// done (spec.md §4.6).
func (e *Engine) run(ctx context.Context, runID string, cfg Config, reg *metrics.Registry) {
	log := logger.Named("engine").With().Str("run_id", runID).Logger()
	sisClient := sis.NewClient(e.httpClient)

	// token_check
	e.publisher.Log(publish.LevelInfo, i18n.Message("token_check.start"))
	if !cfg.DryRun {
		tokenCtx, cancel := context.WithTimeout(ctx, tokenCheckTimeout)
		err := sisClient.CheckToken(tokenCtx, cfg.SISBaseURL, cfg.Token)
		cancel()
		if err != nil && perr.IsCode(err, perr.ErrorCodeTokenInvalid) {
			e.publisher.Log(publish.LevelWarn, i18n.Message("token_check.invalid"))
			e.setDone(DoneReasonTokenInvalid, nil)
			return
		}
	}
	if e.isCancelled() {
		e.setDone(DoneReasonCancelled, nil)
		return
	}

	// calibrating
	e.setPhase(PhaseCalibrating)
	e.publisher.Log(publish.LevelInfo, i18n.Message("calibrating.start"))
	calibrator := &calibrate.Calibrator{
		Endpoint:   sis.ProbeEndpoint(cfg.SISBaseURL),
		HTTPClient: e.httpClient,
		Now:        e.Now,
		Sleep:      e.Sleep,
	}
	result, err := calibrator.Calibrate(ctx, cfg.Token, calibrate.SourceInitial)
	if err != nil {
		if e.isCancelled() {
			e.setDone(DoneReasonCancelled, nil)
			return
		}
		log.Warn().Err(err).Msg(i18n.Message("calibrating.no_boundary"))
		e.setDone(DoneReasonBudgetExhausted, nil)
		return
	}
	e.recordCalibration(reg, result)
	if e.isCancelled() {
		e.setDone(DoneReasonCancelled, nil)
		return
	}

	// waiting
	e.setPhase(PhaseWaiting)
	e.publisher.Log(publish.LevelInfo, i18n.Message("waiting.start"))
	now := e.now()
	// Re-anchor the resolved wall-clock target on now so targetLocal, and
	// every trigger derived from it, carries now's monotonic reading.
	targetLocal := now.Add(cfg.TargetWallTime(now).Sub(now))
	trigger := schedule.TriggerInstant(targetLocal,
		durationMs(result.ServerOffsetMs), durationMs(result.RTTOneWayMs), cfg.SafetyBuffer())

	e.mu.Lock()
	e.state.TriggerMonotonic = trigger
	e.mu.Unlock()

	result = e.recalibrateWhileWaiting(ctx, calibrator, cfg, reg, &trigger, targetLocal, result)
	if e.isCancelled() {
		e.setDone(DoneReasonCancelled, nil)
		return
	}

	sched := &schedule.Scheduler{Now: e.Now, Sleep: e.Sleep, Countdown: func(remaining time.Duration) {
		e.mu.Lock()
		e.state.CountdownSeconds = remaining.Seconds()
		e.mu.Unlock()
		e.publisher.Countdown(remaining)
	}}
	if err := sched.WaitUntil(ctx, trigger, e.isCancelled); err != nil {
		e.setDone(DoneReasonCancelled, nil)
		return
	}
	if e.isCancelled() {
		e.setDone(DoneReasonCancelled, nil)
		return
	}
	if reg != nil {
		firingErrorMs := float64(e.now().Sub(trigger).Microseconds()) / 1000.0
		reg.FiringErrorMs.Observe(firingErrorMs)
	}

	// registering
	e.setPhase(PhaseRegistering)
	e.publisher.Log(publish.LevelInfo, i18n.Message("registering.start"))

	if cfg.DryRun {
		e.setDone(DoneReasonSuccess, map[string]attempt.CRNResult{})
		return
	}

	builder := request.NewBuilder(cfg.SISBaseURL, cfg.Token)
	loop := &attempt.Loop{
		Client:  sisClient,
		Builder: builder,
		Emitter: &metricsEmitter{pub: e.publisher, reg: reg, seen: make(map[string]attempt.Status)},
		OnAttempt: func(attemptNumber int) {
			e.mu.Lock()
			e.state.CurrentAttempt = attemptNumber
			e.mu.Unlock()
		},
		Now:   e.Now,
		Sleep: e.Sleep,
	}
	policy := attempt.Policy{
		MaxAttempts:      cfg.MaxAttempts,
		RetryInterval:    cfg.RetryInterval(),
		RetryIntervalMax: cfg.RetryInterval() * 4,
		RTTFull:          durationMs(result.RTTFullMs),
	}
	summary := loop.Run(ctx, cfg.ECRN, cfg.SCRN, policy, e.isCancelled)

	switch summary.Outcome {
	case attempt.OutcomeSuccess:
		e.setDone(DoneReasonSuccess, summary.PerCRN)
	case attempt.OutcomeTokenInvalid:
		e.setDone(DoneReasonTokenInvalid, summary.PerCRN)
	case attempt.OutcomeCancelled:
		e.setDone(DoneReasonCancelled, summary.PerCRN)
	default:
		e.publisher.Log(publish.LevelWarn, i18n.Message("done.budget_exhausted"))
		e.setDone(DoneReasonBudgetExhausted, summary.PerCRN)
	}
}

// recalibrateWhileWaiting refreshes the calibration every recalibrateEvery
// and once more inside finalCalibrationWindow before firing, recomputing
// trigger in place each time a better sample arrives (spec.md §4.1).
func (e *Engine) recalibrateWhileWaiting(ctx context.Context, calibrator *calibrate.Calibrator, cfg Config, reg *metrics.Registry, trigger *time.Time, targetLocal time.Time, initial calibrate.Result) calibrate.Result {
	last := initial

	refresh := func(source calibrate.Source) {
		result, err := calibrator.Calibrate(ctx, cfg.Token, source)
		if err != nil {
			return
		}
		last = result
		e.recordCalibration(reg, result)
		e.publisher.Log(publish.LevelInfo, i18n.Message("waiting.recalibrated"))
		*trigger = schedule.TriggerInstant(targetLocal,
			durationMs(result.ServerOffsetMs), durationMs(result.RTTOneWayMs), cfg.SafetyBuffer())
		e.mu.Lock()
		e.state.TriggerMonotonic = *trigger
		e.mu.Unlock()
	}

	// Periodic recalibration every recalibrateEvery while we're still well
	// outside the final-calibration window.
	for trigger.Sub(e.now()) > finalCalibrationWindow {
		wait := trigger.Sub(e.now()) - finalCalibrationWindow
		if wait > recalibrateEvery {
			wait = recalibrateEvery
		}
		if !e.waitOrCancel(ctx, wait) || e.isCancelled() {
			return last
		}
		if trigger.Sub(e.now()) > finalCalibrationWindow {
			refresh(calibrate.SourceAuto)
		}
	}

	// One final calibration pass inside the window (spec.md §4.1).
	if !e.isCancelled() {
		refresh(calibrate.SourceFinal)
	}
	return last
}

// waitOrCancel sleeps up to d in 100ms slices, returning false early if the
// run is cancelled or the context is done.
func (e *Engine) waitOrCancel(ctx context.Context, d time.Duration) bool {
	deadline := e.now().Add(d)
	for {
		remaining := deadline.Sub(e.now())
		if remaining <= 0 {
			return true
		}
		if e.isCancelled() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		default:
		}
		step := remaining
		if step > 100*time.Millisecond {
			step = 100 * time.Millisecond
		}
		e.sleep(step)
	}
}

func (e *Engine) recordCalibration(reg *metrics.Registry, result calibrate.Result) {
	e.mu.Lock()
	r := result
	e.state.LastCalibration = &r
	e.mu.Unlock()

	e.publisher.Calibration(publish.CalibrationPayload{
		ServerOffsetMs: result.ServerOffsetMs,
		RTTOneWayMs:    result.RTTOneWayMs,
		RTTFullMs:      result.RTTFullMs,
		AccuracyMs:     result.AccuracyMs,
		Source:         result.Source.String(),
	})
	if reg != nil {
		reg.CalibrationRTTMs.Observe(result.RTTFullMs)
		reg.CalibrationAccuracyMs.Set(result.AccuracyMs)
	}
}

func durationMs(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// metricsEmitter wraps the publisher so the attempt loop's per-CRN updates
// also drive metrics.Registry.AttemptsTotal, without attempt/publish ever
// importing internal/platform/metrics themselves. It records one increment
// per CRN the first time its status is observed to change, so repeated
// crn_update events for an unchanged status don't double-count. Done only
// records metrics; the done event itself is published by setDone once the
// run's final state is stored.
type metricsEmitter struct {
	pub  *publish.Publisher
	reg  *metrics.Registry
	seen map[string]attempt.Status
}

func (m *metricsEmitter) CRNUpdate(per map[string]attempt.CRNResult) {
	m.record(per)
	m.pub.CRNUpdate(per)
}

func (m *metricsEmitter) Done(per map[string]attempt.CRNResult) {
	m.record(per)
}

func (m *metricsEmitter) record(per map[string]attempt.CRNResult) {
	if m.reg == nil {
		return
	}
	for crn, r := range per {
		if m.seen[crn] == r.Status {
			continue
		}
		m.seen[crn] = r.Status
		m.reg.AttemptsTotal.WithLabelValues(crn, string(r.Status)).Inc()
	}
}
