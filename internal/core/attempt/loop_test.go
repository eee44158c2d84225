package attempt

import (
	"context"
	"testing"
	"time"

	"autoreg/internal/adapters/sis"
	perr "autoreg/internal/platform/errors"
)

type fakeClient struct {
	responses []*sis.RegisterResponse
	statuses  []int
	errs      []error
	calls     int
}

func (f *fakeClient) Register(ctx context.Context, prepared *sis.PreparedRequest) (*sis.RegisterResponse, int, error) {
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return f.responses[i], f.statuses[i], err
}

type fakeBuilder struct{ calls int }

func (f *fakeBuilder) Build(ecrn, scrn []string) (*sis.PreparedRequest, error) {
	f.calls++
	return &sis.PreparedRequest{Method: "POST", URL: "https://sis.example.edu/x"}, nil
}

type recordingEmitter struct {
	updates []map[string]CRNResult
	done    map[string]CRNResult
}

func (e *recordingEmitter) CRNUpdate(per map[string]CRNResult) { e.updates = append(e.updates, per) }
func (e *recordingEmitter) Done(per map[string]CRNResult)      { e.done = per }

func fakeClock(start time.Time) (*time.Time, func() time.Time, func(time.Duration)) {
	now := start
	nowFn := func() time.Time { return now }
	sleepFn := func(d time.Duration) { now = now.Add(d) }
	return &now, nowFn, sleepFn
}

func TestRun_ConvergesOnImmediateSuccess(t *testing.T) {
	t.Parallel()

	resp := &sis.RegisterResponse{ECRNResultList: []sis.CRNResult{{CRN: "24066", StatusCode: "0"}}}
	client := &fakeClient{responses: []*sis.RegisterResponse{resp}, statuses: []int{200}}
	builder := &fakeBuilder{}
	emitter := &recordingEmitter{}
	_, nowFn, sleepFn := fakeClock(time.Now())

	loop := &Loop{Client: client, Builder: builder, Emitter: emitter, Now: nowFn, Sleep: sleepFn}
	summary := loop.Run(context.Background(), []string{"24066"}, nil, Policy{MaxAttempts: 10, RetryInterval: 3 * time.Second}, func() bool { return false })

	if summary.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %v (err=%v)", summary.Outcome, summary.Err)
	}
	if client.calls != 1 {
		t.Fatalf("expected exactly one attempt, got %d", client.calls)
	}
	if emitter.done["24066"].Status != StatusSuccess {
		t.Fatalf("expected terminal success status, got %v", emitter.done["24066"].Status)
	}
}

func TestRun_PendingCRNRetainedAcrossAttemptsThenConverges(t *testing.T) {
	t.Parallel()

	pending := &sis.RegisterResponse{ECRNResultList: []sis.CRNResult{{CRN: "24066", StatusCode: "WindowClosed"}}}
	success := &sis.RegisterResponse{ECRNResultList: []sis.CRNResult{{CRN: "24066", StatusCode: "0"}}}
	client := &fakeClient{responses: []*sis.RegisterResponse{pending, success}, statuses: []int{200, 200}}
	builder := &fakeBuilder{}
	_, nowFn, sleepFn := fakeClock(time.Now())

	loop := &Loop{Client: client, Builder: builder, Now: nowFn, Sleep: sleepFn}
	summary := loop.Run(context.Background(), []string{"24066"}, nil, Policy{MaxAttempts: 10, RetryInterval: 3 * time.Second, RTTFull: 50 * time.Millisecond}, func() bool { return false })

	if summary.Outcome != OutcomeSuccess {
		t.Fatalf("expected eventual success, got %v", summary.Outcome)
	}
	if client.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", client.calls)
	}
	if builder.calls != 2 {
		t.Fatalf("expected rebuild call per attempt, got %d", builder.calls)
	}
}

func TestRun_TokenInvalidAbortsImmediately(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		responses: []*sis.RegisterResponse{nil},
		statuses:  []int{401},
		errs:      []error{sisTokenInvalid()},
	}
	builder := &fakeBuilder{}
	_, nowFn, sleepFn := fakeClock(time.Now())

	loop := &Loop{Client: client, Builder: builder, Now: nowFn, Sleep: sleepFn}
	summary := loop.Run(context.Background(), []string{"24066"}, nil, Policy{MaxAttempts: 10, RetryInterval: 3 * time.Second}, func() bool { return false })

	if summary.Outcome != OutcomeTokenInvalid {
		t.Fatalf("expected token_invalid outcome, got %v", summary.Outcome)
	}
	if client.calls != 1 {
		t.Fatalf("expected abort after first attempt, got %d calls", client.calls)
	}
}

func TestRun_BudgetExhaustedWhenNoConvergence(t *testing.T) {
	t.Parallel()

	pending := &sis.RegisterResponse{ECRNResultList: []sis.CRNResult{{CRN: "24066", StatusCode: "Full"}}}
	client := &fakeClient{responses: []*sis.RegisterResponse{pending}, statuses: []int{200}}
	builder := &fakeBuilder{}
	_, nowFn, sleepFn := fakeClock(time.Now())

	loop := &Loop{Client: client, Builder: builder, Now: nowFn, Sleep: sleepFn}
	summary := loop.Run(context.Background(), []string{"24066"}, nil, Policy{MaxAttempts: 3, RetryInterval: 3 * time.Second, FullNonTerminal: true}, func() bool { return false })

	if summary.Outcome != OutcomeBudgetExhausted {
		t.Fatalf("expected budget_exhausted, got %v", summary.Outcome)
	}
	if client.calls != 3 {
		t.Fatalf("expected MaxAttempts calls, got %d", client.calls)
	}
}

func TestRun_ObservesRetryIntervalFloor(t *testing.T) {
	t.Parallel()

	pending := &sis.RegisterResponse{ECRNResultList: []sis.CRNResult{{CRN: "24066", StatusCode: "Debounce"}}}
	success := &sis.RegisterResponse{ECRNResultList: []sis.CRNResult{{CRN: "24066", StatusCode: "0"}}}
	client := &fakeClient{responses: []*sis.RegisterResponse{pending, success}, statuses: []int{200, 200}}
	builder := &fakeBuilder{}
	_, nowFn, sleepFn := fakeClock(time.Now())

	loop := &Loop{Client: client, Builder: builder, Now: nowFn, Sleep: sleepFn}
	start := nowFn()
	summary := loop.Run(context.Background(), []string{"24066"}, nil, Policy{MaxAttempts: 10, RetryInterval: 3 * time.Second}, func() bool { return false })

	if summary.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %v", summary.Outcome)
	}
	elapsed := nowFn().Sub(start)
	if elapsed < 3*time.Second {
		t.Fatalf("expected at least retry_interval between attempts, elapsed %v", elapsed)
	}
}

func TestRun_CancellationStopsLoop(t *testing.T) {
	t.Parallel()

	pending := &sis.RegisterResponse{ECRNResultList: []sis.CRNResult{{CRN: "24066", StatusCode: "WindowClosed"}}}
	client := &fakeClient{responses: []*sis.RegisterResponse{pending}, statuses: []int{200}}
	builder := &fakeBuilder{}
	_, nowFn, sleepFn := fakeClock(time.Now())

	calls := 0
	loop := &Loop{Client: client, Builder: builder, Now: nowFn, Sleep: sleepFn}
	summary := loop.Run(context.Background(), []string{"24066"}, nil, Policy{MaxAttempts: 10, RetryInterval: 3 * time.Second}, func() bool {
		calls++
		return calls > 1
	})

	if summary.Outcome != OutcomeCancelled {
		t.Fatalf("expected cancelled outcome, got %v", summary.Outcome)
	}
}

func sisTokenInvalid() error {
	return perr.Newf(perr.ErrorCodeTokenInvalid, "token rejected by SIS")
}
