package engine

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"autoreg/internal/adapters/sis"
)

// newFakeSIS starts an httptest server that answers both the calibration
// probe/token-check GET (at the host root, per sis.ProbeEndpoint) and the
// registration POST, echoing statusCode back for every CRN in the request.
func newFakeSIS(t *testing.T, statusCode string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc(sis.RegisterPath, func(w http.ResponseWriter, r *http.Request) {
		var req sis.RegisterRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		var resp sis.RegisterResponse
		for _, c := range req.ECRN {
			resp.ECRNResultList = append(resp.ECRNResultList, sis.CRNResult{CRN: c, StatusCode: statusCode})
		}
		for _, c := range req.SCRN {
			resp.SCRNResultList = append(resp.SCRNResultList, sis.CRNResult{CRN: c, StatusCode: statusCode})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newFakeSISUnauthorized always rejects the root probe/token-check GET,
// used for the token_check phase's invalid-token path.
func newFakeSISUnauthorized(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func baseConfig(sisURL string, targetMargin time.Duration) Config {
	target := time.Now().UTC().Add(targetMargin)
	return Config{
		Token:                "test-token",
		ECRN:                 []string{"54321"},
		TargetHour:           target.Hour(),
		TargetMinute:         target.Minute(),
		TargetSecond:         target.Second(),
		TargetZone:           time.UTC,
		MaxAttempts:          5,
		RetryIntervalSeconds: 3,
		SafetyBufferSeconds:  0,
		SISBaseURL:           sisURL,
	}
}

func awaitDone(t *testing.T, e *Engine, timeout time.Duration) State {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s := e.Snapshot()
		if s.Phase == PhaseDone {
			return s
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run did not reach done within %v (last phase %q)", timeout, e.Snapshot().Phase)
	return State{}
}

func TestEngine_HappyPath_ConvergesToSuccess(t *testing.T) {
	t.Parallel()

	srv := newFakeSIS(t, "0")
	e := New(srv.URL)

	cfg := baseConfig(srv.URL, 5*time.Second)
	runID, err := e.Start(cfg)
	if err != nil {
		t.Fatalf("unexpected Start error: %v", err)
	}
	if runID == "" {
		t.Fatal("expected non-empty run ID")
	}

	final := awaitDone(t, e, 20*time.Second)
	if final.DoneReason != DoneReasonSuccess {
		t.Fatalf("expected DoneReasonSuccess, got %q", final.DoneReason)
	}
	if final.RunID != runID {
		t.Fatalf("expected snapshot RunID %q, got %q", runID, final.RunID)
	}
	result, ok := final.PerCRN["54321"]
	if !ok {
		t.Fatal("expected a per-CRN result for 54321")
	}
	if result.Status != "success" {
		t.Fatalf("expected success status, got %q", result.Status)
	}
}

func TestEngine_InvalidToken_EndsTokenCheckPhaseImmediately(t *testing.T) {
	t.Parallel()

	srv := newFakeSISUnauthorized(t)
	e := New(srv.URL)

	cfg := baseConfig(srv.URL, time.Hour)
	if _, err := e.Start(cfg); err != nil {
		t.Fatalf("unexpected Start error: %v", err)
	}

	final := awaitDone(t, e, 5*time.Second)
	if final.DoneReason != DoneReasonTokenInvalid {
		t.Fatalf("expected DoneReasonTokenInvalid, got %q", final.DoneReason)
	}
}

func TestEngine_Cancel_StopsRunWithinBudget(t *testing.T) {
	t.Parallel()

	srv := newFakeSIS(t, "0")
	e := New(srv.URL)

	// Far-future target so the run is still in token_check/calibrating when
	// Cancel is issued, never anywhere near firing.
	cfg := baseConfig(srv.URL, time.Hour)
	if _, err := e.Start(cfg); err != nil {
		t.Fatalf("unexpected Start error: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	cancelledAt := time.Now()
	if err := e.Cancel(); err != nil {
		t.Fatalf("unexpected Cancel error: %v", err)
	}

	final := awaitDone(t, e, 2*time.Second)
	elapsed := time.Since(cancelledAt)
	if elapsed > 500*time.Millisecond {
		t.Fatalf("expected done within 500ms of Cancel (P7), took %v", elapsed)
	}
	if final.DoneReason != DoneReasonCancelled {
		t.Fatalf("expected DoneReasonCancelled, got %q", final.DoneReason)
	}
}

func TestEngine_Start_WhileActive_ReturnsAlreadyRunning(t *testing.T) {
	t.Parallel()

	srv := newFakeSIS(t, "0")
	e := New(srv.URL)

	cfg := baseConfig(srv.URL, time.Hour)
	if _, err := e.Start(cfg); err != nil {
		t.Fatalf("unexpected first Start error: %v", err)
	}
	defer func() {
		_ = e.Cancel()
		awaitDone(t, e, 2*time.Second)
	}()

	if _, err := e.Start(cfg); err == nil {
		t.Fatal("expected second Start to fail while a run is active")
	}
}

func TestEngine_Reset_FailsWhileActive_SucceedsAfterDone(t *testing.T) {
	t.Parallel()

	srv := newFakeSIS(t, "0")
	e := New(srv.URL)

	cfg := baseConfig(srv.URL, time.Hour)
	if _, err := e.Start(cfg); err != nil {
		t.Fatalf("unexpected Start error: %v", err)
	}

	if err := e.Reset(); err == nil {
		t.Fatal("expected Reset to fail while a run is active")
	}

	if err := e.Cancel(); err != nil {
		t.Fatalf("unexpected Cancel error: %v", err)
	}
	awaitDone(t, e, 2*time.Second)

	if err := e.Reset(); err != nil {
		t.Fatalf("unexpected Reset error after done: %v", err)
	}
	if got := e.Snapshot().Phase; got != PhaseIdle {
		t.Fatalf("expected idle phase after Reset, got %q", got)
	}
}

func TestEngine_Subscribe_ReceivesDoneEvent(t *testing.T) {
	t.Parallel()

	srv := newFakeSIS(t, "0")
	e := New(srv.URL)
	ch, unsubscribe := e.Subscribe()
	defer unsubscribe()

	cfg := baseConfig(srv.URL, 5*time.Second)
	if _, err := e.Start(cfg); err != nil {
		t.Fatalf("unexpected Start error: %v", err)
	}

	deadline := time.After(20 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == "done" {
				return
			}
		case <-deadline:
			t.Fatal("expected a done event before the deadline")
		}
	}
}
