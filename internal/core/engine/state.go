package engine

import (
	"time"

	"autoreg/internal/core/attempt"
	"autoreg/internal/core/calibrate"
)

// Phase is one node of the engine's state machine (spec.md §4.6).
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseTokenCheck  Phase = "token_check"
	PhaseCalibrating Phase = "calibrating"
	PhaseWaiting     Phase = "waiting"
	PhaseRegistering Phase = "registering"
	PhaseDone        Phase = "done"
)

// DoneReason names why a run reached PhaseDone.
type DoneReason string

const (
	DoneReasonNone            DoneReason = ""
	DoneReasonSuccess         DoneReason = "success"
	DoneReasonTokenInvalid    DoneReason = "token_invalid"
	DoneReasonCancelled       DoneReason = "cancelled"
	DoneReasonBudgetExhausted DoneReason = "budget_exhausted"
)

// State is the broadcast snapshot described in spec.md §3 "Engine state".
type State struct {
	RunID            string
	Phase            Phase
	Running          bool
	CurrentAttempt   int
	MaxAttempts      int
	PerCRN           map[string]attempt.CRNResult
	LastCalibration  *calibrate.Result
	CountdownSeconds float64
	TriggerMonotonic time.Time
	DoneReason       DoneReason
}

// clone returns a deep-enough copy for safe external consumption: the
// PerCRN map is copied so a caller mutating the snapshot never races the
// engine's own map (R2: snapshot round-trips to an identical value).
func (s State) clone() State {
	out := s
	if s.PerCRN != nil {
		out.PerCRN = make(map[string]attempt.CRNResult, len(s.PerCRN))
		for k, v := range s.PerCRN {
			out.PerCRN[k] = v
		}
	}
	return out
}
