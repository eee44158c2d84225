// Package attempt implements the registration attempt loop: it sends
// pre-built requests under debounce rules, classifies per-CRN responses,
// and converges the working set to a terminal outcome (spec.md §4.4, §4.5).
package attempt

import "time"

// Status is the terminal/non-terminal classification of one CRN's latest
// result, derived from the SIS response code table in spec.md §4.5.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPending         Status = "pending"
	StatusAlreadyEnrolled Status = "already_enrolled"
	StatusFull            Status = "full"
	StatusConflict        Status = "conflict"
	StatusDebounce        Status = "debounce"
	StatusUpgrade         Status = "upgrade"
	StatusDropped         Status = "dropped"
	StatusError           Status = "error"
)

// Terminal reports whether s removes its CRN from the working set under the
// default policy. Full is terminal by default; FullNonTerminal in Policy
// opts a caller into treating it as retryable instead.
func (s Status) Terminal(fullNonTerminal bool) bool {
	switch s {
	case StatusSuccess, StatusAlreadyEnrolled, StatusConflict, StatusUpgrade, StatusDropped:
		return true
	case StatusFull:
		return !fullNonTerminal
	default:
		return false
	}
}

// CRNResult is the cumulative, latest-known state of one CRN.
type CRNResult struct {
	CRN        string `json:"crn"`
	Status     Status `json:"status"`
	ResultCode string `json:"resultCode,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Policy governs pacing and terminal-status rules for one Run (spec.md §4.4,
// §4.5, invariant I1).
type Policy struct {
	// MaxAttempts bounds the outer loop; must be in [1, 300] (B-range, §3).
	MaxAttempts int
	// RetryInterval is the steady-state pacing floor; clamped to >= 3s at
	// configuration time (I1) by whoever builds the Policy.
	RetryInterval time.Duration
	// RetryIntervalMax bounds adaptive back-off on HTTP 429.
	RetryIntervalMax time.Duration
	// FullNonTerminal opts into treating a Full response as retryable.
	FullNonTerminal bool
	// RTTFull is the most recent full round-trip estimate, used to pace the
	// WindowClosed burst-mode exception at rtt_full * 0.8.
	RTTFull time.Duration
}

// AttemptRecord describes one outer-loop iteration's request/response.
type AttemptRecord struct {
	Index      int
	SentAt     time.Time
	RecvAt     time.Time
	HTTPStatus int
	Err        error
	Debounced  bool
}

// AttemptSummary is the Run contract's return value (spec.md §4.4).
type AttemptSummary struct {
	Outcome    Outcome
	Attempts   []AttemptRecord
	PerCRN     map[string]CRNResult
	Err        error
}

// Outcome is the terminal reason the outer loop stopped.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeBudgetExhausted Outcome = "budget_exhausted"
	OutcomeCancelled       Outcome = "cancelled"
	OutcomeTokenInvalid    Outcome = "token_invalid"
)
