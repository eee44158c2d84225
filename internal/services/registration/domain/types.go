package domain

import "time"

// Config is the façade-facing registration configuration (spec.md §3).
// TargetZone is an IANA zone name rather than a *time.Location so this
// package stays free of internal/core imports; the service resolves it.
type Config struct {
	Token string

	ECRN []string
	SCRN []string

	TargetHour   int
	TargetMinute int
	TargetSecond int
	TargetZone   string

	MaxAttempts          int
	RetryIntervalSeconds float64
	SafetyBufferSeconds  float64

	DryRun bool
}

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

// CRNResult is the cumulative, latest-known state of one CRN.
type CRNResult struct {
	CRN        string
	Status     string
	ResultCode string
	UpdatedAt  time.Time
}

// State is the broadcast snapshot returned by Snapshot. LastCalibration and
// TriggerMonotonic are carried through so a reconnecting subscriber can
// recover them from Snapshot alone, without having observed the live
// calibration/waiting events it missed (spec.md §4.6).
type State struct {
	RunID            string
	Phase            Phase
	Running          bool
	CurrentAttempt   int
	MaxAttempts      int
	PerCRN           map[string]CRNResult
	LastCalibration  *CalibrationPayload
	CountdownSeconds float64
	TriggerMonotonic time.Time
	DoneReason       DoneReason
}

// CalibrationPayload mirrors the engine's last calibration result.
type CalibrationPayload struct {
	ServerOffsetMs float64
	RTTOneWayMs    float64
	RTTFullMs      float64
	AccuracyMs     float64
	Source         string
}

// Event is one item on a run's event stream (spec.md §4.6).
type Event struct {
	ID        string
	RunID     string
	Kind      string
	Timestamp int64

	Message          string
	Level            string
	Phase            string
	CountdownSeconds float64
	PerCRN           map[string]CRNResult
	Calibration      *CalibrationPayload
}
