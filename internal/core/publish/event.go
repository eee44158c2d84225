// Package publish broadcasts engine lifecycle events to any number of
// subscribers in publish order, without letting a slow subscriber block the
// engine (spec.md §4.6).
package publish

import "autoreg/internal/core/attempt"

// Kind identifies the shape of an Event's payload.
type Kind string

const (
	KindLog         Kind = "log"
	KindState       Kind = "state"
	KindCountdown   Kind = "countdown"
	KindCRNUpdate   Kind = "crn_update"
	KindCalibration Kind = "calibration"
	KindDone        Kind = "done"
)

// Level is the severity of a KindLog event.
type Level string

const (
	LevelInfo Level = "info"
	LevelWarn Level = "warn"
)

// Event is one totally-ordered item on a run's event stream. Exactly one of
// the payload fields is populated, selected by Kind.
type Event struct {
	ID        string `json:"id"`
	RunID     string `json:"runId"`
	Kind      Kind   `json:"kind"`
	Timestamp int64  `json:"timestamp"`

	Message          string               `json:"message,omitempty"`
	Level            Level                `json:"level,omitempty"`
	Phase            string               `json:"phase,omitempty"`
	CountdownSeconds float64              `json:"countdownSeconds,omitempty"`
	PerCRN           map[string]attempt.CRNResult `json:"perCrn,omitempty"`
	Calibration      *CalibrationPayload  `json:"calibration,omitempty"`
}

// CalibrationPayload mirrors calibrate.Result without importing it directly,
// so publish stays a leaf package consumable by both core and façade code.
type CalibrationPayload struct {
	ServerOffsetMs float64 `json:"serverOffsetMs"`
	RTTOneWayMs    float64 `json:"rttOneWayMs"`
	RTTFullMs      float64 `json:"rttFullMs"`
	AccuracyMs     float64 `json:"accuracyMs"`
	Source         string  `json:"source"`
}
