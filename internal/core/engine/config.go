package engine

import (
	"time"

	"autoreg/internal/platform/clock"
	perr "autoreg/internal/platform/errors"
	"autoreg/internal/platform/i18n"
)

// Config is the engine's immutable-once-started configuration (spec.md §3).
// Field-shape invariants (B1, B2) are enforced via validator tags the same
// way internal/adapters/sis validates its wire types; the cross-field
// invariant (NoCRNs) is checked by hand in Validate.
type Config struct {
	// Token is the opaque bearer credential; never logged, never put in an
	// event payload (I4).
	Token string `validate:"required" json:"-"`

	ECRN []string `validate:"max=12,dive,len=5,numeric" json:"ecrn"`
	SCRN []string `validate:"dive,len=5,numeric" json:"scrn"`

	// TargetHour/Minute/Second and TargetZone describe a civil time-of-day
	// in the SIS's fixed zone; resolved to the next occurrence >= now at
	// Start (B3).
	TargetHour   int            `validate:"min=0,max=23" json:"targetHour"`
	TargetMinute int            `validate:"min=0,max=59" json:"targetMinute"`
	TargetSecond int            `validate:"min=0,max=59" json:"targetSecond"`
	TargetZone   *time.Location `validate:"required" json:"-"`

	MaxAttempts int `validate:"min=1,max=300" json:"maxAttempts"`

	// RetryIntervalSeconds must be >= 3.0; Validate rejects lower values at
	// configuration time (I1, B1).
	RetryIntervalSeconds float64 `validate:"min=3" json:"retryIntervalSeconds"`
	// SafetyBufferSeconds nudges the firing instant slightly late to avoid
	// early-arrival rejection.
	SafetyBufferSeconds float64 `validate:"min=0,max=0.1" json:"safetyBufferSeconds"`

	DryRun bool `json:"dryRun"`

	SISBaseURL string `validate:"required,url" json:"-"`
}

// Validate checks field-shape invariants via the shared validator and the
// one cross-field invariant (at least one CRN) by hand, returning a
// *perr.Error with ErrorCodeConfiguration on failure.
func (c Config) Validate() error {
	if err := i18n.Validate(c); err != nil {
		return err
	}
	if len(c.ECRN) == 0 && len(c.SCRN) == 0 {
		return perr.Configurationf("at least one ECRN or SCRN is required")
	}
	return nil
}

// RetryInterval returns RetryIntervalSeconds as a time.Duration.
func (c Config) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalSeconds * float64(time.Second))
}

// SafetyBuffer returns SafetyBufferSeconds as a time.Duration.
func (c Config) SafetyBuffer() time.Duration {
	return time.Duration(c.SafetyBufferSeconds * float64(time.Second))
}

// TargetWallTime resolves the configured civil time-of-day to the next
// occurrence at or after now, in TargetZone (B3).
func (c Config) TargetWallTime(now time.Time) time.Time {
	return clock.NextOccurrence(c.TargetZone, c.TargetHour, c.TargetMinute, c.TargetSecond, now)
}
