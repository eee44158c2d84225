package service

import (
	"autoreg/internal/core/attempt"
	"autoreg/internal/core/calibrate"
	"autoreg/internal/core/engine"
	"autoreg/internal/core/publish"
	"autoreg/internal/services/registration/domain"
)

func toDomainPerCRN(in map[string]attempt.CRNResult) map[string]domain.CRNResult {
	if in == nil {
		return nil
	}
	out := make(map[string]domain.CRNResult, len(in))
	for k, v := range in {
		out[k] = domain.CRNResult{
			CRN:        v.CRN,
			Status:     string(v.Status),
			ResultCode: v.ResultCode,
			UpdatedAt:  v.UpdatedAt,
		}
	}
	return out
}

func toDomainState(s engine.State) domain.State {
	return domain.State{
		RunID:            s.RunID,
		Phase:            domain.Phase(s.Phase),
		Running:          s.Running,
		CurrentAttempt:   s.CurrentAttempt,
		MaxAttempts:      s.MaxAttempts,
		PerCRN:           toDomainPerCRN(s.PerCRN),
		LastCalibration:  toDomainCalibrationResult(s.LastCalibration),
		CountdownSeconds: s.CountdownSeconds,
		TriggerMonotonic: s.TriggerMonotonic,
		DoneReason:       domain.DoneReason(s.DoneReason),
	}
}

// toDomainCalibrationResult converts the engine's calibrate.Result (the
// snapshot's last-observed calibration) into the same domain.CalibrationPayload
// shape used for live events, so a façade doesn't need two payload types.
func toDomainCalibrationResult(r *calibrate.Result) *domain.CalibrationPayload {
	if r == nil {
		return nil
	}
	return &domain.CalibrationPayload{
		ServerOffsetMs: r.ServerOffsetMs,
		RTTOneWayMs:    r.RTTOneWayMs,
		RTTFullMs:      r.RTTFullMs,
		AccuracyMs:     r.AccuracyMs,
		Source:         r.Source.String(),
	}
}

func toDomainCalibration(c *publish.CalibrationPayload) *domain.CalibrationPayload {
	if c == nil {
		return nil
	}
	return &domain.CalibrationPayload{
		ServerOffsetMs: c.ServerOffsetMs,
		RTTOneWayMs:    c.RTTOneWayMs,
		RTTFullMs:      c.RTTFullMs,
		AccuracyMs:     c.AccuracyMs,
		Source:         c.Source,
	}
}

func toDomainEvent(e publish.Event) domain.Event {
	return domain.Event{
		ID:               e.ID,
		RunID:            e.RunID,
		Kind:             string(e.Kind),
		Timestamp:        e.Timestamp,
		Message:          e.Message,
		Level:            string(e.Level),
		Phase:            e.Phase,
		CountdownSeconds: e.CountdownSeconds,
		PerCRN:           toDomainPerCRN(e.PerCRN),
		Calibration:      toDomainCalibration(e.Calibration),
	}
}
