// Package service wraps internal/core/engine.Engine as a domain.Port,
// translating between the façade-facing DTOs and the core's own types
// (spec.md §6, SPEC_FULL.md §2 package layout).
package service

import (
	"context"
	"time"

	"autoreg/internal/core/engine"
	"autoreg/internal/modkit"
	perr "autoreg/internal/platform/errors"
	pstrings "autoreg/internal/platform/strings"
	"autoreg/internal/services/registration/domain"
)

// Config carries the one engine-construction knob owned by this service.
type Config struct {
	SISBaseURL string
}

// Svc implements domain.Port over one long-lived *engine.Engine.
type Svc struct {
	eng        *engine.Engine
	sisBaseURL string
	deps       modkit.Deps
}

// New constructs the registration service. Panics if SISBaseURL is empty,
// matching the teacher's fail-fast-on-missing-dependency convention.
func New(deps modkit.Deps, cfg Config) *Svc {
	cfg.SISBaseURL = pstrings.MustString(cfg.SISBaseURL, "registration service SISBaseURL")
	return &Svc{
		eng:        engine.New(cfg.SISBaseURL),
		sisBaseURL: cfg.SISBaseURL,
		deps:       deps,
	}
}

// Start implements domain.Port.
func (s *Svc) Start(_ context.Context, cfg domain.Config) (string, error) {
	loc, err := time.LoadLocation(cfg.TargetZone)
	if err != nil {
		return "", perr.Configurationf("invalid target timezone %q: %v", cfg.TargetZone, err)
	}
	return s.eng.Start(engine.Config{
		Token:                cfg.Token,
		ECRN:                 cfg.ECRN,
		SCRN:                 cfg.SCRN,
		TargetHour:           cfg.TargetHour,
		TargetMinute:         cfg.TargetMinute,
		TargetSecond:         cfg.TargetSecond,
		TargetZone:           loc,
		MaxAttempts:          cfg.MaxAttempts,
		RetryIntervalSeconds: cfg.RetryIntervalSeconds,
		SafetyBufferSeconds:  cfg.SafetyBufferSeconds,
		DryRun:               cfg.DryRun,
		SISBaseURL:           s.sisBaseURL,
	})
}

// Cancel implements domain.Port.
func (s *Svc) Cancel(_ context.Context) error { return s.eng.Cancel() }

// Reset implements domain.Port.
func (s *Svc) Reset(_ context.Context) error { return s.eng.Reset() }

// Snapshot implements domain.Port.
func (s *Svc) Snapshot(_ context.Context) (domain.State, error) {
	return toDomainState(s.eng.Snapshot()), nil
}

// Subscribe implements domain.Port. The returned channel is owned by this
// call; closing it happens via the returned unsubscribe func, same as the
// underlying publisher's contract.
func (s *Svc) Subscribe(ctx context.Context) (<-chan domain.Event, func(), error) {
	src, unsubscribe := s.eng.Subscribe()
	out := make(chan domain.Event, cap(src))

	go func() {
		defer close(out)
		for {
			select {
			case evt, ok := <-src:
				if !ok {
					return
				}
				select {
				case out <- toDomainEvent(evt):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, unsubscribe, nil
}
