// Package module wires the registration service and exposes its ports.
package module

import (
	"autoreg/internal/modkit"
	"autoreg/internal/services/registration/service"
)

// Module defines the registration module.
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the registration module with its ports. Defaults come
// from the environment (FromConfig); overrides is merged on top for
// CLI-provided values.
func New(deps modkit.Deps, overrides Options) *Module {
	opts := FromConfig(deps.Cfg)
	if overrides.SISBaseURL != "" {
		opts.SISBaseURL = overrides.SISBaseURL
	}

	svc := service.New(deps, service.Config{SISBaseURL: opts.SISBaseURL})

	m := &Module{deps: deps}
	m.ports = Ports{Registration: svc}
	return m
}

// Name returns the module name.
func (m *Module) Name() string { return "registration" }

// Ports returns the module ports (Registration).
func (m *Module) Ports() any { return m.ports }
