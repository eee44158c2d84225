package modkit

import "testing"

// stub module that satisfies Module and records calls
type stub struct {
	ports any
}

func (s *stub) Ports() any   { return s.ports }
func (s *stub) Name() string { return "" }

// compile-time assertion: stub implements Module
var _ Module = (*stub)(nil)

func TestModule_InterfaceSurface(t *testing.T) {
	t.Parallel()

	m := &stub{ports: 42}
	if got := m.Ports(); got != 42 {
		t.Fatalf("unexpected Ports value: got=%v want=42", got)
	}
}

func TestBuilder_TypeSignatureAndUse(t *testing.T) {
	t.Parallel()

	var b Builder = func(_ Deps) Module {
		return &stub{ports: "ok"}
	}

	m := b(Deps{})
	if m == nil {
		t.Fatal("builder returned nil module")
	}

	if p := m.Ports(); p != "ok" {
		t.Fatalf("unexpected Ports value from built module: got=%v want=ok", p)
	}
}
