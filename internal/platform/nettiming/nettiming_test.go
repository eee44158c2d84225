package nettiming

import "testing"

func TestNewSampler_NeverPanics(t *testing.T) {
	t.Parallel()

	s := NewSampler()
	snap, ok := s.Sample(^uintptr(0))
	if ok && snap.RTT < 0 {
		t.Fatalf("expected non-negative RTT, got %v", snap.RTT)
	}
}

func TestNoopSampler_AlwaysUnavailable(t *testing.T) {
	t.Parallel()

	var s Sampler = noopSampler{}
	if _, ok := s.Sample(0); ok {
		t.Fatal("expected noopSampler to always report unavailable")
	}
}
