package metrics

import "testing"

func TestNewRegistry_GatherReturnsAllFamilies(t *testing.T) {
	t.Parallel()

	r := NewRegistry("run-1")
	r.AttemptsTotal.WithLabelValues("24066", "success").Inc()
	r.CalibrationRTTMs.Observe(12.5)
	r.CalibrationAccuracyMs.Set(6.25)
	r.FiringErrorMs.Observe(-1.5)

	families, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(families) != 4 {
		t.Fatalf("expected 4 metric families, got %d", len(families))
	}
}

func TestNewRegistry_DistinctRunIDsDoNotCollide(t *testing.T) {
	t.Parallel()

	a := NewRegistry("run-a")
	b := NewRegistry("run-b")
	if a.Gatherer() == b.Gatherer() {
		t.Fatal("expected distinct registries per run")
	}
}
