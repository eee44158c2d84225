package request

import "testing"

func TestBuilder_ReusesPreparedRequestWhenSetUnchanged(t *testing.T) {
	t.Parallel()

	b := NewBuilder("https://sis.example.edu", "tok")
	first, err := b.Build([]string{"24066", "24067"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := b.Build([]string{"24066", "24067"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatal("expected the cached PreparedRequest to be reused")
	}
}

func TestBuilder_RebuildsWhenWorkingSetShrinks(t *testing.T) {
	t.Parallel()

	b := NewBuilder("https://sis.example.edu", "tok")
	first, err := b.Build([]string{"24066", "24067"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := b.Build([]string{"24066"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first == second {
		t.Fatal("expected a fresh PreparedRequest after the working set changed")
	}
}

func TestFingerprint_OrderIndependent(t *testing.T) {
	t.Parallel()

	if fingerprint([]string{"a", "b"}, nil) != fingerprint([]string{"b", "a"}, nil) {
		t.Fatal("expected fingerprint to be order-independent")
	}
}
