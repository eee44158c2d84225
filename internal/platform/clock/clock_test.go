package clock

import (
	"testing"
	"time"
)

func TestPtr(t *testing.T) {
	t.Parallel()

	if Ptr(time.Time{}) != nil {
		t.Fatal("expected nil for zero time")
	}
	now := time.Now()
	p := Ptr(now)
	if p == nil || !p.Equal(now) {
		t.Fatalf("expected pointer to now, got %v", p)
	}
}

func TestNextOccurrence_LaterToday(t *testing.T) {
	t.Parallel()

	loc := time.UTC
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, loc)
	got := NextOccurrence(loc, 14, 0, 0, now)
	want := time.Date(2026, 7, 31, 14, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestNextOccurrence_PastRollsToTomorrow(t *testing.T) {
	t.Parallel()

	loc := time.UTC
	now := time.Date(2026, 7, 31, 15, 0, 0, 0, loc)
	got := NextOccurrence(loc, 14, 0, 0, now)
	want := time.Date(2026, 8, 1, 14, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestNextOccurrence_ExactlyNowResolvesToNow(t *testing.T) {
	t.Parallel()

	loc := time.UTC
	now := time.Date(2026, 7, 31, 14, 0, 0, 0, loc)
	got := NextOccurrence(loc, 14, 0, 0, now)
	want := time.Date(2026, 7, 31, 14, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}
