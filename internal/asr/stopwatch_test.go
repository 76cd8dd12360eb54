package asr

import (
	"testing"
	"time"
)

func TestStopwatchMeasuresElapsed(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	watch := NewStopwatch()
	watch.clock = func() time.Time { return now }

	watch.Start()
	now = now.Add(2500 * time.Millisecond)
	if got := watch.Stop(); got != 2.5 {
		t.Fatalf("expected 2.5s, got %v", got)
	}

	// A stopped watch is frozen.
	now = now.Add(time.Hour)
	if got := watch.Seconds(); got != 2.5 {
		t.Fatalf("expected frozen reading, got %v", got)
	}
}

func TestStopwatchUnstartedReadsZero(t *testing.T) {
	watch := NewStopwatch()
	if got := watch.Seconds(); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
	if got := watch.Stop(); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}
