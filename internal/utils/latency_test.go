package utils

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentiles(t *testing.T) {
	tracker := NewLatencyTracker(16)
	for _, d := range []time.Duration{
		12 * time.Millisecond,
		48 * time.Millisecond,
		95 * time.Millisecond,
		230 * time.Millisecond,
		870 * time.Millisecond,
	} {
		tracker.Observe(d)
	}

	if tracker.Count() != 5 {
		t.Fatalf("expected 5 samples, got %d", tracker.Count())
	}
	if got := tracker.Percentile(0); got != 12*time.Millisecond {
		t.Fatalf("expected minimum at p0, got %v", got)
	}
	if got := tracker.Percentile(100); got != 870*time.Millisecond {
		t.Fatalf("expected maximum at p100, got %v", got)
	}
	if p95 := tracker.Percentile(95); p95 < 230*time.Millisecond {
		t.Fatalf("expected p95 near the tail, got %v", p95)
	}
}

func TestLatencyTrackerEmptyWindow(t *testing.T) {
	tracker := NewLatencyTracker(4)
	if got := tracker.Percentile(95); got != 0 {
		t.Fatalf("expected zero percentile with no samples, got %v", got)
	}
}

func TestLatencyTrackerEvictsOldestFirst(t *testing.T) {
	tracker := NewLatencyTracker(3)
	for i := 0; i < 10; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}
	if tracker.Count() != 3 {
		t.Fatalf("expected window of 3, got %d", tracker.Count())
	}
	// Only the three most recent samples (7ms, 8ms, 9ms) survive.
	if got := tracker.Percentile(0); got != 7*time.Millisecond {
		t.Fatalf("expected oldest survivor 7ms, got %v", got)
	}
}
