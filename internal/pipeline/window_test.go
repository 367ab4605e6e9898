package pipeline

import (
	"testing"
	"time"
)

func TestPlanWindowsCoversLookbackContiguously(t *testing.T) {
	now := time.Date(2024, 3, 15, 13, 45, 0, 0, time.UTC)
	windows := PlanWindows(now, 84, 28, true)

	if len(windows) != 3 {
		t.Fatalf("expected 3 sub-windows, got %d", len(windows))
	}

	end := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -84)

	if !windows[0].Start.Equal(start) {
		t.Errorf("first window starts at %v, want %v", windows[0].Start, start)
	}
	if !windows[len(windows)-1].End.Equal(end) {
		t.Errorf("last window ends at %v, want %v", windows[len(windows)-1].End, end)
	}
	for i := 1; i < len(windows); i++ {
		if !windows[i].Start.Equal(windows[i-1].End) {
			t.Errorf("window %d starts at %v, previous ends at %v", i, windows[i].Start, windows[i-1].End)
		}
	}
	for i, w := range windows {
		if w.Days() != 28 {
			t.Errorf("window %d spans %d days, want 28", i, w.Days())
		}
	}
}

func TestPlanWindowsClampsPartialLastWindow(t *testing.T) {
	now := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	windows := PlanWindows(now, 30, 28, true)

	if len(windows) != 2 {
		t.Fatalf("expected 2 sub-windows, got %d", len(windows))
	}
	if windows[0].Days() != 28 || windows[1].Days() != 2 {
		t.Errorf("got spans %d and %d days, want 28 and 2", windows[0].Days(), windows[1].Days())
	}
	if !windows[1].End.Equal(now) {
		t.Errorf("last window ends at %v, want %v", windows[1].End, now)
	}
}

func TestPlanWindowsUnboundedForSnapshotResources(t *testing.T) {
	windows := PlanWindows(time.Now(), 56, 28, false)

	if len(windows) != 1 {
		t.Fatalf("expected single window, got %d", len(windows))
	}
	if !windows[0].Unbounded {
		t.Error("expected the single window to be unbounded")
	}
}
