package pipeline

import (
	"time"

	"github.com/pmichalski/clocksync/pkg/models"
)

// PlanWindows splits the lookback period ending at now (midnight UTC,
// exclusive) into contiguous, non-overlapping sub-windows of at most
// spanDays each. Their union covers exactly the lookback period. Resources
// that are not date-windowed get a single unbounded window.
func PlanWindows(now time.Time, lookbackDays, spanDays int, dayWindowed bool) []models.Window {
	if !dayWindowed {
		return []models.Window{{Unbounded: true}}
	}

	end := now.UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -lookbackDays)
	if spanDays <= 0 {
		spanDays = lookbackDays
	}

	var windows []models.Window
	for cur := start; cur.Before(end); {
		next := cur.AddDate(0, 0, spanDays)
		if next.After(end) {
			next = end
		}
		windows = append(windows, models.Window{Start: cur, End: next})
		cur = next
	}
	return windows
}
