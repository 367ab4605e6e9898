package models

import "time"

// FlatRow maps normalized column names to scalar values. Values are one of
// string, float64, bool, int64, time.Time or nil.
type FlatRow map[string]any

// Window is a contiguous [Start, End) day range of the extraction plan.
// Unbounded marks the single window used for resources that are not
// date-windowed (full-snapshot reference sets).
type Window struct {
	Start     time.Time
	End       time.Time
	Unbounded bool
}

// Days returns the number of calendar days covered by the window.
func (w Window) Days() int {
	if w.Unbounded {
		return 0
	}
	return int(w.End.Sub(w.Start).Hours() / 24)
}

// Batch is the unit of staging and loading: the rows accumulated between two
// boundaries, owned by exactly one run.
type Batch struct {
	Resource string
	Seq      int
	Rows     []FlatRow
	Window   *Window
}

// ArtifactLocation addresses one staged batch in blob storage.
type ArtifactLocation struct {
	Bucket string
	Key    string
}

// ResourceSpec parameterizes one pipeline instance: where the records come
// from, how they flatten, and where they land.
type ResourceSpec struct {
	// Name is the resource identifier used in staging paths and logs.
	Name string
	// Endpoint is the collection path under the workspace, e.g. "users".
	// Ignored for day-windowed resources, which use the report endpoint.
	Endpoint string
	// DayWindowed selects day-by-day report extraction instead of paging.
	DayWindowed bool
	// Schema is the fixed flat schema for this resource.
	Schema *Schema
	// MergeKeys are the columns identifying one logical entity in the target.
	MergeKeys []string
	// TargetTable is the permanent warehouse table name.
	TargetTable string
}

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	Resource      string
	RowsProcessed int
	BatchesMerged int
	Duration      time.Duration
}
