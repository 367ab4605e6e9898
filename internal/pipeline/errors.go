package pipeline

import "errors"

// Fatal error kinds of a run. Each component wraps one of these with
// context; the orchestrator treats all of them as terminal and processes no
// further batches.
var (
	// ErrSourceUnavailable: a source request exhausted its transport retry
	// budget. Partially fetched data for the failed page or day is discarded.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrSchemaMismatch: a record flattened to a column set that disagrees
	// with the resource's declared schema, signaling a source contract change.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrStagingFailed: the staged-artifact upload exhausted its retries.
	// The batch's load is never attempted.
	ErrStagingFailed = errors.New("staging failed")

	// ErrLoadFailed: the bulk load or merge statement failed. Transient
	// table cleanup is still attempted.
	ErrLoadFailed = errors.New("load failed")
)
