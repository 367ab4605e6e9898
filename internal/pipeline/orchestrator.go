package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/pmichalski/clocksync/pkg/logger"
	"github.com/pmichalski/clocksync/pkg/metrics"
	"github.com/pmichalski/clocksync/pkg/models"
)

// State of a pipeline run.
type State string

const (
	StateIdle           State = "idle"
	StateWindowPlanning State = "window_planning"
	StateExtracting     State = "extracting"
	StateAccumulating   State = "accumulating"
	StateStaging        State = "staging"
	StateLoading        State = "loading"
	StateCompleted      State = "completed"
	StateFailed         State = "failed"
)

// Orchestrator wires one resource's source, flattener, stager and loader
// into a run per trigger. Extraction, staging and loading proceed strictly
// sequentially per batch: a batch is fully staged and loaded before the next
// sub-window's extraction resumes.
type Orchestrator struct {
	Spec    models.ResourceSpec
	Source  RecordSource
	Flatten Flattener
	Stager  Stager
	Loader  Loader

	BatchSize       int
	WindowsPerBatch int
	LookbackDays    int
	SubWindowDays   int

	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time

	state State
}

// State returns the run's current state.
func (o *Orchestrator) State() State {
	if o.state == "" {
		return StateIdle
	}
	return o.state
}

// Run executes one full sync for the resource. Any fatal component error
// moves the run to Failed with no further batches processed; a redelivered
// trigger starts a fresh run, which is safe to overlap with a previous
// partial failure because staging paths are deterministic and the merge is
// idempotent per merge key.
func (o *Orchestrator) Run(ctx context.Context) (*models.RunResult, error) {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	start := now()
	result := &models.RunResult{Resource: o.Spec.Name}

	err := o.run(ctx, now, result)
	result.Duration = now().Sub(start)

	if err != nil {
		o.state = StateFailed
		metrics.RunsTotal.WithLabelValues(o.Spec.Name, "failure").Inc()
		logger.Errorf("%s run failed after %d rows, %d batches: %v",
			o.Spec.Name, result.RowsProcessed, result.BatchesMerged, err)
		return result, err
	}

	o.state = StateCompleted
	metrics.RunsTotal.WithLabelValues(o.Spec.Name, "success").Inc()
	metrics.RunDuration.WithLabelValues(o.Spec.Name).Observe(result.Duration.Seconds())
	logger.Infof("%s run completed in %s: %d rows, %d batches merged",
		o.Spec.Name, result.Duration.Round(time.Millisecond), result.RowsProcessed, result.BatchesMerged)
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, now func() time.Time, result *models.RunResult) error {
	o.state = StateWindowPlanning
	windows := PlanWindows(now(), o.LookbackDays, o.SubWindowDays, o.Spec.DayWindowed)
	logger.Infof("%s run planned: %d sub-window(s)", o.Spec.Name, len(windows))

	acc := NewAccumulator(o.Spec.Name, o.BatchSize, o.WindowsPerBatch)

	for _, win := range windows {
		o.state = StateExtracting
		acc.BeginWindow(win)

		err := o.Source.Records(ctx, win, func(record map[string]any) error {
			o.state = StateAccumulating
			row, err := o.Flatten.Flatten(record)
			if err != nil {
				return err
			}
			result.RowsProcessed++
			if batch := acc.Accept(row); batch != nil {
				return o.commit(ctx, batch, result)
			}
			return nil
		})
		if err != nil {
			return err
		}

		if batch := acc.EndWindow(); batch != nil {
			if err := o.commit(ctx, batch, result); err != nil {
				return err
			}
		}
		o.state = StateExtracting
	}

	if batch := acc.Flush(); batch != nil {
		if err := o.commit(ctx, batch, result); err != nil {
			return err
		}
	}
	return nil
}

// commit stages and loads one completed batch. Staging failure halts the run
// before the load; later batches are not executed, preserving strict per-run
// merge ordering.
func (o *Orchestrator) commit(ctx context.Context, batch *models.Batch, result *models.RunResult) error {
	o.state = StateStaging
	loc, err := o.Stager.Stage(ctx, batch)
	if err != nil {
		return fmt.Errorf("batch %d: %w", batch.Seq, err)
	}

	o.state = StateLoading
	if err := o.Loader.Load(ctx, loc, batch); err != nil {
		return fmt.Errorf("batch %d: %w", batch.Seq, err)
	}

	result.BatchesMerged++
	metrics.RowsProcessed.WithLabelValues(o.Spec.Name).Add(float64(len(batch.Rows)))
	metrics.BatchesMerged.WithLabelValues(o.Spec.Name).Inc()
	logger.Infof("%s batch %d merged: %d rows", o.Spec.Name, batch.Seq, len(batch.Rows))

	o.state = StateExtracting
	return nil
}
