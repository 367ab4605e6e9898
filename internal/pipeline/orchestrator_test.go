package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pmichalski/clocksync/pkg/models"
)

// fakeSource yields a fixed number of records per window, each carrying the
// window index so tests can trace ordering.
type fakeSource struct {
	perWindow int
	window    int
}

func (s *fakeSource) Records(ctx context.Context, win models.Window, yield func(map[string]any) error) error {
	s.window++
	for i := 0; i < s.perWindow; i++ {
		if err := yield(map[string]any{"id": fmt.Sprintf("w%d-r%d", s.window, i)}); err != nil {
			return err
		}
	}
	return nil
}

type identityFlattener struct{}

func (identityFlattener) Flatten(record map[string]any) (models.FlatRow, error) {
	return models.FlatRow(record), nil
}

// fakeStager records staged batches and can be programmed to fail from a
// given sequence number on.
type fakeStager struct {
	staged  []*models.Batch
	failSeq int
	err     error
}

func (s *fakeStager) Stage(ctx context.Context, batch *models.Batch) (models.ArtifactLocation, error) {
	if s.err != nil && batch.Seq >= s.failSeq {
		return models.ArtifactLocation{}, s.err
	}
	s.staged = append(s.staged, batch)
	return models.ArtifactLocation{Bucket: "staging", Key: fmt.Sprintf("batch_%04d", batch.Seq)}, nil
}

// fakeLoader merges loaded batches into an in-memory target keyed by id.
type fakeLoader struct {
	loaded []int
	target map[string]models.FlatRow
}

func (l *fakeLoader) Load(ctx context.Context, loc models.ArtifactLocation, batch *models.Batch) error {
	if l.target == nil {
		l.target = make(map[string]models.FlatRow)
	}
	for _, row := range batch.Rows {
		l.target[row["id"].(string)] = row
	}
	l.loaded = append(l.loaded, batch.Seq)
	return nil
}

func newTestOrchestrator(src RecordSource, st Stager, ld Loader) *Orchestrator {
	return &Orchestrator{
		Spec:            models.ResourceSpec{Name: "summary", DayWindowed: true},
		Source:          src,
		Flatten:         identityFlattener{},
		Stager:          st,
		Loader:          ld,
		BatchSize:       5,
		WindowsPerBatch: 1,
		LookbackDays:    4,
		SubWindowDays:   2,
		Now:             func() time.Time { return time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC) },
	}
}

func TestRunStagesAndLoadsInOrder(t *testing.T) {
	src := &fakeSource{perWindow: 3}
	st := &fakeStager{}
	ld := &fakeLoader{}
	orch := newTestOrchestrator(src, st, ld)

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// 2 windows of 3 rows with a boundary flush per window
	if result.RowsProcessed != 6 {
		t.Errorf("processed %d rows, want 6", result.RowsProcessed)
	}
	if result.BatchesMerged != 2 {
		t.Errorf("merged %d batches, want 2", result.BatchesMerged)
	}
	if len(st.staged) != 2 || len(ld.loaded) != 2 {
		t.Fatalf("staged %d, loaded %d, want 2 and 2", len(st.staged), len(ld.loaded))
	}
	for i, seq := range ld.loaded {
		if seq != i {
			t.Errorf("load %d applied batch %d, want in-order", i, seq)
		}
	}
	if orch.State() != StateCompleted {
		t.Errorf("final state %q, want %q", orch.State(), StateCompleted)
	}
}

func TestRunFlushesFinalPartialBatch(t *testing.T) {
	src := &fakeSource{perWindow: 3}
	st := &fakeStager{}
	ld := &fakeLoader{}
	orch := newTestOrchestrator(src, st, ld)
	orch.WindowsPerBatch = 0 // row-count flushing only

	if _, err := orch.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// 6 rows at batch size 5: one full batch plus a final remainder of 1
	if len(st.staged) != 2 {
		t.Fatalf("staged %d batches, want 2", len(st.staged))
	}
	if got := len(st.staged[1].Rows); got != 1 {
		t.Errorf("final batch has %d rows, want 1", got)
	}
}

func TestRunHaltsOnStagingFailure(t *testing.T) {
	src := &fakeSource{perWindow: 3}
	stageErr := errors.New("upload refused")
	st := &fakeStager{failSeq: 1, err: stageErr}
	ld := &fakeLoader{}
	orch := newTestOrchestrator(src, st, ld)

	_, err := orch.Run(context.Background())
	if !errors.Is(err, stageErr) {
		t.Fatalf("expected staging error, got %v", err)
	}

	// batch 0 went through; batch 1 failed before its load; nothing after
	if len(ld.loaded) != 1 || ld.loaded[0] != 0 {
		t.Errorf("loads applied: %v, want just batch 0", ld.loaded)
	}
	if orch.State() != StateFailed {
		t.Errorf("final state %q, want %q", orch.State(), StateFailed)
	}
}

func TestRerunAfterPartialFailureConverges(t *testing.T) {
	ld := &fakeLoader{}

	// first run fails after its first batch merged
	failing := newTestOrchestrator(&fakeSource{perWindow: 3}, &fakeStager{failSeq: 1, err: errors.New("down")}, ld)
	if _, err := failing.Run(context.Background()); err == nil {
		t.Fatal("expected first run to fail")
	}
	if len(ld.target) == 0 {
		t.Fatal("first run should have merged its first batch")
	}

	// redelivered trigger: fresh run over the same data
	retry := newTestOrchestrator(&fakeSource{perWindow: 3}, &fakeStager{}, ld)
	if _, err := retry.Run(context.Background()); err != nil {
		t.Fatalf("rerun failed: %v", err)
	}

	if len(ld.target) != 6 {
		t.Errorf("target holds %d rows after rerun, want 6", len(ld.target))
	}

	// a third run changes nothing: same keys, same values
	again := newTestOrchestrator(&fakeSource{perWindow: 3}, &fakeStager{}, ld)
	if _, err := again.Run(context.Background()); err != nil {
		t.Fatalf("third run failed: %v", err)
	}
	if len(ld.target) != 6 {
		t.Errorf("target grew to %d rows on repeat run, want 6", len(ld.target))
	}
}

func TestRunPropagatesFlattenFailure(t *testing.T) {
	src := &fakeSource{perWindow: 1}
	st := &fakeStager{}
	ld := &fakeLoader{}
	orch := newTestOrchestrator(src, st, ld)
	orch.Flatten = failingFlattener{}

	if _, err := orch.Run(context.Background()); err == nil {
		t.Fatal("expected flatten error to fail the run")
	}
	if len(st.staged) != 0 {
		t.Errorf("staged %d batches after flatten failure, want 0", len(st.staged))
	}
}

type failingFlattener struct{}

func (failingFlattener) Flatten(record map[string]any) (models.FlatRow, error) {
	return nil, errors.New("unexpected column")
}
