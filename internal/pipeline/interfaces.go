package pipeline

import (
	"context"

	"github.com/pmichalski/clocksync/pkg/models"
)

// RecordSource streams the raw source records of one sub-window, in order.
// The yield callback's error aborts the stream and is returned as-is, so the
// orchestrator can interleave staging and loading mid-stream.
type RecordSource interface {
	Records(ctx context.Context, win models.Window, yield func(map[string]any) error) error
}

// Flattener normalizes one nested source record into the run's fixed flat
// schema.
type Flattener interface {
	Flatten(record map[string]any) (models.FlatRow, error)
}

// Stager persists one batch as a durable staged artifact.
type Stager interface {
	Stage(ctx context.Context, batch *models.Batch) (models.ArtifactLocation, error)
}

// Loader merges one staged batch into the permanent target table.
type Loader interface {
	Load(ctx context.Context, loc models.ArtifactLocation, batch *models.Batch) error
}
