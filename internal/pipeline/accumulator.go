package pipeline

import "github.com/pmichalski/clocksync/pkg/models"

// Accumulator buffers flattened rows and emits a completed Batch whenever a
// row-count or sub-window boundary is crossed. At most one batch of rows is
// held in memory at a time.
type Accumulator struct {
	resource    string
	limit       int
	windowEvery int

	rows    []models.FlatRow
	windows int
	seq     int
	current *models.Window
}

// NewAccumulator creates an accumulator flushing every limit rows, or every
// windowEvery completed sub-windows, whichever comes first. windowEvery <= 0
// disables window-boundary flushing.
func NewAccumulator(resource string, limit, windowEvery int) *Accumulator {
	if limit <= 0 {
		limit = 5000
	}
	return &Accumulator{resource: resource, limit: limit, windowEvery: windowEvery}
}

// BeginWindow records the sub-window the next rows belong to.
func (a *Accumulator) BeginWindow(win models.Window) {
	w := win
	a.current = &w
}

// Accept appends a row and returns a completed batch when the row-count
// threshold is reached, nil otherwise.
func (a *Accumulator) Accept(row models.FlatRow) *models.Batch {
	a.rows = append(a.rows, row)
	if len(a.rows) >= a.limit {
		return a.emit()
	}
	return nil
}

// EndWindow marks the current sub-window as fully extracted and flushes if
// the window-count threshold is reached.
func (a *Accumulator) EndWindow() *models.Batch {
	a.windows++
	if a.windowEvery > 0 && a.windows%a.windowEvery == 0 && len(a.rows) > 0 {
		return a.emit()
	}
	return nil
}

// Flush returns any buffered remainder at extraction end. A partial final
// batch is never dropped.
func (a *Accumulator) Flush() *models.Batch {
	if len(a.rows) == 0 {
		return nil
	}
	return a.emit()
}

func (a *Accumulator) emit() *models.Batch {
	batch := &models.Batch{
		Resource: a.resource,
		Seq:      a.seq,
		Rows:     a.rows,
		Window:   a.current,
	}
	a.seq++
	a.rows = nil
	return batch
}
