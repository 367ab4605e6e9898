package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/minio/minio-go/v7"

	"github.com/pmichalski/clocksync/internal/pipeline"
	"github.com/pmichalski/clocksync/internal/staging"
	"github.com/pmichalski/clocksync/pkg/logger"
	"github.com/pmichalski/clocksync/pkg/models"
)

// ArtifactReader fetches a staged artifact back from blob storage.
type ArtifactReader interface {
	Fetch(ctx context.Context, loc models.ArtifactLocation) ([]byte, error)
}

// BlobReader reads staged artifacts from the object store.
type BlobReader struct {
	Client *minio.Client
}

func (r *BlobReader) Fetch(ctx context.Context, loc models.ArtifactLocation) ([]byte, error) {
	obj, err := r.Client.GetObject(ctx, loc.Bucket, loc.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// Loader merges staged batches into a permanent target table. Each batch
// lands in its own transient table, which is dropped whether or not the merge
// succeeds, so a failed run leaves no transient tables behind.
type Loader struct {
	DB   *sql.DB
	Blob ArtifactReader
	Spec models.ResourceSpec

	ensured bool
}

func NewLoader(db *sql.DB, blob ArtifactReader, spec models.ResourceSpec) *Loader {
	return &Loader{DB: db, Blob: blob, Spec: spec}
}

// Load applies one staged batch to the target table. The staged artifact is
// the source of truth: rows are read back from blob storage, not from memory,
// so a merge always reflects exactly what was staged.
func (l *Loader) Load(ctx context.Context, loc models.ArtifactLocation, batch *models.Batch) error {
	if err := l.load(ctx, loc, batch); err != nil {
		return fmt.Errorf("%w: %s batch %d: %v", pipeline.ErrLoadFailed, l.Spec.Name, batch.Seq, err)
	}
	return nil
}

func (l *Loader) load(ctx context.Context, loc models.ArtifactLocation, batch *models.Batch) error {
	data, err := l.Blob.Fetch(ctx, loc)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", loc.Key, err)
	}
	rows, err := staging.Decode(data, l.Spec.Schema)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", loc.Key, err)
	}

	if !l.ensured {
		if _, err := l.DB.ExecContext(ctx, EnsureTargetSQL(l.Spec.TargetTable, l.Spec.Schema)); err != nil {
			return fmt.Errorf("ensuring target %s: %w", l.Spec.TargetTable, err)
		}
		l.ensured = true
	}

	transient := TransientName(l.Spec.TargetTable)
	if _, err := l.DB.ExecContext(ctx, CreateTransientSQL(transient, l.Spec.Schema)); err != nil {
		return fmt.Errorf("creating transient %s: %w", transient, err)
	}
	defer func() {
		// the drop must run even when the surrounding context is cancelled
		if _, err := l.DB.ExecContext(context.Background(), DropSQL(transient)); err != nil {
			logger.Warnf("dropping transient %s: %v", transient, err)
		}
	}()

	if err := l.bulkInsert(ctx, transient, rows); err != nil {
		return fmt.Errorf("filling transient %s: %w", transient, err)
	}

	merge := MergeSQL(l.Spec.TargetTable, transient, l.Spec.Schema, l.Spec.MergeKeys)
	if _, err := l.DB.ExecContext(ctx, merge); err != nil {
		return fmt.Errorf("merging into %s: %w", l.Spec.TargetTable, err)
	}
	return nil
}

// bulkInsert streams rows into the transient table with the driver's bulk
// copy, one statement per batch. Row order is preserved in the row sequence
// column.
func (l *Loader) bulkInsert(ctx context.Context, table string, rows []models.FlatRow) error {
	txn, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	columns := append(l.Spec.Schema.Names(), rowSeqColumn)
	stmt, err := txn.PrepareContext(ctx, mssql.CopyIn(table, mssql.BulkOptions{}, columns...))
	if err != nil {
		txn.Rollback()
		return err
	}

	for seq, row := range rows {
		values := make([]any, 0, len(columns))
		for _, col := range l.Spec.Schema.Columns {
			values = append(values, row[col.Name])
		}
		values = append(values, int64(seq))
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			stmt.Close()
			txn.Rollback()
			return err
		}
	}

	// final Exec with no arguments flushes the bulk copy
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		txn.Rollback()
		return err
	}
	if err := stmt.Close(); err != nil {
		txn.Rollback()
		return err
	}
	return txn.Commit()
}
