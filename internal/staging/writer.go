// Package staging serializes batches to columnar artifacts and uploads them
// to durable blob storage.
package staging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/pmichalski/clocksync/internal/pipeline"
	"github.com/pmichalski/clocksync/pkg/logger"
	"github.com/pmichalski/clocksync/pkg/models"
	"github.com/pmichalski/clocksync/pkg/retry"
)

// Uploader is the put-object surface of the blob store. *minio.Client
// satisfies it.
type Uploader interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Writer stages batches under deterministic keys: re-running with the same
// run date and batch sequence number overwrites rather than duplicates.
type Writer struct {
	Blob    Uploader
	Bucket  string
	Schema  *models.Schema
	RunDate time.Time
	Retry   retry.Policy
}

func NewWriter(blob Uploader, bucket string, schema *models.Schema, runDate time.Time) *Writer {
	return &Writer{
		Blob:    blob,
		Bucket:  bucket,
		Schema:  schema,
		RunDate: runDate,
		Retry:   retry.Policy{MaxAttempts: 3, InitialDelay: time.Second, Transient: isTransientUpload},
	}
}

// ArtifactKey is the deterministic object key for one batch.
func ArtifactKey(resource string, runDate time.Time, seq int) string {
	return fmt.Sprintf("%s/%s/%s_%04d.arrow", resource, runDate.Format("2006-01-02"), resource, seq)
}

// Stage serializes the batch and uploads it, retrying transient failures
// with exponential backoff. Exhausting retries fails the batch with
// ErrStagingFailed; the orchestrator halts the run before the batch's load.
func (w *Writer) Stage(ctx context.Context, batch *models.Batch) (models.ArtifactLocation, error) {
	data, err := Encode(w.Schema, batch.Rows)
	if err != nil {
		// serialization problems are permanent, no retry
		return models.ArtifactLocation{}, fmt.Errorf("%w: encoding batch %d: %v", pipeline.ErrStagingFailed, batch.Seq, err)
	}

	key := ArtifactKey(batch.Resource, w.RunDate, batch.Seq)
	err = w.Retry.Do(ctx, func() error {
		_, err := w.Blob.PutObject(ctx, w.Bucket, key, bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: "application/vnd.apache.arrow.file"})
		return err
	})
	if err != nil {
		return models.ArtifactLocation{}, fmt.Errorf("%w: uploading %s: %v", pipeline.ErrStagingFailed, key, err)
	}

	logger.Infof("staged %s (%d rows, %d bytes)", key, len(batch.Rows), len(data))
	return models.ArtifactLocation{Bucket: w.Bucket, Key: key}, nil
}

// isTransientUpload retries network-level failures and server-side storage
// errors; authorization and malformed-request responses abort immediately.
func isTransientUpload(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == 0 {
		// not an API response: connection-level failure
		return true
	}
	return resp.StatusCode >= 500
}
