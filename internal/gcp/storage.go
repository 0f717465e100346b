package gcp

import (
	"bytes"
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// ErrObjectConflict means the object name is taken by different content.
var ErrObjectConflict = errors.New("object already exists with different content")

// WriteObjectAtomically writes data to a GCS object only if it does not
// exist yet. An existing object with the same MD5 is not a failure, so a
// retried write whose first attempt already landed stays idempotent. An
// existing object with other content returns ErrObjectConflict.
func WriteObjectAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName string, data []byte, contentType string) error {
	sum := md5.Sum(data)
	obj := bucket.Object(objectName)
	writer := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType
	writer.MD5 = sum[:]

	_, err := io.Copy(writer, bytes.NewReader(data))
	if err != nil {
		_ = writer.Close()
	} else {
		err = writer.Close()
	}
	switch {
	case err == nil:
		return nil
	case IsPreconditionFailed(err):
		attrs, aerr := obj.Attrs(ctx)
		if aerr != nil {
			return fmt.Errorf("failed to read existing object %s: %w", objectName, aerr)
		}
		if !SameContent(attrs.MD5, data) {
			slog.Warn("Object exists with different content.", "gcsObject", objectName)
			return fmt.Errorf("%w: %s", ErrObjectConflict, objectName)
		}
		slog.Info("Object already exists with identical content. Skipping write.", "gcsObject", objectName)
		return nil
	default:
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
}

// SameContent reports whether data hashes to the stored MD5. Objects
// without an MD5, such as composites, never match.
func SameContent(storedMD5, data []byte) bool {
	if len(storedMD5) == 0 {
		return false
	}
	sum := md5.Sum(data)
	return bytes.Equal(storedMD5, sum[:])
}

// IsPreconditionFailed reports a 412 from a conditional write.
func IsPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// IsRetryable reports whether a storage error is worth another attempt:
// throttling, server errors and transport failures are; client errors,
// name conflicts and expired contexts are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrObjectConflict) {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusRequestTimeout || gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}
	return true
}

// ReadObject reads a whole GCS object into memory.
func ReadObject(ctx context.Context, client *storage.Client, bucket, object string) ([]byte, error) {
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, object, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, object, err)
	}
	return data, nil
}
