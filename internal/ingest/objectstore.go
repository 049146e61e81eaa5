// Package ingest copies vendor-hosted media into durable object storage so
// task results outlive the vendor's short-lived URLs.
package ingest

import (
	"context"
	"io"
)

// ObjectStore abstracts the durable storage backend. Known-length bodies go
// through PutObject in one shot; unknown-length bodies use the explicit
// multipart session so nothing is ever buffered whole in memory.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error

	NewMultipart(ctx context.Context, key, contentType string) (MultipartUpload, error)
}

// MultipartUpload is one in-flight multipart session. Parts are uploaded in
// order; Complete stitches them, Abort discards them. Exactly one of
// Complete or Abort must be called.
type MultipartUpload interface {
	PutPart(ctx context.Context, partNumber int, body io.Reader, size int64) error
	Complete(ctx context.Context) error
	Abort(ctx context.Context) error
}
