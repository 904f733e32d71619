package resource

import (
	"context"
	"io"
)

// Blob stores resource bytes keyed by rid. Implementations must be safe
// for concurrent use.
type Blob interface {
	// Writer opens a write stream for rid, truncating any previous
	// content. The object is visible to Open once Close returns.
	Writer(rid string) (io.WriteCloser, error)

	// Open returns a read stream for rid's bytes.
	Open(rid string) (io.ReadCloser, error)

	// Remove deletes rid's bytes. Removing a missing object is not an
	// error.
	Remove(rid string) error

	// URL returns a direct download URL for rid when the backend can
	// produce one (e.g. a presigned S3 URL). ok is false when downloads
	// must go through the resource HTTP server instead.
	URL(ctx context.Context, rid string) (url string, ok bool)
}
