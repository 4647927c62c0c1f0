package driven

import (
	"context"
	"io"
	"time"
)

// Resource is a short-lived view of a Handle bound to a StateManager.
// Resources are created only by Handle.Follow.
type Resource interface {
	Handle() Handle
	StateManager() StateManager

	// Check tests for existence. It returns false only when the object is
	// definitely gone; transient failures are returned as errors.
	Check(ctx context.Context) (bool, error)

	// Metadata collects what it can. A failure extracting one key never
	// drops the others.
	Metadata(ctx context.Context) map[string]any
}

// TimestampedResource knows when its object last changed.
type TimestampedResource interface {
	Resource

	// LastModified is memoised. Resources without a better source of truth
	// report the time of the first call.
	LastModified(ctx context.Context) (time.Time, error)
}

// FileResource can be viewed as a sequence of bytes.
type FileResource interface {
	TimestampedResource

	Size(ctx context.Context) (int64, error)

	// Open returns a read-only stream. The caller must close it.
	Open(ctx context.Context) (io.ReadCloser, error)

	// LocalPath returns a filesystem path holding the content until
	// release is called. The path must not be written to.
	LocalPath(ctx context.Context) (path string, release func() error, err error)

	// ComputeType classifies the first 512 bytes of content and reconciles
	// the result with the guess by name.
	ComputeType(ctx context.Context) (string, error)
}

// TabularResource is one row of a table.
type TabularResource interface {
	Resource

	// Cells returns the row's cell values in column order.
	Cells(ctx context.Context) ([]string, error)
}
