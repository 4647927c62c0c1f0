package driven

import "context"

// StateManager tracks the open state of Sources. It is not safe for
// concurrent use: one goroutine drives one StateManager.
type StateManager interface {
	// Open returns the cookie for source, acquiring it on first use.
	// Sources opened while another Source's Acquire is running are
	// parented under that Source.
	Open(ctx context.Context, source Source) (any, error)

	// Close releases source and everything that depends on it.
	Close(source Source)

	// ClearDependents releases everything below the top-level Sources.
	ClearDependents()

	// Parent returns the Source that source depends on, or nil for a
	// top-level or unopened Source.
	Parent(source Source) Source

	// Configuration returns the configuration map. Never nil.
	Configuration() map[string]any
}
