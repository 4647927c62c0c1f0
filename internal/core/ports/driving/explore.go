package driving

import (
	"context"
	"iter"

	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// ExploreService enumerates Sources.
type ExploreService interface {
	// Explore yields the Handles of source. With recurse set, every Handle
	// that can be reinterpreted as a derived Source is explored in turn.
	Explore(ctx context.Context, sm driven.StateManager, source driven.Source,
		recurse bool) iter.Seq2[driven.Handle, error]
}
