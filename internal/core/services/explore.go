package services

import (
	"context"
	"fmt"
	"iter"

	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/core/ports/driving"
)

// Ensure ExploreService implements the interface.
var _ driving.ExploreService = (*ExploreService)(nil)

// ExploreService walks Sources and, optionally, the derived Sources of
// their Handles.
type ExploreService struct {
	sources driven.SourceRegistry
}

// NewExploreService creates an explore service deriving Sources through
// sources.
func NewExploreService(sources driven.SourceRegistry) *ExploreService {
	return &ExploreService{sources: sources}
}

// Explore yields the Handles of source depth first: a container is yielded
// before its contents. Failures to enumerate or derive one object are
// yielded as errors and the walk continues. When source is top-level, the
// Sources opened beneath one of its Handles are closed before the next.
func (s *ExploreService) Explore(ctx context.Context, sm driven.StateManager, source driven.Source,
	recurse bool) iter.Seq2[driven.Handle, error] {
	return func(yield func(driven.Handle, error) bool) {
		s.explore(ctx, sm, source, recurse, true, yield)
	}
}

func (s *ExploreService) explore(ctx context.Context, sm driven.StateManager, source driven.Source,
	recurse, top bool, yield func(driven.Handle, error) bool) bool {
	for h, err := range source.Handles(ctx, sm) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			yield(nil, ctxErr)
			return false
		}
		if err != nil {
			if !yield(nil, err) {
				return false
			}
			continue
		}
		if !yield(h, nil) {
			return false
		}
		if !recurse {
			continue
		}

		derived, err := s.sources.FromHandle(ctx, h, sm)
		if err != nil {
			if !yield(nil, fmt.Errorf("deriving source from %s: %w", h, err)) {
				return false
			}
			continue
		}
		if derived == nil {
			continue
		}
		if !s.explore(ctx, sm, derived, recurse, false, yield) {
			return false
		}
		if top && sm.Parent(source) == nil {
			sm.ClearDependents()
		}
	}
	return true
}
