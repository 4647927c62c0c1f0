package services

import (
	"context"
	"errors"
	"iter"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/core/ports/driving"
	"github.com/custodia-labs/datascanner/internal/logger"
)

// Ensure ConversionService implements the interface.
var _ driving.ConversionService = (*ConversionService)(nil)

var convertLog = logger.Named("convert")

// ConversionService converts objects, falling back to their manifest when
// no converter handles them.
type ConversionService struct {
	representer driven.Representer
}

// NewConversionService creates a conversion service that obtains
// representations through representer.
func NewConversionService(representer driven.Representer) *ConversionService {
	return &ConversionService{representer: representer}
}

// Convert converts h to ot. The MIME override applies to h only, not to
// the children of its manifest.
func (s *ConversionService) Convert(ctx context.Context, sm driven.StateManager, h driven.Handle,
	ot domain.OutputType, mimeOverride string) iter.Seq[driving.ConversionOutcome] {
	return func(yield func(driving.ConversionOutcome) bool) {
		s.convert(ctx, sm, h, ot, mimeOverride, yield)
	}
}

func (s *ConversionService) convert(ctx context.Context, sm driven.StateManager, h driven.Handle,
	ot domain.OutputType, mimeOverride string, yield func(driving.ConversionOutcome) bool) bool {
	if err := ctx.Err(); err != nil {
		return yield(driving.ConversionOutcome{Handle: h, Err: err})
	}

	res := h.Follow(sm)
	v, cached, err := s.representer.Represent(ctx, res, ot, mimeOverride)
	switch {
	case err == nil:
		return yield(driving.ConversionOutcome{Handle: h, Value: v, Cached: cached})
	case errors.Is(err, domain.ErrNoValue):
		convertLog.Debug("%s conversion of %s produced nothing", ot, h)
		return yield(driving.ConversionOutcome{Handle: h})
	case !errors.Is(err, domain.ErrNoConversion):
		convertLog.Error("converting %s to %s: %v", h, ot, err)
		return yield(driving.ConversionOutcome{Handle: h, Err: err})
	}

	convertLog.Debug("no %s conversion for %s, trying its manifest", ot, h)
	manifest, _, err := s.representer.Represent(ctx, res, domain.OutputManifest, "")
	if err != nil {
		if !errors.Is(err, domain.ErrNoConversion) && !errors.Is(err, domain.ErrNoValue) {
			convertLog.Error("listing %s: %v", h, err)
			return yield(driving.ConversionOutcome{Handle: h, Err: err})
		}
		return yield(driving.ConversionOutcome{Handle: h})
	}

	children, _ := manifest.([]driven.Handle)
	if len(children) == 0 {
		return yield(driving.ConversionOutcome{Handle: h})
	}
	for _, child := range children {
		if !s.convert(ctx, sm, child, ot, "", yield) {
			return false
		}
	}
	return true
}
