// Package manifest lists the children of objects that can be reinterpreted
// as containers.
package manifest

import (
	"context"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/logger"
)

var log = logger.Named("manifest")

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// Converter produces manifests. It is the fallback for domain.OutputManifest.
type Converter struct {
	sources driven.SourceRegistry
}

// New creates a manifest converter that derives Sources through sources.
func New(sources driven.SourceRegistry) *Converter {
	return &Converter{sources: sources}
}

// OutputType returns domain.OutputManifest.
func (c *Converter) OutputType() domain.OutputType { return domain.OutputManifest }

// SupportedMIMETypes returns nil: any type may turn out to be a container.
func (c *Converter) SupportedMIMETypes() []string { return nil }

// Convert returns every child Handle of the derived Source, or nil when the
// object is not a container. Children that fail to enumerate are logged and
// left out; the error is returned only when no child could be listed.
func (c *Converter) Convert(ctx context.Context, res driven.Resource) (any, error) {
	sm := res.StateManager()
	src, err := c.sources.FromHandle(ctx, res.Handle(), sm)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, nil
	}
	handles := []driven.Handle{}
	var first error
	for h, err := range src.Handles(ctx, sm) {
		if err != nil {
			log.Warn("skipping a child of %s: %v", res.Handle(), err)
			if first == nil {
				first = err
			}
			continue
		}
		handles = append(handles, h)
	}
	if len(handles) == 0 && first != nil {
		return nil, first
	}
	return handles, nil
}
