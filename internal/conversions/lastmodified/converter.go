// Package lastmodified asks Resources when their objects last changed.
package lastmodified

import (
	"context"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// Converter is the fallback for domain.OutputLastModified.
type Converter struct{}

// New creates a new last-modified converter.
func New() *Converter {
	return &Converter{}
}

// OutputType returns domain.OutputLastModified.
func (c *Converter) OutputType() domain.OutputType { return domain.OutputLastModified }

// SupportedMIMETypes returns nil: the timestamp does not depend on content.
func (c *Converter) SupportedMIMETypes() []string { return nil }

// Convert returns the Resource's timestamp, or nil when it keeps none.
func (c *Converter) Convert(ctx context.Context, res driven.Resource) (any, error) {
	tr, ok := res.(driven.TimestampedResource)
	if !ok {
		return nil, nil
	}
	lm, err := tr.LastModified(ctx)
	if err != nil {
		return nil, err
	}
	if lm.IsZero() {
		return nil, nil
	}
	return lm, nil
}
