// Package fallback provides the representation every object has.
package fallback

import (
	"context"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// Converter always answers true.
type Converter struct{}

// New creates a new fallback converter.
func New() *Converter {
	return &Converter{}
}

func (c *Converter) OutputType() domain.OutputType                         { return domain.OutputAlwaysTrue }
func (c *Converter) SupportedMIMETypes() []string                          { return nil }
func (c *Converter) Convert(context.Context, driven.Resource) (any, error) { return true, nil }
