// Package image reads the pixel dimensions of images from their headers.
package image

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// Converter produces image dimensions.
type Converter struct{}

// New creates a new image dimensions converter.
func New() *Converter {
	return &Converter{}
}

// OutputType returns domain.OutputImageDimensions.
func (c *Converter) OutputType() domain.OutputType { return domain.OutputImageDimensions }

// SupportedMIMETypes returns the decodable image formats.
func (c *Converter) SupportedMIMETypes() []string {
	return []string{
		"image/png",
		"image/jpeg",
		"image/gif",
		"image/bmp",
		"image/x-ms-bmp",
		"image/tiff",
		"image/webp",
	}
}

// Convert decodes only the image header. Undecodable images have no
// dimensions.
func (c *Converter) Convert(ctx context.Context, res driven.Resource) (any, error) {
	fr, ok := res.(driven.FileResource)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no content", domain.ErrNoConversion, res.Handle())
	}
	rc, err := fr.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	cfg, _, err := image.DecodeConfig(rc)
	if err != nil {
		return nil, nil
	}
	return domain.Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
}
