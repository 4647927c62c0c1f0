// Package ocr extracts text from images with tesseract(1).
package ocr

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/datascanner/internal/connectors/base"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/logger"
)

var log = logger.Named("ocr")

// Ensure Converter implements the interface.
var _ driven.MIMEConverter = (*Converter)(nil)

// Formats tesseract reads directly.
var direct = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
}

// Formats tesseract handles badly. They are turned into PNG with
// ImageMagick's convert(1) first.
var intermediate = map[string]bool{
	"image/gif":      true,
	"image/bmp":      true,
	"image/x-ms-bmp": true,
}

// Converter runs OCR on images.
type Converter struct {
	runner driven.CommandRunner
}

// New creates an OCR converter. runner bounds and isolates each call.
func New(runner driven.CommandRunner) *Converter {
	return &Converter{runner: runner}
}

// OutputType returns domain.OutputText.
func (c *Converter) OutputType() domain.OutputType { return domain.OutputText }

// SupportedMIMETypes returns the image types this converter handles.
func (c *Converter) SupportedMIMETypes() []string {
	return []string{"image/png", "image/jpeg", "image/gif", "image/bmp", "image/x-ms-bmp"}
}

// Convert returns the recognised text, or nil when images are being
// skipped or a tool fails.
func (c *Converter) Convert(ctx context.Context, res driven.Resource) (any, error) {
	return c.ConvertMIME(ctx, res, "")
}

// ConvertMIME is Convert for an image of type mime. An empty mime is
// computed from the content.
func (c *Converter) ConvertMIME(ctx context.Context, res driven.Resource, mime string) (any, error) {
	if skip, _ := res.StateManager().Configuration()[domain.KeySkipImages].(bool); skip {
		log.Debug("skipping image %s", res.Handle())
		return nil, nil
	}
	fr, ok := res.(driven.FileResource)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no content", domain.ErrNoConversion, res.Handle())
	}
	if mime == "" {
		var err error
		if mime, err = fr.ComputeType(ctx); err != nil {
			return nil, err
		}
	}

	path, release, err := fr.LocalPath(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if intermediate[mime] || !direct[mime] {
		dir, cleanup, err := base.TempDir()
		if err != nil {
			return nil, err
		}
		defer cleanup()
		png := filepath.Join(dir, "image.png")
		if _, err := c.runner.Run(ctx, "convert", path, "png:"+png); err != nil {
			return c.failed(ctx, "convert", res, err)
		}
		path = png
	}
	return c.tesseract(ctx, res, path)
}

func (c *Converter) tesseract(ctx context.Context, res driven.Resource, path string) (any, error) {
	out, err := c.runner.Run(ctx, "tesseract", path, "stdout")
	if err != nil {
		return c.failed(ctx, "tesseract", res, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *Converter) failed(ctx context.Context, tool string, res driven.Resource, err error) (any, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	log.Warn("%s failed on %s: %v", tool, res.Handle(), err)
	return nil, nil
}
