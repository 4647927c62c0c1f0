// Package plaintext reads text out of files that already are text.
package plaintext

import (
	"context"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/net/html/charset"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// Converter handles plain text and text-like structured formats.
type Converter struct{}

// New creates a new plain text converter.
func New() *Converter {
	return &Converter{}
}

// OutputType returns domain.OutputText.
func (c *Converter) OutputType() domain.OutputType { return domain.OutputText }

// SupportedMIMETypes returns the MIME types this converter handles.
func (c *Converter) SupportedMIMETypes() []string {
	return []string{
		"text/plain",
		"text/csv",
		"text/tab-separated-values",
		"text/xml",
		"text/yaml",
		"text/css",
		"text/javascript",
		"text/markdown",
		"text/rtf",
		"text/calendar",
		"text/vcard",
		"application/json",
		"application/xml",
		"image/svg+xml",
	}
}

// Convert returns the file's content as UTF-8 text. Content that is not
// valid UTF-8 is decoded as Windows-1252, the usual culprit.
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

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", res.Handle(), err)
	}
	return Decode(content), nil
}

// Decode turns content into a string, guessing the encoding when it is not
// UTF-8.
func Decode(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	enc, _, _ := charset.DetermineEncoding(content, "text/plain")
	decoded, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return string(content)
	}
	return string(decoded)
}
