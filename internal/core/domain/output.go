package domain

import (
	"fmt"
	"strings"
	"time"
)

// OutputType identifies a kind of representation a Resource can be
// converted to. The values double as cache file names and CLI arguments.
type OutputType string

// Available output types.
const (
	// OutputText is extracted text (string).
	OutputText OutputType = "text"

	// OutputLastModified is a modification timestamp (time.Time).
	OutputLastModified OutputType = "last-modified"

	// OutputImageDimensions is a width/height pair (Dimensions).
	OutputImageDimensions OutputType = "image-dimensions"

	// OutputLinks is the list of outbound links of a page ([]Link).
	OutputLinks OutputType = "links"

	// OutputManifest is the list of child Handles of a derived Source.
	OutputManifest OutputType = "manifest"

	// OutputEmailHeaders is a map of lower-cased header names to values.
	OutputEmailHeaders OutputType = "email-headers"

	// OutputAlwaysTrue is the fallback representation: always true.
	OutputAlwaysTrue OutputType = "fallback"

	// OutputDummy has no converters at all.
	OutputDummy OutputType = "dummy"
)

// AllOutputTypes returns every output type in declaration order.
func AllOutputTypes() []OutputType {
	return []OutputType{
		OutputText,
		OutputLastModified,
		OutputImageDimensions,
		OutputLinks,
		OutputManifest,
		OutputEmailHeaders,
		OutputAlwaysTrue,
		OutputDummy,
	}
}

// IsValid returns true if the output type is recognised.
func (t OutputType) IsValid() bool {
	for _, o := range AllOutputTypes() {
		if o == t {
			return true
		}
	}
	return false
}

// String returns the string representation.
func (t OutputType) String() string {
	return string(t)
}

// ParseOutputType converts a CLI or cache name into an OutputType.
func ParseOutputType(s string) (OutputType, error) {
	t := OutputType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: output type %q", ErrInvalidInput, s)
	}
	return t, nil
}

// Link is an outbound link found in a document.
type Link struct {
	URL  string
	Text string
}

// NewLink builds a Link, collapsing runs of whitespace in the link text.
func NewLink(url, text string) Link {
	return Link{URL: url, Text: strings.Join(strings.Fields(text), " ")}
}

// Dimensions is the pixel size of an image.
type Dimensions struct {
	Width  int
	Height int
}

// TimeFormat is the wire format for timestamps (ISO 8601 with a numeric
// offset and no colon).
const TimeFormat = "2006-01-02T15:04:05-0700"

// FormatTime renders t in TimeFormat.
func FormatTime(t time.Time) string {
	return t.Format(TimeFormat)
}

// ParseTime parses a timestamp in TimeFormat, also accepting RFC 3339
// offsets with a colon.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeFormat, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrInvalidInput, s)
	}
	return t, nil
}
