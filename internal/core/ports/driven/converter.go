package driven

import (
	"context"

	"github.com/custodia-labs/datascanner/internal/core/domain"
)

// Converter produces one kind of representation from a Resource.
type Converter interface {
	// OutputType returns the representation this converter produces.
	OutputType() domain.OutputType

	// SupportedMIMETypes returns the MIME types handled. A nil slice makes
	// the converter the fallback for its output type.
	SupportedMIMETypes() []string

	// Convert returns the representation value, or nil for "nothing".
	Convert(ctx context.Context, res Resource) (any, error)
}

// MIMEConverter is a Converter that also takes the MIME type its
// conversion was dispatched on, which may be an override.
type MIMEConverter interface {
	Converter

	// ConvertMIME is Convert for content of type mime.
	ConvertMIME(ctx context.Context, res Resource, mime string) (any, error)
}

// Representer returns representations of Resources, converting on demand
// and possibly reading from a cache.
type Representer interface {
	// Represent returns res converted to ot. cached reports whether the
	// value was read from disk. A missing converter is an error wrapping
	// domain.ErrNoConversion, and a nil value one wrapping domain.ErrNoValue.
	Represent(ctx context.Context, res Resource, ot domain.OutputType,
		mimeOverride string) (v any, cached bool, err error)
}
