package driven

import "context"

// URLFactory builds a root Source from a URL.
type URLFactory func(rawURL string) (Source, error)

// MIMEFactory wraps a Handle in a derived Source. It returns nil, nil when
// the Handle cannot be reinterpreted.
type MIMEFactory func(h Handle) (Source, error)

// SourceDecoder builds a Source from its JSON object.
type SourceDecoder func(obj map[string]any, dec Decoder) (Source, error)

// HandleDecoder builds a Handle from its JSON object.
type HandleDecoder func(obj map[string]any, dec Decoder) (Handle, error)

// Decoder turns JSON objects back into Sources and Handles.
type Decoder interface {
	SourceFromJSON(obj map[string]any) (Source, error)
	HandleFromJSON(obj map[string]any) (Handle, error)
}

// SourceRegistry dispatches URL schemes, MIME types and JSON type labels to
// constructors. Registrations happen at startup; registering a key twice or
// after Freeze panics.
type SourceRegistry interface {
	Decoder

	RegisterURL(scheme string, f URLFactory)
	RegisterMIME(mime string, f MIMEFactory)
	RegisterSource(label string, f SourceDecoder)
	RegisterHandle(label string, f HandleDecoder)

	// FromURL parses the scheme of rawURL and delegates to its factory.
	FromURL(rawURL string) (Source, error)

	// FromHandle reinterprets h as a derived Source, using the computed
	// type of its content when sm is not nil. The result is nil when no
	// derivation applies.
	FromHandle(ctx context.Context, h Handle, sm StateManager) (Source, error)

	// FromHandleType is FromHandle with an explicit MIME type.
	FromHandleType(h Handle, mime string) (Source, error)
}
