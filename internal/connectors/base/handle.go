package base

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// Handle is the data every Handle variant embeds.
type Handle struct {
	src      driven.Source
	relpath  string
	referrer driven.Handle
}

// NewHandle creates the embedded Handle data.
func NewHandle(src driven.Source, relpath string) Handle {
	return Handle{src: src, relpath: relpath}
}

// NewReferredHandle creates Handle data with a referrer.
func NewReferredHandle(src driven.Source, relpath string, referrer driven.Handle) Handle {
	return Handle{src: src, relpath: relpath, referrer: referrer}
}

// Source returns the owning Source.
func (h *Handle) Source() driven.Source { return h.src }

// RelativePath returns the path within the Source.
func (h *Handle) RelativePath() string { return h.relpath }

// Referrer returns the Handle this one was found through, or nil.
func (h *Handle) Referrer() driven.Handle { return h.referrer }

// Name returns everything after the last '/', or "file" when that is empty.
func (h *Handle) Name() string {
	return BaseName(h.relpath)
}

// GuessType guesses the MIME type from Name.
func (h *Handle) GuessType() string {
	return domain.GuessType(h.Name())
}

// PresentationURL returns "".
func (h *Handle) PresentationURL() string { return "" }

// SetSource replaces the Source. Used by WithSource implementations on a
// copy of the receiver.
func (h *Handle) SetSource(s driven.Source) { h.src = s }

// Properties returns the identity properties _source and _relpath.
func (h *Handle) Properties() []domain.Property {
	return []domain.Property{
		{Name: "_source", Value: h.src},
		{Name: "_relpath", Value: h.relpath},
	}
}

// PropertiesWithReferrer adds _referrer to Properties.
func (h *Handle) PropertiesWithReferrer() []domain.Property {
	props := h.Properties()
	if h.referrer != nil {
		props = append(props, domain.Property{Name: "_referrer", Value: h.referrer})
	}
	return props
}

// BaseName returns everything after the last '/' of p, or "file".
func BaseName(p string) string {
	name := p[strings.LastIndex(p, "/")+1:]
	if name == "" {
		return "file"
	}
	return name
}

// DefaultString renders h as "name (in place)".
func DefaultString(h driven.Handle) string {
	return fmt.Sprintf("%s (in %s)", h.PresentationName(), h.PresentationPlace())
}

// DefaultSortKey is String with the name and any trailing slash removed.
func DefaultSortKey(h driven.Handle) string {
	return strings.TrimSuffix(strings.TrimSuffix(h.String(), h.Name()), "/")
}

// HandleJSON returns the wire form of h.
func HandleJSON(h driven.Handle) map[string]any {
	obj := map[string]any{
		"type":   h.Type(),
		"source": h.Source().ToJSON(),
		"path":   h.RelativePath(),
	}
	if r := h.Referrer(); r != nil {
		obj["referrer"] = r.ToJSON()
	}
	return obj
}

// DecodeHandle reads the common Handle fields of obj.
func DecodeHandle(obj map[string]any, dec driven.Decoder) (driven.Source, string, driven.Handle, error) {
	label, _ := obj["type"].(string)
	srcObj, err := Object(obj, "source", label)
	if err != nil {
		return nil, "", nil, err
	}
	src, err := dec.SourceFromJSON(srcObj)
	if err != nil {
		return nil, "", nil, err
	}
	path, err := String(obj, "path", label)
	if err != nil {
		return nil, "", nil, err
	}
	var referrer driven.Handle
	if refObj, ok := obj["referrer"].(map[string]any); ok {
		if referrer, err = dec.HandleFromJSON(refObj); err != nil {
			return nil, "", nil, err
		}
	}
	return src, path, referrer, nil
}

// RegisterStockHandle registers a JSON decoder for a Handle variant built
// from a Source, a path and an optional referrer.
func RegisterStockHandle(reg driven.SourceRegistry, label string,
	build func(src driven.Source, path string, referrer driven.Handle) (driven.Handle, error)) {
	reg.RegisterHandle(label, func(obj map[string]any, dec driven.Decoder) (driven.Handle, error) {
		src, path, referrer, err := DecodeHandle(obj, dec)
		if err != nil {
			return nil, err
		}
		return build(src, path, referrer)
	})
}
