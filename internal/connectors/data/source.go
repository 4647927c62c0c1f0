// Package data implements the "data" Source: a single file whose content
// is carried inline, typically parsed from a data: URL.
package data

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"iter"
	"net/url"
	"strings"

	"github.com/custodia-labs/datascanner/internal/connectors/base"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// TypeLabel is the JSON type label of both the Source and its Handle.
const TypeLabel = "data"

// Ensure Source implements the interface.
var _ driven.Source = (*Source)(nil)

// Source holds content in memory. A censored Source has nil content.
type Source struct {
	content []byte
	mime    string
	name    string
}

// New creates a Source. An empty mime means application/octet-stream.
func New(content []byte, mime, name string) *Source {
	if mime == "" {
		mime = domain.MIMEOctetStream
	}
	return &Source{content: content, mime: mime, name: name}
}

// FromURL parses a data: URL.
func FromURL(rawURL string) (*Source, error) {
	mime, content, err := UnpackURL(rawURL)
	if err != nil {
		return nil, err
	}
	return New(content, mime, ""), nil
}

func (s *Source) MIME() string       { return s.mime }
func (s *Source) Name() string       { return s.name }
func (s *Source) Content() []byte    { return s.content }
func (s *Source) CrunchName() string { return "DataSource" }

func (s *Source) CrunchProperties() []domain.Property {
	var content any
	if s.content != nil {
		content = base64.StdEncoding.EncodeToString(s.content)
	}
	return []domain.Property{
		{Name: "_content", Value: content},
		{Name: "_mime", Value: s.mime},
		{Name: "_name", Value: domain.Optional(s.name)},
	}
}

func (s *Source) Type() string                   { return TypeLabel }
func (s *Source) YieldsIndependentSources() bool { return true }
func (s *Source) Handle() driven.Handle          { return nil }

func (s *Source) Acquire(context.Context, driven.StateManager) (any, func() error, error) {
	return nil, nil, nil
}

// Handles yields the single embedded file.
func (s *Source) Handles(ctx context.Context, sm driven.StateManager) iter.Seq2[driven.Handle, error] {
	return func(yield func(driven.Handle, error) bool) {
		if len(s.content) == 0 {
			yield(nil, fmt.Errorf("%w: cannot explore a data source with no content", domain.ErrInvalidInput))
			return
		}
		name := s.name
		if name == "" {
			name = "file"
		}
		yield(NewHandle(s, name), nil)
	}
}

// Censor drops the content.
func (s *Source) Censor() driven.Source {
	return &Source{mime: s.mime, name: s.name}
}

func (s *Source) ToJSON() map[string]any {
	obj := map[string]any{"type": TypeLabel, "content": nil, "mime": s.mime, "name": nil}
	if len(s.content) > 0 {
		obj["content"] = base64.StdEncoding.EncodeToString(s.content)
	}
	if s.name != "" {
		obj["name"] = s.name
	}
	return obj
}

// UnpackURL splits a data: URL of the form data:[mime][;base64],content.
// The MIME type defaults to text/plain.
func UnpackURL(rawURL string) (string, []byte, error) {
	_, rest, ok := strings.Cut(rawURL, ":")
	if !ok {
		return "", nil, fmt.Errorf("%w: %q is not a data URL", domain.ErrInvalidInput, rawURL)
	}
	lead, content, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: data URL has no content", domain.ErrInvalidInput)
	}
	mime := domain.MIMEPlainText
	lead, isBase64 := strings.CutSuffix(lead, ";base64")
	if lead != "" {
		mime = lead
	}
	content, err := url.PathUnescape(content)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if !isBase64 {
		return mime, []byte(content), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return mime, decoded, nil
}

// Ensure Handle implements the interface.
var _ driven.Handle = (*Handle)(nil)

// Handle refers to the content of a Source.
type Handle struct {
	base.Handle
}

// NewHandle creates a Handle.
func NewHandle(s driven.Source, relpath string) *Handle {
	return &Handle{Handle: base.NewHandle(s, relpath)}
}

func (h *Handle) source() *Source {
	if s, ok := h.Source().(*Source); ok {
		return s
	}
	return &Source{mime: domain.MIMEOctetStream}
}

func (h *Handle) CrunchName() string                  { return "DataHandle" }
func (h *Handle) CrunchProperties() []domain.Property { return h.PropertiesWithReferrer() }
func (h *Handle) Type() string                        { return TypeLabel }

// Name prefers the Source's name over the relative path.
func (h *Handle) Name() string {
	if n := h.source().name; n != "" {
		return n
	}
	return h.Handle.Name()
}

func (h *Handle) GuessType() string { return h.source().mime }
func (h *Handle) SortKey() string   { return h.Name() }

func (h *Handle) PresentationName() string {
	if n := h.source().name; n != "" {
		return n
	}
	return fmt.Sprintf("(anonymous file of type %s)", h.GuessType())
}

func (h *Handle) PresentationPlace() string { return "(embedded)" }

func (h *Handle) String() string {
	return h.PresentationName() + " " + h.PresentationPlace()
}

func (h *Handle) ToJSON() map[string]any { return base.HandleJSON(h) }

func (h *Handle) Censor() driven.Handle {
	return NewHandle(h.Source().Censor(), h.RelativePath())
}

func (h *Handle) WithSource(s driven.Source) driven.Handle {
	c := *h
	c.SetSource(s)
	return &c
}

func (h *Handle) Follow(sm driven.StateManager) driven.Resource {
	return &Resource{Resource: base.NewResource(h, sm), h: h}
}

// Ensure Resource implements the interfaces.
var (
	_ driven.FileResource        = (*Resource)(nil)
	_ driven.TimestampedResource = (*Resource)(nil)
)

// Resource reads the in-memory content.
type Resource struct {
	base.Resource
	base.FirstCall
	h *Handle
}

// Check always succeeds: embedded content cannot disappear.
func (r *Resource) Check(context.Context) (bool, error) { return true, nil }

func (r *Resource) Size(context.Context) (int64, error) {
	return int64(len(r.h.source().content)), nil
}

func (r *Resource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(r.h.source().content)), nil
}

func (r *Resource) LocalPath(ctx context.Context) (string, func() error, error) {
	return base.MaterialisePath(ctx, r)
}

// ComputeType returns the declared MIME type without sniffing.
func (r *Resource) ComputeType(context.Context) (string, error) {
	return r.h.source().mime, nil
}

func (r *Resource) Metadata(ctx context.Context) map[string]any {
	return base.CollectMetadata(ctx, r, base.LastModifiedEntry(r))
}

// Register adds the "data" Source, its Handle and data: URLs to reg.
func Register(reg driven.SourceRegistry) {
	reg.RegisterURL("data", func(rawURL string) (driven.Source, error) {
		return FromURL(rawURL)
	})
	reg.RegisterSource(TypeLabel, func(obj map[string]any, _ driven.Decoder) (driven.Source, error) {
		var content []byte
		if enc := base.OptString(obj, "content"); enc != "" {
			var err error
			if content, err = base64.StdEncoding.DecodeString(enc); err != nil {
				return nil, &domain.DeserialisationError{Type: TypeLabel, Property: "content"}
			}
		}
		mime, err := base.String(obj, "mime", TypeLabel)
		if err != nil {
			return nil, err
		}
		return New(content, mime, base.OptString(obj, "name")), nil
	})
	base.RegisterStockHandle(reg, TypeLabel, func(src driven.Source, path string, referrer driven.Handle) (driven.Handle, error) {
		return &Handle{Handle: base.NewReferredHandle(src, path, referrer)}, nil
	})
}
