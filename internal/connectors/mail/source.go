// Package mail implements the "mail" derived Source: the body parts and
// attachments of an RFC 822 message.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/custodia-labs/datascanner/internal/connectors/base"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

const (
	// TypeLabel is the JSON type label of the Source.
	TypeLabel = "mail"
	// PartTypeLabel is the JSON type label of its Handles.
	PartTypeLabel = "mail-part"
)

// Ensure Source implements the interface.
var _ driven.DerivedSource = (*Source)(nil)

// Source exposes the parts of a message.
type Source struct {
	base.Derived
}

// New wraps h.
func New(h driven.Handle) *Source {
	return &Source{Derived: base.NewDerived(h)}
}

func (s *Source) CrunchName() string                  { return "MailSource" }
func (s *Source) CrunchProperties() []domain.Property { return s.Properties() }
func (s *Source) Type() string                        { return TypeLabel }
func (s *Source) Censor() driven.Source               { return New(s.Handle().Censor()) }
func (s *Source) WithHandle(h driven.Handle) driven.Source {
	return New(h)
}
func (s *Source) ToJSON() map[string]any { return base.DerivedJSON(TypeLabel, s.Handle()) }

// Acquire reads and parses the wrapped message. The cookie is its root
// *Part.
func (s *Source) Acquire(ctx context.Context, sm driven.StateManager) (any, func() error, error) {
	fr, err := s.ParentFile(sm)
	if err != nil {
		return nil, nil, err
	}
	rc, err := fr.Open(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, err
	}
	root, err := ParseMessage(raw)
	if err != nil {
		return nil, nil, err
	}
	return root, nil, nil
}

// Handles yields a Handle for every leaf part.
func (s *Source) Handles(ctx context.Context, sm driven.StateManager) iter.Seq2[driven.Handle, error] {
	return func(yield func(driven.Handle, error) bool) {
		cookie, err := sm.Open(ctx, s)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, leaf := range Leaves(cookie.(*Part)) {
			if !yield(NewPartHandle(s, leaf.Path, leaf.Part.MediaType), nil) {
				return
			}
		}
	}
}

// Ensure PartHandle implements the interface.
var _ driven.Handle = (*PartHandle)(nil)

// PartHandle is a message part, addressed by its index path and carrying
// its declared content type.
type PartHandle struct {
	base.Handle
	mime string
}

// NewPartHandle creates a PartHandle.
func NewPartHandle(s driven.Source, relpath, mime string) *PartHandle {
	return &PartHandle{Handle: base.NewHandle(s, relpath), mime: mime}
}

// MIME returns the declared content type.
func (h *PartHandle) MIME() string { return h.mime }

func (h *PartHandle) CrunchName() string { return "MailPartHandle" }

func (h *PartHandle) CrunchProperties() []domain.Property {
	return append(h.PropertiesWithReferrer(), domain.Property{Name: "_mime", Value: h.mime})
}

func (h *PartHandle) Type() string { return PartTypeLabel }

func (h *PartHandle) pathName() string {
	rel := h.RelativePath()
	return rel[strings.LastIndex(rel, "/")+1:]
}

// PresentationName names an attachment, or uses the message's own name
// for a body part.
func (h *PartHandle) PresentationName() string {
	container := h.Source().Handle().PresentationName()
	if name := h.pathName(); name != "" {
		return fmt.Sprintf("attachment \"%s\" in %s", DecodeWords(name), container)
	}
	return container
}

func (h *PartHandle) PresentationPlace() string { return h.Source().Handle().PresentationPlace() }
func (h *PartHandle) SortKey() string           { return h.Source().Handle().SortKey() }

func (h *PartHandle) String() string {
	return fmt.Sprintf("%s (attached to %s)", h.PresentationName(), h.PresentationPlace())
}

// GuessType prefers the declared type unless it is generic.
func (h *PartHandle) GuessType() string {
	if h.mime != domain.MIMEOctetStream {
		return h.mime
	}
	return h.Handle.GuessType()
}

func (h *PartHandle) ToJSON() map[string]any {
	obj := base.HandleJSON(h)
	obj["mime"] = h.mime
	return obj
}

func (h *PartHandle) Censor() driven.Handle {
	return NewPartHandle(h.Source().Censor(), h.RelativePath(), h.mime)
}

func (h *PartHandle) WithSource(s driven.Source) driven.Handle {
	c := *h
	c.SetSource(s)
	return &c
}

func (h *PartHandle) Follow(sm driven.StateManager) driven.Resource {
	return &PartResource{Resource: base.NewResource(h, sm)}
}

// Ensure PartResource implements the interfaces.
var (
	_ driven.FileResource        = (*PartResource)(nil)
	_ driven.TimestampedResource = (*PartResource)(nil)
)

// PartResource is the decoded content of a message part.
type PartResource struct {
	base.Resource
	part base.Lazy[*Part]
}

func (r *PartResource) fragment(ctx context.Context) (*Part, error) {
	return r.part.Get(func() (*Part, error) {
		cookie, err := r.Cookie(ctx)
		if err != nil {
			return nil, err
		}
		p, ok := Find(cookie.(*Part), r.Handle().RelativePath())
		if !ok {
			return nil, fmt.Errorf("%w: no part %q", domain.ErrNotFound, r.Handle().RelativePath())
		}
		return p, nil
	})
}

// Check reports whether the part path still resolves in the message.
func (r *PartResource) Check(ctx context.Context) (bool, error) {
	cookie, err := r.Cookie(ctx)
	if err != nil {
		return false, err
	}
	_, ok := Find(cookie.(*Part), r.Handle().RelativePath())
	return ok, nil
}

// LastModified is that of the message itself.
func (r *PartResource) LastModified(ctx context.Context) (time.Time, error) {
	parent := r.Handle().Source().Handle().Follow(r.StateManager())
	if tr, ok := parent.(driven.TimestampedResource); ok {
		return tr.LastModified(ctx)
	}
	return time.Time{}, fmt.Errorf("%w: message has no timestamp", domain.ErrResourceUnavailable)
}

func (r *PartResource) Size(ctx context.Context) (int64, error) {
	p, err := r.fragment(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(p.Body)), nil
}

func (r *PartResource) Open(ctx context.Context) (io.ReadCloser, error) {
	p, err := r.fragment(ctx)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(p.Body)), nil
}

func (r *PartResource) LocalPath(ctx context.Context) (string, func() error, error) {
	return base.MaterialisePath(ctx, r)
}

func (r *PartResource) ComputeType(ctx context.Context) (string, error) {
	return base.ComputeType(ctx, r)
}

func (r *PartResource) Metadata(ctx context.Context) map[string]any {
	return base.CollectMetadata(ctx, r, base.LastModifiedEntry(r))
}

// Register adds the "mail" Source and "mail-part" Handles to reg.
func Register(reg driven.SourceRegistry) {
	base.RegisterDerived(reg, TypeLabel, []string{domain.MIMEMessage}, func(h driven.Handle) driven.Source {
		return New(h)
	})
	reg.RegisterHandle(PartTypeLabel, func(obj map[string]any, dec driven.Decoder) (driven.Handle, error) {
		src, p, referrer, err := base.DecodeHandle(obj, dec)
		if err != nil {
			return nil, err
		}
		mime, err := base.String(obj, "mime", PartTypeLabel)
		if err != nil {
			return nil, err
		}
		return &PartHandle{Handle: base.NewReferredHandle(src, p, referrer), mime: mime}, nil
	})
}
