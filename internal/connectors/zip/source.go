// Package zip implements the "zip" derived Source: the members of a ZIP
// archive.
package zip

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/custodia-labs/datascanner/internal/connectors/base"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// TypeLabel is the JSON type label of both the Source and its Handles.
const TypeLabel = "zip"

// flagEncrypted marks a member whose data is encrypted.
const flagEncrypted = 0x1

// Ensure Source implements the interface.
var _ driven.DerivedSource = (*Source)(nil)

// Source exposes the members of an archive.
type Source struct {
	base.Derived
}

// New wraps h.
func New(h driven.Handle) *Source {
	return &Source{Derived: base.NewDerived(h)}
}

func (s *Source) CrunchName() string                  { return "ZipSource" }
func (s *Source) CrunchProperties() []domain.Property { return s.Properties() }
func (s *Source) Type() string                        { return TypeLabel }
func (s *Source) Censor() driven.Source               { return New(s.Handle().Censor()) }
func (s *Source) WithHandle(h driven.Handle) driven.Source {
	return New(h)
}
func (s *Source) ToJSON() map[string]any { return base.DerivedJSON(TypeLabel, s.Handle()) }

// archive is the cookie: an open archive backed by a local copy.
type archive struct {
	*zip.ReadCloser
}

func (a archive) find(name string) *zip.File {
	for _, f := range a.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Acquire opens the archive from a local copy of the wrapped Handle.
func (s *Source) Acquire(ctx context.Context, sm driven.StateManager) (any, func() error, error) {
	p, release, err := s.ParentPath(ctx, sm)
	if err != nil {
		return nil, nil, err
	}
	zr, err := zip.OpenReader(p)
	if err != nil {
		_ = release()
		return nil, nil, err
	}
	return archive{zr}, func() error {
		err := zr.Close()
		if rerr := release(); err == nil {
			err = rerr
		}
		return err
	}, nil
}

// Handles yields every file member, skipping directories and encrypted
// members.
func (s *Source) Handles(ctx context.Context, sm driven.StateManager) iter.Seq2[driven.Handle, error] {
	return func(yield func(driven.Handle, error) bool) {
		cookie, err := sm.Open(ctx, s)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, f := range cookie.(archive).File {
			if f.Flags&flagEncrypted != 0 || strings.HasSuffix(f.Name, "/") {
				continue
			}
			if !yield(NewHandle(s, f.Name), nil) {
				return
			}
		}
	}
}

// Ensure Handle implements the interface.
var _ driven.Handle = (*Handle)(nil)

// Handle is an archive member.
type Handle struct {
	base.Handle
}

// NewHandle creates a Handle for the member relpath of s.
func NewHandle(s driven.Source, relpath string) *Handle {
	return &Handle{Handle: base.NewHandle(s, relpath)}
}

func (h *Handle) CrunchName() string                  { return "ZipHandle" }
func (h *Handle) CrunchProperties() []domain.Property { return h.PropertiesWithReferrer() }
func (h *Handle) Type() string                        { return TypeLabel }
func (h *Handle) PresentationName() string            { return h.RelativePath() }
func (h *Handle) PresentationPlace() string           { return h.Source().Handle().String() }
func (h *Handle) String() string                      { return base.DefaultString(h) }
func (h *Handle) SortKey() string                     { return h.Source().Handle().SortKey() }
func (h *Handle) ToJSON() map[string]any              { return base.HandleJSON(h) }

func (h *Handle) Censor() driven.Handle {
	return NewHandle(h.Source().Censor(), h.RelativePath())
}

func (h *Handle) WithSource(s driven.Source) driven.Handle {
	c := *h
	c.SetSource(s)
	return &c
}

func (h *Handle) Follow(sm driven.StateManager) driven.Resource {
	return &Resource{Resource: base.NewResource(h, sm)}
}

// Ensure Resource implements the interfaces.
var (
	_ driven.FileResource        = (*Resource)(nil)
	_ driven.TimestampedResource = (*Resource)(nil)
)

// Resource is an archive member.
type Resource struct {
	base.Resource
	info base.Lazy[*zip.File]
}

func (r *Resource) member(ctx context.Context) (*zip.File, error) {
	return r.info.Get(func() (*zip.File, error) {
		cookie, err := r.Cookie(ctx)
		if err != nil {
			return nil, err
		}
		f := cookie.(archive).find(r.Handle().RelativePath())
		if f == nil {
			return nil, fmt.Errorf("%w: no member %q", domain.ErrNotFound, r.Handle().RelativePath())
		}
		return f, nil
	})
}

// Check reports whether the archive has the member.
func (r *Resource) Check(ctx context.Context) (bool, error) {
	cookie, err := r.Cookie(ctx)
	if err != nil {
		return false, err
	}
	return cookie.(archive).find(r.Handle().RelativePath()) != nil, nil
}

func (r *Resource) Size(ctx context.Context) (int64, error) {
	f, err := r.member(ctx)
	if err != nil {
		return 0, err
	}
	return int64(f.UncompressedSize64), nil
}

// LastModified returns the member's recorded modification time.
func (r *Resource) LastModified(ctx context.Context) (time.Time, error) {
	f, err := r.member(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return f.Modified, nil
}

func (r *Resource) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := r.member(ctx)
	if err != nil {
		return nil, err
	}
	return f.Open()
}

func (r *Resource) LocalPath(ctx context.Context) (string, func() error, error) {
	return base.MaterialisePath(ctx, r)
}

func (r *Resource) ComputeType(ctx context.Context) (string, error) {
	return base.ComputeType(ctx, r)
}

func (r *Resource) Metadata(ctx context.Context) map[string]any {
	return base.CollectMetadata(ctx, r, base.LastModifiedEntry(r))
}

// Register adds the "zip" Source and its Handles to reg.
func Register(reg driven.SourceRegistry) {
	base.RegisterDerived(reg, TypeLabel, []string{domain.MIMEZip}, func(h driven.Handle) driven.Source {
		return New(h)
	})
	base.RegisterStockHandle(reg, TypeLabel, func(src driven.Source, path string, referrer driven.Handle) (driven.Handle, error) {
		return &Handle{Handle: base.NewReferredHandle(src, path, referrer)}, nil
	})
}
