// Package pdf implements the PDF derived Sources: a document is split into
// pages, and each page into a text file and its embedded images.
package pdf

import (
	"context"
	"fmt"
	"iter"
	"strconv"

	"github.com/custodia-labs/datascanner/internal/connectors/base"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/logger"
)

// Type labels.
const (
	TypeLabel       = "pdf"
	PageTypeLabel   = "pdf-page"
	ObjectTypeLabel = "pdf-object"
)

var log = logger.Named("pdf")

// Ensure Source implements the interface.
var _ driven.DerivedSource = (*Source)(nil)

// Source exposes the pages of a PDF document. Its cookie is the path of a
// local copy, rewritten by Ghostscript first when that is enabled.
type Source struct {
	base.Derived
	tools *Tools
}

// New wraps h.
func New(h driven.Handle, tools *Tools) *Source {
	return &Source{Derived: base.NewDerived(h), tools: tools}
}

func (s *Source) CrunchName() string                  { return "PDFSource" }
func (s *Source) CrunchProperties() []domain.Property { return s.Properties() }
func (s *Source) Type() string                        { return TypeLabel }
func (s *Source) Censor() driven.Source               { return New(s.Handle().Censor(), s.tools) }
func (s *Source) WithHandle(h driven.Handle) driven.Source {
	return New(h, s.tools)
}
func (s *Source) ToJSON() map[string]any { return base.DerivedJSON(TypeLabel, s.Handle()) }

func (s *Source) Acquire(ctx context.Context, sm driven.StateManager) (any, func() error, error) {
	p, release, err := s.ParentPath(ctx, sm)
	if err != nil {
		return nil, nil, err
	}
	if !s.tools.Ghostscript.Enabled {
		return p, release, nil
	}

	dir, removeDir, err := base.TempDir()
	if err != nil {
		_ = release()
		return nil, nil, err
	}
	converted, err := s.tools.Compress(ctx, p, dir)
	if err != nil {
		_ = removeDir()
		_ = release()
		return nil, nil, err
	}
	return converted, func() error {
		err := removeDir()
		if rerr := release(); err == nil {
			err = rerr
		}
		return err
	}, nil
}

func (s *Source) info(ctx context.Context, sm driven.StateManager) (Info, error) {
	cookie, err := sm.Open(ctx, s)
	if err != nil {
		return nil, err
	}
	return s.tools.Info(ctx, cookie.(string))
}

// Handles yields one Handle per page, numbered from 1. A document that
// cannot be read, for example because it has a real password, has no
// pages.
func (s *Source) Handles(ctx context.Context, sm driven.StateManager) iter.Seq2[driven.Handle, error] {
	return func(yield func(driven.Handle, error) bool) {
		if _, err := sm.Open(ctx, s); err != nil {
			yield(nil, err)
			return
		}
		info, err := s.info(ctx, sm)
		if err != nil {
			log.Debug("no pages in %s: %v", s.Handle(), err)
			return
		}
		for i := 1; i <= info.Pages(); i++ {
			if !yield(NewPageHandle(s, strconv.Itoa(i)), nil) {
				return
			}
		}
	}
}

// Ensure PageHandle implements the interface.
var _ driven.Handle = (*PageHandle)(nil)

// PageHandle is a page of a document; its relative path is the page number.
type PageHandle struct {
	base.Handle
}

// NewPageHandle creates a PageHandle.
func NewPageHandle(s driven.Source, page string) *PageHandle {
	return &PageHandle{Handle: base.NewHandle(s, page)}
}

func (h *PageHandle) CrunchName() string                  { return "PDFPageHandle" }
func (h *PageHandle) CrunchProperties() []domain.Property { return h.PropertiesWithReferrer() }
func (h *PageHandle) Type() string                        { return PageTypeLabel }
func (h *PageHandle) GuessType() string                   { return domain.MIMEPDFPage }

func (h *PageHandle) PresentationName() string {
	return fmt.Sprintf("page %s of %s", h.RelativePath(), h.Source().Handle().PresentationName())
}

func (h *PageHandle) PresentationPlace() string { return h.Source().Handle().PresentationPlace() }
func (h *PageHandle) String() string            { return base.DefaultString(h) }
func (h *PageHandle) SortKey() string           { return h.Source().Handle().SortKey() }
func (h *PageHandle) ToJSON() map[string]any    { return base.HandleJSON(h) }

func (h *PageHandle) Censor() driven.Handle {
	return NewPageHandle(h.Source().Censor(), h.RelativePath())
}

func (h *PageHandle) WithSource(s driven.Source) driven.Handle {
	c := *h
	c.SetSource(s)
	return &c
}

func (h *PageHandle) Follow(sm driven.StateManager) driven.Resource {
	return &PageResource{Resource: base.NewResource(h, sm)}
}

// PageResource is a page. It is not a file: its content is reached by
// deriving a page Source from it.
type PageResource struct {
	base.Resource
}

func (r *PageResource) source() (*Source, error) {
	s, ok := r.Handle().Source().(*Source)
	if !ok {
		return nil, fmt.Errorf("%w: page outside a PDF", domain.ErrResourceUnavailable)
	}
	return s, nil
}

// Check reports whether the page number is within the document.
func (r *PageResource) Check(ctx context.Context) (bool, error) {
	s, err := r.source()
	if err != nil {
		return false, err
	}
	info, err := s.info(ctx, r.StateManager())
	if err != nil {
		return false, err
	}
	page, err := strconv.Atoi(r.Handle().RelativePath())
	if err != nil {
		return false, nil
	}
	return page >= 1 && page <= info.Pages(), nil
}

// Metadata reports the document author as pdf-author.
func (r *PageResource) Metadata(ctx context.Context) map[string]any {
	return base.CollectMetadata(ctx, r, base.MetadataEntry{
		Key: "pdf-author",
		Value: func(ctx context.Context) (any, error) {
			s, err := r.source()
			if err != nil {
				return nil, err
			}
			info, err := s.info(ctx, r.StateManager())
			if err != nil {
				return nil, err
			}
			if a := info["Author"]; a != "" {
				return a, nil
			}
			return nil, nil
		},
	})
}

// Ensure PageSource implements the interface.
var _ driven.DerivedSource = (*PageSource)(nil)

// PageSource exposes the text and images of one page. Its cookie is a
// temporary directory holding page.txt and image-* files, so its Handles
// resolve like local files.
type PageSource struct {
	base.Derived
	tools *Tools
}

// NewPageSource wraps a page Handle.
func NewPageSource(h driven.Handle, tools *Tools) *PageSource {
	return &PageSource{Derived: base.NewDerived(h), tools: tools}
}

func (s *PageSource) CrunchName() string                  { return "PDFPageSource" }
func (s *PageSource) CrunchProperties() []domain.Property { return s.Properties() }
func (s *PageSource) Type() string                        { return PageTypeLabel }
func (s *PageSource) Censor() driven.Source {
	return NewPageSource(s.Handle().Censor(), s.tools)
}
func (s *PageSource) WithHandle(h driven.Handle) driven.Source {
	return NewPageSource(h, s.tools)
}
func (s *PageSource) ToJSON() map[string]any { return base.DerivedJSON(PageTypeLabel, s.Handle()) }

func (s *PageSource) Acquire(ctx context.Context, sm driven.StateManager) (any, func() error, error) {
	p, err := sm.Open(ctx, s.Handle().Source())
	if err != nil {
		return nil, nil, err
	}
	path, ok := p.(string)
	if !ok {
		return nil, nil, fmt.Errorf("%w: page is not part of a PDF", domain.ErrResourceUnavailable)
	}
	dir, release, err := base.TempDir()
	if err != nil {
		return nil, nil, err
	}
	skip, _ := sm.Configuration()[domain.KeySkipImages].(bool)
	if err := s.tools.ExtractPage(ctx, path, s.Handle().RelativePath(), dir, skip); err != nil {
		_ = release()
		return nil, nil, err
	}
	return dir, release, nil
}

// Handles yields the extracted files in name order.
func (s *PageSource) Handles(ctx context.Context, sm driven.StateManager) iter.Seq2[driven.Handle, error] {
	return func(yield func(driven.Handle, error) bool) {
		dir, err := sm.Open(ctx, s)
		if err != nil {
			yield(nil, err)
			return
		}
		names, err := listDir(dir.(string))
		if err != nil {
			yield(nil, err)
			return
		}
		for _, n := range names {
			if !yield(NewObjectHandle(s, n), nil) {
				return
			}
		}
	}
}

// Ensure ObjectHandle implements the interface.
var _ driven.Handle = (*ObjectHandle)(nil)

// ObjectHandle is a file extracted from a page.
type ObjectHandle struct {
	base.Handle
}

// NewObjectHandle creates an ObjectHandle.
func NewObjectHandle(s driven.Source, name string) *ObjectHandle {
	return &ObjectHandle{Handle: base.NewHandle(s, name)}
}

func (h *ObjectHandle) CrunchName() string                  { return "PDFObjectHandle" }
func (h *ObjectHandle) CrunchProperties() []domain.Property { return h.PropertiesWithReferrer() }
func (h *ObjectHandle) Type() string                        { return ObjectTypeLabel }
func (h *ObjectHandle) PresentationName() string            { return h.Source().Handle().PresentationName() }
func (h *ObjectHandle) PresentationPlace() string           { return h.Source().Handle().PresentationPlace() }
func (h *ObjectHandle) String() string                      { return base.DefaultString(h) }
func (h *ObjectHandle) SortKey() string                     { return h.Source().Handle().SortKey() }
func (h *ObjectHandle) ToJSON() map[string]any              { return base.HandleJSON(h) }

func (h *ObjectHandle) Censor() driven.Handle {
	return NewObjectHandle(h.Source().Censor(), h.RelativePath())
}

func (h *ObjectHandle) WithSource(s driven.Source) driven.Handle {
	c := *h
	c.SetSource(s)
	return &c
}

func (h *ObjectHandle) Follow(sm driven.StateManager) driven.Resource {
	return base.NewPathResource(h, sm)
}

// Register adds the PDF Sources and their Handles to reg.
func Register(reg driven.SourceRegistry, tools *Tools) {
	base.RegisterDerived(reg, TypeLabel, []string{domain.MIMEPDF}, func(h driven.Handle) driven.Source {
		return New(h, tools)
	})
	base.RegisterDerived(reg, PageTypeLabel, []string{domain.MIMEPDFPage}, func(h driven.Handle) driven.Source {
		return NewPageSource(h, tools)
	})
	base.RegisterStockHandle(reg, PageTypeLabel, func(src driven.Source, p string, referrer driven.Handle) (driven.Handle, error) {
		return &PageHandle{Handle: base.NewReferredHandle(src, p, referrer)}, nil
	})
	base.RegisterStockHandle(reg, ObjectTypeLabel, func(src driven.Source, p string, referrer driven.Handle) (driven.Handle, error) {
		return &ObjectHandle{Handle: base.NewReferredHandle(src, p, referrer)}, nil
	})
}
