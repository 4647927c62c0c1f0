// Package filesystem implements the "file" Source: every regular file below
// a local directory.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"path/filepath"

	"github.com/custodia-labs/datascanner/internal/connectors/base"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/logger"
)

// TypeLabel is the JSON type label of both the Source and its Handles.
const TypeLabel = "file"

var log = logger.Named("filesystem")

// Ensure Source implements the interface.
var _ driven.Source = (*Source)(nil)

// Source is a local directory tree.
type Source struct {
	path string
}

// New creates a Source for an absolute directory path.
func New(path string) (*Source, error) {
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("%w: path %q is not absolute", domain.ErrInvalidInput, path)
	}
	return &Source{path: path}, nil
}

// Path returns the directory path.
func (s *Source) Path() string { return s.path }

func (s *Source) CrunchName() string { return "FilesystemSource" }

func (s *Source) CrunchProperties() []domain.Property {
	return []domain.Property{{Name: "_path", Value: s.path}}
}

func (s *Source) Type() string                   { return TypeLabel }
func (s *Source) YieldsIndependentSources() bool { return true }
func (s *Source) Handle() driven.Handle          { return nil }
func (s *Source) Censor() driven.Source          { return s }

func (s *Source) ToJSON() map[string]any {
	return map[string]any{"type": TypeLabel, "path": s.path}
}

// Acquire yields the directory against which relative paths resolve.
func (s *Source) Acquire(ctx context.Context, sm driven.StateManager) (any, func() error, error) {
	return s.path, nil, nil
}

// Handles walks the tree in lexical order, skipping directories that
// cannot be read.
func (s *Source) Handles(ctx context.Context, sm driven.StateManager) iter.Seq2[driven.Handle, error] {
	return func(yield func(driven.Handle, error) bool) {
		root, err := sm.Open(ctx, s)
		if err != nil {
			yield(nil, err)
			return
		}
		for rel, err := range Walk(ctx, root.(string)) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(NewHandle(s, rel), nil) {
				return
			}
		}
	}
}

// Walk yields the slash-separated paths of the regular files below dir in
// lexical order. Unreadable directories are skipped; any other error ends
// the walk.
func Walk(ctx context.Context, dir string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stop := errors.New("stop")
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrPermission) {
					log.Debug("skipping %s: %v", p, err)
					if d != nil && d.IsDir() {
						return fs.SkipDir
					}
					return nil
				}
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			if !yield(filepath.ToSlash(rel), nil) {
				return stop
			}
			return nil
		})
		if err != nil && !errors.Is(err, stop) {
			yield("", err)
		}
	}
}

// Ensure Handle implements the interface.
var _ driven.Handle = (*Handle)(nil)

// Handle is a file below a Source's directory.
type Handle struct {
	base.Handle
}

// NewHandle creates a Handle for relpath below s.
func NewHandle(s driven.Source, relpath string) *Handle {
	return &Handle{Handle: base.NewHandle(s, relpath)}
}

// MakeHandle returns a Handle for an absolute file path, split into its
// directory and name.
func MakeHandle(path string) (*Handle, error) {
	dir, name := filepath.Split(path)
	if name == "" {
		return nil, fmt.Errorf("%w: %q has no file name", domain.ErrInvalidInput, path)
	}
	s, err := New(filepath.Clean(dir))
	if err != nil {
		return nil, err
	}
	return NewHandle(s, name), nil
}

func (h *Handle) fullPath() string {
	src, ok := h.Source().(*Source)
	if !ok {
		return h.RelativePath()
	}
	return filepath.Join(src.path, filepath.FromSlash(h.RelativePath()))
}

func (h *Handle) CrunchName() string                  { return "FilesystemHandle" }
func (h *Handle) CrunchProperties() []domain.Property { return h.PropertiesWithReferrer() }
func (h *Handle) Type() string                        { return TypeLabel }
func (h *Handle) PresentationName() string            { return filepath.Base(h.fullPath()) }
func (h *Handle) PresentationPlace() string           { return filepath.Dir(h.fullPath()) }
func (h *Handle) String() string                      { return h.fullPath() }
func (h *Handle) SortKey() string                     { return h.fullPath() }
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
	return NewResource(h, sm)
}

// Resource is a local file. It also serves Handles of other Sources whose
// cookie is a directory path.
type Resource struct {
	*base.PathResource
}

// NewResource binds h to sm.
func NewResource(h driven.Handle, sm driven.StateManager) *Resource {
	return &Resource{PathResource: base.NewPathResource(h, sm)}
}

// Metadata reports last-modified and the owner's numeric user ID.
func (r *Resource) Metadata(ctx context.Context) map[string]any {
	return base.CollectMetadata(ctx, r,
		base.LastModifiedEntry(r),
		base.MetadataEntry{Key: "filesystem-owner-uid", Value: r.ownerUID},
	)
}

// Register adds the "file" Source, its Handles and file: URLs to reg.
func Register(reg driven.SourceRegistry) {
	reg.RegisterURL("file", func(rawURL string) (driven.Source, error) {
		p, err := PathFromURL(rawURL)
		if err != nil {
			return nil, err
		}
		return New(p)
	})
	reg.RegisterSource(TypeLabel, func(obj map[string]any, _ driven.Decoder) (driven.Source, error) {
		p, err := base.String(obj, "path", TypeLabel)
		if err != nil {
			return nil, err
		}
		s, err := New(p)
		if err != nil {
			return nil, &domain.DeserialisationError{Type: TypeLabel, Property: "path"}
		}
		return s, nil
	})
	base.RegisterStockHandle(reg, TypeLabel, func(src driven.Source, path string, referrer driven.Handle) (driven.Handle, error) {
		return &Handle{Handle: base.NewReferredHandle(src, path, referrer)}, nil
	})
}
