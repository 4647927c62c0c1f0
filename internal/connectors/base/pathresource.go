package base

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// Ensure PathResource implements the interface.
var _ driven.FileResource = (*PathResource)(nil)

// PathResource is a file below a directory: its Source's cookie is the
// directory path and the Handle's relative path names the file in it.
type PathResource struct {
	Resource
	stat Lazy[os.FileInfo]
}

// NewPathResource binds h to sm.
func NewPathResource(h driven.Handle, sm driven.StateManager) *PathResource {
	return &PathResource{Resource: NewResource(h, sm)}
}

// Path returns the full filesystem path.
func (r *PathResource) Path(ctx context.Context) (string, error) {
	cookie, err := r.Cookie(ctx)
	if err != nil {
		return "", err
	}
	dir, ok := cookie.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s has no directory", domain.ErrResourceUnavailable, r.Handle().Source().Type())
	}
	return filepath.Join(dir, filepath.FromSlash(r.Handle().RelativePath())), nil
}

// Stat returns the memoised file information.
func (r *PathResource) Stat(ctx context.Context) (os.FileInfo, error) {
	return r.stat.Get(func() (os.FileInfo, error) {
		p, err := r.Path(ctx)
		if err != nil {
			return nil, err
		}
		return os.Stat(p)
	})
}

// Check reports whether the file exists. Errors other than non-existence
// are returned.
func (r *PathResource) Check(ctx context.Context) (bool, error) {
	p, err := r.Path(ctx)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// Size returns the file size.
func (r *PathResource) Size(ctx context.Context) (int64, error) {
	fi, err := r.Stat(ctx)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// LastModified returns the file's modification time.
func (r *PathResource) LastModified(ctx context.Context) (time.Time, error) {
	fi, err := r.Stat(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

// Open opens the file for reading.
func (r *PathResource) Open(ctx context.Context) (io.ReadCloser, error) {
	p, err := r.Path(ctx)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// LocalPath returns the file's own path; release does nothing.
func (r *PathResource) LocalPath(ctx context.Context) (string, func() error, error) {
	p, err := r.Path(ctx)
	if err != nil {
		return "", nil, err
	}
	return p, func() error { return nil }, nil
}

// ComputeType classifies the file's content.
func (r *PathResource) ComputeType(ctx context.Context) (string, error) {
	return ComputeType(ctx, r)
}

// Metadata reports last-modified.
func (r *PathResource) Metadata(ctx context.Context) map[string]any {
	return CollectMetadata(ctx, r, LastModifiedEntry(r))
}
