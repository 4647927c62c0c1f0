package base

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// TempDir creates a private temporary directory and returns a function
// that removes it.
func TempDir() (string, func() error, error) {
	dir, err := os.MkdirTemp("", "datascanner-")
	if err != nil {
		return "", nil, err
	}
	return dir, func() error { return os.RemoveAll(dir) }, nil
}

// SafeName turns a Handle name into a single path element.
func SafeName(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_", "\x00", "_").Replace(name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}

// MaterialisePath copies the content of fr into a private temporary
// directory, keeping its name, and returns the file's path. The
// directory is removed by release.
func MaterialisePath(ctx context.Context, fr driven.FileResource) (string, func() error, error) {
	dir, release, err := TempDir()
	if err != nil {
		return "", nil, err
	}
	p := filepath.Join(dir, SafeName(fr.Handle().Name()))
	if err := copyTo(ctx, fr, p); err != nil {
		_ = release()
		return "", nil, err
	}
	return p, release, nil
}

func copyTo(ctx context.Context, fr driven.FileResource, p string) error {
	rc, err := fr.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
