package filesystem

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/datascanner/internal/core/domain"
)

// PathFromURL converts a file: URL to an absolute local path.
// Bare absolute paths pass through unchanged.
func PathFromURL(uri string) (string, error) {
	p := uri
	if strings.HasPrefix(uri, "file:") {
		u, err := url.Parse(uri)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		if u.Host != "" && u.Host != "localhost" {
			return "", fmt.Errorf("%w: remote file URL %q", domain.ErrInvalidInput, uri)
		}
		p = u.Path
		if p == "" {
			p = u.Opaque
		}
	}
	if !filepath.IsAbs(p) {
		return "", fmt.Errorf("%w: path %q is not absolute", domain.ErrInvalidInput, p)
	}
	return p, nil
}

// ToURL converts an absolute path to a file: URL.
func ToURL(path string) string {
	return (&url.URL{Scheme: "file", Path: path}).String()
}
