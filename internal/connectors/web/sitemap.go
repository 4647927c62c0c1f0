package web

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/custodia-labs/datascanner/internal/connectors/data"
	"github.com/custodia-labs/datascanner/internal/core/domain"
)

// maxSitemapSize bounds a decompressed sitemap, as the sitemaps protocol
// does.
const maxSitemapSize = 50 << 20

// SitemapEntry is one <url> of a sitemap.
type SitemapEntry struct {
	URL string
	// LastModified is the zero time when the entry has no <lastmod>.
	LastModified time.Time
}

type sitemapDocument struct {
	XMLName  xml.Name
	URLs     []sitemapLocation `xml:"url"`
	Sitemaps []sitemapLocation `xml:"sitemap"`
}

type sitemapLocation struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

// lastModFormats are the W3C datetime forms sitemaps use.
var lastModFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseLastMod(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, f := range lastModFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ProcessSitemap reads the sitemap at rawURL, which may be an http(s) URL
// or a data: URL, and returns its entries in document order. Gzipped
// sitemaps are decompressed. A sitemap index is followed one level down;
// an index inside an index is an error.
func ProcessSitemap(ctx context.Context, fetch func(ctx context.Context, rawURL string) ([]byte, error), rawURL string) ([]SitemapEntry, error) {
	return processSitemap(ctx, fetch, rawURL, true)
}

func processSitemap(ctx context.Context, fetch func(context.Context, string) ([]byte, error), rawURL string, allowIndex bool) ([]SitemapEntry, error) {
	raw, err := loadSitemap(ctx, fetch, rawURL)
	if err != nil {
		return nil, err
	}
	var doc sitemapDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: sitemap %s: %v", domain.ErrInvalidInput, rawURL, err)
	}

	switch doc.XMLName.Local {
	case "urlset":
		entries := make([]SitemapEntry, 0, len(doc.URLs))
		for _, u := range doc.URLs {
			loc := strings.TrimSpace(u.Loc)
			if loc == "" {
				continue
			}
			entries = append(entries, SitemapEntry{URL: loc, LastModified: parseLastMod(u.LastMod)})
		}
		return entries, nil
	case "sitemapindex":
		if !allowIndex {
			return nil, fmt.Errorf("%w: sitemap index %s is nested in another index", domain.ErrInvalidInput, rawURL)
		}
		var entries []SitemapEntry
		for _, s := range doc.Sitemaps {
			loc := strings.TrimSpace(s.Loc)
			if loc == "" {
				continue
			}
			sub, err := processSitemap(ctx, fetch, loc, false)
			if err != nil {
				return nil, err
			}
			entries = append(entries, sub...)
		}
		return entries, nil
	default:
		return nil, fmt.Errorf("%w: %s is not a sitemap (root element %q)", domain.ErrInvalidInput, rawURL, doc.XMLName.Local)
	}
}

func loadSitemap(ctx context.Context, fetch func(context.Context, string) ([]byte, error), rawURL string) ([]byte, error) {
	var raw []byte
	if strings.HasPrefix(rawURL, "data:") {
		_, content, err := data.UnpackURL(rawURL)
		if err != nil {
			return nil, err
		}
		raw = content
	} else {
		content, err := fetch(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		raw = content
	}

	if len(raw) >= 2 && raw[0] == 0x1f && raw[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: sitemap %s: %v", domain.ErrInvalidInput, rawURL, err)
		}
		defer zr.Close()
		raw, err = io.ReadAll(io.LimitReader(zr, maxSitemapSize))
		if err != nil {
			return nil, fmt.Errorf("%w: sitemap %s: %v", domain.ErrInvalidInput, rawURL, err)
		}
	}
	return raw, nil
}

// fetchSitemap is the fetch function of a session.
func (s *session) fetchSitemap(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: sitemap %q: %v", domain.ErrInvalidInput, rawURL, err)
	}
	resp, err := s.do(ctx, s.client, http.MethodGet, u.String())
	if err != nil {
		return nil, domain.Uncontactable(u.Host, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, domain.Unavailable(u.Host, rawURL, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxSitemapSize))
}
