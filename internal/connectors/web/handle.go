package web

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/datascanner/internal/connectors/base"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// Ensure Handle implements the interface.
var _ driven.Handle = (*Handle)(nil)

// Handle is a page of a website. The last-modified hint, typically taken
// from a sitemap, and the referrer are not part of its identity.
type Handle struct {
	base.Handle
	lastModified time.Time
}

// NewHandle creates a Handle for relpath below s. A zero lastModified means
// no hint.
func NewHandle(s driven.Source, relpath string, referrer driven.Handle, lastModified time.Time) *Handle {
	return &Handle{Handle: base.NewReferredHandle(s, relpath, referrer), lastModified: lastModified}
}

// LastModifiedHint returns the hint, or the zero time.
func (h *Handle) LastModifiedHint() time.Time { return h.lastModified }

func (h *Handle) CrunchName() string                  { return "WebHandle" }
func (h *Handle) CrunchProperties() []domain.Property { return h.Properties() }
func (h *Handle) Type() string                        { return TypeLabel }

// Name ignores any query string.
func (h *Handle) Name() string {
	p, _, _ := strings.Cut(h.RelativePath(), "?")
	return base.BaseName(p)
}

func (h *Handle) GuessType() string { return domain.GuessType(h.Name()) }

func (h *Handle) sourceURL() string {
	if s, ok := h.Source().(*Source); ok {
		return s.url
	}
	return ""
}

// PresentationURL joins the Source URL and the relative path.
func (h *Handle) PresentationURL() string {
	return strings.TrimSuffix(h.sourceURL(), "/") + "/" + h.RelativePath()
}

func (h *Handle) PresentationName() string { return h.PresentationURL() }

// PresentationPlace is the host name.
func (h *Handle) PresentationPlace() string {
	u, err := url.Parse(h.sourceURL())
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func (h *Handle) String() string  { return h.PresentationURL() }
func (h *Handle) SortKey() string { return h.PresentationURL() }

func (h *Handle) ToJSON() map[string]any {
	obj := base.HandleJSON(h)
	obj["last_modified"] = nil
	if !h.lastModified.IsZero() {
		obj["last_modified"] = domain.FormatTime(h.lastModified)
	}
	return obj
}

func (h *Handle) Censor() driven.Handle {
	var referrer driven.Handle
	if r := h.Referrer(); r != nil {
		referrer = r.Censor()
	}
	return NewHandle(h.Source().Censor(), h.RelativePath(), referrer, h.lastModified)
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

// headers is the memoised response to a HEAD request.
type headers struct {
	status int
	fields map[string]string
}

// Resource is a page fetched over HTTP.
type Resource struct {
	base.Resource
	head base.Lazy[headers]
	lm   base.Lazy[time.Time]
}

func (r *Resource) session(ctx context.Context) (*session, error) {
	cookie, err := r.Cookie(ctx)
	if err != nil {
		return nil, err
	}
	return cookie.(*session), nil
}

func (r *Resource) url() string { return r.Handle().PresentationURL() }

func (r *Resource) host() string {
	u, err := url.Parse(r.url())
	if err != nil {
		return r.url()
	}
	return u.Host
}

// Headers returns the response headers of a HEAD request with lowercased
// names.
func (r *Resource) Headers(ctx context.Context) (map[string]string, error) {
	h, err := r.fetchHead(ctx)
	if err != nil {
		return nil, err
	}
	return h.fields, nil
}

func (r *Resource) fetchHead(ctx context.Context) (headers, error) {
	return r.head.Get(func() (headers, error) {
		sess, err := r.session(ctx)
		if err != nil {
			return headers{}, err
		}
		resp, err := sess.head(ctx, sess.client, r.url())
		if err != nil {
			return headers{}, domain.Uncontactable(r.host(), r.url(), err.Error())
		}
		resp.Body.Close()
		fields := make(map[string]string, len(resp.Header))
		for k, v := range resp.Header {
			if len(v) > 0 {
				fields[strings.ToLower(k)] = v[0]
			}
		}
		return headers{status: resp.StatusCode, fields: fields}, nil
	})
}

// Check reports false for 404 Not Found and 410 Gone.
func (r *Resource) Check(ctx context.Context) (bool, error) {
	h, err := r.fetchHead(ctx)
	if err != nil {
		return false, err
	}
	return h.status != http.StatusNotFound && h.status != http.StatusGone, nil
}

// Size returns the Content-Length, counting the body when there is none.
func (r *Resource) Size(ctx context.Context) (int64, error) {
	h, err := r.fetchHead(ctx)
	if err != nil {
		return 0, err
	}
	if cl, ok := h.fields["content-length"]; ok {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return n, nil
		}
	}
	rc, err := r.Open(ctx)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	return io.Copy(io.Discard, rc)
}

// LastModified prefers the Handle's hint to the Last-Modified header, and
// falls back to the time of the first call.
func (r *Resource) LastModified(ctx context.Context) (time.Time, error) {
	return r.lm.Get(func() (time.Time, error) {
		if hint := r.Handle().(*Handle).lastModified; !hint.IsZero() {
			return hint, nil
		}
		h, err := r.fetchHead(ctx)
		if err != nil {
			return time.Time{}, err
		}
		if raw, ok := h.fields["last-modified"]; ok {
			if t, err := http.ParseTime(raw); err == nil {
				return t, nil
			}
		}
		return time.Now(), nil
	})
}

// Open fetches the page.
func (r *Resource) Open(ctx context.Context) (io.ReadCloser, error) {
	sess, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := sess.do(ctx, sess.client, http.MethodGet, r.url())
	if err != nil {
		return nil, domain.Uncontactable(r.host(), r.url(), err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, domain.Unavailable(r.host(), r.url(), resp.StatusCode)
	}
	return resp.Body, nil
}

func (r *Resource) LocalPath(ctx context.Context) (string, func() error, error) {
	return base.MaterialisePath(ctx, r)
}

// ComputeType uses the Content-Type header, classifying the content when
// the server sends none.
func (r *Resource) ComputeType(ctx context.Context) (string, error) {
	h, err := r.fetchHead(ctx)
	if err != nil {
		return "", err
	}
	if ct := h.fields["content-type"]; ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			return mt, nil
		}
	}
	return base.ComputeType(ctx, r)
}

// Metadata reports the site's host as web-domain.
func (r *Resource) Metadata(ctx context.Context) map[string]any {
	return base.CollectMetadata(ctx, r,
		base.MetadataEntry{
			Key: domain.MetaWebDomain,
			Value: func(context.Context) (any, error) {
				u, err := url.Parse(r.Handle().(*Handle).sourceURL())
				if err != nil {
					return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
				}
				return u.Host, nil
			},
		},
		base.LastModifiedEntry(r),
	)
}
