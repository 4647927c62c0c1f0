// Package web implements the "web" Source: the pages of a website found by
// crawling from a root URL or listed in a trusted sitemap.
package web

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/datascanner/internal/backoff"
	"github.com/custodia-labs/datascanner/internal/connectors/base"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/logger"
)

// TypeLabel is the JSON type label of both the Source and its Handles.
const TypeLabel = "web"

// UserAgent identifies the crawler to web servers.
const UserAgent = "datascanner"

var log = logger.Named("web")

// Options are the HTTP settings shared by every web Source built by one
// registry. They do not take part in a Source's identity.
type Options struct {
	Timeout           time.Duration
	TTL               int
	RequestsPerSecond float64
}

// OptionsFromSettings extracts the web options from s.
func OptionsFromSettings(s domain.HTTPSettings) Options {
	return Options{Timeout: s.Timeout, TTL: s.TTL, RequestsPerSecond: s.RequestsPerSecond}
}

func (o *Options) ttl() int {
	if o == nil || o.TTL <= 0 {
		return domain.DefaultSettings().HTTP.TTL
	}
	return o.TTL
}

// Ensure Source implements the interface.
var _ driven.Source = (*Source)(nil)

// Source is a website below a root URL.
type Source struct {
	url     string
	sitemap string
	exclude []string
	ttl     int

	opts *Options
}

// New creates a Source for the site at rawURL. sitemap, if not empty, is
// trusted: crawling visits its entries and nothing else. URLs starting with
// any of exclude are skipped. A ttl of zero uses the configured default.
func New(rawURL, sitemap string, exclude []string, ttl int, opts *Options) (*Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not a web URL", domain.ErrInvalidInput, rawURL)
	}
	return &Source{url: rawURL, sitemap: sitemap, exclude: exclude, ttl: ttl, opts: opts}, nil
}

// URL returns the root URL.
func (s *Source) URL() string { return s.url }

// Sitemap returns the sitemap URL, or "".
func (s *Source) Sitemap() string { return s.sitemap }

// Exclude returns the excluded URL prefixes.
func (s *Source) Exclude() []string { return s.exclude }

// TTL returns the crawl depth.
func (s *Source) TTL() int {
	if s.ttl > 0 {
		return s.ttl
	}
	return s.opts.ttl()
}

func (s *Source) CrunchName() string { return "WebSource" }

func (s *Source) CrunchProperties() []domain.Property {
	return []domain.Property{
		{Name: "_url", Value: s.url},
		{Name: "_sitemap", Value: domain.Optional(s.sitemap)},
	}
}

func (s *Source) Type() string                   { return TypeLabel }
func (s *Source) YieldsIndependentSources() bool { return true }
func (s *Source) Handle() driven.Handle          { return nil }
func (s *Source) Censor() driven.Source          { return s }

func (s *Source) ToJSON() map[string]any {
	obj := map[string]any{
		"type":    TypeLabel,
		"url":     s.url,
		"sitemap": nil,
		"exclude": s.exclude,
	}
	if s.sitemap != "" {
		obj["sitemap"] = s.sitemap
	}
	if s.exclude == nil {
		obj["exclude"] = []string{}
	}
	if s.ttl > 0 {
		obj["ttl"] = s.ttl
	}
	return obj
}

// withURL returns a Source like s rooted at rawURL.
func (s *Source) withURL(rawURL string) *Source {
	c := *s
	c.url = rawURL
	return &c
}

// session is the cookie of a web Source.
type session struct {
	client  *http.Client
	crawl   *http.Client
	limiter *rate.Limiter
	retrier *backoff.Retrier
}

func newSession(opts *Options) *session {
	timeout := domain.DefaultSettings().HTTP.Timeout
	limit := rate.Inf
	if opts != nil {
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
		if opts.RequestsPerSecond > 0 {
			limit = rate.Limit(opts.RequestsPerSecond)
		}
	}
	client := &http.Client{Timeout: timeout}
	crawl := &http.Client{
		Timeout:   timeout,
		Transport: client.Transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &session{
		client:  client,
		crawl:   crawl,
		limiter: rate.NewLimiter(limit, 1),
		retrier: backoff.NewWeb(),
	}
}

// do sends one request through the rate limiter and the retrier.
func (s *session) do(ctx context.Context, client *http.Client, method, rawURL string) (*http.Response, error) {
	return backoff.DoHTTP(ctx, s.retrier, func(ctx context.Context) (*http.Response, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", UserAgent)
		log.Debug("%s %s", method, rawURL)
		return client.Do(req)
	})
}

// head sends HEAD, falling back to GET when the server refuses HEAD. The
// caller closes the body.
func (s *session) head(ctx context.Context, client *http.Client, rawURL string) (*http.Response, error) {
	resp, err := s.do(ctx, client, http.MethodHead, rawURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusMethodNotAllowed {
		resp.Body.Close()
		return s.do(ctx, client, http.MethodGet, rawURL)
	}
	return resp, nil
}

// Acquire creates the HTTP session.
func (s *Source) Acquire(context.Context, driven.StateManager) (any, func() error, error) {
	sess := newSession(s.opts)
	return sess, func() error {
		sess.client.CloseIdleConnections()
		return nil
	}, nil
}

// Handles crawls the site breadth first. With a sitemap, its entries are
// queued and the crawl visits nothing else.
func (s *Source) Handles(ctx context.Context, sm driven.StateManager) iter.Seq2[driven.Handle, error] {
	return func(yield func(driven.Handle, error) bool) {
		cookie, err := sm.Open(ctx, s)
		if err != nil {
			yield(nil, err)
			return
		}
		sess := cookie.(*session)
		c, err := newCrawler(s, sess)
		if err != nil {
			yield(nil, err)
			return
		}

		if s.sitemap != "" {
			entries, err := ProcessSitemap(ctx, sess.fetchSitemap, s.sitemap)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, e := range entries {
				u, err := url.Parse(e.URL)
				if err != nil {
					log.Warn("sitemap entry %q: %v", e.URL, err)
					continue
				}
				c.add(u, s.TTL(), nil, e.LastModified)
			}
			c.addRoot()
			c.freeze()
		} else {
			c.addRoot()
		}
		c.run(ctx, yield)
	}
}

// Register adds the "web" Source and its Handles to reg.
func Register(reg driven.SourceRegistry, opts Options) {
	o := &opts
	fromURL := func(rawURL string) (driven.Source, error) {
		return New(rawURL, "", nil, 0, o)
	}
	reg.RegisterURL("http", fromURL)
	reg.RegisterURL("https", fromURL)
	reg.RegisterSource(TypeLabel, func(obj map[string]any, _ driven.Decoder) (driven.Source, error) {
		rawURL, err := base.String(obj, "url", TypeLabel)
		if err != nil {
			return nil, err
		}
		return New(rawURL, base.OptString(obj, "sitemap"), base.OptStrings(obj, "exclude"), base.OptInt(obj, "ttl", 0), o)
	})
	reg.RegisterHandle(TypeLabel, func(obj map[string]any, dec driven.Decoder) (driven.Handle, error) {
		src, path, referrer, err := base.DecodeHandle(obj, dec)
		if err != nil {
			return nil, err
		}
		var lm time.Time
		if raw := base.OptString(obj, "last_modified"); raw != "" {
			if lm, err = domain.ParseTime(raw); err != nil {
				return nil, &domain.DeserialisationError{Type: TypeLabel, Property: "last_modified"}
			}
		}
		return NewHandle(src, path, referrer, lm), nil
	})
}
