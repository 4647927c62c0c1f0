package web

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// maxPageSize bounds how much of a page is read for links.
const maxPageSize = 10 << 20

// commonLabels are leading host labels that do not change which site a
// host name refers to.
var commonLabels = map[string]bool{
	"www":    true,
	"www2":   true,
	"m":      true,
	"mobile": true,
	"en":     true,
	"da":     true,
	"secure": true,
}

// stripHost lowercases host and removes common leading labels.
func stripHost(host string) string {
	labels := strings.Split(strings.ToLower(host), ".")
	for len(labels) > 1 && commonLabels[labels[0]] {
		labels = labels[1:]
	}
	return strings.Join(labels, ".")
}

// equivalentHosts reports whether a and b, with ports, name the same site.
func equivalentHosts(a, b *url.URL) bool {
	return a.Port() == b.Port() && stripHost(a.Hostname()) == stripHost(b.Hostname())
}

// canonical returns a copy of u without fragment or user information and
// with an empty path replaced by "/".
func canonical(u *url.URL) *url.URL {
	c := &url.URL{
		Scheme:   strings.ToLower(u.Scheme),
		Host:     strings.ToLower(u.Host),
		Path:     u.Path,
		RawPath:  u.RawPath,
		RawQuery: u.RawQuery,
	}
	if c.Path == "" {
		c.Path = "/"
		c.RawPath = ""
	}
	return c
}

// pending is a URL waiting to be visited.
type pending struct {
	url          *url.URL
	ttl          int
	referrer     driven.Handle
	lastModified time.Time
}

// crawler walks a site breadth first. It never shares its state: every
// call to Source.Handles builds a new one.
type crawler struct {
	root    *Source
	sess    *session
	base    *url.URL
	visited map[string]bool
	queue   []pending
	frozen  bool
	sources map[string]*Source
}

func newCrawler(root *Source, sess *session) (*crawler, error) {
	u, err := url.Parse(root.url)
	if err != nil {
		return nil, err
	}
	b := canonical(u)
	return &crawler{
		root:    root,
		sess:    sess,
		base:    b,
		visited: make(map[string]bool),
		sources: map[string]*Source{origin(b): root},
	}, nil
}

func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

func (c *crawler) addRoot() {
	c.add(c.base, c.root.TTL(), nil, time.Time{})
}

// freeze stops further additions.
func (c *crawler) freeze() {
	c.frozen = true
}

func (c *crawler) excluded(u *url.URL) bool {
	s := u.String()
	for _, e := range c.root.exclude {
		if e != "" && strings.HasPrefix(s, e) {
			return true
		}
	}
	return false
}

// local reports whether u is on the crawled site: the same or an
// equivalent host, reached over http or https.
func (c *crawler) local(u *url.URL) bool {
	return u.Host == c.base.Host || equivalentHosts(u, c.base)
}

// belowBase reports whether u's path is the base path or below it.
func (c *crawler) belowBase(u *url.URL) bool {
	bp := strings.TrimSuffix(c.base.Path, "/")
	return u.Path == bp || u.Path == bp+"/" || strings.HasPrefix(u.Path, bp+"/")
}

func (c *crawler) crawlable(u *url.URL) bool {
	return c.local(u) && c.belowBase(u) && !c.excluded(u)
}

// add queues u unless it has been seen, is not crawlable, or the crawler
// is frozen. A URL at an equivalent host moves the base's host there; the
// base keeps its scheme.
func (c *crawler) add(u *url.URL, ttl int, referrer driven.Handle, lastModified time.Time) {
	if c.frozen || ttl < 0 {
		return
	}
	u = canonical(u)
	if u.Scheme != "http" && u.Scheme != "https" {
		return
	}
	if !c.crawlable(u) {
		return
	}
	key := u.String()
	if c.visited[key] {
		return
	}
	if u.Host != c.base.Host {
		log.Debug("base moves from %s to %s", c.base.Host, u.Host)
		c.base.Host = u.Host
	}
	c.visited[key] = true
	c.queue = append(c.queue, pending{url: u, ttl: ttl, referrer: referrer, lastModified: lastModified})
}

// sourceFor returns the Source rooted at u's origin and the root's path.
// The root Source is never modified.
func (c *crawler) sourceFor(u *url.URL) *Source {
	o := origin(u)
	if s, ok := c.sources[o]; ok {
		return s
	}
	rootURL, _ := url.Parse(c.root.url)
	s := c.root.withURL(o + rootURL.EscapedPath())
	c.sources[o] = s
	return s
}

func (c *crawler) handleFor(p pending) *Handle {
	src := c.sourceFor(p.url)
	return NewHandle(src, relativePath(src.url, p.url), p.referrer, p.lastModified)
}

// relativePath returns u relative to the directory named by sourceURL.
func relativePath(sourceURL string, u *url.URL) string {
	prefix := strings.TrimSuffix(sourceURL, "/")
	full := u.String()
	if full == prefix || full == prefix+"/" {
		return ""
	}
	return strings.TrimPrefix(full, prefix+"/")
}

// run visits the queue in order, yielding a Handle for every page that is
// not a redirect.
func (c *crawler) run(ctx context.Context, yield func(driven.Handle, error) bool) {
	for len(c.queue) > 0 {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}
		p := c.queue[0]
		c.queue = c.queue[1:]
		h := c.handleFor(p)

		if !c.frozen && p.ttl > 0 {
			emit, err := c.visit(ctx, p, h)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !emit {
				continue
			}
		}
		if !yield(h, nil) {
			return
		}
	}
}

// visit fetches p and queues what it links to. It reports false for
// redirects, whose targets are queued in their place.
func (c *crawler) visit(ctx context.Context, p pending, h *Handle) (bool, error) {
	target := p.url.String()
	log.Debug("visiting %s (ttl %d)", target, p.ttl)
	resp, err := c.sess.head(ctx, c.sess.crawl, target)
	if err != nil {
		return false, domain.Uncontactable(p.url.Host, target, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case isRedirect(resp.StatusCode):
		if loc := resp.Header.Get("Location"); loc != "" {
			if next, err := p.url.Parse(loc); err == nil {
				c.add(next, p.ttl-1, p.referrer, p.lastModified)
			}
		}
		return false, nil
	case resp.StatusCode == http.StatusOK && isHTML(resp.Header.Get("Content-Type")):
		body := resp.Body
		if resp.Request.Method != http.MethodGet {
			page, err := c.sess.do(ctx, c.sess.crawl, http.MethodGet, target)
			if err != nil {
				return false, domain.Uncontactable(p.url.Host, target, err.Error())
			}
			defer page.Body.Close()
			body = page.Body
		}
		for _, link := range extractLinks(io.LimitReader(body, maxPageSize), p.url) {
			c.add(link, p.ttl-1, h, time.Time{})
		}
	}
	return true, nil
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && (mt == domain.MIMEHTML || mt == "application/xhtml+xml")
}

// extractLinks returns the targets of <a href> and <img src> elements,
// resolved against page. Links marked rel="nofollow" are left out.
func extractLinks(r io.Reader, page *url.URL) []*url.URL {
	var links []*url.URL
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return links
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			var attr string
			switch tok.Data {
			case "a":
				attr = "href"
			case "img":
				attr = "src"
			default:
				continue
			}
			var ref string
			nofollow := false
			for _, a := range tok.Attr {
				switch strings.ToLower(a.Key) {
				case attr:
					ref = strings.TrimSpace(a.Val)
				case "rel":
					for _, v := range strings.Fields(strings.ToLower(a.Val)) {
						if v == "nofollow" {
							nofollow = true
						}
					}
				}
			}
			if ref == "" || nofollow {
				continue
			}
			if u, err := page.Parse(ref); err == nil {
				links = append(links, u)
			}
		}
	}
}
