// Package html extracts text and outbound links from HTML documents.
package html

import (
	"context"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// Ensure the converters implement the interface.
var (
	_ driven.Converter = (*TextConverter)(nil)
	_ driven.Converter = (*LinksConverter)(nil)
)

var mimeTypes = []string{domain.MIMEHTML, "application/xhtml+xml"}

// TextConverter produces the visible text of a page.
type TextConverter struct{}

// NewText creates a new HTML text converter.
func NewText() *TextConverter {
	return &TextConverter{}
}

// OutputType returns domain.OutputText.
func (c *TextConverter) OutputType() domain.OutputType { return domain.OutputText }

// SupportedMIMETypes returns the HTML MIME types.
func (c *TextConverter) SupportedMIMETypes() []string { return mimeTypes }

// Convert returns the text outside <script> and <style>, with runs of
// whitespace collapsed.
func (c *TextConverter) Convert(ctx context.Context, res driven.Resource) (any, error) {
	r, closer, err := open(ctx, res)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return Text(r), nil
}

// Text extracts the visible text of an HTML document.
func Text(r io.Reader) string {
	var parts []string
	skip := 0
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(parts, " ")
		case html.StartTagToken:
			if name, _ := z.TagName(); hidden(string(name)) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); hidden(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			if fields := strings.Fields(string(z.Text())); len(fields) > 0 {
				parts = append(parts, strings.Join(fields, " "))
			}
		}
	}
}

func hidden(tag string) bool {
	switch tag {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}

// LinksConverter produces the outbound links of a page: links to other
// hosts over http or https. Links back to the page's own origin are left
// out.
type LinksConverter struct{}

// NewLinks creates a new HTML links converter.
func NewLinks() *LinksConverter {
	return &LinksConverter{}
}

// OutputType returns domain.OutputLinks.
func (c *LinksConverter) OutputType() domain.OutputType { return domain.OutputLinks }

// SupportedMIMETypes returns the HTML MIME types.
func (c *LinksConverter) SupportedMIMETypes() []string { return mimeTypes }

// Convert returns the outbound links, resolved against the Handle's
// presentation URL when it has one.
func (c *LinksConverter) Convert(ctx context.Context, res driven.Resource) (any, error) {
	r, closer, err := open(ctx, res)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	var base *url.URL
	if where := res.Handle().PresentationURL(); where != "" {
		base, _ = url.Parse(where)
	}
	return Outlinks(r, base), nil
}

// Outlinks returns the distinct <a href> and <img src> targets of an HTML
// document that point away from base's origin. When base is nil, every
// absolute http(s) link counts.
func Outlinks(r io.Reader, base *url.URL) []domain.Link {
	links := []domain.Link{}
	seen := make(map[string]bool)

	z := html.NewTokenizer(r)
	var anchor *domain.Link
	var text strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return links
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			attr := ""
			switch tok.Data {
			case "a":
				attr = "href"
			case "img":
				attr = "src"
			default:
				continue
			}
			target := resolve(base, attrValue(tok, attr))
			if target == "" || seen[target] {
				continue
			}
			seen[target] = true
			link := domain.NewLink(target, attrValue(tok, "alt"))
			if tok.Data == "a" && tok.Type == html.StartTagToken {
				anchor = &link
				text.Reset()
				continue
			}
			links = append(links, link)
		case html.TextToken:
			if anchor != nil {
				text.Write(z.Text())
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "a" && anchor != nil {
				links = append(links, domain.NewLink(anchor.URL, text.String()))
				anchor = nil
			}
		}
	}
}

func attrValue(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// resolve returns the absolute form of ref when it is an outbound http(s)
// link, and "" otherwise.
func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return ""
	}
	if base != nil && strings.EqualFold(u.Host, base.Host) && u.Scheme == base.Scheme {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

// open returns the content of res decoded to UTF-8.
func open(ctx context.Context, res driven.Resource) (io.Reader, io.Closer, error) {
	fr, ok := res.(driven.FileResource)
	if !ok {
		return nil, nil, domain.ErrNoConversion
	}
	rc, err := fr.Open(ctx)
	if err != nil {
		return nil, nil, err
	}
	r, err := charset.NewReader(rc, "text/html")
	if err != nil {
		return rc, rc, nil
	}
	return r, rc, nil
}
