package mail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/custodia-labs/datascanner/internal/core/domain"
)

// Part is a node of a parsed message: either a multipart container or a
// leaf with decoded content.
type Part struct {
	Header    textproto.MIMEHeader
	MediaType string
	Params    map[string]string
	Children  []*Part
	Body      []byte
}

// Multipart reports whether p is a container.
func (p *Part) Multipart() bool { return p.Children != nil }

// Filename returns the attachment name from Content-Disposition or the
// Content-Type name parameter, or "".
func (p *Part) Filename() string {
	if _, params, err := mime.ParseMediaType(p.Header.Get("Content-Disposition")); err == nil {
		if fn := params["filename"]; fn != "" {
			return fn
		}
	}
	return p.Params["name"]
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.NewReaderLabel}

// DecodeWords decodes RFC 2047 encoded words, returning s unchanged when
// it cannot be decoded.
func DecodeWords(s string) string {
	if s == "" {
		return ""
	}
	decoded, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// ParseMessage parses an RFC 822 message into its part tree.
func ParseMessage(raw []byte) (*Part, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return parsePart(textproto.MIMEHeader(msg.Header), msg.Body)
}

func parsePart(header textproto.MIMEHeader, body io.Reader) (*Part, error) {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = domain.MIMEPlainText
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, params = domain.MIMEPlainText, map[string]string{}
	}
	p := &Part{Header: header, MediaType: mediaType, Params: params}

	if strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "" {
		p.Children = []*Part{}
		mr := multipart.NewReader(body, params["boundary"])
		for {
			raw, err := mr.NextRawPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
			}
			child, err := parsePart(raw.Header, raw)
			raw.Close()
			if err != nil {
				return nil, err
			}
			p.Children = append(p.Children, child)
		}
		return p, nil
	}

	content, err := io.ReadAll(decodeTransfer(header.Get("Content-Transfer-Encoding"), body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	p.Body = content
	return p, nil
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, &lineStripper{r: r})
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

// lineStripper drops CR and LF so that line-wrapped base64 decodes.
type lineStripper struct {
	r io.Reader
}

func (l *lineStripper) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	j := 0
	for _, b := range p[:n] {
		if b != '\r' && b != '\n' {
			p[j] = b
			j++
		}
	}
	return j, err
}

// isTextBody reports whether the parts are a plain text body followed by
// its HTML rendering.
func isTextBody(parts []*Part) bool {
	return len(parts) == 2 &&
		parts[0].MediaType == domain.MIMEPlainText &&
		parts[1].MediaType == domain.MIMEHTML
}

// Leaf is a non-multipart part together with its index path.
type Leaf struct {
	Path string
	Part *Part
}

// Leaves lists the leaf parts of root in document order. Each path is the
// slash-separated list of child indices followed by the part's file name,
// which is empty for body parts. Of a multipart/alternative pair of plain
// text and HTML only the HTML is listed.
func Leaves(root *Part) []Leaf {
	var out []Leaf
	var walk func(path []string, p *Part)
	walk = func(path []string, p *Part) {
		if !p.Multipart() {
			out = append(out, Leaf{
				Path: strings.Join(extend(path, p.Filename()), "/"),
				Part: p,
			})
			return
		}
		if p.MediaType == "multipart/alternative" && isTextBody(p.Children) {
			walk(extend(path, "1"), p.Children[1])
			return
		}
		for i, c := range p.Children {
			walk(extend(path, strconv.Itoa(i)), c)
		}
	}
	walk(nil, root)
	return out
}

func extend(path []string, c string) []string {
	return append(path[:len(path):len(path)], c)
}

// Find navigates from root along the index components of path, ignoring
// the trailing file name.
func Find(root *Part, path string) (*Part, bool) {
	components := strings.Split(path, "/")
	where := root
	for _, c := range components[:len(components)-1] {
		idx, err := strconv.Atoi(c)
		if err != nil {
			return nil, false
		}
		if idx < 0 || idx >= len(where.Children) {
			return nil, false
		}
		where = where.Children[idx]
	}
	if where.Multipart() {
		return nil, false
	}
	return where, true
}
