// Package email reads the headers of RFC 822 messages.
package email

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	mailsrc "github.com/custodia-labs/datascanner/internal/connectors/mail"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// Converter produces a message's headers.
type Converter struct{}

// New creates a new email headers converter.
func New() *Converter {
	return &Converter{}
}

// OutputType returns domain.OutputEmailHeaders.
func (c *Converter) OutputType() domain.OutputType { return domain.OutputEmailHeaders }

// SupportedMIMETypes returns message/rfc822.
func (c *Converter) SupportedMIMETypes() []string { return []string{domain.MIMEMessage} }

// Convert returns the headers keyed by lower-cased name. Encoded words are
// decoded and repeated headers are joined with ", ".
func (c *Converter) Convert(ctx context.Context, res driven.Resource) (any, error) {
	fr, ok := res.(driven.FileResource)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no content", domain.ErrNoConversion, res.Handle())
	}
	rc, err := fr.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	msg, err := mail.ReadMessage(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, res.Handle(), err)
	}
	return Headers(msg.Header), nil
}

// Headers flattens h into a map of lower-cased names to decoded values.
func Headers(h mail.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		decoded := make([]string, 0, len(values))
		for _, v := range values {
			decoded = append(decoded, mailsrc.DecodeWords(v))
		}
		out[strings.ToLower(name)] = strings.Join(decoded, ", ")
	}
	return out
}
