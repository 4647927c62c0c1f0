package base

import (
	"context"
	"errors"
	"io"
	"mime"

	"github.com/gabriel-vasile/mimetype"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// sniffLength is how much content is classified.
const sniffLength = 512

// DetectType classifies content, returning a bare MIME type.
func DetectType(buf []byte) string {
	detected := mimetype.Detect(buf).String()
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return domain.MIMEOctetStream
	}
	if mt == "application/x-ole-storage" {
		return domain.MIMECDFV2
	}
	return mt
}

// ComputeType reads the first bytes of fr and reconciles their type with
// the guess by name.
func ComputeType(ctx context.Context, fr driven.FileResource) (string, error) {
	rc, err := fr.Open(ctx)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	buf := make([]byte, sniffLength)
	n, err := io.ReadFull(rc, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}
	return domain.PreferType(fr.Handle().GuessType(), DetectType(buf[:n])), nil
}
