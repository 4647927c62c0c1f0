package libreoffice

import (
	"context"
	"encoding/xml"
	"errors"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/custodia-labs/datascanner/internal/connectors/base"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// ooxmlCore is docProps/core.xml of an Office Open XML package.
type ooxmlCore struct {
	Creator        string `xml:"http://purl.org/dc/elements/1.1/ creator"`
	LastModifiedBy string `xml:"http://schemas.openxmlformats.org/package/2006/metadata/core-properties lastModifiedBy"`
}

// odMeta is meta.xml of an OpenDocument package.
type odMeta struct {
	Meta struct {
		Creator        string `xml:"http://purl.org/dc/elements/1.1/ creator"`
		InitialCreator string `xml:"urn:oasis:names:tc:opendocument:xmlns:meta:1.0 initial-creator"`
	} `xml:"urn:oasis:names:tc:opendocument:xmlns:office:1.0 meta"`
}

func readMember(zr *zip.ReadCloser, name string, v any) bool {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return false
		}
		defer rc.Close()
		return xml.NewDecoder(rc).Decode(v) == nil
	}
	return false
}

// OfficeMetadata reads the author properties of an OOXML or OpenDocument
// file: ooxml-creator, ooxml-modifier, od-creator and od-modifier. Other
// files produce no entries.
func OfficeMetadata(ctx context.Context, fr driven.FileResource) (map[string]string, error) {
	p, release, err := fr.LocalPath(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	zr, err := zip.OpenReader(p)
	if errors.Is(err, zip.ErrFormat) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	md := make(map[string]string)
	var core ooxmlCore
	if readMember(zr, "docProps/core.xml", &core) {
		setTrimmed(md, "ooxml-modifier", core.LastModifiedBy)
		setTrimmed(md, "ooxml-creator", core.Creator)
	}
	var meta odMeta
	if readMember(zr, "meta.xml", &meta) {
		setTrimmed(md, "od-modifier", meta.Meta.Creator)
		setTrimmed(md, "od-creator", meta.Meta.InitialCreator)
	}
	return md, nil
}

func setTrimmed(md map[string]string, k, v string) {
	if v = strings.TrimSpace(v); v != "" {
		md[k] = v
	}
}

// OfficeMetadataEntries exposes OfficeMetadata of the file behind h as
// metadata entries, reading the file once.
func OfficeMetadataEntries(h driven.Handle, sm driven.StateManager) []base.MetadataEntry {
	var props base.Lazy[map[string]string]
	get := func(ctx context.Context) (map[string]string, error) {
		return props.Get(func() (map[string]string, error) {
			fr, ok := h.Follow(sm).(driven.FileResource)
			if !ok {
				return nil, nil
			}
			return OfficeMetadata(ctx, fr)
		})
	}
	var entries []base.MetadataEntry
	for _, key := range []string{"ooxml-creator", "ooxml-modifier", "od-creator", "od-modifier"} {
		entries = append(entries, base.MetadataEntry{
			Key: key,
			Value: func(ctx context.Context) (any, error) {
				md, err := get(ctx)
				if err != nil {
					return nil, err
				}
				if v, ok := md[key]; ok {
					return v, nil
				}
				return nil, nil
			},
		})
	}
	return entries
}
