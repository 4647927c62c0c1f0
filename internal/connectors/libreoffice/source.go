// Package libreoffice implements the "lo" derived Source: office documents
// converted to HTML (or CSV for large spreadsheets) by LibreOffice.
package libreoffice

import (
	"context"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/custodia-labs/datascanner/internal/connectors/base"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/logger"
)

// Type labels.
const (
	TypeLabel       = "lo"
	ObjectTypeLabel = "lo-object"
)

const ooxmlPrefix = "application/vnd.openxmlformats-officedocument."

// Input filter names by MIME type.
var filters = map[string]string{
	"application/msword":                             "MS Word 97",
	"application/vnd.oasis.opendocument.text":        "writer8",
	"application/vnd.ms-excel":                       "MS Excel 97",
	"application/vnd.oasis.opendocument.spreadsheet": "calc8",
	ooxmlPrefix + "wordprocessingml.document":        "Office Open XML Text",
	ooxmlPrefix + "spreadsheetml.sheet":              "Calc Office Open XML",
}

// spreadsheetFilters are the filters whose output may fall back to CSV.
var spreadsheetFilters = map[string]bool{
	"MS Excel 97":          true,
	"calc8":                true,
	"Calc Office Open XML": true,
}

// MIMETypes lists the types this Source is derived from. OOXML
// spreadsheets are read directly by the spreadsheet Source instead.
func MIMETypes() []string {
	types := []string{domain.MIMECDFV2}
	for m := range filters {
		if m != ooxmlPrefix+"spreadsheetml.sheet" {
			types = append(types, m)
		}
	}
	sort.Strings(types)
	return types
}

var log = logger.Named("libreoffice")

// Options configures conversion.
type Options struct {
	Runner driven.CommandRunner
	// SizeThreshold is the HTML size above which spreadsheet output is
	// replaced by CSV. Zero disables the fallback.
	SizeThreshold int64
}

// Ensure Source implements the interface.
var _ driven.DerivedSource = (*Source)(nil)

// Source exposes the files LibreOffice produces from a document. Its
// cookie is the output directory.
type Source struct {
	base.Derived
	opts *Options
}

// New wraps h.
func New(h driven.Handle, opts *Options) *Source {
	return &Source{Derived: base.NewDerived(h), opts: opts}
}

func (s *Source) CrunchName() string                  { return "LibreOfficeSource" }
func (s *Source) CrunchProperties() []domain.Property { return s.Properties() }
func (s *Source) Type() string                        { return TypeLabel }
func (s *Source) Censor() driven.Source               { return New(s.Handle().Censor(), s.opts) }
func (s *Source) WithHandle(h driven.Handle) driven.Source {
	return New(h, s.opts)
}
func (s *Source) ToJSON() map[string]any { return base.DerivedJSON(TypeLabel, s.Handle()) }

// filterFor picks the input filter for a local file, or "" if LibreOffice
// should not be asked to read it.
func (s *Source) filterFor(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}
	detected := base.DetectType(buf[:n])
	if name, ok := filters[detected]; ok {
		return name, nil
	}
	if detected == domain.MIMEOctetStream || detected == domain.MIMEZip {
		if guess := s.Handle().GuessType(); strings.HasPrefix(guess, ooxmlPrefix) {
			return filters[guess], nil
		}
	}
	return "", nil
}

func (s *Source) convert(ctx context.Context, filter, target, outDir, p string) error {
	profile, removeProfile, err := base.TempDir()
	if err != nil {
		return err
	}
	defer removeProfile()
	_, err = s.opts.Runner.Run(ctx, "libreoffice",
		"-env:UserInstallation=file://"+profile,
		"--infilter="+filter,
		"--convert-to", target,
		"--outdir", outDir, p)
	return err
}

// Acquire converts a local copy of the document. A document of an
// unsupported type produces an empty directory.
func (s *Source) Acquire(ctx context.Context, sm driven.StateManager) (any, func() error, error) {
	p, releaseParent, err := s.ParentPath(ctx, sm)
	if err != nil {
		return nil, nil, err
	}
	defer releaseParent()

	dir, release, err := base.TempDir()
	if err != nil {
		return nil, nil, err
	}
	filter, err := s.filterFor(p)
	if err != nil || filter == "" {
		if err == nil {
			log.Debug("%s is not a supported office document", s.Handle())
		}
		return dir, release, err
	}
	if err := s.convert(ctx, filter, "html", dir, p); err != nil {
		_ = release()
		return nil, nil, err
	}
	if spreadsheetFilters[filter] && s.opts.SizeThreshold > 0 {
		if err := s.csvFallback(ctx, filter, dir, p); err != nil {
			_ = release()
			return nil, nil, err
		}
	}
	return dir, release, nil
}

// csvFallback replaces oversized HTML output with CSV.
func (s *Source) csvFallback(ctx context.Context, filter, dir, p string) error {
	var size int64
	names, err := listFiles(dir)
	if err != nil {
		return err
	}
	for _, n := range names {
		if fi, err := os.Stat(filepath.Join(dir, n)); err == nil {
			size += fi.Size()
		}
	}
	if size <= s.opts.SizeThreshold {
		return nil
	}
	log.Debug("HTML output of %s is %d bytes, converting to CSV", s.Handle(), size)
	for _, n := range names {
		if err := os.Remove(filepath.Join(dir, n)); err != nil {
			return err
		}
	}
	return s.convert(ctx, filter, "csv:Text - txt - csv (StarCalc):44,34,76", dir, p)
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Handles yields the converted files.
func (s *Source) Handles(ctx context.Context, sm driven.StateManager) iter.Seq2[driven.Handle, error] {
	return func(yield func(driven.Handle, error) bool) {
		dir, err := sm.Open(ctx, s)
		if err != nil {
			yield(nil, err)
			return
		}
		names, err := listFiles(dir.(string))
		if err != nil {
			yield(nil, err)
			return
		}
		for _, n := range names {
			if !yield(NewObjectHandle(s, n), nil) {
				return
			}
		}
	}
}

// Ensure ObjectHandle implements the interface.
var _ driven.Handle = (*ObjectHandle)(nil)

// ObjectHandle is a file produced by the conversion.
type ObjectHandle struct {
	base.Handle
}

// NewObjectHandle creates an ObjectHandle.
func NewObjectHandle(s driven.Source, name string) *ObjectHandle {
	return &ObjectHandle{Handle: base.NewHandle(s, name)}
}

func (h *ObjectHandle) CrunchName() string                  { return "LibreOfficeObjectHandle" }
func (h *ObjectHandle) CrunchProperties() []domain.Property { return h.PropertiesWithReferrer() }
func (h *ObjectHandle) Type() string                        { return ObjectTypeLabel }
func (h *ObjectHandle) PresentationName() string            { return h.Source().Handle().PresentationName() }
func (h *ObjectHandle) PresentationPlace() string           { return h.Source().Handle().PresentationPlace() }
func (h *ObjectHandle) String() string                      { return h.Source().Handle().String() }
func (h *ObjectHandle) SortKey() string                     { return h.Source().Handle().SortKey() }
func (h *ObjectHandle) ToJSON() map[string]any              { return base.HandleJSON(h) }

func (h *ObjectHandle) Censor() driven.Handle {
	return NewObjectHandle(h.Source().Censor(), h.RelativePath())
}

func (h *ObjectHandle) WithSource(s driven.Source) driven.Handle {
	c := *h
	c.SetSource(s)
	return &c
}

func (h *ObjectHandle) Follow(sm driven.StateManager) driven.Resource {
	return &ObjectResource{PathResource: base.NewPathResource(h, sm)}
}

// ObjectResource is a converted file. Its metadata adds the document's
// office author properties.
type ObjectResource struct {
	*base.PathResource
}

func (r *ObjectResource) Metadata(ctx context.Context) map[string]any {
	entries := append([]base.MetadataEntry{base.LastModifiedEntry(r)},
		OfficeMetadataEntries(r.Handle().Source().Handle(), r.StateManager())...)
	return base.CollectMetadata(ctx, r, entries...)
}

// Register adds the "lo" Source and its Handles to reg.
func Register(reg driven.SourceRegistry, opts *Options) {
	base.RegisterDerived(reg, TypeLabel, MIMETypes(), func(h driven.Handle) driven.Source {
		return New(h, opts)
	})
	base.RegisterStockHandle(reg, ObjectTypeLabel, func(src driven.Source, p string, referrer driven.Handle) (driven.Handle, error) {
		return &ObjectHandle{Handle: base.NewReferredHandle(src, p, referrer)}, nil
	})
}
