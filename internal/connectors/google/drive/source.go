// Package drive implements the "googledrive" Source: every file visible to
// an OAuth access token in Google Drive.
package drive

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/custodia-labs/datascanner/internal/connectors/base"
	"github.com/custodia-labs/datascanner/internal/connectors/google"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/logger"
)

// TypeLabel is the JSON type label of both the Source and its Handles.
const TypeLabel = "googledrive"

const (
	server = "www.googleapis.com"

	// MimeTypeFolder is the MIME type of Drive folders.
	MimeTypeFolder = "application/vnd.google-apps.folder"
	// nativePrefix marks Google Docs, Sheets and Slides, which have no
	// content of their own and are exported as PDF.
	nativePrefix = "application/vnd.google-apps."

	listQuery  = "mimeType != '" + MimeTypeFolder + "' and trashed = false"
	listFields = googleapi.Field("nextPageToken, files(id, name, mimeType)")
	fileFields = googleapi.Field("id, name, mimeType, size, quotaBytesUsed, modifiedTime")

	// DefaultPageSize is the number of files asked for per list request.
	DefaultPageSize = 100
)

var log = logger.Named("googledrive")

// Ensure Source implements the interface.
var _ driven.Source = (*Source)(nil)

// Source is the Drive of one account.
type Source struct {
	accessCode string
	pageSize   int
	opts       *google.Options
}

// New creates a Source. A non-positive pageSize uses DefaultPageSize.
func New(accessCode string, pageSize int, opts *google.Options) *Source {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Source{accessCode: accessCode, pageSize: pageSize, opts: opts}
}

func (s *Source) CrunchName() string { return "GoogleDriveSource" }

func (s *Source) CrunchProperties() []domain.Property {
	return []domain.Property{{Name: "_access_code", Value: domain.Optional(s.accessCode)}}
}

func (s *Source) Type() string                   { return TypeLabel }
func (s *Source) YieldsIndependentSources() bool { return true }
func (s *Source) Handle() driven.Handle          { return nil }

// Censor drops the access code.
func (s *Source) Censor() driven.Source { return New("", s.pageSize, s.opts) }

// URL returns the googledrive: URL of s.
func (s *Source) URL() string { return TypeLabel + "://" + s.accessCode }

func (s *Source) ToJSON() map[string]any {
	return map[string]any{"type": TypeLabel, "access_code": domain.Optional(s.accessCode)}
}

// client is the cookie.
type client struct {
	svc    *drive.Service
	caller *google.Caller
}

// Acquire builds the API client. No request is made.
func (s *Source) Acquire(ctx context.Context, _ driven.StateManager) (any, func() error, error) {
	svc, err := drive.NewService(ctx, google.ClientOptions(s.accessCode, s.opts)...)
	if err != nil {
		return nil, nil, fmt.Errorf("create drive service: %w", err)
	}
	c := &client{svc: svc, caller: google.NewCaller(google.ServiceDrive, s.opts)}
	return c, func() error { return nil }, nil
}

// Handles lists every file that is not a folder and not in the bin.
func (s *Source) Handles(ctx context.Context, sm driven.StateManager) iter.Seq2[driven.Handle, error] {
	return func(yield func(driven.Handle, error) bool) {
		cookie, err := sm.Open(ctx, s)
		if err != nil {
			yield(nil, err)
			return
		}
		c := cookie.(*client)
		pageToken := ""
		for {
			list, err := google.Call(ctx, c.caller, func(ctx context.Context) (*drive.FileList, error) {
				call := c.svc.Files.List().
					Q(listQuery).
					Fields(listFields).
					PageSize(int64(s.pageSize)).
					Context(ctx)
				if pageToken != "" {
					call = call.PageToken(pageToken)
				}
				return call.Do()
			})
			if err != nil {
				yield(nil, google.MapError(server, err))
				return
			}
			for _, f := range list.Files {
				if !yield(NewHandle(s, f.Id, f.Name), nil) {
					return
				}
			}
			if list.NextPageToken == "" {
				return
			}
			pageToken = list.NextPageToken
			log.Debug("fetching next page of files")
		}
	}
}

// Ensure Handle implements the interface.
var _ driven.Handle = (*Handle)(nil)

// Handle is a file, addressed by its Drive ID. It remembers the file's
// display name.
type Handle struct {
	base.Handle
	name string
}

// NewHandle creates a Handle for the file id.
func NewHandle(s driven.Source, id, name string) *Handle {
	return &Handle{Handle: base.NewHandle(s, id), name: name}
}

func (h *Handle) CrunchName() string                  { return "GoogleDriveHandle" }
func (h *Handle) CrunchProperties() []domain.Property { return h.PropertiesWithReferrer() }
func (h *Handle) Type() string                        { return TypeLabel }

// Name is the display name, or the ID when that is unknown.
func (h *Handle) Name() string {
	if h.name != "" {
		return h.name
	}
	return h.RelativePath()
}

func (h *Handle) GuessType() string         { return domain.GuessType(h.Name()) }
func (h *Handle) PresentationName() string  { return h.Name() }
func (h *Handle) PresentationPlace() string { return "Google Drive" }
func (h *Handle) String() string            { return h.Name() }
func (h *Handle) SortKey() string           { return h.Name() }

// PresentationURL opens the file in the Drive web viewer.
func (h *Handle) PresentationURL() string {
	return "https://drive.google.com/file/d/" + h.RelativePath() + "/view"
}

func (h *Handle) ToJSON() map[string]any {
	obj := base.HandleJSON(h)
	obj["name"] = h.name
	return obj
}

func (h *Handle) Censor() driven.Handle {
	return NewHandle(h.Source().Censor(), h.RelativePath(), h.name)
}

func (h *Handle) WithSource(s driven.Source) driven.Handle {
	c := *h
	c.SetSource(s)
	return &c
}

func (h *Handle) Follow(sm driven.StateManager) driven.Resource {
	return &Resource{Resource: base.NewResource(h, sm)}
}

// Ensure Resource implements the interface.
var _ driven.FileResource = (*Resource)(nil)

// Resource is a Drive file. Native Google documents are read as PDF
// exports.
type Resource struct {
	base.Resource
	file base.Lazy[*drive.File]
}

func (r *Resource) client(ctx context.Context) (*client, error) {
	cookie, err := r.Cookie(ctx)
	if err != nil {
		return nil, err
	}
	return cookie.(*client), nil
}

func (r *Resource) get(ctx context.Context) (*drive.File, error) {
	c, err := r.client(ctx)
	if err != nil {
		return nil, err
	}
	return google.Call(ctx, c.caller, func(ctx context.Context) (*drive.File, error) {
		return c.svc.Files.Get(r.Handle().RelativePath()).Fields(fileFields).Context(ctx).Do()
	})
}

// File returns the memoised file metadata.
func (r *Resource) File(ctx context.Context) (*drive.File, error) {
	return r.file.Get(func() (*drive.File, error) {
		f, err := r.get(ctx)
		return f, google.MapError(server, err)
	})
}

// Check reports whether the file still exists.
func (r *Resource) Check(ctx context.Context) (bool, error) {
	_, err := r.get(ctx)
	switch {
	case err == nil:
		return true, nil
	case google.IsNotFound(err):
		return false, nil
	default:
		return false, google.MapError(server, err)
	}
}

// Size returns the file size, or the quota it uses when Drive reports no
// size.
func (r *Resource) Size(ctx context.Context) (int64, error) {
	f, err := r.File(ctx)
	if err != nil {
		return 0, err
	}
	if f.Size > 0 {
		return f.Size, nil
	}
	return f.QuotaBytesUsed, nil
}

// LastModified returns the file's modification time.
func (r *Resource) LastModified(ctx context.Context) (time.Time, error) {
	f, err := r.File(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, f.ModifiedTime)
}

func isNative(mimeType string) bool {
	return strings.HasPrefix(mimeType, nativePrefix)
}

// Open downloads the file, exporting native documents as PDF.
func (r *Resource) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := r.File(ctx)
	if err != nil {
		return nil, err
	}
	c, err := r.client(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := google.Call(ctx, c.caller, func(ctx context.Context) (*http.Response, error) {
		if isNative(f.MimeType) {
			return c.svc.Files.Export(f.Id, domain.MIMEPDF).Context(ctx).Download()
		}
		return c.svc.Files.Get(f.Id).Context(ctx).Download()
	})
	if err != nil {
		return nil, google.MapError(server, err)
	}
	return resp.Body, nil
}

func (r *Resource) LocalPath(ctx context.Context) (string, func() error, error) {
	return base.MaterialisePath(ctx, r)
}

// ComputeType is application/pdf for native documents.
func (r *Resource) ComputeType(ctx context.Context) (string, error) {
	f, err := r.File(ctx)
	if err != nil {
		return "", err
	}
	if isNative(f.MimeType) {
		return domain.MIMEPDF, nil
	}
	return base.ComputeType(ctx, r)
}

func (r *Resource) Metadata(ctx context.Context) map[string]any {
	return base.CollectMetadata(ctx, r, base.LastModifiedEntry(r))
}

// Register adds the "googledrive" Source, its Handles and googledrive: URLs
// to reg.
func Register(reg driven.SourceRegistry, pageSize int, opts *google.Options) {
	reg.RegisterURL(TypeLabel, func(rawURL string) (driven.Source, error) {
		token, ok := strings.CutPrefix(rawURL, TypeLabel+"://")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a %s URL", domain.ErrInvalidInput, rawURL, TypeLabel)
		}
		return New(token, pageSize, opts), nil
	})
	reg.RegisterSource(TypeLabel, func(obj map[string]any, _ driven.Decoder) (driven.Source, error) {
		return New(base.OptString(obj, "access_code"), pageSize, opts), nil
	})
	reg.RegisterHandle(TypeLabel, func(obj map[string]any, dec driven.Decoder) (driven.Handle, error) {
		src, path, referrer, err := base.DecodeHandle(obj, dec)
		if err != nil {
			return nil, err
		}
		return &Handle{
			Handle: base.NewReferredHandle(src, path, referrer),
			name:   base.OptString(obj, "name"),
		}, nil
	})
}
