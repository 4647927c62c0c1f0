// Package dropbox implements the "dropbox" Source: every downloadable file
// in the Dropbox of the account an access token belongs to.
package dropbox

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/users"

	"github.com/custodia-labs/datascanner/internal/connectors/base"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/logger"
)

// TypeLabel is the JSON type label of both the Source and its Handles.
const TypeLabel = "dropbox"

const server = "api.dropboxapi.com"

var log = logger.Named("dropbox")

// API is the part of the Dropbox API the Source uses.
type API interface {
	ListFolder(arg *files.ListFolderArg) (*files.ListFolderResult, error)
	ListFolderContinue(arg *files.ListFolderContinueArg) (*files.ListFolderResult, error)
	Download(arg *files.DownloadArg) (*files.FileMetadata, io.ReadCloser, error)
	GetMetadata(arg *files.GetMetadataArg) (files.IsMetadata, error)
	CurrentAccountEmail() (string, error)
}

// Dial creates an API client for an access token.
type Dial func(token string) API

type sdkAPI struct {
	files.Client
	users users.Client
}

func (a sdkAPI) CurrentAccountEmail() (string, error) {
	acct, err := a.users.GetCurrentAccount()
	if err != nil {
		return "", err
	}
	return acct.Email, nil
}

// DialSDK talks to Dropbox with the official SDK.
func DialSDK(token string) API {
	cfg := dropbox.Config{Token: token, LogLevel: dropbox.LogOff}
	return sdkAPI{Client: files.New(cfg), users: users.New(cfg)}
}

// Ensure Source implements the interface.
var _ driven.Source = (*Source)(nil)

// Source is the Dropbox of one account.
type Source struct {
	token string
	dial  Dial
}

// New creates a Source. A nil dial uses DialSDK.
func New(token string, dial Dial) *Source {
	if dial == nil {
		dial = DialSDK
	}
	return &Source{token: token, dial: dial}
}

func (s *Source) CrunchName() string { return "DropboxSource" }

func (s *Source) CrunchProperties() []domain.Property {
	return []domain.Property{{Name: "_token", Value: domain.Optional(s.token)}}
}

func (s *Source) Type() string                   { return TypeLabel }
func (s *Source) YieldsIndependentSources() bool { return true }
func (s *Source) Handle() driven.Handle          { return nil }

// Censor drops the token.
func (s *Source) Censor() driven.Source { return New("", s.dial) }

// URL returns dropbox://token.
func (s *Source) URL() string { return TypeLabel + "://" + s.token }

func (s *Source) ToJSON() map[string]any {
	return map[string]any{"type": TypeLabel, "token": domain.Optional(s.token)}
}

// account is the cookie.
type account struct {
	api   API
	email string
}

// Acquire connects and looks up the account's email address.
func (s *Source) Acquire(context.Context, driven.StateManager) (any, func() error, error) {
	api := s.dial(s.token)
	email, err := api.CurrentAccountEmail()
	if err != nil {
		return nil, nil, domain.Uncontactable(server, err.Error())
	}
	log.Debug("connected to the account of %s", email)
	return &account{api: api, email: email}, func() error { return nil }, nil
}

// Handles lists every downloadable file, including those in mounted
// shared folders.
func (s *Source) Handles(ctx context.Context, sm driven.StateManager) iter.Seq2[driven.Handle, error] {
	return func(yield func(driven.Handle, error) bool) {
		cookie, err := sm.Open(ctx, s)
		if err != nil {
			yield(nil, err)
			return
		}
		acct := cookie.(*account)

		arg := files.NewListFolderArg("")
		arg.Recursive = true
		arg.IncludeMountedFolders = true
		arg.IncludeNonDownloadableFiles = false
		res, err := acct.api.ListFolder(arg)
		for {
			if err != nil {
				yield(nil, domain.Unavailable(server, err.Error()))
				return
			}
			for _, entry := range res.Entries {
				fm, ok := entry.(*files.FileMetadata)
				if !ok {
					continue
				}
				if !yield(NewHandle(s, fm.PathLower, acct.email), nil) {
					return
				}
			}
			if !res.HasMore {
				return
			}
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			res, err = acct.api.ListFolderContinue(files.NewListFolderContinueArg(res.Cursor))
		}
	}
}

// Ensure Handle implements the interface.
var _ driven.Handle = (*Handle)(nil)

// Handle is a file, addressed by its lower-cased path. It remembers the
// account's email address.
type Handle struct {
	base.Handle
	email string
}

// NewHandle creates a Handle for relpath in the account of email.
func NewHandle(s driven.Source, relpath, email string) *Handle {
	return &Handle{Handle: base.NewHandle(s, relpath), email: email}
}

// Email returns the account's email address.
func (h *Handle) Email() string { return h.email }

func (h *Handle) CrunchName() string                  { return "DropboxHandle" }
func (h *Handle) CrunchProperties() []domain.Property { return h.PropertiesWithReferrer() }
func (h *Handle) Type() string                        { return TypeLabel }
func (h *Handle) PresentationName() string            { return h.RelativePath() }
func (h *Handle) PresentationPlace() string           { return h.email }
func (h *Handle) SortKey() string                     { return h.email + h.RelativePath() }

func (h *Handle) String() string {
	return fmt.Sprintf("\"%s\" (of account %s)", h.RelativePath(), h.email)
}

// PresentationURL opens the file's folder with a preview of the file.
func (h *Handle) PresentationURL() string {
	dir := path.Dir("/" + strings.TrimPrefix(h.RelativePath(), "/"))
	if dir == "/" {
		dir = ""
	}
	return "https://www.dropbox.com/home" + dir + "?preview=" + url.QueryEscape(h.Name())
}

func (h *Handle) ToJSON() map[string]any {
	obj := base.HandleJSON(h)
	obj["email"] = h.email
	return obj
}

func (h *Handle) Censor() driven.Handle {
	return NewHandle(h.Source().Censor(), h.RelativePath(), h.email)
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

// Resource is a Dropbox file.
type Resource struct {
	base.Resource
	meta base.Lazy[*files.FileMetadata]
}

func (r *Resource) account(ctx context.Context) (*account, error) {
	cookie, err := r.Cookie(ctx)
	if err != nil {
		return nil, err
	}
	return cookie.(*account), nil
}

// notFound recognises the path/not_found error summary of the Dropbox
// API.
func notFound(err error) bool {
	return strings.Contains(err.Error(), "not_found")
}

func (r *Resource) lookup(ctx context.Context) (*files.FileMetadata, error) {
	acct, err := r.account(ctx)
	if err != nil {
		return nil, err
	}
	md, err := acct.api.GetMetadata(files.NewGetMetadataArg(r.Handle().RelativePath()))
	if err != nil {
		return nil, err
	}
	fm, ok := md.(*files.FileMetadata)
	if !ok {
		return nil, domain.Unavailable(server, r.Handle().RelativePath(), "not a file")
	}
	return fm, nil
}

// FileMetadata returns the memoised metadata of the file.
func (r *Resource) FileMetadata(ctx context.Context) (*files.FileMetadata, error) {
	return r.meta.Get(func() (*files.FileMetadata, error) {
		fm, err := r.lookup(ctx)
		if err != nil && notFound(err) {
			return nil, domain.Unavailable(server, r.Handle().RelativePath(), err.Error())
		}
		return fm, err
	})
}

// Check reports whether the path still names a file.
func (r *Resource) Check(ctx context.Context) (bool, error) {
	_, err := r.lookup(ctx)
	switch {
	case err == nil:
		return true, nil
	case notFound(err):
		return false, nil
	default:
		return false, err
	}
}

func (r *Resource) Size(ctx context.Context) (int64, error) {
	fm, err := r.FileMetadata(ctx)
	if err != nil {
		return 0, err
	}
	return int64(fm.Size), nil
}

// LastModified is the time the file last changed on the server.
func (r *Resource) LastModified(ctx context.Context) (time.Time, error) {
	fm, err := r.FileMetadata(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return fm.ServerModified, nil
}

func (r *Resource) Open(ctx context.Context) (io.ReadCloser, error) {
	acct, err := r.account(ctx)
	if err != nil {
		return nil, err
	}
	fm, content, err := acct.api.Download(files.NewDownloadArg(r.Handle().RelativePath()))
	if err != nil {
		return nil, domain.Unavailable(server, r.Handle().RelativePath(), err.Error())
	}
	if fm != nil {
		r.meta.Set(fm)
	}
	return content, nil
}

func (r *Resource) LocalPath(ctx context.Context) (string, func() error, error) {
	return base.MaterialisePath(ctx, r)
}

func (r *Resource) ComputeType(ctx context.Context) (string, error) {
	return base.ComputeType(ctx, r)
}

func (r *Resource) Metadata(ctx context.Context) map[string]any {
	return base.CollectMetadata(ctx, r,
		base.StaticEntry(domain.MetaEmailAccount, r.Handle().(*Handle).email),
		base.LastModifiedEntry(r))
}

// Register adds the "dropbox" Source, its Handles and dropbox: URLs to reg.
// A nil dial uses DialSDK.
func Register(reg driven.SourceRegistry, dial Dial) {
	reg.RegisterURL(TypeLabel, func(rawURL string) (driven.Source, error) {
		token, ok := strings.CutPrefix(rawURL, TypeLabel+"://")
		if !ok || token == "" {
			return nil, fmt.Errorf("%w: %q is not a %s URL", domain.ErrInvalidInput, rawURL, TypeLabel)
		}
		return New(token, dial), nil
	})
	reg.RegisterSource(TypeLabel, func(obj map[string]any, _ driven.Decoder) (driven.Source, error) {
		return New(base.OptString(obj, "token"), dial), nil
	})
	reg.RegisterHandle(TypeLabel, func(obj map[string]any, dec driven.Decoder) (driven.Handle, error) {
		src, relpath, referrer, err := base.DecodeHandle(obj, dec)
		if err != nil {
			return nil, err
		}
		return &Handle{
			Handle: base.NewReferredHandle(src, relpath, referrer),
			email:  base.OptString(obj, "email"),
		}, nil
	})
}
