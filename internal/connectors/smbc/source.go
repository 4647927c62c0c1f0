// Package smbc implements the "smbc" Source: a Windows share read over
// SMB2 in user space, without mounting it.
package smbc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"net"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/hirochachacha/go-smb2"

	"github.com/custodia-labs/datascanner/internal/backoff"
	"github.com/custodia-labs/datascanner/internal/connectors/base"
	"github.com/custodia-labs/datascanner/internal/connectors/smb"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/logger"
)

// TypeLabel is the JSON type label of both the Source and its Handles.
const TypeLabel = "smbc"

// defaultPort is the SMB port.
const defaultPort = "445"

var log = logger.Named("smbc")

// Ensure Source implements the interfaces.
var (
	_ driven.Source = (*Source)(nil)
	_ smb.Share     = (*Source)(nil)
)

// Source is a share accessed through an SMB2 session.
type Source struct {
	creds           smb.Credentials
	driveLetter     string
	skipSuperHidden bool
}

// New creates a Source. An empty domain is computed from the server name.
func New(c smb.Credentials, driveLetter string, skipSuperHidden bool) *Source {
	c.UNC = strings.ReplaceAll(c.UNC, `\`, "/")
	if c.Domain == "" {
		c.Domain = smb.ComputeDomain(c.UNC)
	}
	return &Source{creds: c, driveLetter: driveLetter, skipSuperHidden: skipSuperHidden}
}

func (s *Source) UNC() string         { return s.creds.UNC }
func (s *Source) DriveLetter() string { return s.driveLetter }

func (s *Source) CrunchName() string { return "SMBCSource" }

func (s *Source) CrunchProperties() []domain.Property {
	return []domain.Property{
		{Name: "_unc", Value: s.creds.UNC},
		{Name: "_user", Value: domain.Optional(s.creds.User)},
		{Name: "_password", Value: domain.Optional(s.creds.Password)},
		{Name: "_domain", Value: domain.Optional(s.creds.Domain)},
		{Name: "_skip_super_hidden", Value: s.skipSuperHidden},
	}
}

func (s *Source) Type() string                   { return TypeLabel }
func (s *Source) YieldsIndependentSources() bool { return true }
func (s *Source) Handle() driven.Handle          { return nil }

// Censor drops the user name and password.
func (s *Source) Censor() driven.Source {
	return New(smb.Credentials{UNC: s.creds.UNC}, s.driveLetter, false)
}

// URL returns the smbc: URL of s, including credentials.
func (s *Source) URL() string { return smb.MakeURL("smbc", s.creds) }

func (s *Source) ToJSON() map[string]any {
	obj := smb.SourceJSON(TypeLabel, s.creds, s.driveLetter)
	obj["skip_super_hidden"] = s.skipSuperHidden
	return obj
}

// state is the cookie: a mounted share and the directory within it that
// the UNC names.
type state struct {
	conn    net.Conn
	session *smb2.Session
	share   *smb2.Share
	root    string
}

// path returns the share path of relpath.
func (st *state) path(relpath string) string {
	rel := strings.ReplaceAll(relpath, "/", `\`)
	switch {
	case st.root == "":
		return rel
	case rel == "":
		return st.root
	}
	return st.root + `\` + rel
}

func (s *Source) address() (server, addr string) {
	server, _ = smb.SplitUNC(s.creds.UNC)
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server, server
	}
	return server, net.JoinHostPort(server, defaultPort)
}

// Acquire connects, authenticates and mounts the share. Anonymous access
// logs on as GUEST in WORKGROUP.
func (s *Source) Acquire(ctx context.Context, _ driven.StateManager) (any, func() error, error) {
	server, addr := s.address()
	_, rest := smb.SplitUNC(s.creds.UNC)
	shareName, sub, _ := strings.Cut(rest, "/")
	if shareName == "" {
		return nil, nil, fmt.Errorf("%w: %s names no share", domain.ErrInvalidInput, s.creds.UNC)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, domain.Uncontactable(server, err.Error())
	}
	user, workgroup := s.creds.User, s.creds.Domain
	if user == "" {
		user = "GUEST"
	}
	if workgroup == "" {
		workgroup = "WORKGROUP"
	}
	dialer := &smb2.Dialer{Initiator: &smb2.NTLMInitiator{
		User:     user,
		Password: s.creds.Password,
		Domain:   workgroup,
	}}
	session, err := dialer.DialContext(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, nil, domain.Unauthorised(server, err.Error())
	}
	share, err := session.Mount(fmt.Sprintf(`\\%s\%s`, server, shareName))
	if err != nil {
		_ = session.Logoff()
		conn.Close()
		return nil, nil, domain.Unavailable(server, shareName, err.Error())
	}
	log.Debug("mounted %s", s.creds.UNC)
	st := &state{
		conn:    conn,
		session: session,
		share:   share,
		root:    strings.ReplaceAll(strings.Trim(sub, "/"), "/", `\`),
	}
	return st, func() error {
		return errors.Join(share.Umount(), session.Logoff(), conn.Close())
	}, nil
}

// ignorable are the errors that skip a directory during exploration.
func ignorable(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}

func attributes(fi os.FileInfo) (Mode, bool) {
	if st, ok := fi.Sys().(*smb2.FileStat); ok {
		return Mode(st.FileAttributes), true
	}
	if st, ok := fi.(*smb2.FileStat); ok {
		return Mode(st.FileAttributes), true
	}
	return 0, false
}

// Handles walks the share depth first in lexical order.
func (s *Source) Handles(ctx context.Context, sm driven.StateManager) iter.Seq2[driven.Handle, error] {
	return func(yield func(driven.Handle, error) bool) {
		cookie, err := sm.Open(ctx, s)
		if err != nil {
			yield(nil, err)
			return
		}
		st := cookie.(*state)
		entries, err := st.share.WithContext(ctx).ReadDir(st.path(""))
		if err != nil {
			yield(nil, err)
			return
		}
		s.walk(ctx, st, "", entries, yield)
	}
}

func (s *Source) walk(ctx context.Context, st *state, dir string, entries []os.FileInfo, yield func(driven.Handle, error) bool) bool {
	slices.SortFunc(entries, func(a, b os.FileInfo) int { return strings.Compare(a.Name(), b.Name()) })
	for _, fi := range entries {
		name := fi.Name()
		if name == "." || name == ".." {
			continue
		}
		rel := name
		if dir != "" {
			rel = dir + "/" + name
		}
		if s.skipSuperHidden {
			if m, ok := attributes(fi); ok && Skippable(m, name) {
				continue
			} else if !ok && name == snapshotDir {
				continue
			}
		}
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return false
		}
		switch {
		case fi.IsDir():
			children, err := st.share.WithContext(ctx).ReadDir(st.path(rel))
			if err != nil {
				if ignorable(err) {
					log.Debug("skipping %s: %v", rel, err)
					continue
				}
				if !yield(nil, err) {
					return false
				}
				continue
			}
			if !s.walk(ctx, st, rel, children, yield) {
				return false
			}
		case fi.Mode().IsRegular():
			if !yield(NewHandle(s, rel), nil) {
				return false
			}
		}
	}
	return true
}

// Ensure Handle implements the interface.
var _ driven.Handle = (*Handle)(nil)

// Handle is a file on a share.
type Handle struct {
	base.Handle
}

// NewHandle creates a Handle for relpath below s.
func NewHandle(s driven.Source, relpath string) *Handle {
	return &Handle{Handle: base.NewHandle(s, relpath)}
}

func (h *Handle) share() smb.Share {
	if s, ok := h.Source().(smb.Share); ok {
		return s
	}
	return New(smb.Credentials{}, "", false)
}

func (h *Handle) CrunchName() string                  { return "SMBCHandle" }
func (h *Handle) CrunchProperties() []domain.Property { return h.PropertiesWithReferrer() }
func (h *Handle) Type() string                        { return TypeLabel }
func (h *Handle) PresentationName() string            { return h.Name() }
func (h *Handle) PresentationPlace() string {
	return smb.PresentationPlace(h.share(), h.RelativePath())
}
func (h *Handle) PresentationURL() string { return smb.PresentationURL(h.share(), h.RelativePath()) }
func (h *Handle) String() string          { return smb.Presentation(h.share(), h.RelativePath()) }
func (h *Handle) SortKey() string         { return strings.TrimSuffix(h.String(), `\`) }
func (h *Handle) ToJSON() map[string]any  { return base.HandleJSON(h) }

func (h *Handle) Censor() driven.Handle {
	return NewHandle(h.Source().Censor(), h.RelativePath())
}

func (h *Handle) WithSource(s driven.Source) driven.Handle {
	c := *h
	c.SetSource(s)
	return &c
}

func (h *Handle) Follow(sm driven.StateManager) driven.Resource {
	return &Resource{Resource: base.NewResource(h, sm), retrier: newRetrier()}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout())
}

func newRetrier() *backoff.Retrier {
	return backoff.NewExponential(isTimeout, backoff.DefaultExponential)
}

// Ensure Resource implements the interfaces.
var (
	_ driven.FileResource        = (*Resource)(nil)
	_ driven.TimestampedResource = (*Resource)(nil)
)

// Resource is a file read over SMB2. Timeouts are retried.
type Resource struct {
	base.Resource
	retrier *backoff.Retrier
	stat    base.Lazy[os.FileInfo]
}

func (r *Resource) state(ctx context.Context) (*state, error) {
	cookie, err := r.Cookie(ctx)
	if err != nil {
		return nil, err
	}
	return cookie.(*state), nil
}

// Stat returns the memoised file information.
func (r *Resource) Stat(ctx context.Context) (os.FileInfo, error) {
	return r.stat.Get(func() (os.FileInfo, error) {
		st, err := r.state(ctx)
		if err != nil {
			return nil, err
		}
		return backoff.Do(ctx, r.retrier, func(ctx context.Context) (os.FileInfo, error) {
			return st.share.WithContext(ctx).Stat(st.path(r.Handle().RelativePath()))
		})
	})
}

// Check reports whether the file exists.
func (r *Resource) Check(ctx context.Context) (bool, error) {
	st, err := r.state(ctx)
	if err != nil {
		return false, err
	}
	_, err = st.share.WithContext(ctx).Stat(st.path(r.Handle().RelativePath()))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (r *Resource) Size(ctx context.Context) (int64, error) {
	fi, err := r.Stat(ctx)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// LastModified returns the file's last write time.
func (r *Resource) LastModified(ctx context.Context) (time.Time, error) {
	fi, err := r.Stat(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

func (r *Resource) Open(ctx context.Context) (io.ReadCloser, error) {
	st, err := r.state(ctx)
	if err != nil {
		return nil, err
	}
	return backoff.Do(ctx, r.retrier, func(ctx context.Context) (io.ReadCloser, error) {
		f, err := st.share.WithContext(ctx).Open(st.path(r.Handle().RelativePath()))
		if err != nil {
			return nil, err
		}
		return f, nil
	})
}

func (r *Resource) LocalPath(ctx context.Context) (string, func() error, error) {
	return base.MaterialisePath(ctx, r)
}

func (r *Resource) ComputeType(ctx context.Context) (string, error) {
	return base.ComputeType(ctx, r)
}

func (r *Resource) Metadata(ctx context.Context) map[string]any {
	return base.CollectMetadata(ctx, r, base.LastModifiedEntry(r))
}

// Register adds the "smbc" Source, its Handles and smbc: URLs to reg.
func Register(reg driven.SourceRegistry) {
	reg.RegisterURL("smbc", func(rawURL string) (driven.Source, error) {
		c, err := smb.ParseURL(rawURL)
		if err != nil {
			return nil, err
		}
		return New(c, "", false), nil
	})
	reg.RegisterSource(TypeLabel, func(obj map[string]any, _ driven.Decoder) (driven.Source, error) {
		c, letter, err := smb.DecodeSourceJSON(obj, TypeLabel)
		if err != nil {
			return nil, err
		}
		return New(c, letter, base.OptBool(obj, "skip_super_hidden")), nil
	})
	base.RegisterStockHandle(reg, TypeLabel, func(src driven.Source, path string, referrer driven.Handle) (driven.Handle, error) {
		return &Handle{Handle: base.NewReferredHandle(src, path, referrer)}, nil
	})
}
