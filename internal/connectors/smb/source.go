// Package smb implements the "smb" Source: a Windows share mounted into
// the local filesystem with mount.cifs. It also holds the UNC and URL
// helpers shared with the user-space "smbc" Source.
package smb

import (
	"context"
	"errors"
	"iter"
	"os"
	"strings"

	"github.com/custodia-labs/datascanner/internal/connectors/base"
	"github.com/custodia-labs/datascanner/internal/connectors/filesystem"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/logger"
)

// TypeLabel is the JSON type label of both the Source and its Handles.
const TypeLabel = "smb"

var log = logger.Named("smb")

// Ensure Source implements the interfaces.
var (
	_ driven.Source = (*Source)(nil)
	_ Share         = (*Source)(nil)
)

// Source is a share mounted for the lifetime of its state.
type Source struct {
	creds       Credentials
	driveLetter string
	runner      driven.CommandRunner
}

// New creates a Source. An empty domain is computed from the server name.
func New(c Credentials, driveLetter string, runner driven.CommandRunner) *Source {
	c.UNC = strings.ReplaceAll(c.UNC, `\`, "/")
	if c.Domain == "" {
		c.Domain = ComputeDomain(c.UNC)
	}
	return &Source{creds: c, driveLetter: driveLetter, runner: runner}
}

func (s *Source) UNC() string              { return s.creds.UNC }
func (s *Source) DriveLetter() string      { return s.driveLetter }
func (s *Source) Credentials() Credentials { return s.creds }

func (s *Source) CrunchName() string { return "SMBSource" }

func (s *Source) CrunchProperties() []domain.Property {
	return []domain.Property{
		{Name: "_unc", Value: s.creds.UNC},
		{Name: "_user", Value: domain.Optional(s.creds.User)},
		{Name: "_password", Value: domain.Optional(s.creds.Password)},
		{Name: "_domain", Value: domain.Optional(s.creds.Domain)},
	}
}

func (s *Source) Type() string                   { return TypeLabel }
func (s *Source) YieldsIndependentSources() bool { return true }
func (s *Source) Handle() driven.Handle          { return nil }

// Censor drops the user name and password.
func (s *Source) Censor() driven.Source {
	return New(Credentials{UNC: s.creds.UNC}, s.driveLetter, s.runner)
}

// URL returns the smb: URL of s, including credentials.
func (s *Source) URL() string { return MakeURL("smb", s.creds) }

func (s *Source) ToJSON() map[string]any {
	return SourceJSON(TypeLabel, s.creds, s.driveLetter)
}

// SourceJSON is the wire form shared by the SMB Sources.
func SourceJSON(label string, c Credentials, driveLetter string) map[string]any {
	obj := map[string]any{
		"type":        label,
		"unc":         c.UNC,
		"user":        nil,
		"password":    nil,
		"domain":      nil,
		"driveletter": nil,
	}
	optional := func(k, v string) {
		if v != "" {
			obj[k] = v
		}
	}
	optional("user", c.User)
	optional("password", c.Password)
	optional("domain", c.Domain)
	optional("driveletter", driveLetter)
	return obj
}

// DecodeSourceJSON reads the fields written by SourceJSON.
func DecodeSourceJSON(obj map[string]any, label string) (Credentials, string, error) {
	unc, err := base.String(obj, "unc", label)
	if err != nil {
		return Credentials{}, "", err
	}
	return Credentials{
		UNC:      unc,
		User:     base.OptString(obj, "user"),
		Password: base.OptString(obj, "password"),
		Domain:   base.OptString(obj, "domain"),
	}, base.OptString(obj, "driveletter"), nil
}

// mountOptions renders the -o argument of mount.cifs. Unless reveal is
// set, the password is masked.
func (s *Source) mountOptions(reveal bool) string {
	opts := []string{"ro"}
	if s.creds.User != "" {
		opts = append(opts, "user="+s.creds.User)
	}
	switch {
	case s.creds.Password != "" && reveal:
		opts = append(opts, "password="+s.creds.Password)
	case s.creds.Password != "":
		opts = append(opts, "password=****")
	default:
		opts = append(opts, "guest")
	}
	if s.creds.Domain != "" {
		opts = append(opts, "domain="+s.creds.Domain)
	}
	return strings.Join(opts, ",")
}

// Acquire mounts the share on a fresh directory. The release function
// unmounts it and removes the directory.
func (s *Source) Acquire(ctx context.Context, _ driven.StateManager) (any, func() error, error) {
	dir, err := os.MkdirTemp("", "datascanner-smb-")
	if err != nil {
		return nil, nil, err
	}
	log.Debug("mounting %s on %s (-o %s)", s.creds.UNC, dir, s.mountOptions(false))
	if _, err := s.runner.Run(ctx, "mount", "-t", "cifs", s.creds.UNC, dir, "-o", s.mountOptions(true)); err != nil {
		_ = os.Remove(dir)
		server, _ := SplitUNC(s.creds.UNC)
		return nil, nil, domain.Uncontactable(server, err.Error())
	}
	return dir, func() error {
		_, err := s.runner.Run(context.Background(), "umount", dir)
		return errors.Join(err, os.Remove(dir))
	}, nil
}

// Handles walks the mounted share.
func (s *Source) Handles(ctx context.Context, sm driven.StateManager) iter.Seq2[driven.Handle, error] {
	return func(yield func(driven.Handle, error) bool) {
		dir, err := sm.Open(ctx, s)
		if err != nil {
			yield(nil, err)
			return
		}
		for rel, err := range filesystem.Walk(ctx, dir.(string)) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(NewHandle(s, rel), nil) {
				return
			}
		}
	}
}

// Ensure Handle implements the interface.
var _ driven.Handle = (*Handle)(nil)

// Handle is a file on a mounted share.
type Handle struct {
	base.Handle
}

// NewHandle creates a Handle for relpath below s.
func NewHandle(s driven.Source, relpath string) *Handle {
	return &Handle{Handle: base.NewHandle(s, relpath)}
}

func (h *Handle) share() Share {
	if s, ok := h.Source().(Share); ok {
		return s
	}
	return New(Credentials{}, "", nil)
}

func (h *Handle) CrunchName() string                  { return "SMBHandle" }
func (h *Handle) CrunchProperties() []domain.Property { return h.PropertiesWithReferrer() }
func (h *Handle) Type() string                        { return TypeLabel }
func (h *Handle) PresentationName() string            { return h.Name() }
func (h *Handle) PresentationPlace() string           { return PresentationPlace(h.share(), h.RelativePath()) }
func (h *Handle) PresentationURL() string             { return PresentationURL(h.share(), h.RelativePath()) }
func (h *Handle) String() string                      { return Presentation(h.share(), h.RelativePath()) }
func (h *Handle) SortKey() string                     { return strings.TrimSuffix(h.String(), `\`) }
func (h *Handle) ToJSON() map[string]any              { return base.HandleJSON(h) }

func (h *Handle) Censor() driven.Handle {
	return NewHandle(h.Source().Censor(), h.RelativePath())
}

func (h *Handle) WithSource(s driven.Source) driven.Handle {
	c := *h
	c.SetSource(s)
	return &c
}

// Follow returns a filesystem Resource below the mount point.
func (h *Handle) Follow(sm driven.StateManager) driven.Resource {
	return filesystem.NewResource(h, sm)
}

// Register adds the "smb" Source, its Handles and smb: URLs to reg.
// Mounting goes through runner.
func Register(reg driven.SourceRegistry, runner driven.CommandRunner) {
	reg.RegisterURL("smb", func(rawURL string) (driven.Source, error) {
		c, err := ParseURL(rawURL)
		if err != nil {
			return nil, err
		}
		return New(c, "", runner), nil
	})
	reg.RegisterSource(TypeLabel, func(obj map[string]any, _ driven.Decoder) (driven.Source, error) {
		c, letter, err := DecodeSourceJSON(obj, TypeLabel)
		if err != nil {
			return nil, err
		}
		return New(c, letter, runner), nil
	})
	base.RegisterStockHandle(reg, TypeLabel, func(src driven.Source, path string, referrer driven.Handle) (driven.Handle, error) {
		return &Handle{Handle: base.NewReferredHandle(src, path, referrer)}, nil
	})
}
