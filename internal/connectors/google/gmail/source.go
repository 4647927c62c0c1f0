// Package gmail implements the "gmail" Source: the inbox of one Google
// account, read through the Gmail API as RFC 822 messages.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/custodia-labs/datascanner/internal/connectors/base"
	"github.com/custodia-labs/datascanner/internal/connectors/google"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/logger"
)

// TypeLabel is the JSON type label of both the Source and its Handles.
const TypeLabel = "gmail"

const (
	server = "gmail.googleapis.com"

	inboxLabel = "INBOX"

	// DefaultPageSize is the number of messages asked for per list request.
	DefaultPageSize = 500
)

var log = logger.Named("gmail")

// Ensure Source implements the interface.
var _ driven.Source = (*Source)(nil)

// Source is the inbox of userEmail.
type Source struct {
	accessToken string
	userEmail   string
	pageSize    int
	opts        *google.Options
}

// New creates a Source. A non-positive pageSize uses DefaultPageSize.
func New(accessToken, userEmail string, pageSize int, opts *google.Options) *Source {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Source{accessToken: accessToken, userEmail: userEmail, pageSize: pageSize, opts: opts}
}

// UserEmail returns the account scanned.
func (s *Source) UserEmail() string { return s.userEmail }

func (s *Source) CrunchName() string { return "GmailSource" }

func (s *Source) CrunchProperties() []domain.Property {
	return []domain.Property{
		{Name: "_access_token", Value: domain.Optional(s.accessToken)},
		{Name: "_user_email", Value: s.userEmail},
	}
}

func (s *Source) Type() string                   { return TypeLabel }
func (s *Source) YieldsIndependentSources() bool { return true }
func (s *Source) Handle() driven.Handle          { return nil }

// Censor drops the access token but keeps the account.
func (s *Source) Censor() driven.Source { return New("", s.userEmail, s.pageSize, s.opts) }

// URL returns gmail://token/user.
func (s *Source) URL() string { return TypeLabel + "://" + s.accessToken + "/" + s.userEmail }

func (s *Source) ToJSON() map[string]any {
	return map[string]any{
		"type":         TypeLabel,
		"access_token": domain.Optional(s.accessToken),
		"user_email":   s.userEmail,
	}
}

// client is the cookie.
type client struct {
	svc    *gmail.Service
	caller *google.Caller
}

// Acquire builds the API client. No request is made.
func (s *Source) Acquire(ctx context.Context, _ driven.StateManager) (any, func() error, error) {
	svc, err := gmail.NewService(ctx, google.ClientOptions(s.accessToken, s.opts)...)
	if err != nil {
		return nil, nil, fmt.Errorf("create gmail service: %w", err)
	}
	c := &client{svc: svc, caller: google.NewCaller(google.ServiceGmail, s.opts)}
	return c, func() error { return nil }, nil
}

func subject(msg *gmail.Message) string {
	if msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, "Subject") {
			return h.Value
		}
	}
	return ""
}

// Handles lists the inbox. Each message's subject is fetched for its
// presentation; a message that cannot be read is reported and skipped.
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
			list, err := google.Call(ctx, c.caller, func(ctx context.Context) (*gmail.ListMessagesResponse, error) {
				call := c.svc.Users.Messages.List(s.userEmail).
					LabelIds(inboxLabel).
					MaxResults(int64(s.pageSize)).
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
			for _, m := range list.Messages {
				msg, err := google.Call(ctx, c.caller, func(ctx context.Context) (*gmail.Message, error) {
					return c.svc.Users.Messages.Get(s.userEmail, m.Id).
						Format("metadata").
						MetadataHeaders("Subject").
						Context(ctx).
						Do()
				})
				if err != nil {
					if !yield(nil, google.MapError(server, err)) {
						return
					}
					continue
				}
				if !yield(NewHandle(s, m.Id, subject(msg)), nil) {
					return
				}
			}
			if list.NextPageToken == "" {
				return
			}
			pageToken = list.NextPageToken
			log.Debug("fetching next page of messages for %s", s.userEmail)
		}
	}
}

// Ensure Handle implements the interface.
var _ driven.Handle = (*Handle)(nil)

// Handle is a message, addressed by its Gmail ID.
type Handle struct {
	base.Handle
	subject string
}

// NewHandle creates a Handle for the message id.
func NewHandle(s driven.Source, id, subject string) *Handle {
	return &Handle{Handle: base.NewHandle(s, id), subject: subject}
}

func (h *Handle) account() string {
	if s, ok := h.Source().(*Source); ok {
		return s.userEmail
	}
	return ""
}

func (h *Handle) CrunchName() string                  { return "GmailHandle" }
func (h *Handle) CrunchProperties() []domain.Property { return h.Properties() }
func (h *Handle) Type() string                        { return TypeLabel }
func (h *Handle) GuessType() string                   { return domain.MIMEMessage }

// Subject returns the message subject remembered when it was listed.
func (h *Handle) Subject() string { return h.subject }

// PresentationName is the subject, or "mail".
func (h *Handle) PresentationName() string {
	if h.subject == "" {
		return "mail"
	}
	return h.subject
}

func (h *Handle) PresentationPlace() string { return "account " + h.account() }

func (h *Handle) String() string {
	return fmt.Sprintf("\"%s\" (in account %s)", h.PresentationName(), h.account())
}

func (h *Handle) SortKey() string { return h.account() + "/" + h.RelativePath() }

func (h *Handle) PresentationURL() string {
	return "https://mail.google.com/mail/#inbox/" + h.RelativePath()
}

func (h *Handle) ToJSON() map[string]any {
	obj := base.HandleJSON(h)
	obj["mail_subject"] = h.subject
	return obj
}

func (h *Handle) Censor() driven.Handle {
	return NewHandle(h.Source().Censor(), h.RelativePath(), h.subject)
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

// Resource is a message as an RFC 822 file.
type Resource struct {
	base.Resource
	msg base.Lazy[*gmail.Message]
	fc  base.FirstCall
}

func (r *Resource) client(ctx context.Context) (*client, error) {
	cookie, err := r.Cookie(ctx)
	if err != nil {
		return nil, err
	}
	return cookie.(*client), nil
}

func (r *Resource) get(ctx context.Context, format string) (*gmail.Message, error) {
	c, err := r.client(ctx)
	if err != nil {
		return nil, err
	}
	user := r.Handle().(*Handle).account()
	return google.Call(ctx, c.caller, func(ctx context.Context) (*gmail.Message, error) {
		return c.svc.Users.Messages.Get(user, r.Handle().RelativePath()).Format(format).Context(ctx).Do()
	})
}

// Message returns the memoised message metadata.
func (r *Resource) Message(ctx context.Context) (*gmail.Message, error) {
	return r.msg.Get(func() (*gmail.Message, error) {
		m, err := r.get(ctx, "metadata")
		return m, google.MapError(server, err)
	})
}

// Check reports whether the message still exists.
func (r *Resource) Check(ctx context.Context) (bool, error) {
	_, err := r.get(ctx, "minimal")
	switch {
	case err == nil:
		return true, nil
	case google.IsNotFound(err):
		return false, nil
	default:
		return false, google.MapError(server, err)
	}
}

// Size returns Gmail's estimate of the message size.
func (r *Resource) Size(ctx context.Context) (int64, error) {
	m, err := r.Message(ctx)
	if err != nil {
		return 0, err
	}
	return m.SizeEstimate, nil
}

// LastModified is the time Gmail received the message.
func (r *Resource) LastModified(ctx context.Context) (time.Time, error) {
	m, err := r.Message(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if m.InternalDate == 0 {
		return r.fc.LastModified(ctx)
	}
	return time.UnixMilli(m.InternalDate).UTC(), nil
}

// decodeRaw decodes Gmail's base64url message encoding, with or without
// padding.
func decodeRaw(raw string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(raw); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(raw)
}

// Open fetches the raw message.
func (r *Resource) Open(ctx context.Context) (io.ReadCloser, error) {
	m, err := r.get(ctx, "raw")
	if err != nil {
		return nil, google.MapError(server, err)
	}
	b, err := decodeRaw(m.Raw)
	if err != nil {
		return nil, fmt.Errorf("decode message %s: %w", m.Id, err)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (r *Resource) LocalPath(ctx context.Context) (string, func() error, error) {
	return base.MaterialisePath(ctx, r)
}

func (r *Resource) ComputeType(context.Context) (string, error) {
	return domain.MIMEMessage, nil
}

func (r *Resource) Metadata(ctx context.Context) map[string]any {
	return base.CollectMetadata(ctx, r,
		base.StaticEntry(domain.MetaEmailAccount, r.Handle().(*Handle).account()),
		base.LastModifiedEntry(r))
}

// Register adds the "gmail" Source, its Handles and gmail: URLs to reg.
func Register(reg driven.SourceRegistry, pageSize int, opts *google.Options) {
	reg.RegisterURL(TypeLabel, func(rawURL string) (driven.Source, error) {
		rest, ok := strings.CutPrefix(rawURL, TypeLabel+"://")
		token, user, found := strings.Cut(rest, "/")
		if !ok || !found || user == "" {
			return nil, fmt.Errorf("%w: %q is not a %s URL", domain.ErrInvalidInput, rawURL, TypeLabel)
		}
		return New(token, user, pageSize, opts), nil
	})
	reg.RegisterSource(TypeLabel, func(obj map[string]any, _ driven.Decoder) (driven.Source, error) {
		user, err := base.String(obj, "user_email", TypeLabel)
		if err != nil {
			return nil, err
		}
		return New(base.OptString(obj, "access_token"), user, pageSize, opts), nil
	})
	reg.RegisterHandle(TypeLabel, func(obj map[string]any, dec driven.Decoder) (driven.Handle, error) {
		src, path, referrer, err := base.DecodeHandle(obj, dec)
		if err != nil {
			return nil, err
		}
		return &Handle{
			Handle:  base.NewReferredHandle(src, path, referrer),
			subject: base.OptString(obj, "mail_subject"),
		}, nil
	})
}
