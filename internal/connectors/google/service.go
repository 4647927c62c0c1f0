package google

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/custodia-labs/datascanner/internal/backoff"
	"github.com/custodia-labs/datascanner/internal/logger"
)

var log = logger.Named("google")

// Options overrides how API clients are built. The zero value talks to
// Google with the access token.
type Options struct {
	// Endpoint replaces the service's base URL.
	Endpoint string
	// HTTPClient replaces the authenticated transport. The access token is
	// not sent when it is set.
	HTTPClient *http.Client
	// Limits replaces the service's default rate limit.
	Limits *RateLimitConfig
}

// TokenSource returns a TokenSource that always yields accessToken.
func TokenSource(accessToken string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	})
}

// ClientOptions returns the options for building a service client.
func ClientOptions(accessToken string, opts *Options) []option.ClientOption {
	if opts == nil {
		opts = &Options{}
	}
	var out []option.ClientOption
	if opts.HTTPClient != nil {
		out = append(out, option.WithHTTPClient(opts.HTTPClient))
	} else {
		out = append(out, option.WithTokenSource(TokenSource(accessToken)))
	}
	if opts.Endpoint != "" {
		out = append(out, option.WithEndpoint(opts.Endpoint))
	}
	return out
}

// Caller paces and retries the requests of one service client.
type Caller struct {
	limiter *RateLimiter
	retrier *backoff.Retrier
}

// NewCaller creates a Caller for service.
func NewCaller(service ServiceType, opts *Options) *Caller {
	limiter := NewRateLimiter(service)
	if opts != nil && opts.Limits != nil {
		limiter = NewRateLimiterWithConfig(*opts.Limits)
	}
	return &Caller{
		limiter: limiter,
		retrier: backoff.NewExponential(Transient, backoff.DefaultExponential),
	}
}

// Call runs op under c's rate limit, retrying transient failures. A 429
// response holds back every request made through c.
func Call[T any](ctx context.Context, c *Caller, op func(ctx context.Context) (T, error)) (T, error) {
	return backoff.Do(ctx, c.retrier, func(ctx context.Context) (T, error) {
		if !c.limiter.Allow() {
			log.Debug("request held back by the rate limit")
			if err := c.limiter.Wait(ctx); err != nil {
				var zero T
				return zero, err
			}
		}
		v, err := op(ctx)
		if IsRateLimited(err) {
			c.limiter.RecordRateLimitError(retryAfter(err))
		}
		return v, err
	})
}

func retryAfter(err error) time.Duration {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Header == nil {
		return 0
	}
	secs, perr := strconv.Atoi(gerr.Header.Get("Retry-After"))
	if perr != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}
