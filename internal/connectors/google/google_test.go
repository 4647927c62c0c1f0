package google

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/custodia-labs/datascanner/internal/core/domain"
)

func apiError(code int) error {
	return &googleapi.Error{Code: code, Message: http.StatusText(code)}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		unauthorized bool
		notFound     bool
		rateLimited  bool
		transient    bool
	}{
		{name: "401", err: apiError(401), unauthorized: true},
		{name: "404", err: apiError(404), notFound: true},
		{name: "410", err: apiError(410), notFound: true},
		{name: "429", err: apiError(429), rateLimited: true, transient: true},
		{name: "503", err: apiError(503), transient: true},
		{name: "plain", err: errors.New("boom")},
		{name: "connection reset", err: &url.Error{Op: "Get", URL: "https://www.googleapis.com/", Err: syscall.ECONNRESET}, transient: true},
		{name: "bare reset", err: syscall.ECONNRESET, transient: true},
		{name: "timeout", err: timeoutError{}, transient: true},
		{name: "cancelled", err: &url.Error{Op: "Get", URL: "https://www.googleapis.com/", Err: context.Canceled}},
		{name: "context cancelled", err: context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unauthorized, IsUnauthorized(tt.err))
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
			assert.Equal(t, tt.rateLimited, IsRateLimited(tt.err))
			assert.Equal(t, tt.transient, Transient(tt.err))
		})
	}
	assert.True(t, IsForbidden(apiError(403)))
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestMapError(t *testing.T) {
	assert.NoError(t, MapError("srv", nil))
	assert.ErrorIs(t, MapError("srv", apiError(401)), domain.ErrUnauthorised)
	assert.ErrorIs(t, MapError("srv", apiError(403)), domain.ErrUnauthorised)
	assert.ErrorIs(t, MapError("srv", apiError(410)), domain.ErrUnavailable)
	assert.ErrorIs(t, MapError("srv", apiError(404)), domain.ErrUnavailable)
	assert.ErrorIs(t, MapError("srv", apiError(500)), domain.ErrUnavailable)

	plain := errors.New("boom")
	assert.Same(t, plain, MapError("srv", plain))
}

func TestRateLimiter(t *testing.T) {
	unlimited := NewRateLimiterWithConfig(RateLimitConfig{})
	for range 100 {
		assert.True(t, unlimited.Allow())
	}

	l := NewRateLimiter(ServiceDrive)
	l.RecordRateLimitError(time.Hour)
	assert.False(t, l.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
}

func TestCall_RetriesTransientErrors(t *testing.T) {
	c := NewCaller(ServiceDrive, &Options{Limits: &RateLimitConfig{}})
	c.retrier.Delay = nil

	calls := 0
	v, err := Call(context.Background(), c, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", apiError(503)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)

	calls = 0
	_, err = Call(context.Background(), c, func(context.Context) (string, error) {
		calls++
		return "", apiError(404)
	})
	assert.True(t, IsNotFound(err))
	assert.Equal(t, 1, calls)
}

func TestCall_RetriesTransportErrors(t *testing.T) {
	c := NewCaller(ServiceGmail, &Options{Limits: &RateLimitConfig{}})
	c.retrier.Delay = nil

	calls := 0
	v, err := Call(context.Background(), c, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, &url.Error{Op: "Get", URL: "https://gmail.googleapis.com/", Err: syscall.ECONNRESET}
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 2, calls)
}

func TestCall_HoldsBackAfterRateLimit(t *testing.T) {
	c := NewCaller(ServiceDrive, &Options{Limits: &RateLimitConfig{}})
	c.limiter.RecordRateLimitError(50 * time.Millisecond)

	start := time.Now()
	_, err := Call(context.Background(), c, func(context.Context) (bool, error) {
		return true, nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestRetryAfter(t *testing.T) {
	err := &googleapi.Error{Code: 429, Header: http.Header{"Retry-After": []string{"7"}}}
	assert.Equal(t, 7*time.Second, retryAfter(err))
	assert.Zero(t, retryAfter(apiError(429)))
}

func TestClientOptions(t *testing.T) {
	assert.Len(t, ClientOptions("tok", nil), 1)
	assert.Len(t, ClientOptions("tok", &Options{Endpoint: "http://localhost/", HTTPClient: http.DefaultClient}), 2)

	tok, err := TokenSource("tok").Token()
	require.NoError(t, err)
	assert.Equal(t, "tok", tok.AccessToken)
}
