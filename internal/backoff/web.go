package backoff

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StatusError is an HTTP response that asks the client to come back later.
type StatusError struct {
	StatusCode int
	RetryAfter string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d", e.StatusCode)
}

// retryCodes are the statuses a WebRetrier waits out.
var retryCodes = map[int]bool{
	http.StatusTooManyRequests:    true,
	http.StatusServiceUnavailable: true,
}

// IsWebTransient reports whether err is a timeout or a StatusError.
func IsWebTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return retryCodes[se.StatusCode]
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// NewWeb returns an exponential Retrier that also retries 429 Too Many
// Requests and 503 Service Unavailable, honouring Retry-After.
func NewWeb() *Retrier {
	r := NewExponential(IsWebTransient, DefaultExponential)
	r.Delay = func(tries int, err error) time.Duration {
		var se *StatusError
		if errors.As(err, &se) && se.RetryAfter != "" {
			if after, ok := parseRetryAfter(se.RetryAfter, time.Now()); ok {
				// Spread workers that were told the same thing.
				mult := math.Pow(1.1+0.2*rand.Float64(), float64(tries))
				d := time.Duration(mult * float64(after))
				log.Debug("retry-after of %s found, sleeping for %s", after, d)
				return d
			}
		}
		d := DefaultExponential.Compute(tries)
		log.Debug("no retry-after found, sleeping for %s", d)
		return d
	}
	return r
}

// DoHTTP runs op with r, turning 429 and 503 responses into StatusErrors
// so that they are retried. The body of a rejected response is drained and
// closed.
func DoHTTP(ctx context.Context, r *Retrier, op func(ctx context.Context) (*http.Response, error)) (*http.Response, error) {
	return Do(ctx, r, func(ctx context.Context) (*http.Response, error) {
		resp, err := op(ctx)
		if err != nil {
			return nil, err
		}
		if retryCodes[resp.StatusCode] {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, &StatusError{
				StatusCode: resp.StatusCode,
				RetryAfter: resp.Header.Get("Retry-After"),
			}
		}
		return resp, nil
	})
}

// parseRetryAfter reads a Retry-After value: a number of seconds or an
// HTTP date.
func parseRetryAfter(raw string, now time.Time) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), true
	}
	if t, err := http.ParseTime(raw); err == nil {
		return max(t.Sub(now), 0), true
	}
	return 0, false
}
