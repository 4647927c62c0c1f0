package google

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"

	"google.golang.org/api/googleapi"

	"github.com/custodia-labs/datascanner/internal/core/domain"
)

func code(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

// IsUnauthorized returns true if the error indicates invalid credentials.
func IsUnauthorized(err error) bool {
	return code(err) == http.StatusUnauthorized
}

// IsForbidden returns true if the error indicates insufficient permissions.
func IsForbidden(err error) bool {
	return code(err) == http.StatusForbidden
}

// IsNotFound returns true if the error indicates a missing or deleted
// object.
func IsNotFound(err error) bool {
	c := code(err)
	return c == http.StatusNotFound || c == http.StatusGone
}

// IsRateLimited returns true if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	return code(err) == http.StatusTooManyRequests
}

// Transient reports whether another attempt could succeed: rate limiting,
// server-side failures and transport errors. A cancelled context is never
// transient.
func Transient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if c := code(err); c != 0 {
		return c == http.StatusTooManyRequests || c >= http.StatusInternalServerError
	}
	var nerr net.Error
	return errors.As(err, &nerr) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// MapError converts a Google API error into a scanner error naming server.
// Other errors are returned unchanged.
func MapError(server string, err error) error {
	if err == nil {
		return nil
	}
	c := code(err)
	switch {
	case IsUnauthorized(err) || IsForbidden(err):
		return domain.Unauthorised(server, c)
	case IsNotFound(err):
		return domain.Unavailable(server, c)
	case c != 0:
		return domain.Unavailable(server, c, err.Error())
	}
	return err
}
