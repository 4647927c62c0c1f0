package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors represent engine failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownScheme indicates a URL scheme or JSON type label with no
	// registered handler.
	ErrUnknownScheme = errors.New("unknown scheme")

	// ErrDeserialisation indicates a JSON payload missing a required field
	// or carrying an unusable value.
	ErrDeserialisation = errors.New("deserialisation failed")

	// Remote model errors.

	// ErrUncontactable indicates the remote server could not be reached.
	ErrUncontactable = errors.New("uncontactable")

	// ErrUnauthorised indicates the remote server rejected authentication.
	ErrUnauthorised = errors.New("unauthorised")

	// ErrUnavailable indicates the remote server reports the resource absent.
	ErrUnavailable = errors.New("unavailable")

	// ErrResourceUnavailable is a generic transient Resource failure.
	ErrResourceUnavailable = errors.New("resource unavailable")

	// ErrNoConversion indicates no converter or no representation exists
	// for a (output type, MIME type) pair.
	ErrNoConversion = errors.New("no conversion available")

	// ErrNoValue indicates a converter ran but produced no representation.
	ErrNoValue = errors.New("no value produced")

	// Programming errors. These are raised by panics at registration time.

	// ErrDuplicateRegistration indicates a registry key was registered twice.
	ErrDuplicateRegistration = errors.New("duplicate registration")

	// ErrRegistryFrozen indicates a registration after Freeze.
	ErrRegistryFrozen = errors.New("registry frozen")
)

// UnknownSchemeError names the scheme or type label that had no handler.
type UnknownSchemeError struct {
	Scheme string
}

func (e *UnknownSchemeError) Error() string {
	return fmt.Sprintf("unknown scheme %q", e.Scheme)
}

// Is reports whether target is ErrUnknownScheme.
func (e *UnknownSchemeError) Is(target error) bool {
	return target == ErrUnknownScheme
}

// DeserialisationError names the type label and the property that could not
// be decoded.
type DeserialisationError struct {
	Type     string
	Property string
}

func (e *DeserialisationError) Error() string {
	return fmt.Sprintf("cannot deserialise %s: missing or invalid property %q", e.Type, e.Property)
}

// Is reports whether target is ErrDeserialisation.
func (e *DeserialisationError) Is(target error) bool {
	return target == ErrDeserialisation
}

// ModelError is raised when a remote model (server, API, share) fails.
// Its arguments are restricted to strings and integers so that it can be
// logged and serialised safely. The first argument names the server.
type ModelError struct {
	Kind error
	Args []any
}

// NewModelError builds a ModelError of the given kind. It panics if any
// argument is not a string or an int.
func NewModelError(kind error, args ...any) *ModelError {
	for _, a := range args {
		switch a.(type) {
		case string, int:
		default:
			panic(fmt.Sprintf("prohibited exception argument type %T", a))
		}
	}
	return &ModelError{Kind: kind, Args: args}
}

// Uncontactable reports that server could not be reached.
func Uncontactable(server string, args ...any) *ModelError {
	return NewModelError(ErrUncontactable, append([]any{server}, args...)...)
}

// Unauthorised reports that server rejected our credentials.
func Unauthorised(server string, args ...any) *ModelError {
	return NewModelError(ErrUnauthorised, append([]any{server}, args...)...)
}

// Unavailable reports that server says the resource does not exist.
func Unavailable(server string, args ...any) *ModelError {
	return NewModelError(ErrUnavailable, append([]any{server}, args...)...)
}

// Server returns the first argument if it is a string.
func (e *ModelError) Server() string {
	if len(e.Args) == 0 {
		return ""
	}
	s, _ := e.Args[0].(string)
	return s
}

func (e *ModelError) Error() string {
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = fmt.Sprint(a)
	}
	return fmt.Sprintf("%v: %s", e.Kind, strings.Join(parts, ", "))
}

func (e *ModelError) Unwrap() error {
	return e.Kind
}
