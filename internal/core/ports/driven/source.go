package driven

import (
	"context"
	"iter"

	"github.com/custodia-labs/datascanner/internal/core/domain"
)

// Acquirer performs the scoped acquisition of a Source's state. The
// StateManager calls Acquire on first open and keeps release until the
// Source is closed.
type Acquirer interface {
	// Acquire returns the cookie for this Source and a finaliser that
	// releases it. If it returns an error, nothing needs releasing.
	Acquire(ctx context.Context, sm StateManager) (cookie any, release func() error, err error)
}

// Source produces Handles. A root Source has a nil Handle(); a derived
// Source reinterprets a Handle as a container.
type Source interface {
	domain.Crunchable
	Acquirer

	// Type returns the JSON type label.
	Type() string

	// Handles lazily enumerates this Source's Handles. Per-object errors
	// are yielded alongside a nil Handle and iteration continues.
	Handles(ctx context.Context, sm StateManager) iter.Seq2[Handle, error]

	// YieldsIndependentSources reports whether children are unrelated roots
	// (a mail account) rather than parts of one object (an archive).
	YieldsIndependentSources() bool

	// Handle returns the Handle a derived Source wraps, or nil.
	Handle() Handle

	// Censor returns an equivalent Source without credentials.
	Censor() Source

	// ToJSON returns the wire form {"type": label, ...fields}.
	ToJSON() map[string]any
}

// DerivedSource is a Source built from a Handle.
type DerivedSource interface {
	Source

	// WithHandle returns a copy of this Source wrapping h.
	WithHandle(h Handle) Source
}

// Handle is a persistent, serialisable reference to an object in a Source.
// Handles compare equal when they crunch to the same string.
type Handle interface {
	domain.Crunchable

	// Type returns the JSON type label.
	Type() string

	Source() Source
	RelativePath() string

	// Referrer returns the Handle through which this one was found, or nil.
	Referrer() Handle

	// Name is the base name of the relative path, or "file".
	Name() string

	// GuessType guesses the MIME type from Name.
	GuessType() string

	PresentationName() string
	PresentationPlace() string

	// String is "name (in place)" unless a variant says otherwise.
	String() string

	// PresentationURL returns a user-meaningful URL or "".
	PresentationURL() string

	// SortKey positions this Handle among others of the same Source type.
	SortKey() string

	// Censor returns an equivalent Handle whose Source carries no secrets.
	Censor() Handle

	// Follow binds this Handle to sm, producing a Resource.
	Follow(sm StateManager) Resource

	// ToJSON returns {"type", "source", "path", "referrer"?}.
	ToJSON() map[string]any

	// WithSource returns a copy of this Handle belonging to s.
	WithSource(s Source) Handle
}

// BaseHandle walks up through parent Handles while the parent's Source does
// not yield independent sources.
func BaseHandle(h Handle) Handle {
	for {
		parent := h.Source().Handle()
		if parent == nil || parent.Source().YieldsIndependentSources() {
			return h
		}
		h = parent
	}
}

// BaseReferrer follows the referrer chain to its end.
func BaseReferrer(h Handle) Handle {
	for h.Referrer() != nil {
		h = h.Referrer()
	}
	return h
}

// TopSource returns the root Source of h's hierarchy.
func TopSource(h Handle) Source {
	s := h.Source()
	for s.Handle() != nil {
		s = s.Handle().Source()
	}
	return s
}

// Remap returns a copy of h whose root Source has been substituted through
// mapping, keyed by crunched Source. Derived Sources are rebuilt around the
// remapped parent Handle.
func Remap(h Handle, mapping map[string]Source) Handle {
	return h.WithSource(RemapSource(h.Source(), mapping))
}

// RemapSource is the Source half of Remap.
func RemapSource(s Source, mapping map[string]Source) Source {
	if ds, ok := s.(DerivedSource); ok && s.Handle() != nil {
		return ds.WithHandle(Remap(s.Handle(), mapping))
	}
	if m, ok := mapping[domain.Crunch(s)]; ok {
		return m
	}
	return s
}
