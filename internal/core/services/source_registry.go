package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// Ensure SourceRegistry implements the interface.
var _ driven.SourceRegistry = (*SourceRegistry)(nil)

type capability string

const (
	capURL        capability = "url"
	capMIME       capability = "mime"
	capSourceJSON capability = "source-json"
	capHandleJSON capability = "handle-json"
)

type registryKey struct {
	capability    capability
	discriminator string
}

// SourceRegistry maps (capability, discriminator) pairs to Source and Handle
// constructors. It is filled at startup, frozen, and read-only afterwards.
type SourceRegistry struct {
	mu      sync.RWMutex
	entries map[registryKey]any
	frozen  bool
}

// NewSourceRegistry creates an empty registry.
func NewSourceRegistry() *SourceRegistry {
	return &SourceRegistry{entries: make(map[registryKey]any)}
}

func (r *SourceRegistry) register(k registryKey, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic(fmt.Errorf("%w: %s %q", domain.ErrRegistryFrozen, k.capability, k.discriminator))
	}
	if _, exists := r.entries[k]; exists {
		panic(fmt.Errorf("%w: %s %q", domain.ErrDuplicateRegistration, k.capability, k.discriminator))
	}
	r.entries[k] = v
}

func (r *SourceRegistry) lookup(k registryKey) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[k]
	return v, ok
}

// RegisterURL registers the factory for a URL scheme.
func (r *SourceRegistry) RegisterURL(scheme string, f driven.URLFactory) {
	r.register(registryKey{capURL, strings.ToLower(scheme)}, f)
}

// RegisterMIME registers the derived Source factory for a MIME type.
func (r *SourceRegistry) RegisterMIME(mime string, f driven.MIMEFactory) {
	r.register(registryKey{capMIME, mime}, f)
}

// RegisterSource registers the JSON decoder for a Source type label.
func (r *SourceRegistry) RegisterSource(label string, f driven.SourceDecoder) {
	r.register(registryKey{capSourceJSON, label}, f)
}

// RegisterHandle registers the JSON decoder for a Handle type label.
func (r *SourceRegistry) RegisterHandle(label string, f driven.HandleDecoder) {
	r.register(registryKey{capHandleJSON, label}, f)
}

// Freeze rejects all further registrations.
func (r *SourceRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen returns true once Freeze has been called.
func (r *SourceRegistry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Schemes returns the registered URL schemes, sorted.
func (r *SourceRegistry) Schemes() []string {
	return r.discriminators(capURL)
}

// MIMETypes returns the MIME types with derived Sources, sorted.
func (r *SourceRegistry) MIMETypes() []string {
	return r.discriminators(capMIME)
}

func (r *SourceRegistry) discriminators(c capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for k := range r.entries {
		if k.capability == c {
			out = append(out, k.discriminator)
		}
	}
	sort.Strings(out)
	return out
}

// FromURL builds a root Source from a URL such as "file:///srv/share".
func (r *SourceRegistry) FromURL(rawURL string) (driven.Source, error) {
	scheme, _, found := strings.Cut(rawURL, ":")
	if !found || scheme == "" {
		return nil, &domain.UnknownSchemeError{Scheme: ""}
	}
	v, ok := r.lookup(registryKey{capURL, strings.ToLower(scheme)})
	if !ok {
		return nil, &domain.UnknownSchemeError{Scheme: scheme}
	}
	return v.(driven.URLFactory)(rawURL)
}

// FromHandle reinterprets h as a derived Source. With a StateManager the
// content type is computed; without one it is guessed from the name.
func (r *SourceRegistry) FromHandle(ctx context.Context, h driven.Handle, sm driven.StateManager) (driven.Source, error) {
	mime := h.GuessType()
	if sm != nil {
		if fr, ok := h.Follow(sm).(driven.FileResource); ok {
			computed, err := fr.ComputeType(ctx)
			if err != nil {
				return nil, fmt.Errorf("computing type of %s: %w", h, err)
			}
			mime = computed
		}
	}
	return r.FromHandleType(h, mime)
}

// FromHandleType reinterprets h as a derived Source of the given type.
// It returns nil, nil when no derivation is registered.
func (r *SourceRegistry) FromHandleType(h driven.Handle, mime string) (driven.Source, error) {
	v, ok := r.lookup(registryKey{capMIME, mime})
	if !ok {
		return nil, nil
	}
	return v.(driven.MIMEFactory)(h)
}

// SourceFromJSON decodes a Source from its JSON object.
func (r *SourceRegistry) SourceFromJSON(obj map[string]any) (driven.Source, error) {
	label, err := typeLabel(obj)
	if err != nil {
		return nil, err
	}
	v, ok := r.lookup(registryKey{capSourceJSON, label})
	if !ok {
		return nil, &domain.UnknownSchemeError{Scheme: label}
	}
	return v.(driven.SourceDecoder)(obj, r)
}

// HandleFromJSON decodes a Handle from its JSON object.
func (r *SourceRegistry) HandleFromJSON(obj map[string]any) (driven.Handle, error) {
	label, err := typeLabel(obj)
	if err != nil {
		return nil, err
	}
	v, ok := r.lookup(registryKey{capHandleJSON, label})
	if !ok {
		return nil, &domain.UnknownSchemeError{Scheme: label}
	}
	return v.(driven.HandleDecoder)(obj, r)
}

func typeLabel(obj map[string]any) (string, error) {
	if obj == nil {
		return "", &domain.DeserialisationError{Property: "type"}
	}
	label, ok := obj["type"].(string)
	if !ok || label == "" {
		return "", &domain.DeserialisationError{Property: "type"}
	}
	return label, nil
}
