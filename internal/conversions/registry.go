// Package conversions maps (output type, MIME type) pairs to converters and
// encodes the representations they produce.
//
// Converters live in subpackages; RegisterDefaults wires the stock set into
// a Registry. A converter registered without MIME types is the fallback for
// its output type.
package conversions

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/logger"
)

var log = logger.Named("conversions")

// SingleResult is a representation together with the object it was
// produced from.
type SingleResult struct {
	Type  domain.OutputType
	Value any

	// Parent is the Resource the value was extracted from.
	Parent driven.Resource
}

type key struct {
	output domain.OutputType
	mime   string // "" for the fallback
}

// Registry holds the converters. It is filled at startup, frozen, and
// read-only afterwards.
type Registry struct {
	mu         sync.RWMutex
	converters map[key]driven.Converter
	frozen     bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{converters: make(map[key]driven.Converter)}
}

// Register adds c under each of its MIME types, or as the fallback for its
// output type when it declares none. Registering a pair twice, or after
// Freeze, panics.
func (r *Registry) Register(c driven.Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic(fmt.Errorf("%w: converter for %s", domain.ErrRegistryFrozen, c.OutputType()))
	}
	mimes := c.SupportedMIMETypes()
	if mimes == nil {
		mimes = []string{""}
	}
	for _, m := range mimes {
		k := key{output: c.OutputType(), mime: m}
		if _, exists := r.converters[k]; exists {
			panic(fmt.Errorf("%w: converter (%s, %q)", domain.ErrDuplicateRegistration, k.output, m))
		}
		r.converters[k] = c
	}
}

// Freeze makes any later registration panic.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Lookup finds the converter for (ot, mime), preferring an exact MIME match
// over the fallback.
func (r *Registry) Lookup(ot domain.OutputType, mime string) (driven.Converter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.converters[key{output: ot, mime: mime}]; ok && mime != "" {
		return c, true
	}
	c, ok := r.converters[key{output: ot}]
	return c, ok
}

// Has reports whether any converter, specific or fallback, exists for ot.
func (r *Registry) Has(ot domain.OutputType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k := range r.converters {
		if k.output == ot {
			return true
		}
	}
	return false
}

// MIMETypes returns the MIME types with a specific converter for ot, sorted.
func (r *Registry) MIMETypes(ot domain.OutputType) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for k := range r.converters {
		if k.output == ot && k.mime != "" {
			out = append(out, k.mime)
		}
	}
	sort.Strings(out)
	return out
}

// Convert converts res to ot. The MIME type is mimeOverride when set, the
// computed type of a FileResource, or the Handle's guess otherwise. When no
// converter applies the error wraps domain.ErrNoConversion; when the
// converter has nothing to say it wraps domain.ErrNoValue.
func (r *Registry) Convert(ctx context.Context, res driven.Resource, ot domain.OutputType,
	mimeOverride string) (SingleResult, error) {
	mime, err := TypeOf(ctx, res, mimeOverride)
	if err != nil {
		return SingleResult{}, err
	}
	c, ok := r.Lookup(ot, mime)
	if !ok {
		log.Debug("no %s converter for %s", ot, mime)
		return SingleResult{}, fmt.Errorf("%w: %s from %s", domain.ErrNoConversion, ot, mime)
	}
	var v any
	if mc, ok := c.(driven.MIMEConverter); ok {
		v, err = mc.ConvertMIME(ctx, res, mime)
	} else {
		v, err = c.Convert(ctx, res)
	}
	if err != nil {
		return SingleResult{}, err
	}
	if v == nil {
		return SingleResult{}, fmt.Errorf("%w: %s from %s", domain.ErrNoValue, ot, mime)
	}
	if sr, ok := v.(SingleResult); ok {
		return sr, nil
	}
	return SingleResult{Type: ot, Value: v, Parent: res}, nil
}

// TypeOf picks the MIME type conversions of res are dispatched on.
func TypeOf(ctx context.Context, res driven.Resource, mimeOverride string) (string, error) {
	if mimeOverride != "" {
		return mimeOverride, nil
	}
	if fr, ok := res.(driven.FileResource); ok {
		return fr.ComputeType(ctx)
	}
	return res.Handle().GuessType(), nil
}
