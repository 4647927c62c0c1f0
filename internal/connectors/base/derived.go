package base

import (
	"context"
	"fmt"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// Derived is the data every derived Source embeds: the Handle it
// reinterprets as a container.
type Derived struct {
	handle driven.Handle
}

// NewDerived creates the embedded derived Source data.
func NewDerived(h driven.Handle) Derived {
	return Derived{handle: h}
}

// Handle returns the wrapped Handle.
func (d *Derived) Handle() driven.Handle { return d.handle }

// YieldsIndependentSources returns false: a derived Source is part of the
// same logical object as its parent.
func (d *Derived) YieldsIndependentSources() bool { return false }

// Properties returns the identity property _handle.
func (d *Derived) Properties() []domain.Property {
	return []domain.Property{{Name: "_handle", Value: d.handle}}
}

// DerivedJSON returns {"type": label, "handle": ...}.
func DerivedJSON(label string, h driven.Handle) map[string]any {
	return map[string]any{"type": label, "handle": h.ToJSON()}
}

// RegisterDerived registers a derived Source constructor for each MIME type
// and a JSON decoder for its type label.
func RegisterDerived(reg driven.SourceRegistry, label string, mimes []string,
	build func(h driven.Handle) driven.Source) {
	for _, m := range mimes {
		reg.RegisterMIME(m, func(h driven.Handle) (driven.Source, error) {
			return build(h), nil
		})
	}
	reg.RegisterSource(label, func(obj map[string]any, dec driven.Decoder) (driven.Source, error) {
		hObj, err := Object(obj, "handle", label)
		if err != nil {
			return nil, err
		}
		h, err := dec.HandleFromJSON(hObj)
		if err != nil {
			return nil, err
		}
		return build(h), nil
	})
}

// ParentFile follows the wrapped Handle and returns it as a FileResource.
func (d *Derived) ParentFile(sm driven.StateManager) (driven.FileResource, error) {
	fr, ok := d.handle.Follow(sm).(driven.FileResource)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a file", domain.ErrResourceUnavailable, d.handle)
	}
	return fr, nil
}

// ParentPath materialises the wrapped Handle's content as a local file.
func (d *Derived) ParentPath(ctx context.Context, sm driven.StateManager) (string, func() error, error) {
	fr, err := d.ParentFile(sm)
	if err != nil {
		return "", nil, err
	}
	return fr.LocalPath(ctx)
}
