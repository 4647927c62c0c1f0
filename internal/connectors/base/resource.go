package base

import (
	"context"
	"maps"
	"time"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/logger"
)

var log = logger.Named("resource")

// Resource is the data every Resource variant embeds.
type Resource struct {
	handle driven.Handle
	sm     driven.StateManager
}

// NewResource binds h to sm.
func NewResource(h driven.Handle, sm driven.StateManager) Resource {
	return Resource{handle: h, sm: sm}
}

// Handle returns the Handle this Resource was followed from.
func (r *Resource) Handle() driven.Handle { return r.handle }

// StateManager returns the StateManager this Resource is bound to.
func (r *Resource) StateManager() driven.StateManager { return r.sm }

// Cookie opens the Handle's Source and returns its cookie.
func (r *Resource) Cookie(ctx context.Context) (any, error) {
	return r.sm.Open(ctx, r.handle.Source())
}

// MetadataEntry produces one metadata value. A nil value is left out.
type MetadataEntry struct {
	Key   string
	Value func(ctx context.Context) (any, error)
}

// CollectMetadata evaluates every entry, logging and skipping the ones
// that fail, then merges in the metadata of the parent Handle if res
// belongs to a derived Source.
func CollectMetadata(ctx context.Context, res driven.Resource, entries ...MetadataEntry) map[string]any {
	md := make(map[string]any)
	for _, e := range entries {
		v, err := e.Value(ctx)
		if err != nil {
			log.Warn("metadata %q of %s: %v", e.Key, res.Handle(), err)
			continue
		}
		if v != nil {
			md[e.Key] = v
		}
	}
	if parent := res.Handle().Source().Handle(); parent != nil {
		maps.Copy(md, parent.Follow(res.StateManager()).Metadata(ctx))
	}
	return md
}

// LastModifiedEntry reports the resource's timestamp under "last-modified".
func LastModifiedEntry(r driven.TimestampedResource) MetadataEntry {
	return MetadataEntry{
		Key: domain.MetaLastModified,
		Value: func(ctx context.Context) (any, error) {
			t, err := r.LastModified(ctx)
			if err != nil {
				return nil, err
			}
			return domain.FormatTime(t), nil
		},
	}
}

// StaticEntry reports a fixed value, leaving out the empty string.
func StaticEntry(key string, value string) MetadataEntry {
	return MetadataEntry{
		Key: key,
		Value: func(context.Context) (any, error) {
			if value == "" {
				return nil, nil
			}
			return value, nil
		},
	}
}

// FirstCall is a timestamp fixed at the time of its first use, for
// Resources with no better notion of modification time.
type FirstCall struct {
	lm Lazy[time.Time]
}

// LastModified returns the time of the first call.
func (f *FirstCall) LastModified(context.Context) (time.Time, error) {
	return f.lm.Get(func() (time.Time, error) { return time.Now(), nil })
}
