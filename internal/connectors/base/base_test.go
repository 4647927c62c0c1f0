package base_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/datascanner/internal/connectors/base"
	"github.com/custodia-labs/datascanner/internal/connectors/data"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/core/services"
)

func TestLazy(t *testing.T) {
	var l base.Lazy[int]
	calls := 0
	compute := func() (int, error) {
		calls++
		return 42, errors.New("kept")
	}
	for range 3 {
		v, err := l.Get(compute)
		assert.Equal(t, 42, v)
		assert.EqualError(t, err, "kept")
	}
	assert.Equal(t, 1, calls)

	var set base.Lazy[string]
	set.Set("preset")
	v, err := set.Get(func() (string, error) { return "computed", nil })
	require.NoError(t, err)
	assert.Equal(t, "preset", v)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "c.txt", base.BaseName("a/b/c.txt"))
	assert.Equal(t, "file", base.BaseName("a/b/"))
	assert.Equal(t, "file", base.BaseName(""))
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "a_b", base.SafeName("a/b"))
	assert.Equal(t, "file", base.SafeName(".."))
	assert.Equal(t, "file", base.SafeName(""))
}

func TestDetectType(t *testing.T) {
	assert.Equal(t, domain.MIMEPDF, base.DetectType([]byte("%PDF-1.7\n")))
	assert.Equal(t, "text/plain", base.DetectType([]byte("just words")))
}

func TestJSONFields(t *testing.T) {
	obj := map[string]any{"s": "v", "n": float64(3), "b": true, "l": []any{"x", 1, "y"}}

	s, err := base.String(obj, "s", "t")
	require.NoError(t, err)
	assert.Equal(t, "v", s)

	_, err = base.String(obj, "missing", "t")
	assert.ErrorIs(t, err, domain.ErrDeserialisation)

	assert.Equal(t, 3, base.OptInt(obj, "n", 0))
	assert.Equal(t, 7, base.OptInt(obj, "missing", 7))
	assert.True(t, base.OptBool(obj, "b"))
	assert.Equal(t, []string{"x", "y"}, base.OptStrings(obj, "l"))
}

func handle(t *testing.T, content string) (driven.Handle, driven.StateManager) {
	t.Helper()
	src := data.New([]byte(content), "text/plain", "note.txt")
	sm := services.NewStateManager(3, nil)
	t.Cleanup(sm.Clear)
	for h, err := range src.Handles(context.Background(), sm) {
		require.NoError(t, err)
		return h, sm
	}
	t.Fatal("no handle")
	return nil, nil
}

func TestMaterialisePath(t *testing.T) {
	h, sm := handle(t, "materialised")
	fr := h.Follow(sm).(driven.FileResource)

	p, release, err := base.MaterialisePath(context.Background(), fr)
	require.NoError(t, err)
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "materialised", string(b))
	assert.Equal(t, "note.txt", p[len(p)-len("note.txt"):])

	require.NoError(t, release())
	_, err = os.Stat(p)
	assert.True(t, os.IsNotExist(err))
}

func TestCollectMetadata_SkipsFailures(t *testing.T) {
	h, sm := handle(t, "x")
	res := h.Follow(sm)

	md := base.CollectMetadata(context.Background(), res,
		base.StaticEntry("kept", "value"),
		base.StaticEntry("empty", ""),
		base.MetadataEntry{Key: "broken", Value: func(context.Context) (any, error) {
			return nil, errors.New("no")
		}},
	)
	assert.Equal(t, map[string]any{"kept": "value"}, md)
}

func TestFirstCall(t *testing.T) {
	var fc base.FirstCall
	first, err := fc.LastModified(context.Background())
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	again, err := fc.LastModified(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestDefaultString(t *testing.T) {
	h, _ := handle(t, "x")
	assert.Equal(t, h.PresentationName()+" (in "+h.PresentationPlace()+")", base.DefaultString(h))
}
