package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/datascanner/internal/core/domain"
)

func TestNewConfigStore_Initial(t *testing.T) {
	initial := map[string]any{domain.KeySkipImages: true}
	store := NewConfigStore(initial)
	initial[domain.KeySkipImages] = false

	assert.True(t, store.GetBool(domain.KeySkipImages))
	assert.Equal(t, ":memory:", store.Path())
	assert.NoError(t, store.Load())
	assert.NoError(t, store.Save())
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store := NewConfigStore()
	require.NoError(t, store.Set("s", "text"))
	require.NoError(t, store.Set("i", int64(7)))
	require.NoError(t, store.Set("f", float64(9)))
	require.NoError(t, store.Set("b", true))
	require.NoError(t, store.Set("l", []any{"a", 1, "b"}))

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"string", store.GetString("s"), "text"},
		{"string of int", store.GetString("i"), ""},
		{"int64", store.GetInt("i"), 7},
		{"float", store.GetInt("f"), 9},
		{"int of string", store.GetInt("s"), 0},
		{"bool", store.GetBool("b"), true},
		{"missing bool", store.GetBool("nope"), false},
		{"slice", store.GetStringSlice("l"), []string{"a", "b"}},
		{"missing slice", store.GetStringSlice("nope"), []string(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestConfigStore_All_IsCopy(t *testing.T) {
	store := NewConfigStore()
	require.NoError(t, store.Set("k", "v"))

	all := store.All()
	all["k"] = "changed"
	assert.Equal(t, "v", store.GetString("k"))
}

func TestConfigStore_Watch_StopsOnCancel(t *testing.T) {
	store := NewConfigStore()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, store.Watch(ctx, func() { t.Error("unexpected change") }))
}

func TestConfigStore_Concurrency(t *testing.T) {
	store := NewConfigStore()
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := string(rune('a' + i))
			_ = store.Set(key, i)
			_ = store.GetInt(key)
			_ = store.All()
		}()
	}
	wg.Wait()
	assert.Len(t, store.All(), 10)
}
