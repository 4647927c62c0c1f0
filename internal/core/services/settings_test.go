package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/datascanner/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/datascanner/internal/core/domain"
)

func TestSettingsService_Get_ReturnsDefaults(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore())

	settings, err := service.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), settings)
	assert.Equal(t, service.GetDefaults(), settings)
	assert.False(t, settings.Cache.Enabled())
}

func TestSettingsService_Get_ReturnsStoredValues(t *testing.T) {
	store := memory.NewConfigStore(map[string]any{
		domain.KeyCacheDirectory:       "/var/cache/ds",
		domain.KeyCacheSecret:          "s3cret",
		domain.KeyStateWidth:           int64(5),
		domain.KeySubprocessTimeout:    int64(10),
		domain.KeyHTTPTimeout:          2.5,
		domain.KeyHTTPRequestsPerSec:   int64(4),
		domain.KeyGhostscriptEnabled:   true,
		domain.KeyGhostscriptExtraArgs: " -dFoo ",
		domain.KeyPageSize:             int64(250),
		domain.KeySkipImages:           true,
	})
	settings, err := NewSettingsService(store).Get()
	require.NoError(t, err)

	assert.Equal(t, "/var/cache/ds", settings.Cache.Directory)
	assert.Equal(t, "s3cret", settings.Cache.Secret)
	assert.Equal(t, 5, settings.Width)
	assert.Equal(t, 10*time.Second, settings.SubprocessTimeout)
	assert.Equal(t, 2500*time.Millisecond, settings.HTTP.Timeout)
	assert.Equal(t, float64(4), settings.HTTP.RequestsPerSecond)
	assert.True(t, settings.Ghostscript.Enabled)
	assert.Equal(t, "-dFoo", settings.Ghostscript.ExtraArgs)
	assert.Equal(t, "/ebook", settings.Ghostscript.PDFProfile)
	assert.Equal(t, 250, settings.PageSize)
	assert.True(t, settings.SkipImages)
}

func TestSettingsService_Get_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"wrong type", domain.KeyStateWidth, "three"},
		{"fractional int", domain.KeyPageSize, 1.5},
		{"zero width", domain.KeyStateWidth, int64(0)},
		{"bool as string", domain.KeySkipImages, "yes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewConfigStore(map[string]any{tt.key: tt.value})
			_, err := NewSettingsService(store).Get()
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestSettingsService_Set(t *testing.T) {
	store := memory.NewConfigStore()
	service := NewSettingsService(store)

	require.NoError(t, service.Set(domain.KeyStateWidth, "4"))
	require.NoError(t, service.Set(domain.KeySkipImages, "true"))
	require.NoError(t, service.Set(domain.KeyHTTPRequestsPerSec, "0.5"))
	require.NoError(t, service.Set(domain.KeyCacheDirectory, "/tmp/c"))
	require.NoError(t, service.Set("custom.key", "anything"))

	v, _ := store.Get(domain.KeyStateWidth)
	assert.Equal(t, int64(4), v)
	assert.Equal(t, "anything", store.GetString("custom.key"))

	settings, err := service.Get()
	require.NoError(t, err)
	assert.Equal(t, 4, settings.Width)
	assert.True(t, settings.SkipImages)
	assert.Equal(t, 0.5, settings.HTTP.RequestsPerSecond)

	err = service.Set(domain.KeyStateWidth, "wide")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSettingsService_KeysAndConfiguration(t *testing.T) {
	store := memory.NewConfigStore(map[string]any{domain.KeySkipImages: true})
	service := NewSettingsService(store)

	keys := service.Keys()
	assert.IsNonDecreasing(t, keys)
	assert.Contains(t, keys, domain.KeyCacheSecret)
	assert.Contains(t, keys, domain.KeyPageSize)
	assert.Equal(t, map[string]any{domain.KeySkipImages: true}, service.Configuration())
}
