package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	assert.Equal(t, 3, s.Width)
	assert.Equal(t, 10, s.HTTP.TTL)
	assert.Equal(t, 60*time.Second, s.SubprocessTimeout)
	assert.False(t, s.Ghostscript.Enabled)
	assert.Equal(t, "/ebook", s.Ghostscript.PDFProfile)
	assert.False(t, s.Cache.Enabled())
}

func TestCacheSettings_Enabled(t *testing.T) {
	assert.True(t, CacheSettings{Directory: "/tmp/cache"}.Enabled())
	assert.False(t, CacheSettings{}.Enabled())
}
