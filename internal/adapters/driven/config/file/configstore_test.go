package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600))
}

func TestNewConfigStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
	assert.Empty(t, store.All())
}

func TestNewConfigStore_CreatesNestedDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "etc", "datascanner")

	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Join(dir, "config.toml"), store.Path())
}

func TestNewConfigStore_RejectsInvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "[cache\ndirectory = ")

	_, err := NewConfigStore(tmpDir)
	assert.Error(t, err)
}

func TestConfigStore_TypedGetters(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `[state]
width = 5

[http]
requests_per_second = 2.5

[ghostscript]
enabled = true
pdf_profile = "/printer"

[aliases]
email = ["alice@example.org", "bob@example.org"]
`)
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"int from int64", store.GetInt("state.width"), 5},
		{"bool", store.GetBool("ghostscript.enabled"), true},
		{"string", store.GetString("ghostscript.pdf_profile"), "/printer"},
		{"string slice", store.GetStringSlice("aliases.email"), []string{"alice@example.org", "bob@example.org"}},
		{"missing int", store.GetInt("msgraph.page_size"), 0},
		{"missing bool", store.GetBool("skip_images"), false},
		{"missing string", store.GetString("cache.secret"), ""},
		{"wrong type", store.GetString("state.width"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}

	v, ok := store.Get("http.requests_per_second")
	require.True(t, ok)
	assert.InDelta(t, 2.5, v, 1e-9)

	assert.Nil(t, store.GetStringSlice("aliases.sid"))
}

func TestConfigStore_SetPersists(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	require.NoError(t, store.Set("cache.secret", "first"))
	require.NoError(t, store.Set("cache.secret", "second"))
	require.NoError(t, store.Set("aliases.generic", []string{"example.org"}))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "second", reopened.GetString("cache.secret"))
	assert.Equal(t, []string{"example.org"}, reopened.GetStringSlice("aliases.generic"))
}

func TestConfigStore_SetUnmarshallableValue(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, store.Set("state.width", make(chan int)))
}

func TestConfigStore_LoadPicksUpExternalEdits(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	require.NoError(t, store.Set("state.width", 2))

	writeConfig(t, tmpDir, "[state]\nwidth = 8\n")
	require.NoError(t, store.Load())
	assert.Equal(t, 8, store.GetInt("state.width"))
}

func TestConfigStore_Concurrency(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.Set("state.width", i)
		}()
		go func() {
			defer wg.Done()
			_ = store.GetInt("state.width")
			_ = store.All()
		}()
	}
	wg.Wait()

	_, ok := store.Get("state.width")
	assert.True(t, ok)
}

func TestConfigStore_Load_Tables(t *testing.T) {
	tmpDir := t.TempDir()
	content := `skip_images = true

[cache]
directory = "/var/cache/datascanner"
secret = "s3cret"

[ghostscript]
enabled = true
timeout = 90
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(content), 0600))

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "/var/cache/datascanner", store.GetString("cache.directory"))
	assert.Equal(t, "s3cret", store.GetString("cache.secret"))
	assert.True(t, store.GetBool("ghostscript.enabled"))
	assert.Equal(t, 90, store.GetInt("ghostscript.timeout"))
	assert.True(t, store.GetBool("skip_images"))
	assert.Len(t, store.All(), 5)
}

func TestConfigStore_Save_WritesTables(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	require.NoError(t, store.Set("cache.directory", "/tmp/cache"))
	require.NoError(t, store.Set("state.width", 4))

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "[cache]"), string(raw))
	assert.False(t, strings.Contains(string(raw), `"cache.directory"`), string(raw))

	store2, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cache", store2.GetString("cache.directory"))
	assert.Equal(t, 4, store2.GetInt("state.width"))
}

func TestConfigStore_All_IsCopy(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("key", "value"))

	all := store.All()
	all["key"] = "changed"
	assert.Equal(t, "value", store.GetString("key"))
}

func TestConfigStore_Watch(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	changed := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() {
		done <- store.Watch(ctx, func() { changed <- struct{}{} })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(store.Path(), []byte("skip_images = true\n"), 0600))

	require.Eventually(t, func() bool { return store.GetBool("skip_images") },
		5*time.Second, 20*time.Millisecond)
	assert.NotEmpty(t, changed)

	cancel()
	assert.NoError(t, <-done)
}
