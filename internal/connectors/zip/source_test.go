package zip

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/datascanner/internal/connectors/filesystem"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/core/services"
)

var modified = time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)

func writeArchive(t *testing.T, dir string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range []struct{ name, body string }{
		{"docs/", ""},
		{"docs/a.txt", "alpha"},
		{"b.txt", "bravo"},
	} {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: m.name, Method: zip.Deflate, Modified: modified})
		require.NoError(t, err)
		_, err = w.Write([]byte(m.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	p := filepath.Join(dir, "bundle.zip")
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))
	return p
}

func TestSource_Handles(t *testing.T) {
	p := writeArchive(t, t.TempDir())
	outer, err := filesystem.MakeHandle(p)
	require.NoError(t, err)

	sm := services.NewStateManager(3, nil)
	defer sm.Clear()
	ctx := context.Background()

	src := New(outer)
	var members []driven.Handle
	for h, err := range src.Handles(ctx, sm) {
		require.NoError(t, err)
		members = append(members, h)
	}
	require.Len(t, members, 2)
	assert.Equal(t, "docs/a.txt", members[0].RelativePath())
	assert.Equal(t, "b.txt", members[1].RelativePath())
	assert.Equal(t, "docs/a.txt (in "+p+")", members[0].String())
	assert.Equal(t, p, members[0].SortKey())

	res := members[0].Follow(sm).(*Resource)
	rc, err := res.Open(ctx)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "alpha", string(body))

	size, err := res.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	lm, err := res.LastModified(ctx)
	require.NoError(t, err)
	assert.True(t, modified.Equal(lm))

	ok, err := NewHandle(src, "missing.txt").Follow(sm).Check(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSource_SkipsEncryptedMembers(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range []struct {
		name  string
		flags uint16
	}{
		{"a.txt", 0},
		{"secret.txt", flagEncrypted},
	} {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: m.name, Method: zip.Store, Flags: m.flags, Modified: modified})
		require.NoError(t, err)
		_, err = w.Write([]byte("body of " + m.name))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	p := filepath.Join(t.TempDir(), "locked.zip")
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))

	outer, err := filesystem.MakeHandle(p)
	require.NoError(t, err)
	sm := services.NewStateManager(3, nil)
	defer sm.Clear()

	var names []string
	for h, err := range New(outer).Handles(context.Background(), sm) {
		require.NoError(t, err)
		names = append(names, h.RelativePath())
	}
	assert.Equal(t, []string{"a.txt"}, names)
}

func TestRegister_DerivesFromMIME(t *testing.T) {
	reg := services.NewSourceRegistry()
	filesystem.Register(reg)
	Register(reg)

	outer, _ := filesystem.MakeHandle("/srv/bundle.zip")
	src, err := reg.FromHandleType(outer, domain.MIMEZip)
	require.NoError(t, err)
	require.IsType(t, &Source{}, src)

	h := NewHandle(src, "docs/a.txt")
	back, err := reg.HandleFromJSON(h.ToJSON())
	require.NoError(t, err)
	assert.True(t, domain.SameIdentity(h, back))
	assert.Equal(t, TypeLabel, back.Source().Type())
}
