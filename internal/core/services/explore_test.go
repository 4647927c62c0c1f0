package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/datascanner/internal/connectors/data"
	"github.com/custodia-labs/datascanner/internal/connectors/filesystem"
	zipsrc "github.com/custodia-labs/datascanner/internal/connectors/zip"
	"github.com/custodia-labs/datascanner/internal/core/domain"
)

func setupExplore(t *testing.T) *ExploreService {
	t.Helper()
	sources := NewSourceRegistry()
	data.Register(sources)
	zipsrc.Register(sources)
	sources.Freeze()
	return NewExploreService(sources)
}

func TestExploreService_Explore(t *testing.T) {
	archive := zipArchive(t, map[string]string{"a.txt": "a", "b.txt": "b"}, "a.txt", "b.txt")
	src := data.New(archive, domain.MIMEZip, "bundle.zip")

	tests := []struct {
		name    string
		recurse bool
		want    []string
	}{
		{"flat", false, []string{"bundle.zip"}},
		{"recursive", true, []string{"bundle.zip", "a.txt", "b.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateManager(3, nil)
			defer sm.Clear()

			var got []string
			for h, err := range setupExplore(t).Explore(context.Background(), sm, src, tt.recurse) {
				require.NoError(t, err)
				got = append(got, h.RelativePath())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExploreService_ErrorsDoNotStopTheWalk(t *testing.T) {
	sm := NewStateManager(3, nil)
	defer sm.Clear()

	var errs int
	var handles int
	for h, err := range setupExplore(t).Explore(context.Background(), sm, data.New(nil, "", ""), true) {
		if err != nil {
			errs++
			continue
		}
		assert.NotNil(t, h)
		handles++
	}
	assert.Equal(t, 1, errs)
	assert.Zero(t, handles)
}

func TestExploreService_StopsEarly(t *testing.T) {
	archive := zipArchive(t, map[string]string{"a.txt": "a", "b.txt": "b"}, "a.txt", "b.txt")
	sm := NewStateManager(3, nil)
	defer sm.Clear()

	var got []string
	for h, err := range setupExplore(t).Explore(context.Background(), sm, data.New(archive, domain.MIMEZip, "z.zip"), true) {
		require.NoError(t, err)
		got = append(got, h.RelativePath())
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"z.zip", "a.txt"}, got)
}

func TestExploreService_ClosesDependentsBetweenTopLevelHandles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"one.zip", "two.zip"} {
		archive := zipArchive(t, map[string]string{"a.txt": name}, "a.txt")
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), archive, 0o644))
	}
	root, err := filesystem.New(dir)
	require.NoError(t, err)

	sm := NewStateManager(3, nil)
	defer sm.Clear()

	var got []string
	for h, err := range setupExplore(t).Explore(context.Background(), sm, root, true) {
		require.NoError(t, err)
		got = append(got, h.RelativePath())
		if h.RelativePath() == "two.zip" {
			assert.Empty(t, sm.Children(root), "the first archive is closed before the second handle")
		}
	}
	assert.Equal(t, []string{"one.zip", "a.txt", "two.zip", "a.txt"}, got)
	assert.True(t, sm.Contains(root))
	assert.Empty(t, sm.Children(root))
}
