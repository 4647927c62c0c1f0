package dropbox

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/services"
)

var modTime = time.Date(2024, 1, 15, 12, 30, 0, 0, time.UTC)

func newTestFileMetadata(pathLower, content string) *files.FileMetadata {
	fm := &files.FileMetadata{
		Id:             "id:" + pathLower,
		Size:           uint64(len(content)),
		ServerModified: modTime,
	}
	fm.Name = pathLower[strings.LastIndex(pathLower, "/")+1:]
	fm.PathDisplay = pathLower
	fm.PathLower = pathLower
	return fm
}

// fakeAPI serves a Dropbox with two pages of entries.
type fakeAPI struct {
	token    string
	contents map[string]string
	fail     bool
}

func newFake(token string) API {
	return &fakeAPI{token: token, contents: map[string]string{
		"/documents/work/report.txt": "quarterly numbers",
		"/photo.png":                 "\x89PNG\r\n\x1a\n",
		"/notes.txt":                 "remember",
	}}
}

func (f *fakeAPI) ListFolder(arg *files.ListFolderArg) (*files.ListFolderResult, error) {
	if !arg.Recursive || !arg.IncludeMountedFolders {
		return nil, errors.New("unexpected arguments")
	}
	folder := &files.FolderMetadata{}
	folder.PathLower = "/documents"
	return &files.ListFolderResult{
		Entries: []files.IsMetadata{
			folder,
			newTestFileMetadata("/documents/work/report.txt", f.contents["/documents/work/report.txt"]),
			newTestFileMetadata("/photo.png", f.contents["/photo.png"]),
		},
		Cursor:  "c1",
		HasMore: true,
	}, nil
}

func (f *fakeAPI) ListFolderContinue(arg *files.ListFolderContinueArg) (*files.ListFolderResult, error) {
	if arg.Cursor != "c1" {
		return nil, errors.New("bad cursor")
	}
	return &files.ListFolderResult{
		Entries: []files.IsMetadata{newTestFileMetadata("/notes.txt", f.contents["/notes.txt"])},
	}, nil
}

func (f *fakeAPI) lookup(p string) (*files.FileMetadata, error) {
	content, ok := f.contents[p]
	if !ok {
		return nil, errors.New("path/not_found/")
	}
	return newTestFileMetadata(p, content), nil
}

func (f *fakeAPI) Download(arg *files.DownloadArg) (*files.FileMetadata, io.ReadCloser, error) {
	fm, err := f.lookup(arg.Path)
	if err != nil {
		return nil, nil, err
	}
	return fm, io.NopCloser(strings.NewReader(f.contents[arg.Path])), nil
}

func (f *fakeAPI) GetMetadata(arg *files.GetMetadataArg) (files.IsMetadata, error) {
	return f.lookup(arg.Path)
}

func (f *fakeAPI) CurrentAccountEmail() (string, error) {
	if f.token != "good" {
		return "", errors.New("invalid_access_token")
	}
	return "dana@example.org", nil
}

func TestSource_Handles(t *testing.T) {
	src := New("good", newFake)
	sm := services.NewStateManager(3, nil)
	t.Cleanup(sm.Clear)

	var got []string
	for h, err := range src.Handles(context.Background(), sm) {
		require.NoError(t, err)
		got = append(got, h.String())
	}
	assert.Equal(t, []string{
		`"/documents/work/report.txt" (of account dana@example.org)`,
		`"/photo.png" (of account dana@example.org)`,
		`"/notes.txt" (of account dana@example.org)`,
	}, got)
}

func TestSource_BadToken(t *testing.T) {
	src := New("bad", newFake)
	sm := services.NewStateManager(3, nil)
	t.Cleanup(sm.Clear)

	for h, err := range src.Handles(context.Background(), sm) {
		assert.Nil(t, h)
		assert.ErrorIs(t, err, domain.ErrUncontactable)
	}
}

func TestResource(t *testing.T) {
	src := New("good", newFake)
	sm := services.NewStateManager(3, nil)
	t.Cleanup(sm.Clear)
	ctx := context.Background()

	r := NewHandle(src, "/documents/work/report.txt", "dana@example.org").Follow(sm).(*Resource)
	ok, err := r.Check(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	size, err := r.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len("quarterly numbers")), size)

	lm, err := r.LastModified(ctx)
	require.NoError(t, err)
	assert.Equal(t, modTime, lm)

	rc, err := r.Open(ctx)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "quarterly numbers", string(body))

	md := r.Metadata(ctx)
	assert.Equal(t, "dana@example.org", md[domain.MetaEmailAccount])
	assert.Equal(t, "2024-01-15T12:30:00+0000", md[domain.MetaLastModified])

	gone := NewHandle(src, "/deleted.txt", "dana@example.org").Follow(sm).(*Resource)
	ok, err = gone.Check(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = gone.Size(ctx)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestHandle_Presentation(t *testing.T) {
	src := New("secret", newFake)
	tests := []struct {
		relpath string
		want    string
	}{
		{"/documents/work/report.txt", "https://www.dropbox.com/home/documents/work?preview=report.txt"},
		{"/notes.txt", "https://www.dropbox.com/home?preview=notes.txt"},
		{"/a b/c d.txt", "https://www.dropbox.com/home/a b?preview=c+d.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.relpath, func(t *testing.T) {
			assert.Equal(t, tt.want, NewHandle(src, tt.relpath, "e@example.org").PresentationURL())
		})
	}

	h := NewHandle(src, "/notes.txt", "e@example.org")
	assert.Equal(t, "notes.txt", h.Name())
	assert.NotContains(t, domain.Crunch(h.Censor()), "secret")
	assert.Equal(t, h.String(), h.Censor().String())
}

func TestRegister_RoundTrip(t *testing.T) {
	reg := services.NewSourceRegistry()
	Register(reg, newFake)

	s, err := reg.FromURL("dropbox://tok")
	require.NoError(t, err)
	assert.Equal(t, "dropbox://tok", s.(*Source).URL())

	h := NewHandle(s, "/notes.txt", "e@example.org")
	back, err := reg.HandleFromJSON(h.ToJSON())
	require.NoError(t, err)
	assert.Equal(t, domain.Crunch(h), domain.Crunch(back))
	assert.Equal(t, "e@example.org", back.(*Handle).Email())
}
