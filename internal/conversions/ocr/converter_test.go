package ocr

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/datascanner/internal/connectors/data"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/core/services"
)

type fakeRunner struct {
	calls []string
	fail  string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	if name == f.fail {
		return nil, errors.New("exit status 1")
	}
	if name == "tesseract" {
		return []byte("  recognised text\n\n"), nil
	}
	return nil, nil
}

func imageResource(mime string, config map[string]any) driven.Resource {
	src := data.New([]byte("not really an image"), mime, "picture")
	return data.NewHandle(src, "picture").Follow(services.NewStateManager(3, config))
}

func TestConvert_PNG(t *testing.T) {
	runner := &fakeRunner{}
	v, err := New(runner).Convert(context.Background(), imageResource("image/png", nil))
	require.NoError(t, err)
	assert.Equal(t, "recognised text", v)
	require.Len(t, runner.calls, 1)
	assert.True(t, strings.HasPrefix(runner.calls[0], "tesseract "))
	assert.True(t, strings.HasSuffix(runner.calls[0], " stdout"))
}

func TestConvert_GIFGoesThroughConvert(t *testing.T) {
	runner := &fakeRunner{}
	v, err := New(runner).Convert(context.Background(), imageResource("image/gif", nil))
	require.NoError(t, err)
	assert.Equal(t, "recognised text", v)
	require.Len(t, runner.calls, 2)
	assert.True(t, strings.HasPrefix(runner.calls[0], "convert "))
	assert.Contains(t, runner.calls[0], "png:")
	assert.Contains(t, runner.calls[1], "image.png")
}

func TestConvertMIME_UsesGivenType(t *testing.T) {
	runner := &fakeRunner{}
	v, err := New(runner).ConvertMIME(context.Background(), imageResource("image/gif", nil), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "recognised text", v)
	require.Len(t, runner.calls, 1)
	assert.True(t, strings.HasPrefix(runner.calls[0], "tesseract "))
}

func TestConvert_ToolFailure(t *testing.T) {
	for _, tool := range []string{"convert", "tesseract"} {
		t.Run(tool, func(t *testing.T) {
			runner := &fakeRunner{fail: tool}
			v, err := New(runner).Convert(context.Background(), imageResource("image/gif", nil))
			require.NoError(t, err)
			assert.Nil(t, v)
		})
	}
}

func TestConvert_SkipImages(t *testing.T) {
	runner := &fakeRunner{}
	res := imageResource("image/png", map[string]any{domain.KeySkipImages: true})
	v, err := New(runner).Convert(context.Background(), res)
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Empty(t, runner.calls)
}
