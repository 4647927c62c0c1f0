package conversions_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/datascanner/internal/connectors/data"
	"github.com/custodia-labs/datascanner/internal/conversions"
	"github.com/custodia-labs/datascanner/internal/conversions/ocr"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/core/services"
)

type stubConverter struct {
	ot    domain.OutputType
	mimes []string
	value any
	err   error
	calls int
}

func (s *stubConverter) OutputType() domain.OutputType { return s.ot }
func (s *stubConverter) SupportedMIMETypes() []string  { return s.mimes }
func (s *stubConverter) Convert(context.Context, driven.Resource) (any, error) {
	s.calls++
	return s.value, s.err
}

func resource(content, mime string) driven.Resource {
	h := data.NewHandle(data.New([]byte(content), mime, "file"), "file")
	return h.Follow(services.NewStateManager(3, nil))
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := conversions.NewRegistry()
	r.Register(&stubConverter{ot: domain.OutputText, mimes: []string{"text/plain"}})

	defer func() {
		rec := recover()
		require.NotNil(t, rec)
		err, ok := rec.(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, domain.ErrDuplicateRegistration)
	}()
	r.Register(&stubConverter{ot: domain.OutputText, mimes: []string{"text/plain"}})
}

func TestRegistry_FrozenPanics(t *testing.T) {
	r := conversions.NewRegistry()
	r.Freeze()
	assert.PanicsWithError(t, "registry frozen: converter for text", func() {
		r.Register(&stubConverter{ot: domain.OutputText})
	})
}

func TestRegistry_Lookup(t *testing.T) {
	specific := &stubConverter{ot: domain.OutputText, mimes: []string{"text/html"}}
	fallback := &stubConverter{ot: domain.OutputText}
	r := conversions.NewRegistry()
	r.Register(specific)
	r.Register(fallback)

	c, ok := r.Lookup(domain.OutputText, "text/html")
	require.True(t, ok)
	assert.Same(t, specific, c)

	c, ok = r.Lookup(domain.OutputText, "image/png")
	require.True(t, ok)
	assert.Same(t, fallback, c)

	_, ok = r.Lookup(domain.OutputLinks, "text/html")
	assert.False(t, ok)

	assert.True(t, r.Has(domain.OutputText))
	assert.False(t, r.Has(domain.OutputDummy))
	assert.Equal(t, []string{"text/html"}, r.MIMETypes(domain.OutputText))
}

func TestRegistry_Convert(t *testing.T) {
	c := &stubConverter{ot: domain.OutputText, mimes: []string{"text/plain"}, value: "hello"}
	r := conversions.NewRegistry()
	r.Register(c)
	res := resource("hello", "text/plain")

	sr, err := r.Convert(context.Background(), res, domain.OutputText, "")
	require.NoError(t, err)
	assert.Equal(t, domain.OutputText, sr.Type)
	assert.Equal(t, "hello", sr.Value)
	assert.Same(t, res, sr.Parent)

	_, err = r.Convert(context.Background(), res, domain.OutputText, "image/png")
	assert.ErrorIs(t, err, domain.ErrNoConversion)

	_, err = r.Convert(context.Background(), res, domain.OutputDummy, "")
	assert.ErrorIs(t, err, domain.ErrNoConversion)
	assert.Equal(t, 1, c.calls)
}

func TestRegistry_ConvertNothing(t *testing.T) {
	r := conversions.NewRegistry()
	r.Register(&stubConverter{ot: domain.OutputText})

	_, err := r.Convert(context.Background(), resource("x", "text/plain"), domain.OutputText, "")
	assert.ErrorIs(t, err, domain.ErrNoValue)
	assert.NotErrorIs(t, err, domain.ErrNoConversion)
}

func TestRegistry_ConvertError(t *testing.T) {
	boom := errors.New("boom")
	r := conversions.NewRegistry()
	r.Register(&stubConverter{ot: domain.OutputText, err: boom})

	_, err := r.Convert(context.Background(), resource("x", "text/plain"), domain.OutputText, "")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, domain.ErrNoConversion)
}

type recordingRunner struct {
	tools []string
}

func (r *recordingRunner) Run(_ context.Context, name string, _ ...string) ([]byte, error) {
	r.tools = append(r.tools, name)
	return []byte("text"), nil
}

func TestRegistry_ConvertPassesMIMEOverride(t *testing.T) {
	runner := &recordingRunner{}
	r := conversions.NewRegistry()
	r.Register(ocr.New(runner))

	sr, err := r.Convert(context.Background(), resource("gif bytes", "image/gif"), domain.OutputText, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "text", sr.Value)
	assert.Equal(t, []string{"tesseract"}, runner.tools, "a png override skips the intermediate conversion")
}

func TestRegistry_KeepsSingleResult(t *testing.T) {
	inner := conversions.SingleResult{Type: domain.OutputText, Value: "from child"}
	r := conversions.NewRegistry()
	r.Register(&stubConverter{ot: domain.OutputText, value: inner})

	sr, err := r.Convert(context.Background(), resource("x", "text/plain"), domain.OutputText, "")
	require.NoError(t, err)
	assert.Equal(t, inner, sr)
}

func TestRegisterDefaults(t *testing.T) {
	sources := services.NewSourceRegistry()
	r := conversions.NewRegistry()
	conversions.RegisterDefaults(r, sources, nil)
	r.Freeze()

	for _, tc := range []struct {
		ot   domain.OutputType
		mime string
	}{
		{domain.OutputText, "text/plain"},
		{domain.OutputText, domain.MIMEHTML},
		{domain.OutputText, "image/png"},
		{domain.OutputText, domain.MIMESpreadsheetRow},
		{domain.OutputLinks, domain.MIMEHTML},
		{domain.OutputImageDimensions, "image/jpeg"},
		{domain.OutputEmailHeaders, domain.MIMEMessage},
		{domain.OutputLastModified, "anything/at-all"},
		{domain.OutputManifest, domain.MIMEZip},
		{domain.OutputAlwaysTrue, "anything/at-all"},
	} {
		_, ok := r.Lookup(tc.ot, tc.mime)
		assert.True(t, ok, "%s from %s", tc.ot, tc.mime)
	}
	assert.False(t, r.Has(domain.OutputDummy))
	_, ok := r.Lookup(domain.OutputText, domain.MIMEPDF)
	assert.False(t, ok)

	sr, err := r.Convert(context.Background(), resource("hello", "text/plain"), domain.OutputText, "")
	require.NoError(t, err)
	assert.Equal(t, "hello", sr.Value)
}
