package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/datascanner/internal/cache"
	"github.com/custodia-labs/datascanner/internal/connectors/data"
	zipsrc "github.com/custodia-labs/datascanner/internal/connectors/zip"
	"github.com/custodia-labs/datascanner/internal/conversions"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/core/ports/driving"
)

func zipArchive(t *testing.T, files map[string]string, order ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func setupConversion(t *testing.T) *ConversionService {
	t.Helper()
	sources := NewSourceRegistry()
	data.Register(sources)
	zipsrc.Register(sources)
	sources.Freeze()

	reg := conversions.NewRegistry()
	conversions.RegisterDefaults(reg, sources, nil)
	reg.Freeze()

	c, err := cache.New(domain.CacheSettings{}, reg, conversions.NewCodec(sources))
	require.NoError(t, err)
	return NewConversionService(c)
}

func collectOutcomes(seq func(func(driving.ConversionOutcome) bool)) []driving.ConversionOutcome {
	var out []driving.ConversionOutcome
	for o := range seq {
		out = append(out, o)
	}
	return out
}

func TestConversionService_Direct(t *testing.T) {
	svc := setupConversion(t)
	sm := NewStateManager(3, nil)
	defer sm.Clear()

	h := data.NewHandle(data.New([]byte("plain words"), domain.MIMEPlainText, "a.txt"), "a.txt")
	out := collectOutcomes(svc.Convert(context.Background(), sm, h, domain.OutputText, ""))
	require.Len(t, out, 1)
	assert.NoError(t, out[0].Err)
	assert.Equal(t, "plain words", out[0].Value)
	assert.False(t, out[0].Cached)
	assert.Equal(t, domain.Crunch(h), domain.Crunch(out[0].Handle))
}

func TestConversionService_RecursesIntoManifest(t *testing.T) {
	svc := setupConversion(t)
	sm := NewStateManager(3, nil)
	defer sm.Clear()

	archive := zipArchive(t, map[string]string{"a.txt": "content of a", "b.txt": "content of b"}, "a.txt", "b.txt")
	h := data.NewHandle(data.New(archive, domain.MIMEZip, "bundle.zip"), "bundle.zip")

	out := collectOutcomes(svc.Convert(context.Background(), sm, h, domain.OutputText, ""))
	require.Len(t, out, 2)
	assert.Equal(t, "a.txt", out[0].Handle.RelativePath())
	assert.Equal(t, "content of a", out[0].Value)
	assert.Equal(t, "b.txt", out[1].Handle.RelativePath())
	assert.Equal(t, "content of b", out[1].Value)
}

func TestConversionService_NoConversionPossible(t *testing.T) {
	svc := setupConversion(t)
	sm := NewStateManager(3, nil)
	defer sm.Clear()

	h := data.NewHandle(data.New([]byte("plain"), domain.MIMEPlainText, "a.txt"), "a.txt")
	out := collectOutcomes(svc.Convert(context.Background(), sm, h, domain.OutputDummy, ""))
	require.Len(t, out, 1)
	assert.NoError(t, out[0].Err)
	assert.Nil(t, out[0].Value)
}

func TestConversionService_MIMEOverride(t *testing.T) {
	svc := setupConversion(t)
	sm := NewStateManager(3, nil)
	defer sm.Clear()

	h := data.NewHandle(data.New([]byte("<p>hello <b>there</b></p>"), "application/octet-stream", "page"), "page")
	out := collectOutcomes(svc.Convert(context.Background(), sm, h, domain.OutputText, domain.MIMEHTML))
	require.Len(t, out, 1)
	assert.Equal(t, "hello there", out[0].Value)
}

// scriptedRepresenter answers Represent from tables keyed by
// "relative path:output type".
type scriptedRepresenter struct {
	values map[string]any
	errs   map[string]error
	calls  int
}

func (r *scriptedRepresenter) Represent(_ context.Context, res driven.Resource, ot domain.OutputType,
	_ string) (any, bool, error) {
	r.calls++
	k := res.Handle().RelativePath() + ":" + string(ot)
	if err, ok := r.errs[k]; ok {
		return nil, false, err
	}
	if v, ok := r.values[k]; ok {
		return v, true, nil
	}
	return nil, false, domain.ErrNoConversion
}

func TestConversionService_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	svc := NewConversionService(&scriptedRepresenter{errs: map[string]error{"a.txt:text": boom}})
	sm := NewStateManager(3, nil)

	h := data.NewHandle(data.New([]byte("x"), domain.MIMEPlainText, "a.txt"), "a.txt")
	out := collectOutcomes(svc.Convert(context.Background(), sm, h, domain.OutputText, ""))
	require.Len(t, out, 1)
	assert.ErrorIs(t, out[0].Err, boom)
}

func TestConversionService_StopsEarly(t *testing.T) {
	parent := data.NewHandle(data.New([]byte("x"), domain.MIMEZip, "x.zip"), "x.zip")
	children := []driven.Handle{
		data.NewHandle(data.New([]byte("1"), domain.MIMEPlainText, "1.txt"), "1.txt"),
		data.NewHandle(data.New([]byte("2"), domain.MIMEPlainText, "2.txt"), "2.txt"),
	}
	rep := &scriptedRepresenter{values: map[string]any{
		"x.zip:manifest": children,
		"1.txt:text":     "1",
		"2.txt:text":     "2",
	}}
	svc := NewConversionService(rep)

	var got []any
	for o := range svc.Convert(context.Background(), NewStateManager(3, nil), parent, domain.OutputText, "") {
		got = append(got, o.Value)
		assert.True(t, o.Cached)
		break
	}
	assert.Equal(t, []any{"1"}, got)
	// text and manifest for the parent, then text for the first child
	assert.Equal(t, 3, rep.calls)
}

func TestConversionService_NilValueSkipsManifest(t *testing.T) {
	parent := data.NewHandle(data.New([]byte("x"), domain.MIMEZip, "x.zip"), "x.zip")
	rep := &scriptedRepresenter{
		values: map[string]any{
			"x.zip:manifest": []driven.Handle{
				data.NewHandle(data.New([]byte("1"), domain.MIMEPlainText, "1.txt"), "1.txt"),
			},
			"1.txt:text": "1",
		},
		errs: map[string]error{"x.zip:text": fmt.Errorf("%w: text from %s", domain.ErrNoValue, domain.MIMEZip)},
	}
	svc := NewConversionService(rep)

	out := collectOutcomes(svc.Convert(context.Background(), NewStateManager(3, nil), parent, domain.OutputText, ""))
	require.Len(t, out, 1)
	assert.NoError(t, out[0].Err)
	assert.Nil(t, out[0].Value)
	assert.Equal(t, "x.zip", out[0].Handle.RelativePath())
	assert.Equal(t, 1, rep.calls, "the manifest is not consulted")
}

func TestConversionService_NoConverterUsesManifest(t *testing.T) {
	parent := data.NewHandle(data.New([]byte("x"), domain.MIMEZip, "x.zip"), "x.zip")
	rep := &scriptedRepresenter{values: map[string]any{
		"x.zip:manifest": []driven.Handle{
			data.NewHandle(data.New([]byte("1"), domain.MIMEPlainText, "1.txt"), "1.txt"),
		},
		"1.txt:text": "1",
	}}
	svc := NewConversionService(rep)

	out := collectOutcomes(svc.Convert(context.Background(), NewStateManager(3, nil), parent, domain.OutputText, ""))
	require.Len(t, out, 1)
	assert.Equal(t, "1.txt", out[0].Handle.RelativePath())
	assert.Equal(t, "1", out[0].Value)
	assert.Equal(t, 3, rep.calls)
}

func TestConversionService_EmptyManifestValue(t *testing.T) {
	h := data.NewHandle(data.New([]byte("x"), domain.MIMEPlainText, "a.txt"), "a.txt")
	rep := &scriptedRepresenter{errs: map[string]error{"a.txt:manifest": domain.ErrNoValue}}
	svc := NewConversionService(rep)

	out := collectOutcomes(svc.Convert(context.Background(), NewStateManager(3, nil), h, domain.OutputText, ""))
	require.Len(t, out, 1)
	assert.NoError(t, out[0].Err)
	assert.Nil(t, out[0].Value)
}

func TestConversionService_Cancelled(t *testing.T) {
	svc := setupConversion(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := data.NewHandle(data.New([]byte("x"), domain.MIMEPlainText, "a.txt"), "a.txt")
	out := collectOutcomes(svc.Convert(ctx, NewStateManager(3, nil), h, domain.OutputText, ""))
	require.Len(t, out, 1)
	assert.ErrorIs(t, out[0].Err, context.Canceled)
}
