package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

func fakeURLFactory(rawURL string) (driven.Source, error) {
	return newFake(nil, rawURL), nil
}

func TestSourceRegistry_FromURL(t *testing.T) {
	r := NewSourceRegistry()
	r.RegisterURL("fake", fakeURLFactory)

	s, err := r.FromURL("FAKE://host/path")
	require.NoError(t, err)
	assert.Equal(t, "FAKE://host/path", s.(*fakeSource).name)

	_, err = r.FromURL("gopher://host")
	assert.True(t, errors.Is(err, domain.ErrUnknownScheme))
	var use *domain.UnknownSchemeError
	require.True(t, errors.As(err, &use))
	assert.Equal(t, "gopher", use.Scheme)

	_, err = r.FromURL("no-scheme-here")
	assert.True(t, errors.Is(err, domain.ErrUnknownScheme))
}

func TestSourceRegistry_DuplicateRegistrationPanics(t *testing.T) {
	r := NewSourceRegistry()
	r.RegisterURL("fake", fakeURLFactory)

	assert.Panics(t, func() { r.RegisterURL("fake", fakeURLFactory) })

	// The same discriminator under another capability is fine.
	assert.NotPanics(t, func() {
		r.RegisterSource("fake", func(obj map[string]any, dec driven.Decoder) (driven.Source, error) {
			return nil, nil
		})
	})
}

func TestSourceRegistry_FreezeRejectsRegistration(t *testing.T) {
	r := NewSourceRegistry()
	r.Freeze()

	assert.True(t, r.Frozen())
	assert.Panics(t, func() { r.RegisterURL("fake", fakeURLFactory) })
}

func TestSourceRegistry_SourceFromJSON(t *testing.T) {
	r := NewSourceRegistry()
	r.RegisterSource("fake", func(obj map[string]any, dec driven.Decoder) (driven.Source, error) {
		name, ok := obj["name"].(string)
		if !ok {
			return nil, &domain.DeserialisationError{Type: "fake", Property: "name"}
		}
		return newFake(nil, name), nil
	})

	s, err := r.SourceFromJSON(map[string]any{"type": "fake", "name": "x"})
	require.NoError(t, err)
	assert.Equal(t, "x", s.(*fakeSource).name)

	_, err = r.SourceFromJSON(map[string]any{"type": "fake"})
	assert.True(t, errors.Is(err, domain.ErrDeserialisation))

	_, err = r.SourceFromJSON(map[string]any{"type": "nope"})
	assert.True(t, errors.Is(err, domain.ErrUnknownScheme))

	_, err = r.SourceFromJSON(map[string]any{"name": "x"})
	assert.True(t, errors.Is(err, domain.ErrDeserialisation))

	_, err = r.HandleFromJSON(map[string]any{"type": "fake"})
	assert.True(t, errors.Is(err, domain.ErrUnknownScheme))
}

func TestSourceRegistry_FromHandleType(t *testing.T) {
	r := NewSourceRegistry()
	called := false
	r.RegisterMIME("application/zip", func(h driven.Handle) (driven.Source, error) {
		called = true
		return newFake(nil, "zip"), nil
	})

	s, err := r.FromHandleType(nil, "application/zip")
	require.NoError(t, err)
	assert.True(t, called)
	assert.NotNil(t, s)

	s, err = r.FromHandleType(nil, "text/plain")
	require.NoError(t, err)
	assert.Nil(t, s)

	assert.Equal(t, []string{"application/zip"}, r.MIMETypes())
	assert.Empty(t, r.Schemes())
}
