package fallback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/datascanner/internal/core/domain"
)

func TestConvert(t *testing.T) {
	c := New()
	assert.Equal(t, domain.OutputAlwaysTrue, c.OutputType())
	assert.Nil(t, c.SupportedMIMETypes())
	v, err := c.Convert(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}
