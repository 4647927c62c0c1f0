package spreadsheet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/datascanner/internal/connectors/data"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/core/services"
)

type row struct {
	driven.Resource
	cells []string
}

func (r row) Cells(context.Context) ([]string, error) { return r.cells, nil }

func TestConvert(t *testing.T) {
	h := data.NewHandle(data.New([]byte("x"), "", "sheet"), "sheet")
	res := row{Resource: h.Follow(services.NewStateManager(3, nil)), cells: []string{"Name", "", "1234"}}

	c := New()
	assert.Equal(t, domain.OutputText, c.OutputType())
	v, err := c.Convert(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, "Name\t\t1234", v)
}

func TestConvert_NotARow(t *testing.T) {
	h := data.NewHandle(data.New([]byte("x"), "", "file"), "file")
	_, err := New().Convert(context.Background(), h.Follow(services.NewStateManager(3, nil)))
	assert.ErrorIs(t, err, domain.ErrNoConversion)
}
