// Package spreadsheet turns spreadsheet rows into text.
package spreadsheet

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// Converter produces the text of a row.
type Converter struct{}

// New creates a new spreadsheet row converter.
func New() *Converter {
	return &Converter{}
}

// OutputType returns domain.OutputText.
func (c *Converter) OutputType() domain.OutputType { return domain.OutputText }

// SupportedMIMETypes returns the internal row type.
func (c *Converter) SupportedMIMETypes() []string { return []string{domain.MIMESpreadsheetRow} }

// Convert joins the row's cells with tabs.
func (c *Converter) Convert(ctx context.Context, res driven.Resource) (any, error) {
	tr, ok := res.(driven.TabularResource)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a row", domain.ErrNoConversion, res.Handle())
	}
	cells, err := tr.Cells(ctx)
	if err != nil {
		return nil, err
	}
	return strings.Join(cells, "\t"), nil
}
