// Package spreadsheet implements the spreadsheet derived Sources: a
// workbook is split into sheets and each sheet into rows.
package spreadsheet

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/custodia-labs/datascanner/internal/connectors/base"
	"github.com/custodia-labs/datascanner/internal/connectors/libreoffice"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// Type labels.
const (
	TypeLabel      = "spreadsheet"
	SheetTypeLabel = "spreadsheet-sheet"
	RowTypeLabel   = "spreadsheet-row"
)

// MIMETypes lists the workbook types read directly.
var MIMETypes = []string{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-excel.sheet.macroEnabled.12",
}

// Ensure Source implements the interface.
var _ driven.DerivedSource = (*Source)(nil)

// Source exposes the sheets of a workbook. Its cookie is the open
// *excelize.File.
type Source struct {
	base.Derived
}

// New wraps h.
func New(h driven.Handle) *Source {
	return &Source{Derived: base.NewDerived(h)}
}

func (s *Source) CrunchName() string                  { return "SpreadsheetSource" }
func (s *Source) CrunchProperties() []domain.Property { return s.Properties() }
func (s *Source) Type() string                        { return TypeLabel }
func (s *Source) Censor() driven.Source               { return New(s.Handle().Censor()) }
func (s *Source) WithHandle(h driven.Handle) driven.Source {
	return New(h)
}
func (s *Source) ToJSON() map[string]any { return base.DerivedJSON(TypeLabel, s.Handle()) }

func (s *Source) Acquire(ctx context.Context, sm driven.StateManager) (any, func() error, error) {
	p, release, err := s.ParentPath(ctx, sm)
	if err != nil {
		return nil, nil, err
	}
	wb, err := excelize.OpenFile(p)
	if err != nil {
		_ = release()
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrResourceUnavailable, err)
	}
	return wb, func() error {
		err := wb.Close()
		if rerr := release(); err == nil {
			err = rerr
		}
		return err
	}, nil
}

func workbook(ctx context.Context, sm driven.StateManager, s driven.Source) (*excelize.File, error) {
	cookie, err := sm.Open(ctx, s)
	if err != nil {
		return nil, err
	}
	wb, ok := cookie.(*excelize.File)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a workbook", domain.ErrResourceUnavailable, s.Type())
	}
	return wb, nil
}

// Handles yields a Handle per sheet, in workbook order.
func (s *Source) Handles(ctx context.Context, sm driven.StateManager) iter.Seq2[driven.Handle, error] {
	return func(yield func(driven.Handle, error) bool) {
		wb, err := workbook(ctx, sm, s)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, name := range wb.GetSheetList() {
			if !yield(NewSheetHandle(s, name), nil) {
				return
			}
		}
	}
}

// Ensure SheetHandle implements the interface.
var _ driven.Handle = (*SheetHandle)(nil)

// SheetHandle is a named sheet of a workbook.
type SheetHandle struct {
	base.Handle
}

// NewSheetHandle creates a SheetHandle.
func NewSheetHandle(s driven.Source, sheet string) *SheetHandle {
	return &SheetHandle{Handle: base.NewHandle(s, sheet)}
}

func (h *SheetHandle) CrunchName() string                  { return "SpreadsheetSheetHandle" }
func (h *SheetHandle) CrunchProperties() []domain.Property { return h.PropertiesWithReferrer() }
func (h *SheetHandle) Type() string                        { return SheetTypeLabel }
func (h *SheetHandle) GuessType() string                   { return domain.MIMESpreadsheet }

func (h *SheetHandle) PresentationName() string {
	return fmt.Sprintf("sheet %s of %s", h.RelativePath(), h.Source().Handle().PresentationName())
}

func (h *SheetHandle) PresentationPlace() string { return h.Source().Handle().String() }

func (h *SheetHandle) String() string {
	return h.PresentationName() + " of " + h.PresentationPlace()
}

func (h *SheetHandle) SortKey() string        { return driven.BaseHandle(h).SortKey() }
func (h *SheetHandle) ToJSON() map[string]any { return base.HandleJSON(h) }
func (h *SheetHandle) Censor() driven.Handle {
	return NewSheetHandle(h.Source().Censor(), h.RelativePath())
}

func (h *SheetHandle) WithSource(s driven.Source) driven.Handle {
	c := *h
	c.SetSource(s)
	return &c
}

func (h *SheetHandle) Follow(sm driven.StateManager) driven.Resource {
	return &SheetResource{Resource: base.NewResource(h, sm)}
}

// Ensure SheetResource implements the interface.
var _ driven.TimestampedResource = (*SheetResource)(nil)

// SheetResource is a sheet. Its timestamp is the workbook's.
type SheetResource struct {
	base.Resource
}

// Check reports whether the workbook still has the sheet.
func (r *SheetResource) Check(ctx context.Context) (bool, error) {
	wb, err := workbook(ctx, r.StateManager(), r.Handle().Source())
	if err != nil {
		return false, err
	}
	return slices.Contains(wb.GetSheetList(), r.Handle().RelativePath()), nil
}

func (r *SheetResource) LastModified(ctx context.Context) (time.Time, error) {
	return parentLastModified(ctx, r.Handle().Source().Handle(), r.StateManager())
}

// Metadata adds the workbook's office author properties.
func (r *SheetResource) Metadata(ctx context.Context) map[string]any {
	return base.CollectMetadata(ctx, r,
		libreoffice.OfficeMetadataEntries(r.Handle().Source().Handle(), r.StateManager())...)
}

func parentLastModified(ctx context.Context, h driven.Handle, sm driven.StateManager) (time.Time, error) {
	if tr, ok := h.Follow(sm).(driven.TimestampedResource); ok {
		return tr.LastModified(ctx)
	}
	return time.Time{}, fmt.Errorf("%w: %s has no timestamp", domain.ErrResourceUnavailable, h)
}

// Ensure SheetSource implements the interface.
var _ driven.DerivedSource = (*SheetSource)(nil)

// SheetSource exposes the non-empty rows of a sheet. Its cookie is the
// sheet's cell grid.
type SheetSource struct {
	base.Derived
}

// NewSheetSource wraps a sheet Handle.
func NewSheetSource(h driven.Handle) *SheetSource {
	return &SheetSource{Derived: base.NewDerived(h)}
}

func (s *SheetSource) CrunchName() string                  { return "SpreadsheetSheetSource" }
func (s *SheetSource) CrunchProperties() []domain.Property { return s.Properties() }
func (s *SheetSource) Type() string                        { return SheetTypeLabel }
func (s *SheetSource) Censor() driven.Source               { return NewSheetSource(s.Handle().Censor()) }
func (s *SheetSource) WithHandle(h driven.Handle) driven.Source {
	return NewSheetSource(h)
}
func (s *SheetSource) ToJSON() map[string]any { return base.DerivedJSON(SheetTypeLabel, s.Handle()) }

// Acquire reads the sheet's rows from the open workbook.
func (s *SheetSource) Acquire(ctx context.Context, sm driven.StateManager) (any, func() error, error) {
	wb, err := workbook(ctx, sm, s.Handle().Source())
	if err != nil {
		return nil, nil, err
	}
	rows, err := wb.GetRows(s.Handle().RelativePath())
	if err != nil {
		return nil, nil, err
	}
	return rows, nil, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Handles yields a Handle per non-empty row, numbered from 1.
func (s *SheetSource) Handles(ctx context.Context, sm driven.StateManager) iter.Seq2[driven.Handle, error] {
	return func(yield func(driven.Handle, error) bool) {
		cookie, err := sm.Open(ctx, s)
		if err != nil {
			yield(nil, err)
			return
		}
		for i, row := range cookie.([][]string) {
			if isBlank(row) {
				continue
			}
			if !yield(NewRowHandle(s, strconv.Itoa(i+1)), nil) {
				return
			}
		}
	}
}

// Ensure RowHandle implements the interface.
var _ driven.Handle = (*RowHandle)(nil)

// RowHandle is a row of a sheet, addressed by its 1-based number.
type RowHandle struct {
	base.Handle
}

// NewRowHandle creates a RowHandle.
func NewRowHandle(s driven.Source, row string) *RowHandle {
	return &RowHandle{Handle: base.NewHandle(s, row)}
}

func (h *RowHandle) CrunchName() string                  { return "SpreadsheetRowHandle" }
func (h *RowHandle) CrunchProperties() []domain.Property { return h.PropertiesWithReferrer() }
func (h *RowHandle) Type() string                        { return RowTypeLabel }
func (h *RowHandle) GuessType() string                   { return domain.MIMESpreadsheetRow }

func (h *RowHandle) PresentationName() string {
	return fmt.Sprintf("row %s of %s", h.RelativePath(), h.Source().Handle().PresentationName())
}

func (h *RowHandle) PresentationPlace() string { return h.Source().Handle().PresentationPlace() }
func (h *RowHandle) String() string            { return h.PresentationName() + " of " + h.PresentationPlace() }
func (h *RowHandle) SortKey() string           { return driven.BaseHandle(h).SortKey() }
func (h *RowHandle) ToJSON() map[string]any    { return base.HandleJSON(h) }
func (h *RowHandle) Censor() driven.Handle {
	return NewRowHandle(h.Source().Censor(), h.RelativePath())
}

func (h *RowHandle) WithSource(s driven.Source) driven.Handle {
	c := *h
	c.SetSource(s)
	return &c
}

func (h *RowHandle) Follow(sm driven.StateManager) driven.Resource {
	return &RowResource{Resource: base.NewResource(h, sm)}
}

// Ensure RowResource implements the interfaces.
var (
	_ driven.TabularResource     = (*RowResource)(nil)
	_ driven.TimestampedResource = (*RowResource)(nil)
)

// RowResource is the cells of a row.
type RowResource struct {
	base.Resource
}

func (r *RowResource) grid(ctx context.Context) ([][]string, error) {
	cookie, err := r.Cookie(ctx)
	if err != nil {
		return nil, err
	}
	return cookie.([][]string), nil
}

func (r *RowResource) index() int {
	n, err := strconv.Atoi(r.Handle().RelativePath())
	if err != nil {
		return -1
	}
	return n - 1
}

func (r *RowResource) Check(ctx context.Context) (bool, error) {
	rows, err := r.grid(ctx)
	if err != nil {
		return false, err
	}
	i := r.index()
	return i >= 0 && i < len(rows) && !isBlank(rows[i]), nil
}

// Cells returns the row's values with trailing empty cells removed.
func (r *RowResource) Cells(ctx context.Context) ([]string, error) {
	rows, err := r.grid(ctx)
	if err != nil {
		return nil, err
	}
	i := r.index()
	if i < 0 || i >= len(rows) {
		return nil, fmt.Errorf("%w: no row %s", domain.ErrNotFound, r.Handle().RelativePath())
	}
	row := rows[i]
	for len(row) > 0 && row[len(row)-1] == "" {
		row = row[:len(row)-1]
	}
	return row, nil
}

func (r *RowResource) LastModified(ctx context.Context) (time.Time, error) {
	sheet := r.Handle().Source().Handle()
	return parentLastModified(ctx, sheet, r.StateManager())
}

func (r *RowResource) Metadata(ctx context.Context) map[string]any {
	return base.CollectMetadata(ctx, r)
}

// Register adds the spreadsheet Sources and their Handles to reg.
func Register(reg driven.SourceRegistry) {
	base.RegisterDerived(reg, TypeLabel, MIMETypes, func(h driven.Handle) driven.Source {
		return New(h)
	})
	base.RegisterDerived(reg, SheetTypeLabel, []string{domain.MIMESpreadsheet}, func(h driven.Handle) driven.Source {
		return NewSheetSource(h)
	})
	base.RegisterStockHandle(reg, SheetTypeLabel, func(src driven.Source, p string, referrer driven.Handle) (driven.Handle, error) {
		return &SheetHandle{Handle: base.NewReferredHandle(src, p, referrer)}, nil
	})
	base.RegisterStockHandle(reg, RowTypeLabel, func(src driven.Source, p string, referrer driven.Handle) (driven.Handle, error) {
		return &RowHandle{Handle: base.NewReferredHandle(src, p, referrer)}, nil
	})
}
