package driven

import (
	"context"

	"github.com/custodia-labs/datascanner/internal/core/domain"
)

// ReportStore persists document reports and aliases for match distribution.
type ReportStore interface {
	// GetReport returns the report for (scannerPK, path).
	// Returns domain.ErrNotFound if none exists.
	GetReport(ctx context.Context, scannerPK int, path string) (*domain.DocumentReport, error)

	// SaveReport inserts or replaces the report for (ScannerJobPK, Path).
	// An empty ID is assigned.
	SaveReport(ctx context.Context, report *domain.DocumentReport) error

	// ListReports returns all reports of a scanner ordered by scan time.
	ListReports(ctx context.Context, scannerPK int) ([]*domain.DocumentReport, error)

	// SaveAlias inserts or updates an alias. An empty ID is assigned.
	SaveAlias(ctx context.Context, alias *domain.Alias) error

	// FindAliases returns aliases of the given type whose value matches.
	// Email aliases match case-insensitively.
	FindAliases(ctx context.Context, aliasType domain.AliasType, value string) ([]domain.Alias, error)

	// LinkAlias relates a report to an alias. Linking twice is a no-op.
	LinkAlias(ctx context.Context, reportID, aliasID string) error

	// ReportAliases returns the aliases linked to a report.
	ReportAliases(ctx context.Context, reportID string) ([]domain.Alias, error)
}
