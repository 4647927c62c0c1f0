package driving

import (
	"context"

	"github.com/custodia-labs/datascanner/internal/core/domain"
)

// ResultCollector applies scanner result messages to stored reports.
type ResultCollector interface {
	// Collect handles one JSON result message. Messages of unknown origin
	// are ignored.
	Collect(ctx context.Context, body []byte) error

	// AddAlias registers an owner identity.
	AddAlias(ctx context.Context, aliasType domain.AliasType, value string) (*domain.Alias, error)
}
