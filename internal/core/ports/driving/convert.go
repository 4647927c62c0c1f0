package driving

import (
	"context"
	"iter"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// ConversionService turns objects into representations.
type ConversionService interface {
	// Convert converts the object behind h to ot. When no converter handles
	// the object's type, it is reinterpreted as a container and each child
	// is converted instead. One outcome is produced per leaf object.
	Convert(ctx context.Context, sm driven.StateManager, h driven.Handle,
		ot domain.OutputType, mimeOverride string) iter.Seq[ConversionOutcome]
}

// ConversionOutcome is the result for one object.
type ConversionOutcome struct {
	// Handle is the converted object, or the container when it had no
	// convertible children.
	Handle driven.Handle

	// Value is the representation, or nil when no conversion was possible.
	Value any

	// Cached is true when Value was read from the cache.
	Cached bool

	// Err is set when the conversion failed for a reason other than a
	// missing converter.
	Err error
}
