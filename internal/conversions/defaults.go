package conversions

import (
	"github.com/custodia-labs/datascanner/internal/conversions/email"
	"github.com/custodia-labs/datascanner/internal/conversions/fallback"
	"github.com/custodia-labs/datascanner/internal/conversions/html"
	"github.com/custodia-labs/datascanner/internal/conversions/image"
	"github.com/custodia-labs/datascanner/internal/conversions/lastmodified"
	"github.com/custodia-labs/datascanner/internal/conversions/manifest"
	"github.com/custodia-labs/datascanner/internal/conversions/ocr"
	"github.com/custodia-labs/datascanner/internal/conversions/plaintext"
	"github.com/custodia-labs/datascanner/internal/conversions/spreadsheet"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// RegisterDefaults adds the stock converters to r. sources derives the
// containers manifests list; runner executes the OCR tools.
func RegisterDefaults(r *Registry, sources driven.SourceRegistry, runner driven.CommandRunner) {
	r.Register(plaintext.New())
	r.Register(html.NewText())
	r.Register(html.NewLinks())
	r.Register(ocr.New(runner))
	r.Register(spreadsheet.New())
	r.Register(image.New())
	r.Register(email.New())
	r.Register(lastmodified.New())
	r.Register(manifest.New(sources))
	r.Register(fallback.New())
}
