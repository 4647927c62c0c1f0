package connectors

import (
	"github.com/custodia-labs/datascanner/internal/connectors/data"
	"github.com/custodia-labs/datascanner/internal/connectors/dropbox"
	"github.com/custodia-labs/datascanner/internal/connectors/filesystem"
	"github.com/custodia-labs/datascanner/internal/connectors/google"
	"github.com/custodia-labs/datascanner/internal/connectors/google/drive"
	"github.com/custodia-labs/datascanner/internal/connectors/google/gmail"
	"github.com/custodia-labs/datascanner/internal/connectors/libreoffice"
	"github.com/custodia-labs/datascanner/internal/connectors/mail"
	"github.com/custodia-labs/datascanner/internal/connectors/pdf"
	"github.com/custodia-labs/datascanner/internal/connectors/smb"
	"github.com/custodia-labs/datascanner/internal/connectors/smbc"
	"github.com/custodia-labs/datascanner/internal/connectors/spreadsheet"
	"github.com/custodia-labs/datascanner/internal/connectors/web"
	"github.com/custodia-labs/datascanner/internal/connectors/zip"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// Deps are the collaborators the Sources are built with.
type Deps struct {
	Settings domain.Settings

	// Runner runs the external tools. Required.
	Runner driven.CommandRunner
	// GhostscriptRunner runs gs under its own timeout; nil uses Runner.
	GhostscriptRunner driven.CommandRunner

	// Google overrides the Google API endpoints. Nil talks to Google.
	Google *google.Options
	// Dropbox overrides the Dropbox client. Nil uses the SDK.
	Dropbox dropbox.Dial
}

// RegisterDefaults registers every Source family with reg. The caller
// freezes reg afterwards.
func RegisterDefaults(reg driven.SourceRegistry, deps Deps) {
	s := deps.Settings

	filesystem.Register(reg)
	data.Register(reg)
	smb.Register(reg, deps.Runner)
	smbc.Register(reg)
	web.Register(reg, web.OptionsFromSettings(s.HTTP))
	drive.Register(reg, s.PageSize, deps.Google)
	gmail.Register(reg, s.PageSize, deps.Google)
	dropbox.Register(reg, deps.Dropbox)

	zip.Register(reg)
	mail.Register(reg)
	pdf.Register(reg, &pdf.Tools{
		Runner:            deps.Runner,
		GhostscriptRunner: deps.GhostscriptRunner,
		Ghostscript:       s.Ghostscript,
	})
	libreoffice.Register(reg, &libreoffice.Options{
		Runner:        deps.Runner,
		SizeThreshold: s.LibreOfficeSizeThreshold,
	})
	spreadsheet.Register(reg)
}
