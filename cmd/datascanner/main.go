// Command datascanner explores data sources, converts their contents and
// collects scanner results into document reports.
package main

import (
	"os"
	"path/filepath"

	"github.com/custodia-labs/datascanner/internal/adapters/driven/config/file"
	"github.com/custodia-labs/datascanner/internal/adapters/driven/process"
	"github.com/custodia-labs/datascanner/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/datascanner/internal/adapters/driving/cli"
	"github.com/custodia-labs/datascanner/internal/cache"
	"github.com/custodia-labs/datascanner/internal/connectors"
	"github.com/custodia-labs/datascanner/internal/conversions"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/core/services"
	"github.com/custodia-labs/datascanner/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.SetBootstrap(bootstrap)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap wires the adapters and services for one invocation.
func bootstrap(configDir string) (*cli.Services, error) {
	configStore, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, err
	}
	settingsService := services.NewSettingsService(configStore)
	settings, err := settingsService.Get()
	if err != nil {
		return nil, err
	}
	logger.Debug("configuration loaded from %s", configStore.Path())

	runner := process.New(settings.SubprocessTimeout)
	sources := services.NewSourceRegistry()
	connectors.RegisterDefaults(sources, connectors.Deps{
		Settings:          settings,
		Runner:            runner,
		GhostscriptRunner: process.New(settings.Ghostscript.Timeout),
	})
	sources.Freeze()

	conv := conversions.NewRegistry()
	conversions.RegisterDefaults(conv, sources, runner)
	conv.Freeze()

	codec := conversions.NewCodec(sources)
	representations, err := cache.New(settings.Cache, conv, codec)
	if err != nil {
		return nil, err
	}

	store, err := sqlite.NewStore(filepath.Join(filepath.Dir(configStore.Path()), "data"))
	if err != nil {
		return nil, err
	}
	reports := store.ReportStore()

	return &cli.Services{
		Settings:   settingsService,
		Conversion: services.NewConversionService(representations),
		Explore:    services.NewExploreService(sources),
		Collector:  services.NewResultCollector(reports, sources),
		Sources:    sources,
		Reports:    reports,
		Config:     configStore,
		Encoder:    codec,
		NewStateManager: func() (driven.StateManager, func()) {
			sm := services.NewStateManager(settings.Width, settingsService.Configuration())
			return sm, sm.Clear
		},
		Close: store.Close,
	}, nil
}
