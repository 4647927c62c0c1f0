package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/datascanner/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/datascanner/internal/cache"
	"github.com/custodia-labs/datascanner/internal/connectors/filesystem"
	"github.com/custodia-labs/datascanner/internal/conversions"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/core/services"
)

// testEnv holds the real services installed for a command test.
type testEnv struct {
	config  *memory.ConfigStore
	reports *memory.ReportStore
	dir     string
}

// setupServices installs services backed by in-memory stores and the
// filesystem connector, and restores the previous globals on cleanup.
func setupServices(t *testing.T) *testEnv {
	t.Helper()

	sources := services.NewSourceRegistry()
	filesystem.Register(sources)
	sources.Freeze()

	reg := conversions.NewRegistry()
	conversions.RegisterDefaults(reg, sources, nil)
	reg.Freeze()

	codec := conversions.NewCodec(sources)
	c, err := cache.New(domain.CacheSettings{}, reg, codec)
	require.NoError(t, err)

	env := &testEnv{
		config:  memory.NewConfigStore(),
		reports: memory.NewReportStore(),
		dir:     t.TempDir(),
	}

	saved := Services{
		Settings:        settingsService,
		Conversion:      conversionService,
		Explore:         exploreService,
		Collector:       resultCollector,
		Sources:         sourceRegistry,
		Reports:         reportStore,
		Config:          configStore,
		Encoder:         encoder,
		NewStateManager: newStateManager,
		Close:           closer,
	}
	t.Cleanup(func() { install(&saved) })

	install(&Services{
		Settings:   services.NewSettingsService(env.config),
		Conversion: services.NewConversionService(c),
		Explore:    services.NewExploreService(sources),
		Collector:  services.NewResultCollector(env.reports, sources),
		Sources:    sources,
		Reports:    env.reports,
		Config:     env.config,
		Encoder:    codec,
		NewStateManager: func() (driven.StateManager, func()) {
			sm := services.NewStateManager(3, nil)
			return sm, sm.Clear
		},
	})
	return env
}

// writeFile creates name below the environment's directory.
func (e *testEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(e.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

// execute runs the root command with args and returns what it printed to
// standard output and standard error.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.SetIn(bytes.NewBufferString(stdin))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetErr(nil)
	}()
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}
