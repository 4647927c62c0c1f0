// Package cli implements the datascanner command line.
//
// Commands talk only to the driving ports and to a few driven ports. The
// concrete services are assembled by a Bootstrap function supplied by the
// binary, so tests can install mocks in the package variables instead.
package cli

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/core/ports/driving"
	"github.com/custodia-labs/datascanner/internal/logger"
)

// Encoder turns representations into JSON-compatible values.
type Encoder interface {
	Encode(ot domain.OutputType, v any) (any, error)
}

// Services are the collaborators the commands use.
type Services struct {
	Settings   driving.SettingsService
	Conversion driving.ConversionService
	Explore    driving.ExploreService
	Collector  driving.ResultCollector

	Sources driven.SourceRegistry
	Reports driven.ReportStore
	Config  driven.ConfigStore
	Encoder Encoder

	// NewStateManager returns a StateManager and the function that clears
	// it.
	NewStateManager func() (driven.StateManager, func())

	// Close releases whatever the services hold open. May be nil.
	Close func() error
}

// Bootstrap builds the Services for a configuration directory. An empty
// directory means the default one.
type Bootstrap func(configDir string) (*Services, error)

var (
	version = "dev"

	verbose   bool
	configDir string

	bootstrap Bootstrap
	closer    func() error

	settingsService   driving.SettingsService
	conversionService driving.ConversionService
	exploreService    driving.ExploreService
	resultCollector   driving.ResultCollector
	sourceRegistry    driven.SourceRegistry
	reportStore       driven.ReportStore
	configStore       driven.ConfigStore
	encoder           Encoder
	newStateManager   func() (driven.StateManager, func())
)

var rootCmd = &cobra.Command{
	Use:   "datascanner",
	Short: "Explore data sources and convert what they contain",
	Long: `datascanner walks file shares, cloud drives, mail accounts, web sites
and the archives, documents and attachments nested inside them, and converts
each object to text and other representations for rule evaluation.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(*cobra.Command, []string) error {
		return teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug logging to stderr")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.datascanner)")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// SetBootstrap installs the function that builds the Services.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// Execute runs the root command until it completes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	rootCmd.SetOut(os.Stdout)
	return rootCmd.ExecuteContext(ctx)
}

// setup configures logging and, unless running the version command,
// builds the Services.
func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if bootstrap == nil || cmd.Name() == versionCmd.Name() {
		return nil
	}
	svc, err := bootstrap(configDir)
	if err != nil {
		return err
	}
	install(svc)
	return nil
}

func install(svc *Services) {
	settingsService = svc.Settings
	conversionService = svc.Conversion
	exploreService = svc.Explore
	resultCollector = svc.Collector
	sourceRegistry = svc.Sources
	reportStore = svc.Reports
	configStore = svc.Config
	encoder = svc.Encoder
	newStateManager = svc.NewStateManager
	closer = svc.Close
}

func teardown() error {
	if closer == nil {
		return nil
	}
	err := closer()
	closer = nil
	return err
}
