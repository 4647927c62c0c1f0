package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/datascanner/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage engine settings",
	Long: `View and change the engine configuration: the conversion cache, external
tool timeouts, HTTP limits and Ghostscript preprocessing.

Durations are given in seconds.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting",
	Args:  cobra.ExactArgs(2),
	RunE:  runSettingsSet,
}

var settingsKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the recognised setting keys",
	RunE:  runSettingsKeys,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsKeysCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Cache]")
	if settings.Cache.Enabled() {
		cmd.Printf("  Directory: %s\n", settings.Cache.Directory)
		if settings.Cache.Secret != "" {
			cmd.Printf("  Secret: %s\n", maskSecret(settings.Cache.Secret))
		} else {
			cmd.Printf("  Secret: (not set)\n")
		}
	} else {
		cmd.Printf("  Enabled: no\n")
	}
	cmd.Println()

	cmd.Println("[Engine]")
	cmd.Printf("  State width: %d\n", settings.Width)
	cmd.Printf("  Subprocess timeout: %s\n", settings.SubprocessTimeout)
	cmd.Printf("  LibreOffice size threshold: %d bytes\n", settings.LibreOfficeSizeThreshold)
	cmd.Printf("  Page size: %d\n", settings.PageSize)
	cmd.Printf("  Skip images: %s\n", yesNo(settings.SkipImages))
	cmd.Println()

	cmd.Println("[HTTP]")
	cmd.Printf("  Timeout: %s\n", settings.HTTP.Timeout)
	cmd.Printf("  Link depth: %d\n", settings.HTTP.TTL)
	cmd.Printf("  Requests per second: %g\n", settings.HTTP.RequestsPerSecond)
	cmd.Println()

	cmd.Println("[Ghostscript]")
	if settings.Ghostscript.Enabled {
		cmd.Printf("  Enabled: yes\n")
		cmd.Printf("  Arguments: %s\n", settings.Ghostscript.BaseArguments)
		cmd.Printf("  PDF profile: %s\n", settings.Ghostscript.PDFProfile)
		if settings.Ghostscript.ExtraArgs != "" {
			cmd.Printf("  Extra arguments: %s\n", settings.Ghostscript.ExtraArgs)
		}
		cmd.Printf("  Timeout: %s\n", settings.Ghostscript.Timeout)
	} else {
		cmd.Printf("  Enabled: no\n")
	}
	cmd.Println()

	if settings.Cache.Enabled() && settings.Cache.Secret == "" {
		cmd.Printf("Warning: the cache is enabled but %s is not set\n", domain.KeyCacheSecret)
	} else {
		cmd.Println("Configuration is valid.")
	}
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	key, value := args[0], args[1]

	known := false
	for _, k := range settingsService.Keys() {
		if k == key {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	if err := settingsService.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	if key == domain.KeyCacheSecret {
		value = maskSecret(value)
	}
	cmd.Printf("Set %s to: %s\n", key, value)
	return nil
}

func runSettingsKeys(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	for _, k := range settingsService.Keys() {
		cmd.Println(k)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
