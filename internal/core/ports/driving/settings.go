package driving

import "github.com/custodia-labs/datascanner/internal/core/domain"

// SettingsService manages engine settings.
type SettingsService interface {
	// Get builds the settings from the configuration, falling back to
	// defaults for unset keys.
	Get() (domain.Settings, error)

	// Set parses value according to the type of key and persists it.
	Set(key, value string) error

	// Keys lists the recognised configuration keys in a stable order.
	Keys() []string

	// GetDefaults returns the built-in settings.
	GetDefaults() domain.Settings

	// Configuration returns the flattened configuration map handed to
	// StateManagers.
	Configuration() map[string]any
}
