package services

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindBool
	kindFloat
	kindSeconds
)

// settingKeys maps every recognised key to the type of its value.
var settingKeys = map[string]valueKind{
	domain.KeyCacheDirectory:       kindString,
	domain.KeyCacheSecret:          kindString,
	domain.KeyStateWidth:           kindInt,
	domain.KeySubprocessTimeout:    kindSeconds,
	domain.KeyHTTPTimeout:          kindSeconds,
	domain.KeyHTTPTTL:              kindInt,
	domain.KeyHTTPRequestsPerSec:   kindFloat,
	domain.KeyLibreOfficeThreshold: kindInt,
	domain.KeyGhostscriptEnabled:   kindBool,
	domain.KeyGhostscriptBaseArgs:  kindString,
	domain.KeyGhostscriptProfile:   kindString,
	domain.KeyGhostscriptExtraArgs: kindString,
	domain.KeyGhostscriptTimeout:   kindSeconds,
	domain.KeyPageSize:             kindInt,
	domain.KeySkipImages:           kindBool,
}

// SettingsService reads engine settings from a ConfigStore.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// Get builds the settings. Values of the wrong type are rejected rather
// than silently replaced by defaults.
func (s *SettingsService) Get() (domain.Settings, error) {
	d := domain.DefaultSettings()

	settings := domain.Settings{
		Cache: domain.CacheSettings{
			Directory: s.getString(domain.KeyCacheDirectory, d.Cache.Directory),
			Secret:    s.getString(domain.KeyCacheSecret, d.Cache.Secret),
		},
		HTTP: domain.HTTPSettings{
			Timeout:           s.getSeconds(domain.KeyHTTPTimeout, d.HTTP.Timeout),
			TTL:               s.getInt(domain.KeyHTTPTTL, d.HTTP.TTL),
			RequestsPerSecond: s.getFloat(domain.KeyHTTPRequestsPerSec, d.HTTP.RequestsPerSecond),
		},
		Ghostscript: domain.GhostscriptSettings{
			Enabled:       s.getBool(domain.KeyGhostscriptEnabled, d.Ghostscript.Enabled),
			BaseArguments: s.getString(domain.KeyGhostscriptBaseArgs, d.Ghostscript.BaseArguments),
			PDFProfile:    s.getString(domain.KeyGhostscriptProfile, d.Ghostscript.PDFProfile),
			ExtraArgs:     s.getString(domain.KeyGhostscriptExtraArgs, d.Ghostscript.ExtraArgs),
			Timeout:       s.getSeconds(domain.KeyGhostscriptTimeout, d.Ghostscript.Timeout),
		},
		Width:                    s.getInt(domain.KeyStateWidth, d.Width),
		SubprocessTimeout:        s.getSeconds(domain.KeySubprocessTimeout, d.SubprocessTimeout),
		LibreOfficeSizeThreshold: int64(s.getInt(domain.KeyLibreOfficeThreshold, int(d.LibreOfficeSizeThreshold))),
		PageSize:                 s.getInt(domain.KeyPageSize, d.PageSize),
		SkipImages:               s.getBool(domain.KeySkipImages, d.SkipImages),
	}

	if err := s.validate(); err != nil {
		return domain.Settings{}, err
	}
	if settings.Width < 1 {
		return domain.Settings{}, fmt.Errorf("%w: %s must be at least 1", domain.ErrInvalidInput, domain.KeyStateWidth)
	}
	if settings.PageSize < 1 {
		return domain.Settings{}, fmt.Errorf("%w: %s must be at least 1", domain.ErrInvalidInput, domain.KeyPageSize)
	}
	return settings, nil
}

// validate checks that every recognised key present has a usable type.
func (s *SettingsService) validate() error {
	for _, key := range s.Keys() {
		v, ok := s.configStore.Get(key)
		if !ok {
			continue
		}
		if _, ok := coerce(settingKeys[key], v); !ok {
			return fmt.Errorf("%w: %s cannot be %T", domain.ErrInvalidInput, key, v)
		}
	}
	return nil
}

// Set parses value for key and persists it. Unknown keys are stored as
// strings.
func (s *SettingsService) Set(key, value string) error {
	kind, known := settingKeys[key]
	if !known {
		kind = kindString
	}
	var parsed any
	var err error
	switch kind {
	case kindString:
		parsed = value
	case kindInt, kindSeconds:
		parsed, err = strconv.ParseInt(value, 10, 64)
	case kindBool:
		parsed, err = strconv.ParseBool(value)
	case kindFloat:
		parsed, err = strconv.ParseFloat(value, 64)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, key, err)
	}
	if err := s.configStore.Set(key, parsed); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Keys lists the recognised keys, sorted.
func (s *SettingsService) Keys() []string {
	return slices.Sorted(maps.Keys(settingKeys))
}

// GetDefaults returns the built-in settings.
func (s *SettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

// Configuration returns the flattened configuration.
func (s *SettingsService) Configuration() map[string]any {
	return s.configStore.All()
}

func (s *SettingsService) getString(key, defaultVal string) string {
	if v, ok := s.lookup(key); ok {
		return v.(string)
	}
	return defaultVal
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if v, ok := s.lookup(key); ok {
		return v.(int)
	}
	return defaultVal
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if v, ok := s.lookup(key); ok {
		return v.(bool)
	}
	return defaultVal
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if v, ok := s.lookup(key); ok {
		return v.(float64)
	}
	return defaultVal
}

func (s *SettingsService) getSeconds(key string, defaultVal time.Duration) time.Duration {
	if v, ok := s.lookup(key); ok {
		return v.(time.Duration)
	}
	return defaultVal
}

func (s *SettingsService) lookup(key string) (any, bool) {
	raw, ok := s.configStore.Get(key)
	if !ok {
		return nil, false
	}
	return coerce(settingKeys[key], raw)
}

// coerce converts a TOML value to the Go type of kind.
func coerce(kind valueKind, v any) (any, bool) {
	switch kind {
	case kindString:
		s, ok := v.(string)
		return strings.TrimSpace(s), ok
	case kindBool:
		b, ok := v.(bool)
		return b, ok
	case kindInt:
		n, ok := toInt(v)
		return n, ok
	case kindSeconds:
		if f, ok := v.(float64); ok {
			return time.Duration(f * float64(time.Second)), true
		}
		n, ok := toInt(v)
		return time.Duration(n) * time.Second, ok
	case kindFloat:
		if f, ok := v.(float64); ok {
			return f, true
		}
		n, ok := toInt(v)
		return float64(n), ok
	}
	return nil, false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
