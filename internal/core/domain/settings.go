package domain

import "time"

// CacheSettings controls the encrypted conversion cache.
type CacheSettings struct {
	// Directory is the cache root. Empty disables caching.
	Directory string

	// Secret is the process-wide instance secret used as the key
	// derivation salt.
	Secret string
}

// Enabled returns true if a cache directory is configured.
func (c CacheSettings) Enabled() bool {
	return c.Directory != ""
}

// GhostscriptSettings controls optional PDF preprocessing.
type GhostscriptSettings struct {
	Enabled       bool
	BaseArguments string
	PDFProfile    string
	ExtraArgs     string
	Timeout       time.Duration
}

// HTTPSettings controls web and cloud API access.
type HTTPSettings struct {
	Timeout           time.Duration
	TTL               int
	RequestsPerSecond float64
}

// Settings holds all engine configuration. It is read once at startup and
// then shared read-only.
type Settings struct {
	Cache       CacheSettings
	HTTP        HTTPSettings
	Ghostscript GhostscriptSettings

	// Width is the StateManager width.
	Width int

	// SubprocessTimeout bounds every external tool invocation.
	SubprocessTimeout time.Duration

	// LibreOfficeSizeThreshold is the HTML output size above which
	// spreadsheets are converted to CSV instead.
	LibreOfficeSizeThreshold int64

	// PageSize is the page size for paged cloud APIs.
	PageSize int

	// SkipImages disables image extraction from PDFs.
	SkipImages bool
}

// DefaultSettings returns the built-in configuration.
func DefaultSettings() Settings {
	return Settings{
		HTTP: HTTPSettings{
			Timeout:           30 * time.Second,
			TTL:               10,
			RequestsPerSecond: 10,
		},
		Ghostscript: GhostscriptSettings{
			Enabled:       false,
			BaseArguments: "-dNOPAUSE -dBATCH -dSAFER -sDEVICE=pdfwrite",
			PDFProfile:    "/ebook",
			Timeout:       120 * time.Second,
		},
		Width:                    3,
		SubprocessTimeout:        60 * time.Second,
		LibreOfficeSizeThreshold: 1 << 20,
		PageSize:                 100,
	}
}

// Configuration keys shared between the TOML store and the StateManager's
// configuration map.
const (
	KeyCacheDirectory       = "cache.directory"
	KeyCacheSecret          = "cache.secret"
	KeyStateWidth           = "state.width"
	KeySubprocessTimeout    = "subprocess.timeout"
	KeyHTTPTimeout          = "http.timeout"
	KeyHTTPTTL              = "http.ttl"
	KeyHTTPRequestsPerSec   = "http.requests_per_second"
	KeyLibreOfficeThreshold = "libreoffice.size_threshold"
	KeyGhostscriptEnabled   = "ghostscript.enabled"
	KeyGhostscriptBaseArgs  = "ghostscript.base_arguments"
	KeyGhostscriptProfile   = "ghostscript.pdf_profile"
	KeyGhostscriptExtraArgs = "ghostscript.extra_args"
	KeyGhostscriptTimeout   = "ghostscript.timeout"
	KeyPageSize             = "msgraph.page_size"
	KeySkipImages           = "skip_images"
)
