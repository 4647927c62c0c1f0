// Package domain defines the core value types of the scanning engine.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Property / Crunch: canonical identity strings for Handles and Sources
//   - OutputType: the representation kinds a Resource can be converted to
//   - Settings: process-wide engine configuration
//   - Result messages and DocumentReport: inputs and state of match distribution
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
