// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and connectors, converters and
// adapters implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - Source / Handle / Resource: the data model every connector implements
//   - StateManager: lifetime coordination of open Source state
//   - SourceRegistry: URL, MIME and JSON dispatch to Source constructors
//   - Converter: produces one representation from a Resource
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - CommandRunner: external tools (OCR, LibreOffice, Poppler, Ghostscript).
//     Without it, the Sources and converters that need them are not registered.
//   - ReportStore: result persistence for match distribution.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, connector, or converter package
package driven
