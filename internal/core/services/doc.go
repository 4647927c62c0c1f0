// Package services implements the driving port interfaces and the engine's
// shared machinery: the Source registry, the StateManager, the conversion
// pipeline and the result collector.
//
// Services depend only on domain and ports; representations arrive through
// driven.Representer and concrete connectors are wired in by the caller.
package services
