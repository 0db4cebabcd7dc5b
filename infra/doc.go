// Package infra contains technical adapters: the paho connection manager,
// the embedded mochi broker, sqlite storage and metrics exporters. These
// packages depend on the interfaces defined in the core packages.
package infra
