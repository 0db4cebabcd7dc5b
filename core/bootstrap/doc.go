// Package bootstrap issues device identities. A registration mints a
// bootstrap ID and secret for a device ID and persists the record through a
// Store; the registry then answers secret lookups for the broker.
package bootstrap
