// Package metrics defines the recorders used to observe the bridge: message
// traffic, connection lifecycle, bootstrap registrations, auth failures and
// device telemetry. Sinks are built from configuration through the factory
// helpers and combined with NewMultiSink when several are configured. Sinks
// only need RecordMessage; the other recorders are optional and detected
// with type assertions.
package metrics
