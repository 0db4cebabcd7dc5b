package metrics

import (
	"time"

	"github.com/kilianp07/mqttbridge/core/model"
)

// Direction of an MQTT message relative to the bridge.
type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

// MessageEvent describes one message handled by the bridge.
type MessageEvent struct {
	Direction Direction
	// Kind is the topic class, e.g. "bootstrap_request" or "device_data".
	Kind string
	// Failed is set when the message could not be handled or published.
	Failed bool
	Time   time.Time
}

// MetricsSink records bridge traffic for observability purposes.
type MetricsSink interface {
	RecordMessage(ev MessageEvent) error
}

// ConnectionEvent captures a connection state transition of the bridge client.
type ConnectionEvent struct {
	State     string
	Connected bool
	// Attempt is set when the transition starts a new connect attempt.
	Attempt bool
	Time    time.Time
}

// ConnectionRecorder records connection lifecycle events.
type ConnectionRecorder interface {
	RecordConnection(ev ConnectionEvent) error
}

// RegistrationEvent records the outcome of a bootstrap request.
type RegistrationEvent struct {
	DeviceID    string
	BootstrapID string
	Success     bool
	Time        time.Time
}

// RegistrationRecorder records bootstrap registrations.
type RegistrationRecorder interface {
	RecordRegistration(ev RegistrationEvent) error
}

// AuthFailureEvent is a rejected connect or a denied publish/subscribe.
type AuthFailureEvent struct {
	Username string
	ClientID string
	Topic    string
	// Reason is "connect", "read" or "write".
	Reason string
	Time   time.Time
}

// AuthFailureRecorder records authentication and authorization failures.
type AuthFailureRecorder interface {
	RecordAuthFailure(ev AuthFailureEvent) error
}

// DeviceDataEvent carries the variable updates reported by a device.
type DeviceDataEvent struct {
	DeviceID    string
	BootstrapID string
	Updates     []model.VariableUpdate
	Time        time.Time
}

// DeviceDataRecorder records device telemetry.
type DeviceDataRecorder interface {
	RecordDeviceData(ev DeviceDataEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordMessage(MessageEvent) error           { return nil }
func (NopSink) RecordConnection(ConnectionEvent) error     { return nil }
func (NopSink) RecordRegistration(RegistrationEvent) error { return nil }
func (NopSink) RecordAuthFailure(AuthFailureEvent) error   { return nil }
func (NopSink) RecordDeviceData(DeviceDataEvent) error     { return nil }

// OrNop returns s, or a NopSink when s is nil.
func OrNop(s MetricsSink) MetricsSink {
	if s == nil {
		return NopSink{}
	}
	return s
}
