// Package topic implements the bridge's MQTT topic grammar:
//
//	bootstrap                       registration request (device -> bridge)
//	bootstrap/<deviceId>/<nonce>    registration response (bridge -> device)
//	device/<bootstrapId>/data       telemetry (device -> bridge)
//	device/<bootstrapId>/command    commands (bridge -> device)
//
// Classification is total: every string maps to exactly one Kind.
package topic

import "strings"

const (
	Bootstrap    = "bootstrap"
	DevicePrefix = "device"
	Activations  = "bridge/admin/activations"

	// Wildcard filters the bridge's own client subscribes to.
	BootstrapFilter = "bootstrap/#"
	DeviceFilter    = "device/#"

	dataSuffix    = "data"
	commandSuffix = "command"
)

// Kind is the class a topic belongs to.
type Kind int

const (
	KindOther Kind = iota
	KindBootstrapRequest
	KindBootstrapResponse
	KindDeviceData
	KindDeviceCommand
)

func (k Kind) String() string {
	switch k {
	case KindBootstrapRequest:
		return "bootstrap-request"
	case KindBootstrapResponse:
		return "bootstrap-response"
	case KindDeviceData:
		return "device-data"
	case KindDeviceCommand:
		return "device-command"
	default:
		return "other"
	}
}

// Classify returns the kind of t.
func Classify(t string) Kind {
	if t == Bootstrap {
		return KindBootstrapRequest
	}
	parts := strings.Split(t, "/")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return KindOther
	}
	switch parts[0] {
	case Bootstrap:
		return KindBootstrapResponse
	case DevicePrefix:
		switch parts[2] {
		case dataSuffix:
			return KindDeviceData
		case commandSuffix:
			return KindDeviceCommand
		}
	}
	return KindOther
}

// BootstrapResponse is the reply topic for a registration request.
func BootstrapResponse(deviceID, nonce string) string {
	return Bootstrap + "/" + deviceID + "/" + nonce
}

// DeviceData is the telemetry topic of a bootstrap namespace.
func DeviceData(bootstrapID string) string {
	return DevicePrefix + "/" + bootstrapID + "/" + dataSuffix
}

// DeviceCommand is the command topic of a bootstrap namespace.
func DeviceCommand(bootstrapID string) string {
	return DevicePrefix + "/" + bootstrapID + "/" + commandSuffix
}

// NamespaceID returns the path segment following "device/" for data and
// command topics.
func NamespaceID(t string) (string, bool) {
	switch Classify(t) {
	case KindDeviceData, KindDeviceCommand:
		return strings.Split(t, "/")[1], true
	}
	return "", false
}
