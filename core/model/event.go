package model

import (
	"fmt"
	"sort"
)

// EventType identifies the variant carried by an Event.
type EventType int

const (
	EventBootstrapRegistered EventType = iota
	EventDeviceDataReceived
)

// String returns a human-readable representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventBootstrapRegistered:
		return "bootstrap_registered"
	case EventDeviceDataReceived:
		return "device_data_received"
	default:
		return "unknown"
	}
}

// VariableUpdate is a single variable value reported by a device.
type VariableUpdate struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Event is produced by the message router and consumed by the device model.
// The set of implementations is closed: BootstrapRegistered and
// DeviceDataReceived.
type Event interface {
	Type() EventType
	Device() string
	isEvent()
}

// BootstrapRegistered is emitted once per successful bootstrap request.
type BootstrapRegistered struct {
	DeviceID    string
	BootstrapID string
	Name        string
	InitialData []VariableUpdate
}

func (BootstrapRegistered) Type() EventType  { return EventBootstrapRegistered }
func (e BootstrapRegistered) Device() string { return e.DeviceID }
func (BootstrapRegistered) isEvent()         {}

// DeviceDataReceived is emitted once per inbound device data message.
type DeviceDataReceived struct {
	DeviceID    string
	BootstrapID string
	Updates     []VariableUpdate
}

func (DeviceDataReceived) Type() EventType  { return EventDeviceDataReceived }
func (e DeviceDataReceived) Device() string { return e.DeviceID }
func (DeviceDataReceived) isEvent()         {}

// UpdatesFromMap converts a decoded JSON object into variable updates sorted
// by name. A nil map yields nil.
func UpdatesFromMap(m map[string]any) []VariableUpdate {
	if m == nil {
		return nil
	}
	updates := make([]VariableUpdate, 0, len(m))
	for k, v := range m {
		updates = append(updates, VariableUpdate{Name: k, Value: v})
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].Name < updates[j].Name })
	return updates
}

// UpdatesToMap is the inverse of UpdatesFromMap.
func UpdatesToMap(updates []VariableUpdate) map[string]any {
	m := make(map[string]any, len(updates))
	for _, u := range updates {
		m[u.Name] = u.Value
	}
	return m
}

func (u VariableUpdate) String() string {
	return fmt.Sprintf("%s=%v", u.Name, u.Value)
}
