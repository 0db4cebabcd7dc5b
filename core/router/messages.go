package router

import (
	"strings"

	"github.com/kilianp07/mqttbridge/core/model"
)

// DefaultDeviceName is used when a bootstrap request carries no name.
const DefaultDeviceName = "Unknown MQTT Device"

// BootstrapFailure is the error text replied when registration fails.
const BootstrapFailure = "Unable to bootstrap device"

// BootstrapRequest is published by a device on the bootstrap topic.
type BootstrapRequest struct {
	DeviceID string         `json:"deviceId"`
	Nonce    string         `json:"nonce"`
	Name     string         `json:"name,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// ResponseTopics tells a device where to publish data and listen for commands.
type ResponseTopics struct {
	Data    string `json:"data"`
	Command string `json:"command"`
}

// BootstrapResponse is the reply to a BootstrapRequest. Exactly one of
// Secret/Topics or Error is set.
type BootstrapResponse struct {
	Secret string          `json:"secret,omitempty"`
	Topics *ResponseTopics `json:"topics,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ActivationNotice is published for external brokers when a device first
// reports data, so their auth backend can learn the device secret. Devices
// authenticate as BootstrapID on their data topic.
type ActivationNotice struct {
	DeviceID     string `json:"deviceId"`
	BootstrapID  string `json:"bootstrapId"`
	DeviceSecret string `json:"deviceSecret"`
}

// NewActivationNotice builds the notice for rec.
func NewActivationNotice(rec model.BootstrapRecord) ActivationNotice {
	return ActivationNotice{DeviceID: rec.DeviceID, BootstrapID: rec.ID, DeviceSecret: rec.Secret}
}

// parseBootstrapRequest extracts a request from a decoded payload. deviceId
// and nonce must be non-empty strings usable as a single topic level.
func parseBootstrapRequest(payload map[string]any) (BootstrapRequest, bool) {
	deviceID, ok := topicLevel(payload["deviceId"])
	if !ok {
		return BootstrapRequest{}, false
	}
	nonce, ok := topicLevel(payload["nonce"])
	if !ok {
		return BootstrapRequest{}, false
	}
	req := BootstrapRequest{DeviceID: deviceID, Nonce: nonce, Name: DefaultDeviceName}
	if name, ok := payload["name"].(string); ok && name != "" {
		req.Name = name
	}
	if data, ok := payload["data"].(map[string]any); ok {
		req.Data = data
	}
	return req, true
}

func topicLevel(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" || strings.ContainsAny(s, "/+#") {
		return "", false
	}
	return s, true
}

func (r BootstrapRequest) event(rec model.BootstrapRecord) model.BootstrapRegistered {
	return model.BootstrapRegistered{
		DeviceID:    r.DeviceID,
		BootstrapID: rec.ID,
		Name:        r.Name,
		InitialData: model.UpdatesFromMap(r.Data),
	}
}
