// Package router turns inbound MQTT traffic into bridge behaviour. Bootstrap
// requests are registered and answered on the per-request reply topic, and
// device data messages become model events for the configured listener.
//
// The router does not touch the network. Replies go through a Sink and the
// transport is expected to decode payloads with DecodePayload before calling
// OnMessage.
package router
