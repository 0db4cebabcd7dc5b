package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/mqttbridge/core/metrics"
	"github.com/kilianp07/mqttbridge/core/model"
	coremqtt "github.com/kilianp07/mqttbridge/core/mqtt"
	"github.com/kilianp07/mqttbridge/internal/eventbus"
)

func TestPromSinkRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, s.RecordMessage(coremetrics.MessageEvent{Direction: coremetrics.Inbound, Kind: "bootstrap-request"}))
	require.NoError(t, s.RecordMessage(coremetrics.MessageEvent{Direction: coremetrics.Outbound, Kind: "bootstrap-response", Failed: true}))
	require.NoError(t, s.RecordRegistration(coremetrics.RegistrationEvent{DeviceID: "dev1", Success: true}))
	require.NoError(t, s.RecordAuthFailure(coremetrics.AuthFailureEvent{Reason: "connect"}))
	require.NoError(t, s.RecordAuthFailure(coremetrics.AuthFailureEvent{Reason: "connect"}))
	require.NoError(t, s.RecordDeviceData(coremetrics.DeviceDataEvent{Updates: []model.VariableUpdate{{Name: "a"}, {Name: "b"}}}))

	assert.Equal(t, 1.0, testutil.ToFloat64(s.messages.WithLabelValues("in", "bootstrap-request", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.messages.WithLabelValues("out", "bootstrap-response", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.registrations.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.authFailures.WithLabelValues("connect")))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.updates))
}

func TestPromSinkConnection(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, s.RecordConnection(coremetrics.ConnectionEvent{State: "connecting", Attempt: true}))
	require.NoError(t, s.RecordConnection(coremetrics.ConnectionEvent{State: "subscribed", Connected: true}))

	assert.Equal(t, 1.0, testutil.ToFloat64(s.connects))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.connected))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.state.WithLabelValues("subscribed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(s.state.WithLabelValues("connecting")))
}

func TestPromSinkReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	s1, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	s2, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, s1.RecordRegistration(coremetrics.RegistrationEvent{Success: false}))
	require.NoError(t, s2.RecordRegistration(coremetrics.RegistrationEvent{Success: false}))
	assert.Equal(t, 2.0, testutil.ToFloat64(s1.registrations.WithLabelValues("false")))
}

func TestStateCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := eventbus.NewTyped[coremqtt.StateChange]()
	StartStateCollector(ctx, bus, s)

	bus.Publish(coremqtt.StateChange{From: coremqtt.Disconnected, To: coremqtt.Connecting, Time: time.Now()})
	bus.Publish(coremqtt.StateChange{From: coremqtt.Connecting, To: coremqtt.Connected, Time: time.Now()})

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(s.connected) == 1 && testutil.ToFloat64(s.connects) == 1
	}, time.Second, 5*time.Millisecond)
}
