package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/mqttbridge/core/router"
)

type bootstrapResult struct {
	resp router.BootstrapResponse
	err  error
}

func requestAsync(ctx context.Context, req router.BootstrapRequest) <-chan bootstrapResult {
	out := make(chan bootstrapResult, 1)
	go func() {
		resp, err := RequestBootstrap(ctx, Config{Broker: "tcp://broker:1883"}, req)
		out <- bootstrapResult{resp, err}
	}()
	return out
}

func waitPublished(t *testing.T, f *mockFactory) *mockClient {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.count() == 1 && len(f.client(0).publishes()) == 1
	}, waitFor, 5*time.Millisecond)
	return f.client(0)
}

func TestRequestBootstrap(t *testing.T) {
	f := &mockFactory{}
	installFactory(t, f)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	out := requestAsync(ctx, router.BootstrapRequest{DeviceID: "dev1", Nonce: "n1", Name: "Sensor"})
	mc := waitPublished(t, f)

	pub := mc.publishes()[0]
	assert.Equal(t, "bootstrap", pub.topic)
	var req map[string]any
	require.NoError(t, json.Unmarshal(pub.payload, &req))
	assert.Equal(t, "dev1", req["deviceId"])
	assert.Equal(t, "n1", req["nonce"])
	assert.Empty(t, mc.opts.Username)
	assert.Contains(t, mc.subscriptions(), "bootstrap/dev1/n1")

	mc.deliver("bootstrap/dev1/n1", "bootstrap/dev1/n1",
		[]byte(`{"secret":"s3cr3t","topics":{"data":"device/abc/data","command":"device/abc/command"}}`))

	r := <-out
	require.NoError(t, r.err)
	assert.Equal(t, "s3cr3t", r.resp.Secret)
	require.NotNil(t, r.resp.Topics)
	assert.Equal(t, "device/abc/data", r.resp.Topics.Data)
	assert.Equal(t, "device/abc/command", r.resp.Topics.Command)
	assert.Equal(t, 1, mc.disconnectCount())
}

func TestRequestBootstrapRejected(t *testing.T) {
	f := &mockFactory{}
	installFactory(t, f)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	out := requestAsync(ctx, router.BootstrapRequest{DeviceID: "dev1", Nonce: "n1"})
	mc := waitPublished(t, f)
	mc.deliver("bootstrap/dev1/n1", "bootstrap/dev1/n1", []byte(`{"error":"Unable to bootstrap device"}`))

	r := <-out
	assert.ErrorIs(t, r.err, ErrBootstrapRejected)
	assert.Equal(t, router.BootstrapFailure, r.resp.Error)
}

func TestRequestBootstrapTimesOut(t *testing.T) {
	installFactory(t, &mockFactory{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := RequestBootstrap(ctx, Config{Broker: "tcp://broker:1883"}, router.BootstrapRequest{DeviceID: "dev1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRequestBootstrapRequiresDeviceID(t *testing.T) {
	_, err := RequestBootstrap(context.Background(), Config{}, router.BootstrapRequest{})
	assert.Error(t, err)
}

func TestPublishDeviceData(t *testing.T) {
	f := &mockFactory{}
	installFactory(t, f)

	err := PublishDeviceData(context.Background(), Config{Broker: "tcp://broker:1883"}, "device/abc/data", "s3cr3t", map[string]any{"temp": 21.5})
	require.NoError(t, err)

	mc := f.client(0)
	assert.Equal(t, "abc", mc.opts.Username)
	assert.Equal(t, "s3cr3t", mc.opts.Password)
	pubs := mc.publishes()
	require.Len(t, pubs, 1)
	assert.Equal(t, "device/abc/data", pubs[0].topic)
	assert.JSONEq(t, `{"temp":21.5}`, string(pubs[0].payload))
}

func TestPublishDeviceDataRejectsOtherTopics(t *testing.T) {
	err := PublishDeviceData(context.Background(), Config{}, "device/abc/command", "s", nil)
	assert.Error(t, err)
}
